package sources

import (
	"encoding/json"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// ISOLayout is the timestamp format of every HotItem
const ISOLayout = "2006-01-02T15:04:05.000Z07:00"

// epoch values above this are milliseconds, below are seconds
const millisThreshold = 946684800000

var (
	chinaTime = time.FixedZone("CST", 8*60*60)

	separators  = strings.NewReplacer(",", "", "，", "", " ", "", "\t", "", "\n", "")
	unitNumber  = regexp.MustCompile(`^([0-9]+(?:\.[0-9]+)?)(亿|万|千)?$`)
	nonDigits   = regexp.MustCompile(`\D+`)
	allDigits   = regexp.MustCompile(`^\d+$`)
	clockOfDay  = regexp.MustCompile(`^(\d{2}):(\d{2})$`)
	dateLayouts = []string{
		time.RFC3339Nano,
		time.RFC1123Z,
		time.RFC1123,
		"Mon, 2 Jan 2006 15:04:05 -0700",
		"Mon, 2 Jan 2006 15:04:05 MST",
		"2006-01-02T15:04:05",
		"2006-01-02",
	}
)

// FormatISO renders t in the HotItem timestamp format
func FormatISO(t time.Time) string {
	return t.UTC().Format(ISOLayout)
}

// ParseISO parses a HotItem timestamp
func ParseISO(s string) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// AsString renders scalar JSON values as text; anything else is empty
func AsString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return ""
	}
}

// firstString returns the first value that renders as non-empty text
func firstString(values ...any) string {
	for _, v := range values {
		if s := strings.TrimSpace(AsString(v)); s != "" {
			return s
		}
	}
	return ""
}

// parseNumber reads counts such as 1,234 or 3.5万. Text with no unit falls
// back to its digits.
func parseNumber(v any) (int64, bool) {
	switch x := v.(type) {
	case nil:
		return 0, false
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return int64(math.Round(f)), true
		}
		return parseNumber(x.String())
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, false
		}
		return int64(math.Round(x)), true
	case int:
		return int64(x), true
	case int64:
		return x, true
	case string:
		normalized := separators.Replace(strings.TrimSpace(x))
		if normalized == "" {
			return 0, false
		}
		if m := unitNumber.FindStringSubmatch(normalized); m != nil {
			amount, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				return 0, false
			}
			multiplier := 1.0
			switch m[2] {
			case "亿":
				multiplier = 1e8
			case "万":
				multiplier = 1e4
			case "千":
				multiplier = 1e3
			}
			return int64(math.Round(amount * multiplier)), true
		}
		digits := nonDigits.ReplaceAllString(normalized, "")
		n, err := strconv.ParseInt(digits, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// hotValue wraps parseNumber for row building; nil means unknown
func hotValue(values ...any) any {
	for _, v := range values {
		if n, ok := parseNumber(v); ok {
			return n
		}
	}
	return nil
}

// toISO accepts epoch seconds or milliseconds, digit strings and common
// date strings. Unparsable input gives "".
func toISO(v any) string {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return epochToISO(n)
		}
		if f, err := x.Float64(); err == nil {
			return epochToISO(int64(f))
		}
		return ""
	case float64:
		return epochToISO(int64(x))
	case int:
		return epochToISO(int64(x))
	case int64:
		return epochToISO(x)
	case string:
		raw := strings.TrimSpace(x)
		if raw == "" {
			return ""
		}
		if allDigits.MatchString(raw) {
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return ""
			}
			return epochToISO(n)
		}
		if t, err := time.ParseInLocation("2006-01-02 15:04:05", raw, chinaTime); err == nil {
			return FormatISO(t)
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return FormatISO(t)
			}
		}
		return ""
	default:
		return ""
	}
}

func epochToISO(n int64) string {
	if n <= 0 {
		return ""
	}
	if n > millisThreshold {
		return FormatISO(time.UnixMilli(n))
	}
	return FormatISO(time.Unix(n, 0))
}

// clockToISO maps an "HH:MM" label to that time today in China
func clockToISO(v any, now time.Time) string {
	s := strings.TrimSpace(AsString(v))
	m := clockOfDay.FindStringSubmatch(s)
	if m == nil {
		return toISO(v)
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	local := now.In(chinaTime)
	t := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, chinaTime)
	return FormatISO(t)
}

// absoluteURL resolves ref against base; invalid input gives ""
func absoluteURL(ref, base string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	resolved := baseURL.ResolveReference(refURL)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return resolved.String()
}

// extractJSONObject returns the balanced {...} that follows marker in page
func extractJSONObject(page, marker string) string {
	idx := strings.Index(page, marker)
	if idx < 0 {
		return ""
	}
	start := strings.IndexByte(page[idx+len(marker):], '{')
	if start < 0 {
		return ""
	}
	start += idx + len(marker)

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(page); i++ {
		ch := page[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return page[start : i+1]
			}
		}
	}
	return ""
}

// plainText strips markup and collapses whitespace
func plainText(fragment string) string {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return ""
	}
	text := fragment
	if strings.ContainsAny(fragment, "<&") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
		if err == nil {
			text = doc.Text()
		}
	}
	return strings.Join(strings.Fields(text), " ")
}

// truncateRunes cuts s to at most n characters
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// object and array narrow decoded JSON values
func object(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func array(v any) []any {
	a, _ := v.([]any)
	return a
}

// NormalizeTimestamp renders an epoch or date value in the HotItem
// timestamp format, or "" when it cannot be parsed
func NormalizeTimestamp(v any) string {
	return toISO(v)
}
