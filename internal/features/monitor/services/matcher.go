package services

import (
	"fmt"
	"regexp"
	"strings"

	"hot-rank/internal/features/monitor/models"
)

// Matcher is a compiled monitor rule
type Matcher struct {
	title, desc    bool
	include        []string
	exclude        []string
	includeRe      *regexp.Regexp
	excludeRe      *regexp.Regexp
	includePattern string
}

// NewMatcher compiles rule. Regexes are case-insensitive.
func NewMatcher(rule models.Rule) (*Matcher, error) {
	m := &Matcher{
		include: cleanKeywords(rule.IncludeKeywords),
		exclude: cleanKeywords(rule.ExcludeKeywords),
	}

	for _, field := range rule.Fields {
		switch field {
		case models.FieldTitle:
			m.title = true
		case models.FieldDesc:
			m.desc = true
		default:
			return nil, fmt.Errorf("unknown rule field %q", field)
		}
	}

	var err error
	if m.includeRe, err = compileRule("includeRegex", rule.IncludeRegex); err != nil {
		return nil, err
	}
	if m.excludeRe, err = compileRule("excludeRegex", rule.ExcludeRegex); err != nil {
		return nil, err
	}
	m.includePattern = rule.IncludeRegex

	return m, nil
}

func compileRule(name, pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	if strings.TrimSpace(pattern) == "" {
		return nil, fmt.Errorf("invalid %s: empty pattern", name)
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	return re, nil
}

func cleanKeywords(keywords []string) []string {
	var out []string
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// Match reports whether an item with title and desc passes the rule, and
// which include criteria it satisfied
func (m *Matcher) Match(title, desc string) (bool, []string) {
	var parts []string
	if m.title && title != "" {
		parts = append(parts, title)
	}
	if m.desc && desc != "" {
		parts = append(parts, desc)
	}
	text := strings.Join(parts, "\n")
	haystack := normalizeText(text)

	for _, keyword := range m.exclude {
		if strings.Contains(haystack, normalizeText(keyword)) {
			return false, nil
		}
	}
	if m.excludeRe != nil && m.excludeRe.MatchString(text) {
		return false, nil
	}

	ok := len(m.include) == 0 && m.includeRe == nil
	var reasons []string
	for _, keyword := range m.include {
		if strings.Contains(haystack, normalizeText(keyword)) {
			ok = true
			reasons = append(reasons, "kw:"+keyword)
		}
	}
	if m.includeRe != nil && m.includeRe.MatchString(text) {
		ok = true
		reasons = append(reasons, "re:"+m.includePattern)
	}

	return ok, reasons
}

func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
