package services

import (
	"encoding/json"
	"strconv"
	"strings"

	"hot-rank/internal/features/hot/models"
	"hot-rank/internal/features/hot/sources"
)

const untitled = "(untitled)"

// Normalize turns a raw payload into a feed. Items keep the adapter's order.
func Normalize(source string, payload models.SourcePayload, fromCache bool, updateTime string) *models.HotFeed {
	items := make([]models.HotItem, 0, len(payload.Data))
	for i, row := range payload.Data {
		items = append(items, normalizeRow(source, i, row))
	}

	title := payload.Title
	if title == "" {
		title = source
	}

	return &models.HotFeed{
		Source:     source,
		Title:      title,
		Type:       payload.Type,
		Link:       payload.Link,
		Total:      len(items),
		FromCache:  fromCache,
		UpdateTime: updateTime,
		Items:      items,
	}
}

func normalizeRow(source string, index int, row models.RawRow) models.HotItem {
	if row == nil {
		row = models.RawRow{}
	}

	title := firstText(row["title"], row["desc"])
	if title == "" {
		title = untitled
	}

	id := sources.AsString(row["id"])
	if id == "" {
		id = source + "-" + strconv.Itoa(index+1)
	}

	return models.HotItem{
		ID:        id,
		Title:     title,
		URL:       firstText(row["url"], row["link"]),
		MobileURL: firstText(row["mobileUrl"], row["mobile_url"]),
		Desc:      firstText(row["desc"], row["description"]),
		Hot:       hotOf(row["hot"]),
		Timestamp: sources.NormalizeTimestamp(row["timestamp"]),
		Source:    source,
		Raw:       row,
	}
}

// DedupKey identifies an item across sources: its trimmed url, else its
// lower-cased title
func DedupKey(item models.HotItem) string {
	if u := strings.TrimSpace(item.URL); u != "" {
		return "url:" + u
	}
	return "title:" + strings.ToLower(strings.TrimSpace(item.Title))
}

// firstText returns the first string or number that renders non-empty
func firstText(values ...any) string {
	for _, v := range values {
		if s := sources.AsString(v); s != "" {
			return s
		}
	}
	return ""
}

// hotOf passes numbers and strings through unchanged
func hotOf(v any) any {
	switch v.(type) {
	case string, json.Number, float64, int, int64:
		return v
	default:
		return nil
	}
}
