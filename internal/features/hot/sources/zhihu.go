package sources

import (
	"context"
	"strconv"
	"strings"

	"hot-rank/internal/features/hot/models"
)

type zhihu struct {
	client   *Client
	endpoint string
	cookie   string
}

func newZhihu(client *Client, cookie string) *zhihu {
	return &zhihu{
		client:   client,
		endpoint: "https://api.zhihu.com/topstory/hot-lists/total?limit=50",
		cookie:   cookie,
	}
}

func (z *zhihu) ID() string { return "zhihu" }

func (z *zhihu) Fetch(ctx context.Context) (*models.SourcePayload, error) {
	return firstSuccess(ctx, z.ID(), []attempt{z.fetchHotList})
}

func (z *zhihu) fetchHotList(ctx context.Context) (*models.SourcePayload, error) {
	headers := withAccept("application/json", nil)
	if z.cookie != "" {
		headers["Cookie"] = z.cookie
	}

	var resp struct {
		Data []struct {
			Target     map[string]any `json:"target"`
			DetailText string         `json:"detail_text"`
		} `json:"data"`
	}
	if err := z.client.GetJSON(ctx, z.endpoint, headers, &resp); err != nil {
		return nil, err
	}

	var items []item
	for _, row := range resp.Data {
		title, _ := row.Target["title"].(string)
		rawURL, _ := row.Target["url"].(string)
		if title == "" || rawURL == "" {
			continue
		}

		link := "https://www.zhihu.com/question/" + lastPathSegment(rawURL)
		items = append(items, item{
			ID:        firstString(row.Target["id"]),
			Title:     title,
			Desc:      strings.TrimSpace(AsString(row.Target["excerpt"])),
			Hot:       zhihuHeat(row.DetailText),
			Timestamp: toISO(row.Target["created"]),
			URL:       link,
		})
	}
	return newPayload(z.ID(), "https://www.zhihu.com/hot", items)
}

// zhihuHeat reads "1234 万热度" as 12340000
func zhihuHeat(detail string) any {
	fields := strings.Fields(detail)
	if len(fields) == 0 {
		return nil
	}
	n, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return nil
	}
	return int64(n * 10000)
}

func lastPathSegment(rawURL string) string {
	parts := strings.Split(rawURL, "/")
	return strings.TrimSpace(parts[len(parts)-1])
}
