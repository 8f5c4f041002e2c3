package sources

import (
	"context"
	"net/url"
	"strconv"

	"hot-rank/internal/features/hot/models"
)

type douyin struct {
	client    *Client
	endpoints []string
}

func newDouyin(client *Client) *douyin {
	return &douyin{
		client: client,
		endpoints: []string{
			"https://www.iesdouyin.com/web/api/v2/hotsearch/billboard/word/",
			"https://api.iesdouyin.com/web/api/v2/hotsearch/billboard/word/",
			"https://www.douyin.com/aweme/v1/web/hot/search/list/?device_platform=webapp&aid=6383&channel=channel_pc_web&detail_list=1",
		},
	}
}

func (d *douyin) ID() string { return "douyin" }

func (d *douyin) Fetch(ctx context.Context) (*models.SourcePayload, error) {
	attempts := make([]attempt, 0, len(d.endpoints))
	for _, endpoint := range d.endpoints {
		attempts = append(attempts, func(ctx context.Context) (*models.SourcePayload, error) {
			return d.fetchBillboard(ctx, endpoint)
		})
	}
	return firstSuccess(ctx, d.ID(), attempts)
}

func (d *douyin) fetchBillboard(ctx context.Context, endpoint string) (*models.SourcePayload, error) {
	var resp struct {
		WordList   []map[string]any `json:"word_list"`
		ActiveTime any              `json:"active_time"`
		Data       struct {
			WordList []map[string]any `json:"word_list"`
		} `json:"data"`
	}
	headers := withAccept(acceptJSON, map[string]string{"Referer": "https://www.douyin.com/hot"})
	if err := d.client.GetJSON(ctx, endpoint, headers, &resp); err != nil {
		return nil, err
	}

	words := resp.WordList
	if len(words) == 0 {
		words = resp.Data.WordList
	}
	fallbackTime := toISO(resp.ActiveTime)

	var items []item
	for i, row := range words {
		title := firstString(row["word"], row["title"])
		if title == "" {
			continue
		}

		sentenceID := AsString(row["sentence_id"])
		link := "https://www.douyin.com/search/" + url.PathEscape(title)
		if sentenceID != "" {
			link = "https://www.douyin.com/hot/" + sentenceID
		}
		id := firstString(row["sentence_id"], row["position"])
		if id == "" {
			id = strconv.Itoa(i + 1)
		}

		desc := ""
		if label := AsString(row["label"]); label != "" {
			desc = "标签 " + label
		}

		ts := toISO(firstNonNil(row["event_time"], row["timestamp"]))
		if ts == "" {
			ts = fallbackTime
		}

		items = append(items, item{
			ID:        id,
			Title:     title,
			Desc:      desc,
			Hot:       hotValue(row["hot_value"], row["hotValue"]),
			Timestamp: ts,
			URL:       link,
		})
	}
	return newPayload(d.ID(), "https://www.douyin.com/hot", items)
}
