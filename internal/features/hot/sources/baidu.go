package sources

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"hot-rank/internal/features/hot/models"
)

type baidu struct {
	client   *Client
	endpoint string
}

func newBaidu(client *Client) *baidu {
	return &baidu{client: client, endpoint: "https://top.baidu.com/api/board?tab=realtime"}
}

func (b *baidu) ID() string { return "baidu" }

func (b *baidu) Fetch(ctx context.Context) (*models.SourcePayload, error) {
	return firstSuccess(ctx, b.ID(), []attempt{b.fetchBoard})
}

func (b *baidu) fetchBoard(ctx context.Context) (*models.SourcePayload, error) {
	var resp struct {
		Data struct {
			Cards []struct {
				Content []map[string]any `json:"content"`
			} `json:"cards"`
		} `json:"data"`
	}
	headers := withAccept(acceptJSON, map[string]string{"Referer": "https://top.baidu.com/board?tab=realtime"})
	if err := b.client.GetJSON(ctx, b.endpoint, headers, &resp); err != nil {
		return nil, err
	}

	var items []item
	for _, card := range resp.Data.Cards {
		for _, row := range card.Content {
			title := firstString(row["query"], row["word"], row["title"])
			if title == "" {
				continue
			}
			link := absoluteURL(AsString(row["appUrl"]), "https://www.baidu.com")
			if link == "" {
				link = "https://www.baidu.com/s?wd=" + url.QueryEscape(title)
			}
			id := firstString(row["key"], row["id"], row["index"])
			if id == "" {
				id = strconv.Itoa(len(items) + 1)
			}
			items = append(items, item{
				ID:    id,
				Title: title,
				Desc:  strings.TrimSpace(AsString(row["desc"])),
				Hot:   hotValue(row["hotScore"], row["hot_score"], row["hotValue"]),
				URL:   link,
			})
		}
	}
	return newPayload(b.ID(), "https://top.baidu.com/board?tab=realtime", items)
}
