package sources

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"hot-rank/internal/features/hot/models"
)

const toutiaoBoard = "https://www.toutiao.com/hot-event/hot-board/?origin=toutiao_pc"

type toutiao struct {
	client   *Client
	endpoint string
}

func newToutiao(client *Client) *toutiao {
	return &toutiao{client: client, endpoint: toutiaoBoard}
}

func (t *toutiao) ID() string { return "toutiao" }

func (t *toutiao) Fetch(ctx context.Context) (*models.SourcePayload, error) {
	return firstSuccess(ctx, t.ID(), []attempt{t.fetchBoard})
}

func (t *toutiao) fetchBoard(ctx context.Context) (*models.SourcePayload, error) {
	var resp struct {
		Data []map[string]any `json:"data"`
	}
	headers := withAccept(acceptJSON, map[string]string{"Referer": "https://www.toutiao.com/"})
	if err := t.client.GetJSON(ctx, t.endpoint, headers, &resp); err != nil {
		return nil, err
	}

	var items []item
	for _, row := range resp.Data {
		title := strings.TrimSpace(AsString(row["Title"]))
		if title == "" {
			continue
		}
		link := absoluteURL(AsString(row["Url"]), "https://www.toutiao.com")
		if link == "" {
			link = "https://www.toutiao.com/search/?keyword=" + url.QueryEscape(title)
		}
		id := firstString(row["ClusterIdStr"], row["ClusterId"])
		if id == "" {
			id = strconv.Itoa(len(items) + 1)
		}

		var labels []string
		for _, key := range []string{"Label", "LabelDesc"} {
			if s, ok := row[key].(string); ok && s != "" {
				labels = append(labels, s)
			}
		}

		items = append(items, item{
			ID:        id,
			Title:     title,
			Desc:      strings.Join(labels, " · "),
			Hot:       hotValue(row["HotValue"], row["HotValueFormat"]),
			Timestamp: toISO(firstNonNil(row["Time"], row["PublishTime"], row["UpdateTime"])),
			URL:       link,
		})
	}
	return newPayload(t.ID(), toutiaoBoard, items)
}

func firstNonNil(values ...any) any {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
