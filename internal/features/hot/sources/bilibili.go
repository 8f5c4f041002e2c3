package sources

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"hot-rank/internal/features/hot/models"
)

type bilibili struct {
	client     *Client
	candidates []string
}

func newBilibili(client *Client, mirror string) *bilibili {
	candidates := []string{
		"https://api.bilibili.com/x/web-interface/ranking/v2?rid=0&type=all",
		"https://api.bilibili.com/x/web-interface/popular?ps=50&pn=1",
		"https://app.bilibili.com/x/v2/search/trending/ranking?limit=50",
	}
	if u, err := url.Parse(strings.TrimSpace(mirror)); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		candidates = append(candidates, u.String())
	}
	return &bilibili{client: client, candidates: candidates}
}

func (b *bilibili) ID() string { return "bilibili" }

func (b *bilibili) Fetch(ctx context.Context) (*models.SourcePayload, error) {
	attempts := make([]attempt, 0, len(b.candidates))
	for _, endpoint := range b.candidates {
		attempts = append(attempts, func(ctx context.Context) (*models.SourcePayload, error) {
			return b.fetchRanking(ctx, endpoint)
		})
	}
	return firstSuccess(ctx, b.ID(), attempts)
}

func (b *bilibili) fetchRanking(ctx context.Context, endpoint string) (*models.SourcePayload, error) {
	var resp struct {
		Code    *int           `json:"code"`
		Message string         `json:"message"`
		Data    map[string]any `json:"data"`
		Result  []any          `json:"result"`
	}
	headers := withAccept(acceptJSON, map[string]string{"Referer": "https://www.bilibili.com/"})
	if err := b.client.GetJSON(ctx, endpoint, headers, &resp); err != nil {
		return nil, err
	}
	if resp.Code != nil && *resp.Code != 0 {
		return nil, fmt.Errorf("bilibili api code %d: %s", *resp.Code, resp.Message)
	}

	rows := array(resp.Data["list"])
	if rows == nil {
		rows = array(resp.Data["items"])
	}
	if rows == nil {
		rows = resp.Result
	}

	var items []item
	for _, r := range rows {
		row := object(r)
		title := strings.TrimSpace(AsString(row["title"]))
		if title == "" {
			continue
		}

		bvid := AsString(row["bvid"])
		aid := AsString(row["aid"])
		link := "https://www.bilibili.com/"
		id := ""
		switch {
		case bvid != "":
			link = "https://www.bilibili.com/video/" + bvid
			id = bvid
		case aid != "":
			link = "https://www.bilibili.com/video/av" + aid
			id = aid
		}

		desc := ""
		if owner, ok := object(row["owner"])["name"].(string); ok {
			desc = "UP主 " + owner
		} else if d, ok := row["desc"].(string); ok {
			desc = truncateRunes(d, 80)
		}

		stat := object(row["stat"])
		if stat == nil {
			stat = object(row["stats"])
		}

		items = append(items, item{
			ID:        id,
			Title:     title,
			Desc:      desc,
			Hot:       hotValue(stat["view"]),
			Timestamp: toISO(firstNonNil(row["pubdate"], row["ctime"], row["pub_time"])),
			URL:       link,
		})
	}
	return newPayload(b.ID(), "https://www.bilibili.com/v/popular/all", items)
}
