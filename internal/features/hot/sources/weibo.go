package sources

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"hot-rank/internal/features/hot/models"
)

const weiboLink = "https://s.weibo.com/top/summary"

type weibo struct {
	client    *Client
	ajaxURL   string
	mobileURL string
	now       func() time.Time
}

func newWeibo(client *Client) *weibo {
	return &weibo{
		client:    client,
		ajaxURL:   "https://weibo.com/ajax/side/hotSearch",
		mobileURL: "https://m.weibo.cn/api/container/getIndex?containerid=106003type%3D25%26t%3D3%26disable_hot%3D1%26filter_type%3Drealtimehot",
		now:       time.Now,
	}
}

func (w *weibo) ID() string { return "weibo" }

func (w *weibo) Fetch(ctx context.Context) (*models.SourcePayload, error) {
	return firstSuccess(ctx, w.ID(), []attempt{w.fetchAjax, w.fetchMobile})
}

func (w *weibo) headers() map[string]string {
	return withAccept(acceptJSON, map[string]string{"Referer": weiboLink})
}

func (w *weibo) fetchAjax(ctx context.Context) (*models.SourcePayload, error) {
	var resp struct {
		Data struct {
			Realtime []map[string]any `json:"realtime"`
		} `json:"data"`
	}
	if err := w.client.GetJSON(ctx, w.ajaxURL, w.headers(), &resp); err != nil {
		return nil, err
	}

	now := w.now()
	var items []item
	for _, row := range resp.Data.Realtime {
		title := firstString(row["word"], row["note"])
		if title == "" {
			continue
		}
		link := weiboSearchURL(title)
		items = append(items, item{
			ID:        "weibo-" + strconv.Itoa(len(items)+1),
			Title:     title,
			Hot:       hotValue(row["raw_hot"], row["num"]),
			Timestamp: clockToISO(row["onboard_time"], now),
			URL:       link,
		})
	}
	return newPayload(w.ID(), weiboLink, items)
}

func (w *weibo) fetchMobile(ctx context.Context) (*models.SourcePayload, error) {
	var resp struct {
		Data struct {
			Cards []struct {
				CardGroup []map[string]any `json:"card_group"`
			} `json:"cards"`
		} `json:"data"`
	}
	if err := w.client.GetJSON(ctx, w.mobileURL, w.headers(), &resp); err != nil {
		return nil, err
	}

	var items []item
	for _, card := range resp.Data.Cards {
		for _, row := range card.CardGroup {
			title := strings.TrimSpace(AsString(row["desc"]))
			if title == "" {
				continue
			}
			id := firstString(object(row["actionlog"])["oid"])
			if id == "" {
				id = "weibo-" + strconv.Itoa(len(items)+1)
			}
			items = append(items, item{
				ID:    id,
				Title: title,
				Hot:   hotValue(row["desc_extr"]),
				URL:   weiboSearchURL(title),
			})
		}
	}
	return newPayload(w.ID(), weiboLink, items)
}

func weiboSearchURL(keyword string) string {
	return "https://s.weibo.com/weibo?q=" + url.QueryEscape(keyword)
}
