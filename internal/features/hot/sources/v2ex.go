package sources

import (
	"bytes"
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"hot-rank/internal/features/hot/models"
)

const (
	v2exBase = "https://www.v2ex.com"
	v2exLink = "https://www.v2ex.com/?tab=hot"
)

var v2exTopicID = regexp.MustCompile(`/t/(\d+)`)

type v2ex struct {
	client *Client
	apis   []string
	pages  []string
	feeds  []string
}

func newV2ex(client *Client) *v2ex {
	return &v2ex{
		client: client,
		apis: []string{
			"https://www.v2ex.com/api/topics/hot.json",
			"https://v2ex.com/api/topics/hot.json",
			"https://www.v2ex.com/api/topics/latest.json",
		},
		pages: []string{"https://www.v2ex.com/?tab=hot", "https://v2ex.com/?tab=hot"},
		feeds: []string{"https://www.v2ex.com/index.xml"},
	}
}

func (v *v2ex) ID() string { return "v2ex" }

func (v *v2ex) Fetch(ctx context.Context) (*models.SourcePayload, error) {
	var attempts []attempt
	for _, api := range v.apis {
		attempts = append(attempts, func(ctx context.Context) (*models.SourcePayload, error) {
			return v.fetchAPI(ctx, api)
		})
	}
	for _, page := range v.pages {
		attempts = append(attempts, func(ctx context.Context) (*models.SourcePayload, error) {
			return v.fetchPage(ctx, page)
		})
	}
	for _, feed := range v.feeds {
		attempts = append(attempts, func(ctx context.Context) (*models.SourcePayload, error) {
			return v.fetchFeed(ctx, feed)
		})
	}
	return firstSuccess(ctx, v.ID(), attempts)
}

func (v *v2ex) fetchAPI(ctx context.Context, endpoint string) (*models.SourcePayload, error) {
	var topics []map[string]any
	if err := v.client.GetJSON(ctx, endpoint, withAccept(acceptJSON, nil), &topics); err != nil {
		return nil, err
	}

	var items []item
	for _, topic := range topics {
		title := strings.TrimSpace(AsString(topic["title"]))
		link := absoluteURL(AsString(topic["url"]), v2exBase)
		if title == "" || link == "" {
			continue
		}

		id := AsString(topic["id"])
		if id == "" {
			id = v2exID(link, len(items)+1)
		}

		items = append(items, item{
			ID:        id,
			Title:     title,
			Desc:      v2exDesc(AsString(object(topic["node"])["title"]), AsString(object(topic["member"])["username"])),
			Hot:       hotValue(topic["replies"]),
			Timestamp: toISO(firstNonNil(topic["last_modified"], topic["created"])),
			URL:       link,
		})
	}
	return newPayload(v.ID(), v2exLink, items)
}

func (v *v2ex) fetchPage(ctx context.Context, pageURL string) (*models.SourcePayload, error) {
	page, err := v.client.Get(ctx, pageURL, withAccept(acceptHTML, nil))
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, err
	}

	var items []item
	doc.Find("div.cell.item").Each(func(_ int, cell *goquery.Selection) {
		anchor := cell.Find("a.topic-link").First()
		href, _ := anchor.Attr("href")
		title := plainText(anchor.Text())
		link := absoluteURL(href, v2exBase)
		if title == "" || link == "" {
			return
		}

		// topic links carry a #reply anchor we do not want in the url
		if i := strings.IndexByte(link, '#'); i >= 0 {
			link = link[:i]
		}

		items = append(items, item{
			ID:    v2exID(link, len(items)+1),
			Title: title,
			Desc:  v2exDesc(plainText(cell.Find("a.node").First().Text()), plainText(cell.Find("strong > a").First().Text())),
			Hot:   hotValue(plainText(cell.Find("a.count_livid").First().Text())),
			URL:   link,
		})
	})
	return newPayload(v.ID(), v2exLink, items)
}

func (v *v2ex) fetchFeed(ctx context.Context, feedURL string) (*models.SourcePayload, error) {
	items, err := fetchFeedItems(ctx, v.client, feedURL, v2exBase, 120, func(link, _ string, n int) string {
		return v2exID(link, n)
	})
	if err != nil {
		return nil, err
	}
	return newPayload(v.ID(), v2exLink, items)
}

func v2exID(link string, n int) string {
	if m := v2exTopicID.FindStringSubmatch(link); m != nil {
		return m[1]
	}
	return "v2ex-" + strconv.Itoa(n)
}

func v2exDesc(node, member string) string {
	var parts []string
	if node != "" {
		parts = append(parts, node)
	}
	if member != "" {
		parts = append(parts, "@"+member)
	}
	return strings.Join(parts, " · ")
}
