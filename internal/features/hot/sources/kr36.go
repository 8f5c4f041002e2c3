package sources

import (
	"bytes"
	"context"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"hot-rank/internal/features/hot/models"
)

const (
	kr36Base = "https://www.36kr.com"
	kr36Link = "https://www.36kr.com/hot-list/catalog"
)

var (
	kr36ArticlePath = regexp.MustCompile(`^(?:https?://(?:www\.)?36kr\.com)?/(?:p/\d+|newsflashes/\d+|video/\d+)`)
	kr36ErrorTitle  = regexp.MustCompile(`(?i)^(HTTP Status|Exception Report|Please enable)`)
)

type kr36 struct {
	client *Client
	pages  []string
	feeds  []string
}

func newKr36(client *Client) *kr36 {
	return &kr36{
		client: client,
		pages: []string{
			"https://www.36kr.com/hot-list/catalog",
			"https://36kr.com/hot-list/catalog",
			"https://www.36kr.com/information/web_news/",
			"https://36kr.com/information/web_news/",
		},
		feeds: []string{"https://36kr.com/feed", "https://www.36kr.com/feed"},
	}
}

func (k *kr36) ID() string { return "36kr" }

func (k *kr36) Fetch(ctx context.Context) (*models.SourcePayload, error) {
	var attempts []attempt
	for _, page := range k.pages {
		attempts = append(attempts, func(ctx context.Context) (*models.SourcePayload, error) {
			return k.fetchPage(ctx, page)
		})
	}
	for _, feed := range k.feeds {
		attempts = append(attempts, func(ctx context.Context) (*models.SourcePayload, error) {
			return k.fetchFeed(ctx, feed)
		})
	}
	return firstSuccess(ctx, k.ID(), attempts)
}

func (k *kr36) fetchPage(ctx context.Context, pageURL string) (*models.SourcePayload, error) {
	page, err := k.client.Get(ctx, pageURL, withAccept(acceptHTML, map[string]string{"Referer": "https://www.36kr.com/"}))
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, err
	}

	blobs := []string{
		strings.TrimSpace(doc.Find("script#__NEXT_DATA__").First().Text()),
		extractJSONObject(string(page), "window.__INITIAL_STATE__="),
		extractJSONObject(string(page), "window.__NUXT__="),
	}
	for _, blob := range blobs {
		if blob == "" {
			continue
		}
		var state any
		if err := decodeJSON([]byte(blob), &state); err != nil {
			continue
		}
		if items := kr36ItemsFromState(state); len(items) > 0 {
			return newPayload(k.ID(), kr36Link, items)
		}
	}

	return newPayload(k.ID(), kr36Link, kr36ItemsFromLinks(doc))
}

func (k *kr36) fetchFeed(ctx context.Context, feedURL string) (*models.SourcePayload, error) {
	items, err := fetchFeedItems(ctx, k.client, feedURL, kr36Base, 140, func(_, guid string, n int) string {
		if guid != "" {
			return guid
		}
		return strconv.Itoa(n)
	})
	if err != nil {
		return nil, err
	}
	return newPayload(k.ID(), kr36Link, items)
}

// kr36ItemsFromState walks an embedded page state looking for objects that
// look like articles
func kr36ItemsFromState(state any) []item {
	var candidates []map[string]any
	collectKr36Candidates(state, &candidates)

	seen := make(map[string]bool)
	var items []item
	for _, c := range candidates {
		title := strings.TrimSpace(AsString(c["title"]))
		if utf8.RuneCountInString(title) < 4 || kr36ErrorTitle.MatchString(title) {
			continue
		}

		id := AsString(c["id"])
		link := absoluteURL(AsString(c["url"]), kr36Base)
		if link == "" && id != "" {
			link = kr36Base + "/p/" + id
		}
		if link == "" {
			continue
		}

		key := title + "|" + link
		if seen[key] {
			continue
		}
		seen[key] = true

		if id == "" {
			id = "36kr-" + strconv.Itoa(len(items)+1)
		}
		items = append(items, item{
			ID:        id,
			Title:     title,
			Desc:      truncateRunes(plainText(AsString(c["desc"])), 120),
			Hot:       hotValue(c["hot"]),
			Timestamp: toISO(c["timestamp"]),
			URL:       link,
		})
		if len(items) >= maxFeedItems {
			break
		}
	}
	return items
}

func collectKr36Candidates(node any, bucket *[]map[string]any) {
	switch v := node.(type) {
	case []any:
		for _, child := range v {
			collectKr36Candidates(child, bucket)
		}
	case map[string]any:
		material := object(v["templateMaterial"])

		var title string
		for _, t := range []any{v["title"], v["articleTitle"], v["widgetTitle"], v["name"], material["widgetTitle"]} {
			if s, ok := t.(string); ok && utf8.RuneCountInString(strings.TrimSpace(s)) > 3 {
				title = s
				break
			}
		}
		link := firstString(v["url"], v["route"], v["jumpUrl"], v["itemJumpUrl"], material["jumpUrl"], material["itemJumpUrl"])
		id := firstString(v["itemId"], v["id"], material["itemId"])

		if title != "" && (link != "" || id != "") {
			*bucket = append(*bucket, map[string]any{
				"id":        id,
				"title":     title,
				"url":       link,
				"desc":      firstNonNil(v["summary"], v["description"], material["summary"]),
				"hot":       firstNonNil(v["hotScore"], v["hot_score"], v["viewCount"], v["statRead"], material["hotScore"]),
				"timestamp": firstNonNil(v["publishTime"], v["publish_time"], v["templateMaterialPublishTime"], material["publishTime"]),
			})
		}

		for _, child := range v {
			collectKr36Candidates(child, bucket)
		}
	}
}

// kr36ItemsFromLinks falls back to article anchors in the page
func kr36ItemsFromLinks(doc *goquery.Document) []item {
	seen := make(map[string]bool)
	var items []item

	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		route, _ := a.Attr("href")
		if !kr36ArticlePath.MatchString(route) || seen[route] {
			return true
		}

		title, _ := a.Attr("title")
		if strings.TrimSpace(title) == "" {
			title = a.Text()
		}
		title = plainText(title)
		if utf8.RuneCountInString(title) < 4 {
			return true
		}

		link := absoluteURL(route, kr36Base)
		if link == "" {
			return true
		}
		seen[route] = true

		id := nonDigits.ReplaceAllString(route, "")
		if id == "" {
			id = "36kr-" + strconv.Itoa(len(items)+1)
		}
		items = append(items, item{ID: id, Title: title, URL: link})
		return len(items) < maxFeedItems
	})

	return items
}
