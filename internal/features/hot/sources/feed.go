package sources

import (
	"bytes"
	"context"
	"fmt"

	"github.com/mmcdole/gofeed"
)

const maxFeedItems = 50

// fetchFeedItems reads an RSS/Atom document and maps its entries to rows.
// Entries without a title or a resolvable link are skipped.
func fetchFeedItems(ctx context.Context, client *Client, feedURL, base string, descLimit int, idOf func(link, guid string, n int) string) ([]item, error) {
	body, err := client.Get(ctx, feedURL, withAccept(acceptFeed, nil))
	if err != nil {
		return nil, err
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}

	var items []item
	for _, entry := range feed.Items {
		title := plainText(entry.Title)
		link := absoluteURL(entry.Link, base)
		if title == "" || link == "" {
			continue
		}

		ts := ""
		if entry.PublishedParsed != nil {
			ts = FormatISO(*entry.PublishedParsed)
		} else {
			ts = toISO(entry.Published)
		}

		items = append(items, item{
			ID:        idOf(link, entry.GUID, len(items)+1),
			Title:     title,
			Desc:      truncateRunes(plainText(entry.Description), descLimit),
			Timestamp: ts,
			URL:       link,
		})
		if len(items) >= maxFeedItems {
			break
		}
	}
	return items, nil
}
