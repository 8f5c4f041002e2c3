// Package sources holds one adapter per supported platform. Each adapter
// turns a platform's hot list into a models.SourcePayload.
package sources

import (
	"context"
	"errors"
	"fmt"

	"hot-rank/internal/features/hot/models"
)

// Adapter fetches the hot list of one source. The context carries the whole
// fetch budget; every fallback shares it.
type Adapter interface {
	ID() string
	Fetch(ctx context.Context) (*models.SourcePayload, error)
}

// ErrNoItems means an endpoint answered but yielded no usable rows
var ErrNoItems = errors.New("no items")

// Options carries the optional per-source inputs
type Options struct {
	ZhihuCookie       string
	BilibiliMirrorURL string
}

// NewAdapters builds the adapter of every catalogue source, keyed by id
func NewAdapters(client *Client, opts Options) map[string]Adapter {
	all := []Adapter{
		newDouyin(client),
		newKuaishou(client),
		newWeibo(client),
		newZhihu(client, opts.ZhihuCookie),
		newBaidu(client),
		newBilibili(client, opts.BilibiliMirrorURL),
		newKr36(client),
		newToutiao(client),
		newV2ex(client),
	}

	adapters := make(map[string]Adapter, len(all))
	for _, a := range all {
		adapters[a.ID()] = a
	}
	return adapters
}

// item is the common row shape adapters produce
type item struct {
	ID        string
	Title     string
	Desc      string
	Hot       any
	Timestamp string
	URL       string
	MobileURL string
}

func (it item) row() models.RawRow {
	row := models.RawRow{
		"id":    it.ID,
		"title": it.Title,
	}
	if it.URL != "" {
		row["url"] = it.URL
	}
	mobile := it.MobileURL
	if mobile == "" {
		mobile = it.URL
	}
	if mobile != "" {
		row["mobileUrl"] = mobile
	}
	if it.Desc != "" {
		row["desc"] = it.Desc
	}
	if it.Hot != nil {
		row["hot"] = it.Hot
	}
	if it.Timestamp != "" {
		row["timestamp"] = it.Timestamp
	}
	return row
}

// newPayload wraps rows with the catalogue title and type of source.
// No rows is an error.
func newPayload(source, link string, items []item) (*models.SourcePayload, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}

	def, _ := models.LookupSource(source)
	payload := &models.SourcePayload{
		Title: def.Title,
		Type:  def.Type,
		Link:  link,
		Data:  make([]models.RawRow, 0, len(items)),
	}
	for _, it := range items {
		payload.Data = append(payload.Data, it.row())
	}
	return payload, nil
}

type attempt func(ctx context.Context) (*models.SourcePayload, error)

// firstSuccess runs attempts in order and returns the first non-empty
// payload. The last error wins when all fail.
func firstSuccess(ctx context.Context, source string, attempts []attempt) (*models.SourcePayload, error) {
	var lastErr error
	for _, try := range attempts {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			break
		}

		payload, err := try(ctx)
		if err != nil {
			lastErr = err
			continue
		}
		if payload == nil || len(payload.Data) == 0 {
			lastErr = ErrNoItems
			continue
		}
		return payload, nil
	}

	if lastErr == nil {
		lastErr = ErrNoItems
	}
	return nil, fmt.Errorf("fetch %s: %w", source, lastErr)
}
