package sources

import (
	"context"
	"errors"
	"net/url"
	"sort"
	"strings"

	"hot-rank/internal/features/hot/models"
)

const apolloMarker = "window.__APOLLO_STATE__="

type kuaishou struct {
	client   *Client
	endpoint string
}

func newKuaishou(client *Client) *kuaishou {
	return &kuaishou{client: client, endpoint: "https://www.kuaishou.com/?isHome=1"}
}

func (k *kuaishou) ID() string { return "kuaishou" }

func (k *kuaishou) Fetch(ctx context.Context) (*models.SourcePayload, error) {
	return firstSuccess(ctx, k.ID(), []attempt{k.fetchHome})
}

func (k *kuaishou) fetchHome(ctx context.Context) (*models.SourcePayload, error) {
	page, err := k.client.Get(ctx, k.endpoint, withAccept(acceptHTML, nil))
	if err != nil {
		return nil, err
	}

	blob := extractJSONObject(string(page), apolloMarker)
	if blob == "" {
		return nil, errors.New("kuaishou apollo state not found")
	}

	var state struct {
		DefaultClient map[string]any `json:"defaultClient"`
	}
	if err := decodeJSON([]byte(blob), &state); err != nil {
		return nil, err
	}
	if state.DefaultClient == nil {
		return nil, errors.New("kuaishou defaultClient not found")
	}

	rootKey := visionHotRankKey(state.DefaultClient)
	if rootKey == "" {
		return nil, errors.New("kuaishou visionHotRank key not found")
	}

	var items []item
	for _, entry := range array(object(state.DefaultClient[rootKey])["items"]) {
		ref := firstString(object(entry)["id"], object(entry)["__ref"])
		detail := object(state.DefaultClient[ref])
		title := strings.TrimSpace(AsString(detail["name"]))
		if title == "" {
			continue
		}

		link := "https://www.kuaishou.com/"
		for _, photo := range array(object(detail["photoIds"])["json"]) {
			if id, ok := photo.(string); ok && id != "" {
				link = "https://www.kuaishou.com/short-video/" + url.PathEscape(id)
				break
			}
		}

		items = append(items, item{
			ID:    firstString(detail["id"], ref),
			Title: title,
			Hot:   hotValue(detail["hotValue"]),
			URL:   link,
		})
	}
	return newPayload(k.ID(), "https://www.kuaishou.com/", items)
}

// visionHotRankKey finds the apollo cache key of the hot rank query
func visionHotRankKey(client map[string]any) string {
	var keys []string
	for key := range client {
		if strings.Contains(key, "visionHotRank(") {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)
	return keys[0]
}
