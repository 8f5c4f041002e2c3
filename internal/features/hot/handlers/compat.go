package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/feeds"

	"hot-rank/internal/core"
	"hot-rank/internal/features/hot/models"
	"hot-rank/internal/features/hot/sources"
)

// CompatHandler serves the legacy root-level routes
type CompatHandler struct {
	logger  *core.Logger
	service FeedServiceInterface
}

func NewCompatHandler(logger *core.Logger, service FeedServiceInterface) *CompatHandler {
	return &CompatHandler{
		logger:  logger,
		service: service,
	}
}

type compatRoutes struct {
	Code   int                  `json:"code"`
	Count  int                  `json:"count"`
	Routes []models.CompatRoute `json:"routes"`
}

type compatFeed struct {
	Code int `json:"code"`
	*models.HotFeed
}

// ListRoutes answers GET /all
func (h *CompatHandler) ListRoutes(w http.ResponseWriter, r *http.Request) {
	routes := models.CompatRoutes()
	core.WriteRawJSON(w, http.StatusOK, compatRoutes{
		Code:   http.StatusOK,
		Count:  len(routes),
		Routes: routes,
	})
}

// GetSource answers GET /{source}, as JSON or as RSS when rss=true
func (h *CompatHandler) GetSource(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")
	feed, err := h.service.GetStandardFeed(r.Context(), source, standardOptions(r))
	if err != nil {
		core.HandleError(w, r, err)
		return
	}

	if r.URL.Query().Get("rss") != "true" {
		core.WriteRawJSON(w, http.StatusOK, compatFeed{Code: http.StatusOK, HotFeed: feed})
		return
	}

	body, err := feedRSS(feed)
	if err != nil {
		h.logger.WithContext(r.Context()).Error("Failed to render rss", "source", source, "error", err)
		core.HandleError(w, r, core.NewInternalError("Failed to render rss", err))
		return
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func feedRSS(feed *models.HotFeed) (string, error) {
	def, _ := models.LookupSource(feed.Source)
	channel := &feeds.Feed{
		Title:       feed.Title,
		Link:        &feeds.Link{Href: feed.Link},
		Description: def.Description,
	}
	if updated, ok := sources.ParseISO(feed.UpdateTime); ok {
		channel.Updated = updated
	}

	for _, item := range feed.Items {
		entry := &feeds.Item{
			Title:       item.Title,
			Link:        &feeds.Link{Href: item.URL},
			Description: item.Desc,
			Id:          item.URL,
		}
		if created, ok := sources.ParseISO(item.Timestamp); ok {
			entry.Created = created
		}
		channel.Items = append(channel.Items, entry)
	}

	return channel.ToRss()
}
