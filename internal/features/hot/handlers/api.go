package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"hot-rank/internal/core"
	"hot-rank/internal/features/hot/models"
)

type APIHandler struct {
	logger  *core.Logger
	service FeedServiceInterface
}

func NewAPIHandler(logger *core.Logger, service FeedServiceInterface) *APIHandler {
	return &APIHandler{
		logger:  logger,
		service: service,
	}
}

// ListSources returns the source catalogue
func (h *APIHandler) ListSources(w http.ResponseWriter, r *http.Request) {
	core.WriteJSON(w, h.service.ListSources())
}

// GetFeed returns the normalized feed of one source
func (h *APIHandler) GetFeed(w http.ResponseWriter, r *http.Request) {
	feed, err := h.service.GetStandardFeed(r.Context(), chi.URLParam(r, "source"), standardOptions(r))
	if err != nil {
		core.HandleError(w, r, err)
		return
	}
	core.WriteJSON(w, feed)
}

// GetAggregate returns the merged feed of the requested sources
func (h *APIHandler) GetAggregate(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var requested []string
	for _, source := range strings.Split(query.Get("sources"), ",") {
		if source = strings.TrimSpace(source); source != "" {
			requested = append(requested, source)
		}
	}

	data, err := h.service.GetAggregateFeed(r.Context(), models.AggregateOptions{
		Sources: requested,
		Limit:   positiveInt(query.Get("limit"), models.DefaultAggregateLimit),
	})
	if err != nil {
		core.HandleError(w, r, err)
		return
	}
	core.WriteJSON(w, data)
}

func standardOptions(r *http.Request) models.StandardOptions {
	query := r.URL.Query()
	return models.StandardOptions{
		Limit:   positiveInt(query.Get("limit"), 0),
		NoCache: query.Get("cache") == "false",
	}
}

// positiveInt parses a positive integer, falling back on anything else
func positiveInt(raw string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
