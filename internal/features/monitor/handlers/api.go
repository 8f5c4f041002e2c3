package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"hot-rank/internal/core"
	"hot-rank/internal/features/monitor/models"
)

type APIHandler struct {
	logger  *core.Logger
	service MonitorServiceInterface
}

func NewAPIHandler(logger *core.Logger, service MonitorServiceInterface) *APIHandler {
	return &APIHandler{
		logger:  logger,
		service: service,
	}
}

// ListMonitors returns the configured monitors
func (h *APIHandler) ListMonitors(w http.ResponseWriter, r *http.Request) {
	core.WriteJSON(w, h.service.ListMonitors())
}

// GetTopics returns a monitor's ranked topics
func (h *APIHandler) GetTopics(w http.ResponseWriter, r *http.Request) {
	opts := listOptions(r, models.DefaultTopicsLimit)

	topics, err := h.service.ListTopics(r.Context(), chi.URLParam(r, "id"), opts)
	if err != nil {
		core.HandleError(w, r, err)
		return
	}
	core.WriteJSON(w, topics)
}

// GetRSS returns a monitor's ranked topics as RSS 2.0
func (h *APIHandler) GetRSS(w http.ResponseWriter, r *http.Request) {
	// zero lets the service apply the monitor's rss topN
	opts := listOptions(r, 0)

	id := chi.URLParam(r, "id")
	body, err := h.service.BuildRSS(r.Context(), id, requestURL(r), opts)
	if err != nil {
		core.HandleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func listOptions(r *http.Request, defaultLimit int) models.ListOptions {
	query := r.URL.Query()
	opts := models.ListOptions{
		Limit:   positiveInt(query.Get("limit"), defaultLimit),
		Refresh: query.Get("refresh") == "true",
	}
	// a present but unusable minCount counts as 1
	if raw := query.Get("minCount"); raw != "" {
		opts.MinCount = positiveInt(raw, 1)
	}
	return opts
}

func positiveInt(raw string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

// requestURL rebuilds the absolute URL of r, honouring proxy headers
func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
	}

	host := r.Host
	if forwarded := r.Header.Get("X-Forwarded-Host"); forwarded != "" {
		host = strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	return scheme + "://" + host + r.URL.RequestURI()
}
