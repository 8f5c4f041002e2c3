package handlers

import (
	"context"

	"hot-rank/internal/features/monitor/models"
)

type MonitorServiceInterface interface {
	ListMonitors() []models.MonitorSummary
	ListTopics(ctx context.Context, id string, opts models.ListOptions) (*models.TopicsResponse, error)
	BuildRSS(ctx context.Context, id, requestURL string, opts models.ListOptions) (string, error)
}
