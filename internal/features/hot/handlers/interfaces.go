package handlers

import (
	"context"

	"hot-rank/internal/features/hot/models"
)

type FeedServiceInterface interface {
	ListSources() []models.SourceDefinition
	GetStandardFeed(ctx context.Context, source string, opts models.StandardOptions) (*models.HotFeed, error)
	GetAggregateFeed(ctx context.Context, opts models.AggregateOptions) (*models.AggregateHotData, error)
}
