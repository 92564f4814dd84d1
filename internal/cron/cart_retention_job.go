package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/furnishly-backend/pkg/logger"
)

const cartRetentionDays = 60

// CartRetentionJobParams configure the abandoned cart cleanup.
type CartRetentionJobParams struct {
	Logger    *logger.Logger
	Carts     staleCartDeleter
	Retention int
}

type staleCartDeleter interface {
	DeleteStale(ctx context.Context, before time.Time) (int64, error)
}

// NewCartRetentionJob builds the job that drops cart lines nobody touched
// within the retention window.
func NewCartRetentionJob(params CartRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = cartRetentionDays
	}
	return &cartRetentionJob{
		logg:      params.Logger,
		repo:      params.Carts,
		retention: retention,
		now:       time.Now,
	}, nil
}

type cartRetentionJob struct {
	logg      *logger.Logger
	repo      staleCartDeleter
	retention int
	now       func() time.Time
}

func (j *cartRetentionJob) Name() string { return "cart-retention" }

func (j *cartRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().AddDate(0, 0, -j.retention)
	deleted, err := j.repo.DeleteStale(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("cart retention: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"rows_deleted":   deleted,
	})
	j.logg.Info(logCtx, "cart retention complete")
	return nil
}
