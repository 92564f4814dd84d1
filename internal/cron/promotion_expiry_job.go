package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/furnishly-backend/internal/pricing"
	"github.com/angelmondragon/furnishly-backend/pkg/logger"
)

// PromotionExpiryJobParams configure the promotion expiry job.
type PromotionExpiryJobParams struct {
	Logger     *logger.Logger
	Promotions promotionDeactivator
	Clock      pricing.Clock
}

type promotionDeactivator interface {
	DeactivateEndedBefore(ctx context.Context, day time.Time) (int64, error)
}

// NewPromotionExpiryJob builds the job that switches off promotions whose
// end date has passed in the store's time zone.
func NewPromotionExpiryJob(params PromotionExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Promotions == nil {
		return nil, fmt.Errorf("promotions repository required")
	}
	return &promotionExpiryJob{
		logg:  params.Logger,
		repo:  params.Promotions,
		clock: params.Clock,
	}, nil
}

type promotionExpiryJob struct {
	logg  *logger.Logger
	repo  promotionDeactivator
	clock pricing.Clock
}

func (j *promotionExpiryJob) Name() string { return "promotion-expiry" }

func (j *promotionExpiryJob) Run(ctx context.Context) error {
	today := j.clock.Date()
	changed, err := j.repo.DeactivateEndedBefore(ctx, today)
	if err != nil {
		return fmt.Errorf("deactivate promotions: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"today":       today.Format("2006-01-02"),
		"deactivated": changed,
	})
	j.logg.Info(logCtx, "promotion expiry complete")
	return nil
}
