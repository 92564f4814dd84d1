package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/furnishly-backend/internal/cart"
	"github.com/angelmondragon/furnishly-backend/internal/pricing"
	"github.com/angelmondragon/furnishly-backend/internal/promotions"
	"github.com/angelmondragon/furnishly-backend/pkg/db/dbtest"
	"github.com/angelmondragon/furnishly-backend/pkg/db/models"
	"github.com/angelmondragon/furnishly-backend/pkg/enums"
	"github.com/angelmondragon/furnishly-backend/pkg/logger"
)

type fakeDeactivator struct {
	day     time.Time
	changed int64
	err     error
}

func (f *fakeDeactivator) DeactivateEndedBefore(_ context.Context, day time.Time) (int64, error) {
	f.day = day
	return f.changed, f.err
}

type fakeCartDeleter struct {
	before  time.Time
	deleted int64
	err     error
	called  int
}

func (f *fakeCartDeleter) DeleteStale(_ context.Context, before time.Time) (int64, error) {
	f.called++
	f.before = before
	return f.deleted, f.err
}

func TestPromotionExpiryUsesStoreLocalDate(t *testing.T) {
	// 02:30 UTC on the 16th is still the 15th in New York.
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	now := time.Date(2024, 3, 16, 2, 30, 0, 0, time.UTC)
	repo := &fakeDeactivator{changed: 3}
	job, err := NewPromotionExpiryJob(PromotionExpiryJobParams{
		Logger:     logger.Nop(),
		Promotions: repo,
		Clock:      pricing.NewClockFunc(loc, func() time.Time { return now }),
	})
	if err != nil {
		t.Fatalf("NewPromotionExpiryJob: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	if !repo.day.Equal(want) {
		t.Fatalf("expected day %s, got %s", want, repo.day)
	}
}

func TestPromotionExpiryPropagatesErrors(t *testing.T) {
	job, err := NewPromotionExpiryJob(PromotionExpiryJobParams{
		Logger:     logger.Nop(),
		Promotions: &fakeDeactivator{err: errors.New("boom")},
	})
	if err != nil {
		t.Fatalf("NewPromotionExpiryJob: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestCartRetentionCutoff(t *testing.T) {
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	repo := &fakeCartDeleter{deleted: 7}
	jobIface, err := NewCartRetentionJob(CartRetentionJobParams{Logger: logger.Nop(), Carts: repo, Retention: 30})
	if err != nil {
		t.Fatalf("NewCartRetentionJob: %v", err)
	}
	job := jobIface.(*cartRetentionJob)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)
	if !repo.before.Equal(want) || repo.called != 1 {
		t.Fatalf("expected one call with %s, got %d calls with %s", want, repo.called, repo.before)
	}

	repo.err = errors.New("boom")
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestCartRetentionDefaultsWindow(t *testing.T) {
	jobIface, err := NewCartRetentionJob(CartRetentionJobParams{Logger: logger.Nop(), Carts: &fakeCartDeleter{}})
	if err != nil {
		t.Fatalf("NewCartRetentionJob: %v", err)
	}
	if got := jobIface.(*cartRetentionJob).retention; got != cartRetentionDays {
		t.Fatalf("expected default retention %d, got %d", cartRetentionDays, got)
	}
	if _, err := NewCartRetentionJob(CartRetentionJobParams{Logger: logger.Nop()}); err == nil {
		t.Fatal("expected missing repository error")
	}
}

func TestJobsAgainstDatabase(t *testing.T) {
	conn := dbtest.Open(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 20, 10, 0, 0, 0, time.UTC)

	ended := models.Promotion{
		Type: enums.PromotionTypeFixed, Value: decimal.NewFromInt(5), AppliesTo: "AllProducts", IsActive: true,
		StartDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), EndDate: time.Date(2024, 3, 19, 0, 0, 0, 0, time.UTC),
	}
	running := ended
	running.EndDate = time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)
	require.NoError(t, conn.Create(&ended).Error)
	require.NoError(t, conn.Create(&running).Error)

	product := models.Product{Name: "bench", Price: decimal.NewFromInt(80), Stock: 2, Category: "Benches", SKU: "BN-1", IsActive: true}
	require.NoError(t, conn.Create(&product).Error)
	stale := now.AddDate(0, 0, -90)
	require.NoError(t, conn.Create(&models.CartItem{
		UserID: uuid.New(), ProductID: product.ID, Quantity: 1, CreatedAt: stale, UpdatedAt: stale,
	}).Error)
	require.NoError(t, conn.Create(&models.CartItem{
		UserID: uuid.New(), ProductID: product.ID, Quantity: 1, CreatedAt: now, UpdatedAt: now,
	}).Error)

	expiry, err := NewPromotionExpiryJob(PromotionExpiryJobParams{
		Logger:     logger.Nop(),
		Promotions: promotions.NewRepository(conn),
		Clock:      pricing.NewClockFunc(time.UTC, func() time.Time { return now }),
	})
	require.NoError(t, err)
	retentionIface, err := NewCartRetentionJob(CartRetentionJobParams{Logger: logger.Nop(), Carts: cart.NewRepository(conn)})
	require.NoError(t, err)
	retention := retentionIface.(*cartRetentionJob)
	retention.now = func() time.Time { return now }

	require.NoError(t, expiry.Run(ctx))
	require.NoError(t, retention.Run(ctx))

	var active []models.Promotion
	require.NoError(t, conn.Where("is_active = ?", true).Find(&active).Error)
	require.Len(t, active, 1)
	require.Equal(t, running.ID, active[0].ID)

	var lines int64
	require.NoError(t, conn.Model(&models.CartItem{}).Count(&lines).Error)
	require.EqualValues(t, 1, lines)
}
