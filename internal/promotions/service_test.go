package promotions

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/furnishly-backend/internal/pricing"
	"github.com/angelmondragon/furnishly-backend/pkg/db/dbtest"
	"github.com/angelmondragon/furnishly-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/furnishly-backend/pkg/errors"
	"github.com/angelmondragon/furnishly-backend/pkg/pagination"
	"github.com/angelmondragon/furnishly-backend/pkg/types"
)

func newTestService(t *testing.T, today time.Time) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:      NewRepository(dbtest.Open(t)),
		Evaluator: pricing.NewEvaluator(pricing.DefaultGeneralCode),
		Clock:     pricing.NewClockFunc(time.UTC, func() time.Time { return today }),
	})
	require.NoError(t, err)
	return svc
}

func strPtr(s string) *string { return &s }

func TestCreateValidatesPromotion(t *testing.T) {
	svc := newTestService(t, day(2024, 3, 15))
	ctx := context.Background()

	cases := []struct {
		name  string
		req   PromotionRequest
		field string
	}{
		{"percentage over 100", PromotionRequest{Type: enums.PromotionTypePercentage, Value: types.NewMoney(decimal.NewFromInt(120)), StartDate: "2024-03-01", EndDate: "2024-03-31"}, "value"},
		{"negative fixed", PromotionRequest{Type: enums.PromotionTypeFixed, Value: types.NewMoney(decimal.NewFromInt(-1)), StartDate: "2024-03-01", EndDate: "2024-03-31"}, "value"},
		{"unknown type", PromotionRequest{Type: "bogo", Value: types.NewMoney(decimal.NewFromInt(1)), StartDate: "2024-03-01", EndDate: "2024-03-31"}, "type"},
		{"reversed window", PromotionRequest{Type: enums.PromotionTypeFixed, Value: types.NewMoney(decimal.NewFromInt(1)), StartDate: "2024-03-31", EndDate: "2024-03-01"}, "end_date"},
		{"bad scope", PromotionRequest{Type: enums.PromotionTypeFixed, Value: types.NewMoney(decimal.NewFromInt(1)), StartDate: "2024-03-01", EndDate: "2024-03-31", AppliesTo: "Brand:Ikea"}, "applies_to"},
		{"bad date", PromotionRequest{Type: enums.PromotionTypeFixed, Value: types.NewMoney(decimal.NewFromInt(1)), StartDate: "03/01/2024", EndDate: "2024-03-31"}, "start_date"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tc.req)
			require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
			details, ok := pkgerrors.As(err).Details().(map[string]string)
			require.True(t, ok)
			require.Contains(t, details, tc.field)
		})
	}
}

func TestCreateDefaultsAndConflicts(t *testing.T) {
	svc := newTestService(t, day(2024, 3, 15))
	ctx := context.Background()

	dto, err := svc.Create(ctx, PromotionRequest{
		Code:      strPtr("  spring10 "),
		Type:      enums.PromotionTypePercentage,
		Value:     types.NewMoney(decimal.NewFromInt(10)),
		StartDate: "2024-03-01",
		EndDate:   "2024-03-31",
	})
	require.NoError(t, err)
	require.Equal(t, "SPRING10", *dto.Code)
	require.Equal(t, pricing.ScopeAllProducts, dto.AppliesTo)
	require.True(t, dto.IsActive)
	require.Equal(t, "2024-03-01", dto.StartDate)

	_, err = svc.Create(ctx, PromotionRequest{
		Code:      strPtr("SPRING10"),
		Type:      enums.PromotionTypeFixed,
		Value:     types.NewMoney(decimal.NewFromInt(5)),
		StartDate: "2024-03-01",
		EndDate:   "2024-03-31",
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "got %v", err)
}

func TestUpdateAndDelete(t *testing.T) {
	svc := newTestService(t, day(2024, 3, 15))
	ctx := context.Background()

	dto, err := svc.Create(ctx, PromotionRequest{Type: enums.PromotionTypeFixed, Value: types.NewMoney(decimal.NewFromInt(5)), StartDate: "2024-03-01", EndDate: "2024-03-31"})
	require.NoError(t, err)

	inactive := false
	scope := "Category:Sofas"
	updated, err := svc.Update(ctx, dto.ID, PromotionPatch{IsActive: &inactive, AppliesTo: &scope})
	require.NoError(t, err)
	require.False(t, updated.IsActive)
	require.Equal(t, scope, updated.AppliesTo)

	end := "2024-02-01"
	_, err = svc.Update(ctx, dto.ID, PromotionPatch{EndDate: &end})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	require.NoError(t, svc.Delete(ctx, dto.ID))
	require.True(t, pkgerrors.IsCode(svc.Delete(ctx, dto.ID), pkgerrors.CodeNotFound))
	_, err = svc.Get(ctx, uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestListCurrentReturnsOnlyEligibleGeneralPromotions(t *testing.T) {
	svc := newTestService(t, day(2024, 3, 15))
	ctx := context.Background()

	mk := func(code *string, start, end string) {
		_, err := svc.Create(ctx, PromotionRequest{Code: code, Type: enums.PromotionTypePercentage, Value: types.NewMoney(decimal.NewFromInt(10)), StartDate: start, EndDate: end})
		require.NoError(t, err)
	}
	mk(nil, "2024-03-01", "2024-03-15")
	mk(strPtr(pricing.DefaultGeneralCode), "2024-03-15", "2024-03-20")
	mk(strPtr("COUPON"), "2024-03-01", "2024-03-31")
	mk(nil, "2024-03-16", "2024-03-31")

	current, err := svc.ListCurrent(ctx)
	require.NoError(t, err)
	require.Len(t, current, 2)

	list, err := svc.List(ctx, ListFilters{}, pagination.Params{Limit: 3})
	require.NoError(t, err)
	require.Len(t, list.Promotions, 3)
	require.NotEmpty(t, list.NextCursor)

	_, err = svc.List(ctx, ListFilters{}, pagination.Params{Cursor: "!!"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestCreateAllowsManySentinelCodedPromotions(t *testing.T) {
	svc := newTestService(t, day(2024, 3, 15))
	ctx := context.Background()

	var ids []uuid.UUID
	for _, tc := range []struct{ code, scope string }{
		{pricing.DefaultGeneralCode, "Category:Sofas"},
		{"general_discount ", "Category:Chairs"},
	} {
		dto, err := svc.Create(ctx, PromotionRequest{
			Code:      strPtr(tc.code),
			Type:      enums.PromotionTypePercentage,
			Value:     types.NewMoney(decimal.NewFromInt(15)),
			StartDate: "2024-03-01",
			EndDate:   "2024-03-31",
			AppliesTo: tc.scope,
		})
		require.NoError(t, err)
		require.Nil(t, dto.Code, "sentinel should be stored as no code")
		ids = append(ids, dto.ID)
	}

	current, err := svc.ListCurrent(ctx)
	require.NoError(t, err)
	got := make([]uuid.UUID, 0, len(current))
	for _, p := range current {
		got = append(got, p.ID)
	}
	require.ElementsMatch(t, ids, got)

	// patching a coupon to the sentinel turns it into a general promotion
	coupon, err := svc.Create(ctx, PromotionRequest{
		Code:      strPtr("SPRING"),
		Type:      enums.PromotionTypeFixed,
		Value:     types.NewMoney(decimal.NewFromInt(5)),
		StartDate: "2024-03-01",
		EndDate:   "2024-03-31",
	})
	require.NoError(t, err)
	sentinel := pricing.DefaultGeneralCode
	updated, err := svc.Update(ctx, coupon.ID, PromotionPatch{Code: &sentinel})
	require.NoError(t, err)
	require.Nil(t, updated.Code)

	current, err = svc.ListCurrent(ctx)
	require.NoError(t, err)
	require.Len(t, current, 3)
}
