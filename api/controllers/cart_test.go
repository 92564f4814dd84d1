package controllers

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/furnishly-backend/internal/cart"
	"github.com/angelmondragon/furnishly-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/furnishly-backend/pkg/errors"
	"github.com/angelmondragon/furnishly-backend/pkg/types"
)

type stubCartService struct {
	userID  uuid.UUID
	itemID  uuid.UUID
	add     cart.AddItemRequest
	update  cart.UpdateItemRequest
	code    string
	cleared bool
	err     error
}

func (s *stubCartService) Get(ctx context.Context, userID uuid.UUID) (*cart.CartView, error) {
	s.userID = userID
	return &cart.CartView{}, s.err
}

func (s *stubCartService) AddItem(ctx context.Context, userID uuid.UUID, req cart.AddItemRequest) (*cart.CartView, error) {
	s.userID, s.add = userID, req
	if s.err != nil {
		return nil, s.err
	}
	return &cart.CartView{}, nil
}

func (s *stubCartService) UpdateItem(ctx context.Context, userID, itemID uuid.UUID, req cart.UpdateItemRequest) (*cart.CartView, error) {
	s.userID, s.itemID, s.update = userID, itemID, req
	return &cart.CartView{}, s.err
}

func (s *stubCartService) RemoveItem(ctx context.Context, userID, itemID uuid.UUID) (*cart.CartView, error) {
	s.userID, s.itemID = userID, itemID
	return &cart.CartView{}, s.err
}

func (s *stubCartService) Clear(ctx context.Context, userID uuid.UUID) error {
	s.userID, s.cleared = userID, true
	return s.err
}

func (s *stubCartService) PreviewCoupon(ctx context.Context, userID uuid.UUID, code string) (*cart.CouponPreview, error) {
	s.userID, s.code = userID, code
	if s.err != nil {
		return nil, s.err
	}
	return &cart.CouponPreview{
		Code:     code,
		Discount: types.NewMoney(decimal.RequireFromString("20")),
		Total:    types.NewMoney(decimal.RequireFromString("480")),
	}, nil
}

func TestGetCartRequiresUser(t *testing.T) {
	rec := serve(GetCart(&stubCartService{}, testLogger()), newRequest(http.MethodGet, "/api/v1/cart", requestOpts{}))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAddCartItem(t *testing.T) {
	userID := uuid.New()
	productID := uuid.New()

	t.Run("created", func(t *testing.T) {
		stub := &stubCartService{}
		req := newRequest(http.MethodPost, "/api/v1/cart/items", requestOpts{
			userID: userID,
			role:   enums.UserRoleCustomer,
			body:   `{"product_id":"` + productID.String() + `","quantity":2}`,
		})
		rec := serve(AddCartItem(stub, testLogger()), req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if stub.userID != userID || stub.add.ProductID != productID || stub.add.Quantity != 2 {
			t.Fatalf("unexpected call %+v", stub.add)
		}
	})

	t.Run("zero quantity", func(t *testing.T) {
		stub := &stubCartService{}
		req := newRequest(http.MethodPost, "/api/v1/cart/items", requestOpts{
			userID: userID,
			body:   `{"product_id":"` + productID.String() + `","quantity":0}`,
		})
		rec := serve(AddCartItem(stub, testLogger()), req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		if stub.userID != uuid.Nil {
			t.Fatalf("service must not be called for invalid body")
		}
	})

	t.Run("stock conflict", func(t *testing.T) {
		stub := &stubCartService{err: pkgerrors.New(pkgerrors.CodeStateConflict, "insufficient stock")}
		req := newRequest(http.MethodPost, "/api/v1/cart/items", requestOpts{
			userID: userID,
			body:   `{"product_id":"` + productID.String() + `","quantity":50}`,
		})
		rec := serve(AddCartItem(stub, testLogger()), req)
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
		if code := errorCode(t, rec); code != string(pkgerrors.CodeStateConflict) {
			t.Fatalf("unexpected error code %s", code)
		}
	})
}

func TestUpdateAndRemoveCartItem(t *testing.T) {
	userID := uuid.New()
	itemID := uuid.New()

	stub := &stubCartService{}
	req := newRequest(http.MethodPatch, "/api/v1/cart/items/"+itemID.String(), requestOpts{
		userID: userID,
		body:   `{"quantity":3}`,
		params: map[string]string{"itemId": itemID.String()},
	})
	if rec := serve(UpdateCartItem(stub, testLogger()), req); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if stub.itemID != itemID || stub.update.Quantity != 3 {
		t.Fatalf("unexpected update call item=%s qty=%d", stub.itemID, stub.update.Quantity)
	}

	bad := newRequest(http.MethodDelete, "/api/v1/cart/items/nope", requestOpts{
		userID: userID,
		params: map[string]string{"itemId": "nope"},
	})
	if rec := serve(RemoveCartItem(stub, testLogger()), bad); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad item id, got %d", rec.Code)
	}

	stub.err = pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	missing := newRequest(http.MethodDelete, "/api/v1/cart/items/"+itemID.String(), requestOpts{
		userID: userID,
		params: map[string]string{"itemId": itemID.String()},
	})
	if rec := serve(RemoveCartItem(stub, testLogger()), missing); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestClearCart(t *testing.T) {
	stub := &stubCartService{}
	rec := serve(ClearCart(stub, testLogger()), newRequest(http.MethodDelete, "/api/v1/cart", requestOpts{userID: uuid.New()}))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if !stub.cleared {
		t.Fatalf("expected Clear to be invoked")
	}
}

func TestPreviewCoupon(t *testing.T) {
	stub := &stubCartService{}
	req := newRequest(http.MethodPost, "/api/v1/cart/coupon", requestOpts{userID: uuid.New(), body: `{"code":"chairs10"}`})
	rec := serve(PreviewCoupon(stub, testLogger()), req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var preview struct {
		Code     string      `json:"code"`
		Discount types.Money `json:"discount"`
		Total    types.Money `json:"total"`
	}
	decodeData(t, rec, &preview)
	if stub.code != "chairs10" || preview.Discount.StringFixed(2) != "20.00" || preview.Total.StringFixed(2) != "480.00" {
		t.Fatalf("unexpected preview %+v", preview)
	}
}
