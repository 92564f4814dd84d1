package controllers

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/furnishly-backend/internal/orders"
	"github.com/angelmondragon/furnishly-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/furnishly-backend/pkg/errors"
	"github.com/angelmondragon/furnishly-backend/pkg/pagination"
)

type stubOrderService struct {
	placed  *orders.PlaceOrderRequest
	filters orders.ListFilters
	params  pagination.Params
	status  string
	userID  uuid.UUID
	orderID uuid.UUID
	err     error
}

func (s *stubOrderService) Place(ctx context.Context, userID uuid.UUID, req orders.PlaceOrderRequest) (*orders.OrderDTO, error) {
	s.userID, s.placed = userID, &req
	if s.err != nil {
		return nil, s.err
	}
	return &orders.OrderDTO{ID: uuid.New(), UserID: userID, Status: enums.OrderStatusPending}, nil
}

func (s *stubOrderService) ListMine(ctx context.Context, userID uuid.UUID, params pagination.Params) (*orders.OrderList, error) {
	s.userID, s.params = userID, params
	return &orders.OrderList{}, s.err
}

func (s *stubOrderService) GetMine(ctx context.Context, userID, orderID uuid.UUID) (*orders.OrderDTO, error) {
	s.userID, s.orderID = userID, orderID
	if s.err != nil {
		return nil, s.err
	}
	return &orders.OrderDTO{ID: orderID, UserID: userID}, nil
}

func (s *stubOrderService) Cancel(ctx context.Context, userID, orderID uuid.UUID) (*orders.OrderDTO, error) {
	s.userID, s.orderID = userID, orderID
	if s.err != nil {
		return nil, s.err
	}
	return &orders.OrderDTO{ID: orderID, Status: enums.OrderStatusCancelled}, nil
}

func (s *stubOrderService) List(ctx context.Context, filters orders.ListFilters, params pagination.Params) (*orders.OrderList, error) {
	s.filters, s.params = filters, params
	return &orders.OrderList{}, s.err
}

func (s *stubOrderService) Get(ctx context.Context, orderID uuid.UUID) (*orders.OrderDTO, error) {
	s.orderID = orderID
	return &orders.OrderDTO{ID: orderID}, s.err
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, orderID uuid.UUID, req orders.UpdateStatusRequest) (*orders.OrderDTO, error) {
	s.orderID, s.status = orderID, req.Status
	if s.err != nil {
		return nil, s.err
	}
	return &orders.OrderDTO{ID: orderID, Status: enums.OrderStatus(req.Status)}, nil
}

func TestPlaceOrder(t *testing.T) {
	userID := uuid.New()

	t.Run("created", func(t *testing.T) {
		stub := &stubOrderService{}
		req := newRequest(http.MethodPost, "/api/v1/orders", requestOpts{
			userID: userID,
			body:   `{"shipping_address":"1 Main St","coupon_code":"WELCOME"}`,
		})
		rec := serve(PlaceOrder(stub, testLogger()), req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if stub.placed == nil || stub.placed.CouponCode == nil || *stub.placed.CouponCode != "WELCOME" {
			t.Fatalf("expected coupon to be forwarded, got %+v", stub.placed)
		}
		var out orders.OrderDTO
		decodeData(t, rec, &out)
		if out.UserID != userID || out.Status != enums.OrderStatusPending {
			t.Fatalf("unexpected order %+v", out)
		}
	})

	t.Run("missing address", func(t *testing.T) {
		stub := &stubOrderService{}
		rec := serve(PlaceOrder(stub, testLogger()), newRequest(http.MethodPost, "/api/v1/orders", requestOpts{userID: userID, body: `{}`}))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		if stub.placed != nil {
			t.Fatalf("service must not be called")
		}
	})

	t.Run("insufficient stock", func(t *testing.T) {
		stub := &stubOrderService{err: pkgerrors.New(pkgerrors.CodeStateConflict, "insufficient stock")}
		rec := serve(PlaceOrder(stub, testLogger()), newRequest(http.MethodPost, "/api/v1/orders", requestOpts{userID: userID, body: `{"shipping_address":"1 Main St"}`}))
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
	})
}

func TestGetMyOrderHidesOthers(t *testing.T) {
	orderID := uuid.New()
	stub := &stubOrderService{err: pkgerrors.New(pkgerrors.CodeNotFound, "order not found")}
	req := newRequest(http.MethodGet, "/api/v1/orders/"+orderID.String(), requestOpts{
		userID: uuid.New(),
		params: map[string]string{"orderId": orderID.String()},
	})
	rec := serve(GetMyOrder(stub, testLogger()), req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if stub.orderID != orderID {
		t.Fatalf("expected order id forwarded")
	}
}

func TestCancelMyOrder(t *testing.T) {
	orderID := uuid.New()
	stub := &stubOrderService{}
	req := newRequest(http.MethodPost, "/api/v1/orders/"+orderID.String()+"/cancel", requestOpts{
		userID: uuid.New(),
		params: map[string]string{"orderId": orderID.String()},
	})
	rec := serve(CancelMyOrder(stub, testLogger()), req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var out orders.OrderDTO
	decodeData(t, rec, &out)
	if out.Status != enums.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", out.Status)
	}
}

func TestAdminListOrdersFilters(t *testing.T) {
	userID := uuid.New()
	stub := &stubOrderService{}
	req := newRequest(http.MethodGet, "/api/v1/admin/orders?status=paid&user_id="+userID.String()+"&limit=10", requestOpts{userID: uuid.New(), role: enums.UserRoleAdmin})
	rec := serve(AdminListOrders(stub, testLogger()), req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if stub.filters.Status == nil || *stub.filters.Status != enums.OrderStatusPaid {
		t.Fatalf("expected paid filter, got %+v", stub.filters.Status)
	}
	if stub.filters.UserID == nil || *stub.filters.UserID != userID {
		t.Fatalf("expected user filter")
	}
	if stub.params.Limit != 10 {
		t.Fatalf("expected limit 10, got %d", stub.params.Limit)
	}

	bad := newRequest(http.MethodGet, "/api/v1/admin/orders?status=lost", requestOpts{})
	if rec := serve(AdminListOrders(stub, testLogger()), bad); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rec.Code)
	}
}

func TestAdminUpdateOrderStatus(t *testing.T) {
	orderID := uuid.New()
	stub := &stubOrderService{}
	req := newRequest(http.MethodPatch, "/api/v1/admin/orders/"+orderID.String()+"/status", requestOpts{
		body:   `{"status":"shipped"}`,
		params: map[string]string{"orderId": orderID.String()},
	})
	rec := serve(AdminUpdateOrderStatus(stub, testLogger()), req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if stub.status != "shipped" || stub.orderID != orderID {
		t.Fatalf("unexpected call status=%s order=%s", stub.status, stub.orderID)
	}

	stub.err = pkgerrors.New(pkgerrors.CodeStateConflict, "invalid status transition")
	if rec := serve(AdminUpdateOrderStatus(stub, testLogger()), newRequest(http.MethodPatch, "/", requestOpts{
		body:   `{"status":"pending"}`,
		params: map[string]string{"orderId": orderID.String()},
	})); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}
