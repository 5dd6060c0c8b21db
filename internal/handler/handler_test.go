package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/stockorder/internal/domain/coupon"
	"github.com/xenking/stockorder/internal/domain/fault"
	"github.com/xenking/stockorder/internal/domain/member"
	"github.com/xenking/stockorder/internal/domain/order"
	"github.com/xenking/stockorder/internal/domain/product"
	"github.com/xenking/stockorder/internal/idempotency"
	"github.com/xenking/stockorder/internal/storage/memory"
)

// --- Mock implementations ---

type stubOrders struct {
	err   error
	calls int
}

func (s *stubOrders) CreateOrder(_ context.Context, req order.CreateRequest) (*order.Order, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &order.Order{ID: "o1", MemberID: req.MemberID, ProductID: req.ProductID, Quantity: req.Quantity}, nil
}

func (s *stubOrders) GetOrder(_ context.Context, _ string) (*order.Order, error) {
	return nil, order.ErrNotFound
}

// --- Helpers ---

func newTestServer(t *testing.T) (*httptest.Server, *memory.Store) {
	t.Helper()
	ctx := context.Background()
	st := memory.New(time.Second)
	require.NoError(t, st.UpsertMember(ctx, member.Member{ID: "m1", Name: "Lee", Grade: member.GradeNormal}))
	require.NoError(t, st.UpsertMember(ctx, member.Member{ID: "m2", Name: "Kim", Grade: member.GradeNormal}))
	require.NoError(t, st.UpsertProduct(ctx, product.Product{ID: "p1", Name: "Keyboard", UnitPrice: 10000, Stock: 3}))
	require.NoError(t, st.UpsertCoupon(ctx, coupon.Coupon{
		ID: "c1", Code: "TEN", DiscountRate: decimal.NewFromInt(10), OwnerID: "m1",
	}))

	svc, err := order.NewService(st.Members, st.Products, st.Products, st.Coupons, st.Coupons, st.Orders)
	require.NoError(t, err)

	h := NewHandler(svc, st.Products, idempotency.NewMemoryStore(time.Minute))
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return srv, st
}

func post(t *testing.T, srv *httptest.Server, body, idemKey string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/orders", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if idemKey != "" {
		req.Header.Set(HeaderIdempotencyKey, idemKey)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func readFields(t *testing.T, resp *http.Response) map[string]string {
	t.Helper()
	out := map[string]string{}
	d := jx.Decode(resp.Body, 1024)
	require.NoError(t, d.Obj(func(d *jx.Decoder, key string) error {
		raw, err := d.Raw()
		if err != nil {
			return err
		}
		out[key] = strings.Trim(raw.String(), `"`)
		return nil
	}))
	return out
}

// --- Tests ---

func TestCreateOrder(t *testing.T) {
	srv, st := newTestServer(t)

	resp := post(t, srv, `{"member_id":"m1","product_id":"p1","quantity":2,"coupon_id":"c1"}`, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	got := readFields(t, resp)
	assert.NotEmpty(t, got["id"])
	assert.Equal(t, "20000", got["subtotal"])
	assert.Equal(t, "2000", got["discount"])
	assert.Equal(t, "3000", got["delivery_fee"])
	assert.Equal(t, "21000", got["total_price"])
	assert.Equal(t, "CREATED", got["status"])
	assert.Equal(t, "c1", got["coupon_id"])
	assert.Equal(t, "/api/orders/"+got["id"], resp.Header.Get("Location"))
	assert.Equal(t, 1, st.Orders.Len())
}

func TestCreateOrder_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"malformed json", `{"member_id":`, http.StatusBadRequest, "bad_request"},
		{"wrong type", `{"quantity":"two"}`, http.StatusBadRequest, "bad_request"},
		{"unknown member", `{"member_id":"nope","product_id":"p1","quantity":1}`, http.StatusNotFound, "not_found"},
		{"unknown product", `{"member_id":"m1","product_id":"nope","quantity":1}`, http.StatusNotFound, "not_found"},
		{"zero quantity", `{"member_id":"m1","product_id":"p1","quantity":0}`, http.StatusUnprocessableEntity, "rule_violation"},
		{"too many", `{"member_id":"m1","product_id":"p1","quantity":4}`, http.StatusConflict, "insufficient_stock"},
		{"foreign coupon", `{"member_id":"m2","product_id":"p1","quantity":1,"coupon_id":"c1"}`, http.StatusForbidden, "coupon_not_owned"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t)
			resp := post(t, srv, tt.body, "")
			assert.Equal(t, tt.status, resp.StatusCode)
			got := readFields(t, resp)
			assert.Equal(t, tt.code, got["code"])
			assert.NotEmpty(t, got["message"])
		})
	}
}

func TestCreateOrder_CouponReuse(t *testing.T) {
	srv, st := newTestServer(t)

	resp := post(t, srv, `{"member_id":"m1","product_id":"p1","quantity":1,"coupon_id":"c1"}`, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = post(t, srv, `{"member_id":"m1","product_id":"p1","quantity":1,"coupon_id":"c1"}`, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "coupon_already_used", readFields(t, resp)["code"])

	p, err := st.Products.GetByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.Stock)
}

func TestCreateOrder_IdempotencyKey(t *testing.T) {
	srv, st := newTestServer(t)
	body := `{"member_id":"m1","product_id":"p1","quantity":1}`

	first := post(t, srv, body, "k1")
	require.Equal(t, http.StatusCreated, first.StatusCode)
	firstID := readFields(t, first)["id"]

	second := post(t, srv, body, "k1")
	require.Equal(t, http.StatusCreated, second.StatusCode)
	assert.Equal(t, "true", second.Header.Get(HeaderIdempotentReplay))
	assert.Equal(t, firstID, readFields(t, second)["id"])

	assert.Equal(t, 1, st.Orders.Len())
	p, err := st.Products.GetByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.Stock)
}

func TestCreateOrder_IdempotencyInProgress(t *testing.T) {
	idem := idempotency.NewMemoryStore(time.Minute)
	_, err := idem.Begin(context.Background(), "busy")
	require.NoError(t, err)

	orders := &stubOrders{}
	srv := httptest.NewServer(NewHandler(orders, nil, idem).Routes())
	t.Cleanup(srv.Close)

	resp := post(t, srv, `{"member_id":"m1","product_id":"p1","quantity":1}`, "busy")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "request_in_progress", readFields(t, resp)["code"])
	assert.Zero(t, orders.calls)
}

func TestCreateOrder_RetryableReleasesKey(t *testing.T) {
	idem := idempotency.NewMemoryStore(time.Minute)
	orders := &stubOrders{err: fault.ErrContention}
	srv := httptest.NewServer(NewHandler(orders, nil, idem).Routes())
	t.Cleanup(srv.Close)

	body := `{"member_id":"m1","product_id":"p1","quantity":1}`
	resp := post(t, srv, body, "k1")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))

	orders.err = nil
	resp = post(t, srv, body, "k1")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, 2, orders.calls)
}

func TestCreateOrder_WithoutIdempotencyStore(t *testing.T) {
	orders := &stubOrders{}
	srv := httptest.NewServer(NewHandler(orders, nil, nil).Routes())
	t.Cleanup(srv.Close)

	body := `{"member_id":"m1","product_id":"p1","quantity":1}`
	post(t, srv, body, "k1")
	post(t, srv, body, "k1")
	assert.Equal(t, 2, orders.calls)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", order.ErrNotFound, http.StatusNotFound, "not_found"},
		{"rule", fault.New(fault.RuleViolation, "x"), http.StatusUnprocessableEntity, "rule_violation"},
		{"stock", fault.New(fault.InsufficientStock, "x"), http.StatusConflict, "insufficient_stock"},
		{"used", fault.New(fault.CouponAlreadyUsed, "x"), http.StatusConflict, "coupon_already_used"},
		{"not owned", fault.New(fault.CouponNotOwned, "x"), http.StatusForbidden, "coupon_not_owned"},
		{"contention", fault.ErrContention, http.StatusServiceUnavailable, "contention"},
		{"persistence", fault.Wrap(fault.PersistenceFailure, errors.New("db"), "save"), http.StatusServiceUnavailable, "persistence_failure"},
		{"canceled", context.Canceled, http.StatusRequestTimeout, "canceled"},
		{"bad request", errors.Wrap(errBadRequest, "eof"), http.StatusBadRequest, "bad_request"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := statusFor(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestInternalErrorHidesMessage(t *testing.T) {
	orders := &stubOrders{err: errors.New("pq: secret detail")}
	srv := httptest.NewServer(NewHandler(orders, nil, nil).Routes())
	t.Cleanup(srv.Close)

	resp := post(t, srv, `{"member_id":"m1","product_id":"p1","quantity":1}`, "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "internal server error", readFields(t, resp)["message"])
}

func TestGetOrder(t *testing.T) {
	srv, _ := newTestServer(t)

	created := readFields(t, post(t, srv, `{"member_id":"m1","product_id":"p1","quantity":1}`, ""))

	resp, err := srv.Client().Get(srv.URL + "/orders/" + created["id"])
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := readFields(t, resp)
	assert.Equal(t, created["id"], got["id"])
	assert.Equal(t, "13000", got["total_price"])
	assert.Equal(t, "null", got["coupon_id"])

	missing, err := srv.Client().Get(srv.URL + "/orders/nope")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestGetProduct(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := srv.Client().Get(srv.URL + "/products/p1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := readFields(t, resp)
	assert.Equal(t, "Keyboard", got["name"])
	assert.Equal(t, "3", got["stock"])

	missing, err := srv.Client().Get(srv.URL + "/products/nope")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}
