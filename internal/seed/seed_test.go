package seed

import (
	"context"
	"strings"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/stockorder/internal/domain/coupon"
	"github.com/xenking/stockorder/internal/domain/member"
	"github.com/xenking/stockorder/internal/domain/product"
)

// --- Mock implementations ---

type recordingSink struct {
	members  []member.Member
	products []product.Product
	coupons  []coupon.Coupon
	err      error
}

func (s *recordingSink) UpsertMember(_ context.Context, m member.Member) error {
	s.members = append(s.members, m)
	return nil
}

func (s *recordingSink) UpsertProduct(_ context.Context, p product.Product) error {
	if s.err != nil {
		return s.err
	}
	s.products = append(s.products, p)
	return nil
}

func (s *recordingSink) UpsertCoupon(_ context.Context, c coupon.Coupon) error {
	s.coupons = append(s.coupons, c)
	return nil
}

const fixtureDoc = `{
  "members": [
    {"id": "m1", "name": "Kim", "grade": "NORMAL"},
    {"id": "m2", "name": "Park", "grade": "VIP"},
    {"id": "m3", "name": "Lee"}
  ],
  "products": [
    {"id": "p1", "name": "Keyboard", "unit_price": 10000, "stock": 100, "color": "black"}
  ],
  "coupons": [
    {"id": "c1", "code": "WELCOME10", "discount_rate": 10},
    {"id": "c2", "discount_rate": "12.5", "owner_id": "m2", "used": true}
  ],
  "version": 2
}`

func TestDecode(t *testing.T) {
	fx, err := Decode(strings.NewReader(fixtureDoc))
	require.NoError(t, err)

	require.Len(t, fx.Members, 3)
	assert.Equal(t, member.GradeVIP, fx.Members[1].Grade)
	assert.Equal(t, member.GradeNormal, fx.Members[2].Grade, "grade defaults to NORMAL")

	require.Len(t, fx.Products, 1)
	assert.Equal(t, product.Product{ID: "p1", Name: "Keyboard", UnitPrice: 10000, Stock: 100}, fx.Products[0])

	require.Len(t, fx.Coupons, 2)
	assert.True(t, fx.Coupons[0].DiscountRate.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, "c2", fx.Coupons[1].Code, "code defaults to id")
	assert.True(t, fx.Coupons[1].DiscountRate.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, "m2", fx.Coupons[1].OwnerID)
	assert.True(t, fx.Coupons[1].Used)
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		msg  string
	}{
		{name: "bad grade", doc: `{"members":[{"id":"m1","grade":"GOLD"}]}`, msg: "unknown grade"},
		{name: "zero price", doc: `{"products":[{"id":"p1","unit_price":0,"stock":1}]}`, msg: "unit_price"},
		{name: "negative stock", doc: `{"products":[{"id":"p1","unit_price":1,"stock":-1}]}`, msg: "stock"},
		{name: "rate too high", doc: `{"coupons":[{"id":"c1","discount_rate":150}]}`, msg: "out of range"},
		{name: "missing id", doc: `{"products":[{"unit_price":1}]}`, msg: "without id"},
		{name: "malformed", doc: `{"members":[`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.doc))
			require.Error(t, err)
			if tt.msg != "" {
				assert.Contains(t, err.Error(), tt.msg)
			}
		})
	}
}

func TestApply(t *testing.T) {
	fx, err := Decode(strings.NewReader(fixtureDoc))
	require.NoError(t, err)

	sink := &recordingSink{}
	st, err := Apply(context.Background(), fx, sink)
	require.NoError(t, err)
	assert.Equal(t, Stats{Members: 3, Products: 1, Coupons: 2}, st)
	assert.Len(t, sink.coupons, 2)

	errSink := errors.New("write failed")
	st, err = Apply(context.Background(), fx, &recordingSink{err: errSink})
	require.ErrorIs(t, err, errSink)
	assert.Equal(t, 3, st.Members)
	assert.Zero(t, st.Products)
}
