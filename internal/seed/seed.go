// Package seed loads member, product and coupon fixtures from JSON.
//
// The document has the shape
//
//	{
//	  "members":  [{"id": "m1", "name": "Kim", "grade": "VIP"}],
//	  "products": [{"id": "p1", "name": "Keyboard", "unit_price": 10000, "stock": 100}],
//	  "coupons":  [{"id": "c1", "code": "WELCOME10", "discount_rate": 10, "owner_id": "m1"}]
//	}
package seed

import (
	"context"
	"io"
	"os"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/stockorder/internal/domain/coupon"
	"github.com/xenking/stockorder/internal/domain/member"
	"github.com/xenking/stockorder/internal/domain/pricing"
	"github.com/xenking/stockorder/internal/domain/product"
)

// Sink receives fixtures. Both storage backends implement it.
type Sink interface {
	UpsertMember(ctx context.Context, m member.Member) error
	UpsertProduct(ctx context.Context, p product.Product) error
	UpsertCoupon(ctx context.Context, c coupon.Coupon) error
}

// Fixtures is a decoded fixture document.
type Fixtures struct {
	Members  []member.Member
	Products []product.Product
	Coupons  []coupon.Coupon
}

// Stats counts applied fixtures.
type Stats struct {
	Members  int
	Products int
	Coupons  int
}

// LoadFile decodes the fixture file at path and applies it to sink.
func LoadFile(ctx context.Context, path string, sink Sink) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, errors.Wrap(err, "open fixtures")
	}
	defer func() { _ = f.Close() }()

	fx, err := Decode(f)
	if err != nil {
		return Stats{}, errors.Wrapf(err, "decode %s", path)
	}
	return Apply(ctx, fx, sink)
}

// Apply writes fixtures to sink. Members go first so coupon owners resolve.
func Apply(ctx context.Context, fx *Fixtures, sink Sink) (Stats, error) {
	var st Stats
	for _, m := range fx.Members {
		if err := sink.UpsertMember(ctx, m); err != nil {
			return st, errors.Wrapf(err, "member %s", m.ID)
		}
		st.Members++
	}
	for _, p := range fx.Products {
		if err := sink.UpsertProduct(ctx, p); err != nil {
			return st, errors.Wrapf(err, "product %s", p.ID)
		}
		st.Products++
	}
	for _, c := range fx.Coupons {
		if err := sink.UpsertCoupon(ctx, c); err != nil {
			return st, errors.Wrapf(err, "coupon %s", c.ID)
		}
		st.Coupons++
	}
	return st, nil
}

// Decode parses and validates a fixture document.
func Decode(r io.Reader) (*Fixtures, error) {
	var fx Fixtures
	d := jx.Decode(r, 4096)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "members":
			return d.Arr(func(d *jx.Decoder) error {
				m, err := decodeMember(d)
				fx.Members = append(fx.Members, m)
				return err
			})
		case "products":
			return d.Arr(func(d *jx.Decoder) error {
				p, err := decodeProduct(d)
				fx.Products = append(fx.Products, p)
				return err
			})
		case "coupons":
			return d.Arr(func(d *jx.Decoder) error {
				c, err := decodeCoupon(d)
				fx.Coupons = append(fx.Coupons, c)
				return err
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, err
	}
	return &fx, nil
}

func decodeMember(d *jx.Decoder) (member.Member, error) {
	m := member.Member{Grade: member.GradeNormal}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			m.ID, err = d.Str()
		case "name":
			m.Name, err = d.Str()
		case "grade":
			var g string
			g, err = d.Str()
			m.Grade = member.Grade(g)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return m, err
	}
	if m.ID == "" {
		return m, errors.New("member without id")
	}
	if !m.Grade.Valid() {
		return m, errors.Errorf("member %s: unknown grade %q", m.ID, m.Grade)
	}
	return m, nil
}

func decodeProduct(d *jx.Decoder) (product.Product, error) {
	var p product.Product
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			p.ID, err = d.Str()
		case "name":
			p.Name, err = d.Str()
		case "unit_price":
			p.UnitPrice, err = d.Int64()
		case "stock":
			p.Stock, err = d.Int64()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return p, err
	}
	switch {
	case p.ID == "":
		return p, errors.New("product without id")
	case p.UnitPrice <= 0:
		return p, errors.Errorf("product %s: unit_price must be positive", p.ID)
	case p.Stock < 0:
		return p, errors.Errorf("product %s: stock must not be negative", p.ID)
	}
	return p, nil
}

func decodeCoupon(d *jx.Decoder) (coupon.Coupon, error) {
	var c coupon.Coupon
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			c.ID, err = d.Str()
		case "code":
			c.Code, err = d.Str()
		case "discount_rate":
			c.DiscountRate, err = decodeDecimal(d)
		case "owner_id":
			c.OwnerID, err = d.Str()
		case "used":
			c.Used, err = d.Bool()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return c, err
	}
	switch {
	case c.ID == "":
		return c, errors.New("coupon without id")
	case c.Code == "":
		c.Code = c.ID
	}
	if !pricing.ValidRate(c.DiscountRate) {
		return c, errors.Errorf("coupon %s: discount_rate %s out of range", c.ID, c.DiscountRate)
	}
	return c, nil
}

// decodeDecimal accepts a JSON number or a numeric string.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(s)
	default:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(n.String())
	}
}
