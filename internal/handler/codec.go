package handler

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/stockorder/internal/domain/order"
	"github.com/xenking/stockorder/internal/domain/product"
)

func decodeCreateRequest(data []byte) (order.CreateRequest, error) {
	var req order.CreateRequest
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "member_id":
			req.MemberID, err = d.Str()
		case "product_id":
			req.ProductID, err = d.Str()
		case "quantity":
			req.Quantity, err = d.Int64()
		case "coupon_id":
			if d.Next() == jx.Null {
				return d.Null()
			}
			req.CouponID, err = d.Str()
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	if err != nil {
		return req, errors.Wrap(errBadRequest, err.Error())
	}
	return req, nil
}

func encodeOrder(o *order.Order) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("member_id")
	e.Str(o.MemberID)
	e.FieldStart("product_id")
	e.Str(o.ProductID)
	e.FieldStart("quantity")
	e.Int64(o.Quantity)
	e.FieldStart("subtotal")
	e.Int64(o.Subtotal)
	e.FieldStart("discount")
	e.Int64(o.Discount)
	e.FieldStart("delivery_fee")
	e.Int64(o.DeliveryFee)
	e.FieldStart("total_price")
	e.Int64(o.TotalPrice)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("coupon_id")
	if o.CouponID == "" {
		e.Null()
	} else {
		e.Str(o.CouponID)
	}
	e.FieldStart("created_at")
	e.Str(o.CreatedAt.UTC().Format(time.RFC3339Nano))
	e.ObjEnd()
	return e.Bytes()
}

func encodeProduct(p *product.Product) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("unit_price")
	e.Int64(p.UnitPrice)
	e.FieldStart("stock")
	e.Int64(p.Stock)
	e.ObjEnd()
	return e.Bytes()
}

func encodeError(code, msg string) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Str(code)
	e.FieldStart("message")
	e.Str(msg)
	e.ObjEnd()
	return e.Bytes()
}
