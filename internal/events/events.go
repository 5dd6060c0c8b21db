// Package events publishes order lifecycle events to Kafka.
package events

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"

	"github.com/xenking/stockorder/internal/domain/order"
)

// TypeOrderCreated is the x-event-type header value of order creation events.
const TypeOrderCreated = "order.created"

const headerEventType = "x-event-type"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ order.Publisher = (*KafkaPublisher)(nil)

// KafkaPublisher writes one message per created order, keyed by order id so
// events of one order stay in one partition.
type KafkaPublisher struct {
	w messageWriter
}

// NewKafkaPublisher returns a publisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			BatchTimeout:           10 * time.Millisecond,
		},
	}
}

func (p *KafkaPublisher) OrderCreated(ctx context.Context, o *order.Order) error {
	msg := kafka.Message{
		Key:   []byte(o.ID),
		Value: EncodeOrderCreated(o),
		Time:  o.CreatedAt,
		Headers: []kafka.Header{
			{Key: headerEventType, Value: []byte(TypeOrderCreated)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return errors.Wrap(err, "write message")
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// EncodeOrderCreated renders the event payload.
func EncodeOrderCreated(o *order.Order) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("order_id")
	e.Str(o.ID)
	e.FieldStart("member_id")
	e.Str(o.MemberID)
	e.FieldStart("product_id")
	e.Str(o.ProductID)
	e.FieldStart("quantity")
	e.Int64(o.Quantity)
	e.FieldStart("total_price")
	e.Int64(o.TotalPrice)
	e.FieldStart("delivery_fee")
	e.Int64(o.DeliveryFee)
	if o.CouponID != "" {
		e.FieldStart("coupon_id")
		e.Str(o.CouponID)
	}
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("created_at")
	e.Str(o.CreatedAt.UTC().Format(time.RFC3339Nano))
	e.ObjEnd()

	return append([]byte(nil), e.Bytes()...)
}
