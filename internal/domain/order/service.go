package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/xenking/stockorder/internal/domain/coupon"
	"github.com/xenking/stockorder/internal/domain/fault"
	"github.com/xenking/stockorder/internal/domain/inventory"
	"github.com/xenking/stockorder/internal/domain/member"
	"github.com/xenking/stockorder/internal/domain/pricing"
	"github.com/xenking/stockorder/internal/domain/product"
	"github.com/xenking/stockorder/internal/domain/saga"
)

const instrumentationName = "github.com/xenking/stockorder/internal/domain/order"

// DefaultPublishTimeout bounds how long a committed order waits on its event.
const DefaultPublishTimeout = 3 * time.Second

// Publisher announces committed orders. Publishing is best effort and never
// undoes a committed order.
type Publisher interface {
	OrderCreated(ctx context.Context, o *Order) error
}

type nopPublisher struct{}

func (nopPublisher) OrderCreated(context.Context, *Order) error { return nil }

// CreateRequest holds the input for creating an order. An empty CouponID
// means no coupon.
type CreateRequest struct {
	MemberID  string
	ProductID string
	Quantity  int64
	CouponID  string
}

// Option configures a Service.
type Option func(*options)

type options struct {
	policy         pricing.Policy
	publisher      Publisher
	publishTimeout time.Duration
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// WithPolicy overrides the default pricing policy.
func WithPolicy(p pricing.Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithPublisher sets the publisher notified after each committed order.
func WithPublisher(p Publisher) Option {
	return func(o *options) {
		if p != nil {
			o.publisher = p
		}
	}
}

// WithPublishTimeout bounds each OrderCreated call. Non-positive values are ignored.
func WithPublishTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.publishTimeout = d
		}
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		if mp != nil {
			o.meterProvider = mp
		}
	}
}

// Service creates orders as a saga: each store commits its own step and the
// service compensates completed steps when a later one fails or the caller
// goes away.
type Service struct {
	members  member.Repository
	products product.Repository
	stock    inventory.Store
	coupons  coupon.Repository
	ledger   coupon.Ledger
	orders   Repository

	policy         pricing.Policy
	publisher      Publisher
	publishTimeout time.Duration

	tracer  trace.Tracer
	created metric.Int64Counter
	failed  metric.Int64Counter
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	members member.Repository,
	products product.Repository,
	stock inventory.Store,
	coupons coupon.Repository,
	ledger coupon.Ledger,
	orders Repository,
	opts ...Option,
) (*Service, error) {
	o := options{
		policy:         pricing.Default(),
		publisher:      nopPublisher{},
		publishTimeout: DefaultPublishTimeout,
		tracerProvider: tracenoop.NewTracerProvider(),
		meterProvider:  metricnoop.NewMeterProvider(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	meter := o.meterProvider.Meter(instrumentationName)
	created, err := meter.Int64Counter("orders.created",
		metric.WithDescription("Orders committed"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create orders.created counter")
	}
	failed, err := meter.Int64Counter("orders.failed",
		metric.WithDescription("Order creations that did not commit, by failure kind"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create orders.failed counter")
	}

	return &Service{
		members:        members,
		products:       products,
		stock:          stock,
		coupons:        coupons,
		ledger:         ledger,
		orders:         orders,
		policy:         o.policy,
		publisher:      o.publisher,
		publishTimeout: o.publishTimeout,
		tracer:         o.tracerProvider.Tracer(instrumentationName),
		created:        created,
		failed:         failed,
	}, nil
}

// CreateOrder validates the request, prices it, reserves stock, redeems the
// coupon if any and persists the order. On any failure, including
// cancellation of ctx, every completed step is compensated before the error
// is returned, so no partial effect is left behind.
func (s *Service) CreateOrder(ctx context.Context, req CreateRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Create",
		trace.WithAttributes(
			attribute.String("member.id", req.MemberID),
			attribute.String("product.id", req.ProductID),
			attribute.Int64("order.quantity", req.Quantity),
			attribute.Bool("order.coupon", req.CouponID != ""),
		),
	)
	defer func() {
		s.record(ctx, span, rerr)
		span.End()
	}()

	if req.MemberID == "" || req.ProductID == "" {
		return nil, ErrMissingID
	}
	if req.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	m, err := s.members.GetByID(ctx, req.MemberID)
	if err != nil {
		return nil, errors.Wrap(err, "get member")
	}
	p, err := s.products.GetByID(ctx, req.ProductID)
	if err != nil {
		return nil, errors.Wrap(err, "get product")
	}

	var c *coupon.Coupon
	if req.CouponID != "" {
		c, err = s.coupons.GetByID(ctx, req.CouponID)
		if err != nil {
			return nil, errors.Wrap(err, "get coupon")
		}
		if c.Used {
			return nil, coupon.ErrAlreadyUsed
		}
		if !c.OwnedBy(m.ID) {
			return nil, coupon.ErrNotOwned
		}
	}

	in := pricing.Input{
		UnitPrice: p.UnitPrice,
		Quantity:  req.Quantity,
		Grade:     m.Grade,
	}
	if c != nil {
		rate := c.DiscountRate
		in.CouponRate = &rate
	}
	quote, err := s.policy.Quote(in)
	if err != nil {
		return nil, errors.Wrap(err, "price order")
	}

	sg := saga.New()
	defer func() {
		if rerr == nil {
			return
		}
		rerr = tagged(rerr)
		if cerr := sg.Compensate(ctx); cerr != nil {
			rerr = multierr.Combine(rerr, cerr)
		}
	}()

	res, err := s.stock.Reserve(ctx, p.ID, req.Quantity)
	if err != nil {
		return nil, errors.Wrap(err, "reserve stock")
	}
	sg.Add("release stock", func(ctx context.Context) error {
		return s.stock.Release(ctx, res)
	})

	if c != nil {
		red, err := s.ledger.Redeem(ctx, c.ID, m.ID)
		if err != nil {
			return nil, errors.Wrap(err, "redeem coupon")
		}
		sg.Add("unredeem coupon", func(ctx context.Context) error {
			return s.ledger.Unredeem(ctx, red)
		})

		// Price with the rate the ledger actually redeemed.
		if !red.DiscountRate.Equal(c.DiscountRate) {
			rate := red.DiscountRate
			in.CouponRate = &rate
			if quote, err = s.policy.Quote(in); err != nil {
				return nil, errors.Wrap(err, "reprice order")
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, fault.Wrap(fault.Canceled, err, "order abandoned")
	}

	o := &Order{
		MemberID:    m.ID,
		ProductID:   p.ID,
		Quantity:    req.Quantity,
		Subtotal:    quote.Subtotal,
		Discount:    quote.Discount,
		DeliveryFee: quote.DeliveryFee,
		TotalPrice:  quote.Total,
		Status:      StatusCreated,
		CouponID:    req.CouponID,
	}
	// Past this point the caller can no longer abandon the order: a write
	// that lands after a cancel must not be compensated.
	if err := s.orders.Save(context.WithoutCancel(ctx), o); err != nil {
		return nil, fault.Wrap(fault.PersistenceFailure, err, "save order")
	}
	sg.Commit()

	lg := zctx.From(ctx)
	lg.Info("Order created",
		zap.String("order_id", o.ID),
		zap.String("member_id", o.MemberID),
		zap.String("product_id", o.ProductID),
		zap.Int64("total_price", o.TotalPrice),
	)
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()
	if err := s.publisher.OrderCreated(pubCtx, o); err != nil {
		lg.Warn("Publish order event failed", zap.String("order_id", o.ID), zap.Error(err))
	}

	return o, nil
}

// GetOrder returns a stored order.
func (s *Service) GetOrder(ctx context.Context, id string) (*Order, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	return o, nil
}

func (s *Service) record(ctx context.Context, span trace.Span, err error) {
	ctx = context.WithoutCancel(ctx)
	if err == nil {
		s.created.Add(ctx, 1)
		return
	}
	kind := fault.KindOf(err)
	s.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(kind))))
	span.RecordError(err)
	span.SetStatus(codes.Error, string(kind))
}

// tagged makes sure err carries a kind at the front of its chain, so joining
// compensation errors cannot change how it is classified.
func tagged(err error) error {
	var fe *fault.Error
	if errors.As(err, &fe) {
		return err
	}
	return fault.Wrap(fault.KindOf(err), err, "")
}
