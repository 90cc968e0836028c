// Package events publishes cart events to Kafka.
package events

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/coffeeshop/internal/domain/cart"
)

var _ cart.Publisher = (*KafkaPublisher)(nil)

// publishTimeout bounds a single Publish so an unreachable broker cannot
// hold up the cart request that emitted the event.
const publishTimeout = 2 * time.Second

// messageWriter is the subset of *kafka.Writer used by the publisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes cart events as JSON messages keyed by cart id, so
// events of one cart land on the same partition in order.
type KafkaPublisher struct {
	w         messageWriter
	timeout   time.Duration
	published metric.Int64Counter
	failed    metric.Int64Counter
}

// NewKafkaPublisher creates a publisher writing to topic on the brokers and
// counting deliveries on meters from mp.
func NewKafkaPublisher(brokers []string, topic string, mp metric.MeterProvider) (*KafkaPublisher, error) {
	return newPublisher(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		MaxAttempts:            3,
		WriteTimeout:           publishTimeout,
		AllowAutoTopicCreation: true,
	}, mp)
}

func newPublisher(w messageWriter, mp metric.MeterProvider) (*KafkaPublisher, error) {
	meter := mp.Meter("github.com/xenking/coffeeshop/internal/storage/events")
	published, err := meter.Int64Counter("cart.events.published",
		metric.WithDescription("Cart events written to Kafka"))
	if err != nil {
		return nil, errors.Wrap(err, "published counter")
	}
	failed, err := meter.Int64Counter("cart.events.failed",
		metric.WithDescription("Cart events that could not be written"))
	if err != nil {
		return nil, errors.Wrap(err, "failed counter")
	}
	return &KafkaPublisher{
		w:         w,
		timeout:   publishTimeout,
		published: published,
		failed:    failed,
	}, nil
}

// Publish writes a single event, giving up after the publish timeout.
func (p *KafkaPublisher) Publish(ctx context.Context, e cart.Event) error {
	attrs := metric.WithAttributes(attribute.String("type", string(e.Type)))

	wctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.w.WriteMessages(wctx, kafka.Message{
		Key:   []byte(e.CartID),
		Value: encodeEvent(e),
		Time:  e.At,
	}); err != nil {
		p.failed.Add(ctx, 1, attrs)
		return errors.Wrapf(err, "write %s event", e.Type)
	}
	p.published.Add(ctx, 1, attrs)
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

func encodeEvent(e cart.Event) []byte {
	var enc jx.Encoder
	enc.ObjStart()
	enc.FieldStart("type")
	enc.Str(string(e.Type))
	enc.FieldStart("cartId")
	enc.Str(e.CartID)
	if e.UserID != nil {
		enc.FieldStart("userId")
		enc.Str(*e.UserID)
	}
	if e.ItemID != "" {
		enc.FieldStart("itemId")
		enc.Str(e.ItemID)
	}
	if e.CoffeeID != "" {
		enc.FieldStart("coffeeId")
		enc.Str(e.CoffeeID)
	}
	if e.Quantity != 0 {
		enc.FieldStart("quantity")
		enc.Int(e.Quantity)
	}
	enc.FieldStart("at")
	enc.Str(e.At.UTC().Format(time.RFC3339Nano))
	enc.ObjEnd()
	return enc.Bytes()
}
