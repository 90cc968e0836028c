package events

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/xenking/coffeeshop/internal/domain/cart"
)

// --- Mock implementations ---

func newTestPublisher(t *testing.T, w messageWriter) *KafkaPublisher {
	t.Helper()
	p, err := newPublisher(w, noop.NewMeterProvider())
	require.NoError(t, err)
	return p
}

type mockWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (m *mockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if m.err != nil {
		return m.err
	}
	m.msgs = append(m.msgs, msgs...)
	return nil
}

// stalledWriter blocks like a writer retrying against a dead broker.
type stalledWriter struct{}

func (stalledWriter) WriteMessages(ctx context.Context, _ ...kafka.Message) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stalledWriter) Close() error { return nil }

func (m *mockWriter) Close() error {
	m.closed = true
	return nil
}

// --- Tests ---

func decodeFields(t *testing.T, data []byte) map[string]string {
	t.Helper()
	fields := make(map[string]string)
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		raw, err := d.Raw()
		if err != nil {
			return err
		}
		fields[key] = raw.String()
		return nil
	})
	require.NoError(t, err)
	return fields
}

func TestPublish(t *testing.T) {
	w := &mockWriter{}
	p := newTestPublisher(t, w)
	at := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	user := "u1"

	err := p.Publish(context.Background(), cart.Event{
		Type:     cart.EventItemAdded,
		CartID:   "cart-1",
		UserID:   &user,
		ItemID:   "item-1",
		CoffeeID: "coffee-1",
		Quantity: 2,
		At:       at,
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "cart-1", string(msg.Key))
	assert.Equal(t, at, msg.Time)
	assert.Equal(t, map[string]string{
		"type":     `"item_added"`,
		"cartId":   `"cart-1"`,
		"userId":   `"u1"`,
		"itemId":   `"item-1"`,
		"coffeeId": `"coffee-1"`,
		"quantity": `2`,
		"at":       `"2024-06-01T10:00:00Z"`,
	}, decodeFields(t, msg.Value))
}

func TestPublish_OmitsEmptyFields(t *testing.T) {
	w := &mockWriter{}
	p := newTestPublisher(t, w)

	require.NoError(t, p.Publish(context.Background(), cart.Event{
		Type:   cart.EventCartCreated,
		CartID: "cart-2",
	}))

	fields := decodeFields(t, w.msgs[0].Value)
	assert.NotContains(t, fields, "userId")
	assert.NotContains(t, fields, "itemId")
	assert.NotContains(t, fields, "quantity")
}

func TestPublish_WriteError(t *testing.T) {
	p := newTestPublisher(t, &mockWriter{err: errors.New("leader not available")})

	err := p.Publish(context.Background(), cart.Event{Type: cart.EventItemRemoved, CartID: "c"})
	require.ErrorContains(t, err, "leader not available")
	require.ErrorContains(t, err, "item_removed")
}

func TestClose(t *testing.T) {
	w := &mockWriter{}
	require.NoError(t, newTestPublisher(t, w).Close())
	assert.True(t, w.closed)
}

func TestPublish_Timeout(t *testing.T) {
	p := newTestPublisher(t, stalledWriter{})
	p.timeout = 20 * time.Millisecond

	start := time.Now()
	err := p.Publish(context.Background(), cart.Event{
		Type:   cart.EventCartCreated,
		CartID: "cart-1",
		At:     time.Now(),
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}
