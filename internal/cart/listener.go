package cart

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

const orderConfirmedEvent = "order.confirmed"

const (
	settleAttempts = 5
	retryDelay     = 500 * time.Millisecond
	readBackoff    = time.Second
	maxReadBackoff = 30 * time.Second
)

// MessageReader is the subset of *kafka.Reader the listener needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// PaymentSettler completes the checkout of a shopper session that was still
// waiting on the given payment, emptying its cart.
type PaymentSettler interface {
	SettlePayment(ctx context.Context, sessionID, paymentID string) (bool, error)
}

// Listener consumes order events and settles the checkouts of shoppers whose
// payment was confirmed by the processor before their browser reported it.
// A message is committed once it was handled, so one interrupted by shutdown
// is read again on the next start.
type Listener struct {
	settler    PaymentSettler
	reader     MessageReader
	log        *slog.Logger
	retryDelay time.Duration
	sleep      func(ctx context.Context, d time.Duration) bool
}

func NewListener(settler PaymentSettler, log *slog.Logger, topic string, brokers ...string) *Listener {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  "storefront-cart-listener",
		MaxBytes: 10e6, // 10MB
	})
	return NewListenerWithReader(settler, reader, log)
}

func NewListenerWithReader(settler PaymentSettler, reader MessageReader, log *slog.Logger) *Listener {
	return &Listener{
		settler:    settler,
		reader:     reader,
		log:        log,
		retryDelay: retryDelay,
		sleep:      sleepContext,
	}
}

func (l *Listener) Run(ctx context.Context) {
	backoff := readBackoff
	for {
		if ctx.Err() != nil {
			return
		}
		m, err := l.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.log.Error("error reading order event", "error", err, "retry_in", backoff)
			if !l.sleep(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, maxReadBackoff)
			continue
		}
		backoff = readBackoff

		if err := l.handle(ctx, m); err != nil {
			// not committed: the group hands it out again after a restart
			l.log.Warn("order event left uncommitted", "offset", m.Offset, "error", err)
			return
		}
		if err := l.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			l.log.Error("error committing order event", "offset", m.Offset, "error", err)
		}
	}
}

func (l *Listener) Close() {
	if err := l.reader.Close(); err != nil {
		l.log.Error("error closing reader", "error", err)
	}
}

type orderEvent struct {
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	SessionID string `json:"session_id"`
}

// handle returns an error only when the listener is stopping before the
// event could be settled. Events that cannot be settled after the retries
// are logged and skipped.
func (l *Listener) handle(ctx context.Context, m kafka.Message) error {
	if eventType(m) != orderConfirmedEvent {
		return nil
	}

	var ev orderEvent
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		l.log.Error("error parsing order event", "error", err)
		return nil
	}
	if ev.SessionID == "" || ev.PaymentID == "" {
		l.log.Warn("order event without session or payment id", "order_id", ev.OrderID)
		return nil
	}

	delay := l.retryDelay
	for attempt := 1; ; attempt++ {
		pending, err := l.settler.SettlePayment(ctx, ev.SessionID, ev.PaymentID)
		if err == nil {
			if pending {
				l.log.Info("checkout settled after confirmed order", "order_id", ev.OrderID)
			}
			return nil
		}
		if attempt == settleAttempts {
			l.log.Error("giving up on settling checkout flow", "order_id", ev.OrderID, "attempts", attempt, "error", err)
			return nil
		}
		l.log.Warn("failed to settle checkout flow, retrying", "order_id", ev.OrderID, "attempt", attempt, "error", err)
		if !l.sleep(ctx, delay) {
			return ctx.Err()
		}
		delay *= 2
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func eventType(m kafka.Message) string {
	for _, h := range m.Headers {
		if h.Key == "event_type" {
			return string(h.Value)
		}
	}
	return ""
}
