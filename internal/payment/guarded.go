package payment

import (
	"context"
	"errors"
	"log/slog"

	"github.com/syedhariswaseem/lazr/pkg/circuitbreaker"
)

// Guarded wraps a Gateway in a circuit breaker. Only outages count against
// the breaker; rejections, unknown ids, declines and calls abandoned by the
// caller do not.
type Guarded struct {
	next    Gateway
	breaker *circuitbreaker.Breaker
}

func NewGuarded(next Gateway, log *slog.Logger) *Guarded {
	s := circuitbreaker.DefaultSettings("payment-gateway")
	s.IsSuccessful = func(err error) bool {
		if errors.Is(err, context.Canceled) {
			return true
		}
		var gw *GatewayError
		if errors.As(err, &gw) {
			return gw.Kind == KindRejected
		}
		return IsNotFound(err)
	}
	return &Guarded{next: next, breaker: circuitbreaker.New(s, log)}
}

func (g *Guarded) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	out, err := circuitbreaker.Do(g.breaker, func() (*Session, error) {
		return g.next.CreateSession(ctx, req)
	})
	return out, openToGatewayError("create session", err)
}

func (g *Guarded) ConfirmSession(ctx context.Context, req ConfirmRequest) (*Confirmation, error) {
	out, err := circuitbreaker.Do(g.breaker, func() (*Confirmation, error) {
		return g.next.ConfirmSession(ctx, req)
	})
	return out, openToGatewayError("confirm session", err)
}

func (g *Guarded) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSession, error) {
	out, err := circuitbreaker.Do(g.breaker, func() (*CheckoutSession, error) {
		return g.next.CreateCheckoutSession(ctx, req)
	})
	return out, openToGatewayError("create checkout session", err)
}

func (g *Guarded) RetrieveOrderDetails(ctx context.Context, id string) (*OrderDetails, error) {
	out, err := circuitbreaker.Do(g.breaker, func() (*OrderDetails, error) {
		return g.next.RetrieveOrderDetails(ctx, id)
	})
	return out, openToGatewayError("retrieve order", err)
}

func openToGatewayError(op string, err error) error {
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return &GatewayError{Op: op, Kind: KindUnreachable, Message: "payment processor temporarily unavailable", Err: err}
	}
	return err
}

var _ Gateway = (*Guarded)(nil)
