package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/xenking/storefront-checkout/internal/domain/order"
)

// CheckoutCompleted is the payload delivered to observers after an order has
// been placed and the checkout session cleared.
type CheckoutCompleted struct {
	Order  *order.Order
	UserID string
}

// Observer receives checkout completed notifications.
type Observer interface {
	CheckoutCompleted(ctx context.Context, ev CheckoutCompleted)
}

// Signal fans a checkout completed event out to its observers. Delivery is
// fire-and-forget: observers run synchronously in registration order, a panic
// in one observer is recovered and logged without affecting the others, and
// nothing is retried.
type Signal struct {
	lg        *zap.Logger
	observers []Observer
}

// NewSignal creates a Signal with no observers.
func NewSignal(lg *zap.Logger) *Signal {
	return &Signal{lg: lg}
}

// Subscribe registers an observer. Not safe for concurrent use with Send;
// wiring happens at startup.
func (s *Signal) Subscribe(obs Observer) {
	s.observers = append(s.observers, obs)
}

// Send delivers the event to every observer.
func (s *Signal) Send(ctx context.Context, ev CheckoutCompleted) {
	for _, obs := range s.observers {
		s.deliver(ctx, obs, ev)
	}
}

func (s *Signal) deliver(ctx context.Context, obs Observer, ev CheckoutCompleted) {
	defer func() {
		if rec := recover(); rec != nil {
			s.lg.Error("Checkout observer panicked",
				zap.String("order", ev.Order.Number),
				zap.Any("panic", rec),
			)
		}
	}()
	obs.CheckoutCompleted(ctx, ev)
}
