package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/workspace-billing/pkg/observability"
	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v74"
)

// BreakerSettings tune the provider circuit breaker. Zero values use defaults.
type BreakerSettings struct {
	Name string
	// MaxFailures consecutive provider failures open the breaker
	MaxFailures uint32
	// OpenTimeout is how long the breaker stays open before probing again
	OpenTimeout time.Duration
}

// BreakerGateway fails fast while the provider is unhealthy. Each call is
// attempted at most once.
type BreakerGateway struct {
	next Provider
	cb   *gobreaker.CircuitBreaker[any]
}

// NewBreakerGateway wraps next with a circuit breaker
func NewBreakerGateway(next Provider, settings BreakerSettings, metrics *observability.Metrics) *BreakerGateway {
	if settings.Name == "" {
		settings.Name = "stripe"
	}
	if settings.MaxFailures == 0 {
		settings.MaxFailures = 5
	}
	if settings.OpenTimeout <= 0 {
		settings.OpenTimeout = 30 * time.Second
	}

	if metrics != nil {
		metrics.BreakerState.WithLabelValues(settings.Name).Set(float64(gobreaker.StateClosed))
	}

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if metrics != nil {
				metrics.BreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
		IsSuccessful: providerHealthy,
	})

	return &BreakerGateway{next: next, cb: cb}
}

// providerHealthy treats classified errors and Stripe 4xx responses as healthy
// round trips; only transport failures and 5xx count against the breaker.
// A caller that cancels or runs out of time says nothing about Stripe.
func providerHealthy(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var billingErr *Error
	if errors.As(err, &billingErr) {
		return true
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode > 0 && stripeErr.HTTPStatusCode < 500
	}
	return false
}

// State returns the current breaker state
func (b *BreakerGateway) State() gobreaker.State {
	return b.cb.State()
}

func (b *BreakerGateway) execute(fn func() (any, error)) (any, error) {
	result, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("stripe unavailable: %w", err)
	}
	return result, err
}

func (b *BreakerGateway) FindByEmail(ctx context.Context, email string) (*Customer, error) {
	result, err := b.execute(func() (any, error) {
		return b.next.FindByEmail(ctx, email)
	})
	if err != nil {
		return nil, err
	}
	customer, _ := result.(*Customer)
	return customer, nil
}

func (b *BreakerGateway) Create(ctx context.Context, params CustomerParams) (*Customer, error) {
	result, err := b.execute(func() (any, error) {
		return b.next.Create(ctx, params)
	})
	if err != nil {
		return nil, err
	}
	return result.(*Customer), nil
}

func (b *BreakerGateway) Update(ctx context.Context, customerID string, params CustomerParams) (*Customer, error) {
	result, err := b.execute(func() (any, error) {
		return b.next.Update(ctx, customerID, params)
	})
	if err != nil {
		return nil, err
	}
	return result.(*Customer), nil
}

func (b *BreakerGateway) CheckoutURL(ctx context.Context, params CheckoutURLParams) (string, error) {
	result, err := b.execute(func() (any, error) {
		return b.next.CheckoutURL(ctx, params)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}
