package messaging

import (
	"context"
	"errors"
	"fmt"

	"github.com/sony/gobreaker/v2"
	"github.com/stocktrack/inventory/pkg/config"
)

// ErrPublisherUnavailable is returned while the breaker rejects publish attempts.
var ErrPublisherUnavailable = errors.New("publisher unavailable")

// BreakerPublisher guards a Publisher with a circuit breaker.
type BreakerPublisher struct {
	next Publisher
	cb   *gobreaker.CircuitBreaker[struct{}]
}

// NewBreakerPublisher wraps next in a circuit breaker configured from cfg.
func NewBreakerPublisher(next Publisher, cfg config.CircuitBreakerConfig) *BreakerPublisher {
	st := gobreaker.Settings{
		Name:        "nats-publisher-cb",
		MaxRequests: max(cfg.HalfOpenRequests, 1),
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			total := counts.TotalSuccesses + counts.TotalFailures
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures ||
				(total > cfg.ConsecutiveFailures &&
					float64(counts.TotalFailures)/float64(total)*100 > float64(cfg.ErrorRatePercent))
		},
		IsSuccessful: func(err error) bool {
			// a caller giving up is not a broker failure
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
	return &BreakerPublisher{
		next: next,
		cb:   gobreaker.NewCircuitBreaker[struct{}](st),
	}
}

// Publish forwards the event unless the breaker is open.
func (p *BreakerPublisher) Publish(ctx context.Context, event Event) error {
	_, err := p.cb.Execute(func() (struct{}, error) {
		return struct{}{}, p.next.Publish(ctx, event)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s: %w", ErrPublisherUnavailable, event.Subject(), err)
	}
	return err
}

// State reports the current breaker state.
func (p *BreakerPublisher) State() gobreaker.State {
	return p.cb.State()
}
