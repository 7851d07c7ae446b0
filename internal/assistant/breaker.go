package assistant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sony/gobreaker"
)

// BreakerSettings configures the circuit breaker around a Scorer.
type BreakerSettings struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	ReadyToTripRatio float64
}

// Breaker stops calling a failing Scorer until it has had time to recover.
type Breaker struct {
	scorer Scorer
	cb     *gobreaker.CircuitBreaker
}

var _ Scorer = (*Breaker)(nil)

// NewBreaker wraps scorer with a circuit breaker.
func NewBreaker(scorer Scorer, s BreakerSettings, logger *log.Logger) *Breaker {
	if logger == nil {
		logger = log.Default()
	}
	ratio := s.ReadyToTripRatio
	if ratio <= 0 {
		ratio = 0.6
	}
	st := gobreaker.Settings{
		Name:        "relevance-assistant",
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= ratio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	}
	return &Breaker{scorer: scorer, cb: gobreaker.NewCircuitBreaker(st)}
}

// Score implements Scorer.
func (b *Breaker) Score(ctx context.Context, req Request) ([]Verdict, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.scorer.Score(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if err != nil {
		return nil, err
	}
	verdicts, _ := out.([]Verdict)
	return verdicts, nil
}

// State reports the breaker state, e.g. "closed" or "open".
func (b *Breaker) State() string {
	return b.cb.State().String()
}
