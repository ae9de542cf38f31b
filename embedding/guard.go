package embedding

import (
	"context"
	"io"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Guard wraps a remote model with a request rate limit and a circuit breaker.
// A non-positive rps disables the limiter.
func Guard(model Model, name string, rps float64) Model {
	log := zap.L().With(
		zap.String("component", "embedding"),
		zap.String("breaker", name),
	)

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	var limiter *rate.Limiter
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
	}

	return &guardedModel{
		next:    model,
		cb:      cb,
		limiter: limiter,
	}
}

type guardedModel struct {
	next    Model
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func (m *guardedModel) Encode(ctx context.Context, texts []string) ([][]float64, error) {
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	result, err := m.cb.Execute(func() (any, error) {
		return m.next.Encode(ctx, texts)
	})
	if err != nil {
		return nil, err
	}

	return result.([][]float64), nil
}

func (m *guardedModel) Close() error {
	if c, ok := m.next.(io.Closer); ok {
		return c.Close()
	}

	return nil
}
