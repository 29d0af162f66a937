package circuitbreaker

import (
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrOpen is returned while the breaker rejects calls.
var ErrOpen = errors.New("circuit breaker is open")

type Settings struct {
	Name                string
	MaxHalfOpenRequests uint32
	Interval            time.Duration
	OpenTimeout         time.Duration
	ConsecutiveFailures uint32
	// IsSuccessful classifies errors that must not count as failures, e.g. a
	// declined card or an unknown id. Nil counts every error.
	IsSuccessful func(err error) bool
}

func DefaultSettings(name string) Settings {
	return Settings{
		Name:                name,
		MaxHalfOpenRequests: 1,
		Interval:            time.Minute,
		OpenTimeout:         30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

type Breaker struct {
	cb *gobreaker.CircuitBreaker[any]
}

func New(s Settings, log *slog.Logger) *Breaker {
	threshold := s.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}
	st := gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.MaxHalfOpenRequests,
		Interval:    s.Interval,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	}
	if s.IsSuccessful != nil {
		st.IsSuccessful = func(err error) bool {
			return err == nil || s.IsSuccessful(err)
		}
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker[any](st)}
}

func (b *Breaker) State() string {
	return b.cb.State().String()
}

// Do runs fn through the breaker. Rejections surface as ErrOpen.
func Do[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	v, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return zero, ErrOpen
	}
	if err != nil {
		return zero, err
	}
	out, _ := v.(T)
	return out, nil
}
