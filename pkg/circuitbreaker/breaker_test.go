package circuitbreaker

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream down")
var errDeclined = errors.New("card declined")

func newTestBreaker(threshold uint32) *Breaker {
	s := DefaultSettings("test")
	s.ConsecutiveFailures = threshold
	s.OpenTimeout = time.Hour
	s.IsSuccessful = func(err error) bool { return errors.Is(err, errDeclined) }
	return New(s, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestDo_PassesValuesThrough(t *testing.T) {
	b := newTestBreaker(3)

	v, err := Do(b, func() (string, error) { return "pi_123", nil })
	require.NoError(t, err)
	assert.Equal(t, "pi_123", v)
}

func TestDo_OpensAfterConsecutiveFailures(t *testing.T) {
	b := newTestBreaker(3)

	for i := 0; i < 3; i++ {
		_, err := Do(b, func() (int, error) { return 0, errUpstream })
		assert.ErrorIs(t, err, errUpstream)
	}

	called := false
	_, err := Do(b, func() (int, error) {
		called = true
		return 1, nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
	assert.Equal(t, "open", b.State())
}

func TestDo_DomainErrorsDoNotTrip(t *testing.T) {
	b := newTestBreaker(2)

	for i := 0; i < 5; i++ {
		_, err := Do(b, func() (int, error) { return 0, errDeclined })
		assert.ErrorIs(t, err, errDeclined)
	}
	assert.Equal(t, "closed", b.State())
}
