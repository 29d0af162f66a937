package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/syedhariswaseem/lazr/internal/domain"
)

func TestFingerprint(t *testing.T) {
	a := domain.CartLine{ProductID: 1, Price: 100, Quantity: 2}
	b := domain.CartLine{ProductID: 2, Price: 50, Quantity: 1}

	base := Fingerprint([]domain.CartLine{a, b}, 270, "usd")
	assert.Equal(t, base, Fingerprint([]domain.CartLine{b, a}, 270, "usd"))

	b2 := b
	b2.Quantity = 2
	assert.NotEqual(t, base, Fingerprint([]domain.CartLine{a, b2}, 270, "usd"))
	assert.NotEqual(t, base, Fingerprint([]domain.CartLine{a, b}, 271, "usd"))
	assert.NotEqual(t, base, Fingerprint([]domain.CartLine{a, b}, 270, "eur"))
}
