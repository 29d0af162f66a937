package payment

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syedhariswaseem/lazr/internal/domain"
)

func TestManifest_RoundTrip(t *testing.T) {
	items := []domain.OrderItem{{Name: "Product A", Quantity: 1, Price: 125000}}

	md, err := encodeManifest(items)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"items": `[{"name":"Product A","quantity":1,"price":125000}]`}, md)

	decoded, err := decodeManifest(md)
	require.NoError(t, err)
	assert.Equal(t, items, decoded)
}

func TestManifest_LongCartIsChunked(t *testing.T) {
	var items []domain.OrderItem
	for i := 0; i < 30; i++ {
		items = append(items, domain.OrderItem{Name: strings.Repeat("Laser ", 5), Quantity: i + 1, Price: 99900})
	}

	md, err := encodeManifest(items)
	require.NoError(t, err)
	assert.Greater(t, len(md), 1)
	for _, v := range md {
		assert.LessOrEqual(t, len(v), 500)
	}

	decoded, err := decodeManifest(md)
	require.NoError(t, err)
	assert.Equal(t, items, decoded)
}

func TestDecodeManifest_Defaults(t *testing.T) {
	decoded, err := decodeManifest(map[string]string{"items": `[{"price":5},{"name":"B","quantity":2}]`})

	require.NoError(t, err)
	assert.Equal(t, []domain.OrderItem{
		{Name: "Item", Quantity: 1, Price: 5},
		{Name: "B", Quantity: 2, Price: 0},
	}, decoded)
}

func TestDecodeManifest_MissingAndMalformed(t *testing.T) {
	decoded, err := decodeManifest(map[string]string{"customer_name": "Ada"})
	require.NoError(t, err)
	assert.Empty(t, decoded)

	decoded, err = decodeManifest(map[string]string{"items": `{"name":`})
	assert.Error(t, err)
	assert.Empty(t, decoded)
}

func TestDisplayOrderID(t *testing.T) {
	assert.Equal(t, "ORD-ABCD1234", DisplayOrderID("pi_3Pxyzabcd1234"))
	assert.Equal(t, "ORD-PI_1", DisplayOrderID("pi_1"))
}
