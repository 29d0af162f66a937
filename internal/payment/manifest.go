package payment

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/syedhariswaseem/lazr/internal/domain"
)

const (
	manifestKey = "items"
	// metadata values are capped at 500 characters by the processor
	metadataValueLimit = 500
	maxManifestChunks  = 40
)

// encodeManifest renders items as JSON split across "items", "items_1",
// "items_2"... so long carts fit the metadata value limit.
func encodeManifest(items []domain.OrderItem) (map[string]string, error) {
	if items == nil {
		items = []domain.OrderItem{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}

	s := string(raw)
	out := make(map[string]string)
	for i := 0; len(s) > 0; i++ {
		if i == maxManifestChunks {
			return nil, fmt.Errorf("item manifest of %d bytes exceeds metadata capacity", len(raw))
		}
		n := min(len(s), metadataValueLimit)
		for n < len(s) && !utf8.RuneStart(s[n]) {
			n--
		}
		out[chunkKey(i)] = s[:n]
		s = s[n:]
	}
	return out, nil
}

// decodeManifest reassembles the manifest and applies defaults for missing
// fields: name "Item", quantity 1, price 0. A missing manifest is an empty list.
func decodeManifest(metadata map[string]string) ([]domain.OrderItem, error) {
	first, ok := metadata[manifestKey]
	if !ok || first == "" {
		return []domain.OrderItem{}, nil
	}
	var b strings.Builder
	b.WriteString(first)
	for i := 1; ; i++ {
		part, ok := metadata[chunkKey(i)]
		if !ok {
			break
		}
		b.WriteString(part)
	}

	var raw []struct {
		Name     *string  `json:"name"`
		Quantity *float64 `json:"quantity"`
		Price    *float64 `json:"price"`
	}
	if err := json.Unmarshal([]byte(b.String()), &raw); err != nil {
		return []domain.OrderItem{}, err
	}

	items := make([]domain.OrderItem, 0, len(raw))
	for _, r := range raw {
		item := domain.OrderItem{Name: "Item", Quantity: 1}
		if r.Name != nil {
			item.Name = *r.Name
		}
		if r.Quantity != nil {
			item.Quantity = int(*r.Quantity)
		}
		if r.Price != nil {
			item.Price = int64(*r.Price)
		}
		items = append(items, item)
	}
	return items, nil
}

func chunkKey(i int) string {
	if i == 0 {
		return manifestKey
	}
	return manifestKey + "_" + strconv.Itoa(i)
}

// DisplayOrderID derives the human-facing order number from a payment id.
func DisplayOrderID(paymentID string) string {
	suffix := paymentID
	if len(suffix) > 8 {
		suffix = suffix[len(suffix)-8:]
	}
	return "ORD-" + strings.ToUpper(suffix)
}
