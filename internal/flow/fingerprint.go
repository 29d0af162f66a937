package flow

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/syedhariswaseem/lazr/internal/domain"
)

// Fingerprint identifies what a payment session was issued for: the items
// (in any order), the amount and the currency.
func Fingerprint(lines []domain.CartLine, amount int64, currency string) string {
	sorted := slices.Clone(lines)
	slices.SortFunc(sorted, func(a, b domain.CartLine) int {
		switch {
		case a.ProductID < b.ProductID:
			return -1
		case a.ProductID > b.ProductID:
			return 1
		}
		return 0
	})

	d := xxhash.New()
	fmt.Fprintf(d, "%s|%d", currency, amount)
	for _, l := range sorted {
		fmt.Fprintf(d, "|%d:%d:%d", l.ProductID, l.Quantity, l.Price)
	}
	return strconv.FormatUint(d.Sum64(), 16)
}
