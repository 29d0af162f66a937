package cart

import (
	"errors"

	"github.com/syedhariswaseem/lazr/internal/domain"
)

var ErrInvalidQuantity = errors.New("quantity must be at least 1")

// Cart is an ordered list of lines with at most one line per product.
type Cart struct {
	Lines []domain.CartLine `json:"items"`
}

// Add merges qty into the existing line for p or appends a new line
// capturing p's current name, price, image and category.
func (c *Cart) Add(p domain.Product, qty int) error {
	if qty < 1 {
		return ErrInvalidQuantity
	}
	for i := range c.Lines {
		if c.Lines[i].ProductID == p.ID {
			c.Lines[i].Quantity += qty
			return nil
		}
	}
	c.Lines = append(c.Lines, domain.CartLine{
		ProductID: p.ID,
		Name:      p.Name,
		Price:     p.Price,
		Quantity:  qty,
		ImageURL:  p.ImageURL,
		Category:  p.Category,
	})
	return nil
}

// UpdateQuantity sets the quantity of an existing line. Quantities below 1
// and unknown products leave the cart untouched; it reports whether anything changed.
func (c *Cart) UpdateQuantity(productID int64, qty int) bool {
	if qty < 1 {
		return false
	}
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			if c.Lines[i].Quantity == qty {
				return false
			}
			c.Lines[i].Quantity = qty
			return true
		}
	}
	return false
}

func (c *Cart) Remove(productID int64) bool {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Cart) Clear() {
	c.Lines = nil
}

func (c *Cart) ItemQuantity(productID int64) int {
	for _, l := range c.Lines {
		if l.ProductID == productID {
			return l.Quantity
		}
	}
	return 0
}

func (c *Cart) clone() Cart {
	return Cart{Lines: append([]domain.CartLine(nil), c.Lines...)}
}
