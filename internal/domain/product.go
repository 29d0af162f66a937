package domain

import "time"

// Product is a catalog entry. Price is in minor currency units (cents).
type Product struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       int64     `json:"price"`
	Category    string    `json:"category"`
	ImageURL    string    `json:"imageUrl"`
	Rating      float64   `json:"rating"`
	StockCount  int       `json:"stockCount"`
	InStock     bool      `json:"inStock"`
	CreatedAt   time.Time `json:"createdAt"`
}
