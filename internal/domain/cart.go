package domain

// CartLine is one product in the cart. Name, price, image and category are
// captured when the line is first added and are not refreshed from the catalog.
type CartLine struct {
	ProductID int64  `json:"productId" bson:"product_id"`
	Name      string `json:"name" bson:"name"`
	Price     int64  `json:"price" bson:"price"`
	Quantity  int    `json:"quantity" bson:"quantity"`
	ImageURL  string `json:"imageUrl,omitempty" bson:"image_url,omitempty"`
	Category  string `json:"category,omitempty" bson:"category,omitempty"`
}

func (l CartLine) LineTotal() int64 {
	return l.Price * int64(l.Quantity)
}

// OrderItem returns the line as it appears in a checkout snapshot.
func (l CartLine) OrderItem() OrderItem {
	return OrderItem{Name: l.Name, Quantity: l.Quantity, Price: l.Price}
}
