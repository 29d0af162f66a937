package domain

// OrderItem is a purchased line as recorded in the checkout snapshot and in
// the payment session's item manifest.
type OrderItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    int64  `json:"price"`
}

// CheckoutSnapshot is the confirmation data shown after a successful payment.
type CheckoutSnapshot struct {
	CustomerInfo CustomerInfo `json:"customerInfo"`
	OrderTotal   int64        `json:"orderTotal"`
	OrderItems   []OrderItem  `json:"orderItems"`
	OrderID      string       `json:"orderId"`
}

func OrderItemsFromLines(lines []CartLine) []OrderItem {
	items := make([]OrderItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, l.OrderItem())
	}
	return items
}
