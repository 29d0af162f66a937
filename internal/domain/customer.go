package domain

import "strings"

// CustomerInfo is the contact and billing data collected on the checkout form.
// Company is the only optional field.
type CustomerInfo struct {
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone" validate:"required"`
	Company   string `json:"company,omitempty"`
	Address   string `json:"address" validate:"required"`
	City      string `json:"city" validate:"required"`
	State     string `json:"state" validate:"required"`
	ZipCode   string `json:"zipCode" validate:"required"`
	Country   string `json:"country" validate:"required"`
}

func (c CustomerInfo) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Normalize trims surrounding whitespace from every field.
func (c CustomerInfo) Normalize() CustomerInfo {
	return CustomerInfo{
		FirstName: strings.TrimSpace(c.FirstName),
		LastName:  strings.TrimSpace(c.LastName),
		Email:     strings.TrimSpace(c.Email),
		Phone:     strings.TrimSpace(c.Phone),
		Company:   strings.TrimSpace(c.Company),
		Address:   strings.TrimSpace(c.Address),
		City:      strings.TrimSpace(c.City),
		State:     strings.TrimSpace(c.State),
		ZipCode:   strings.TrimSpace(c.ZipCode),
		Country:   strings.TrimSpace(c.Country),
	}
}
