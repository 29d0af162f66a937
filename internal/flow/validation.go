package flow

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/syedhariswaseem/lazr/internal/catalog"
	"github.com/syedhariswaseem/lazr/internal/domain"
)

var fieldLabels = map[string]string{
	"firstName": "First name",
	"lastName":  "Last name",
	"email":     "Email",
	"phone":     "Phone",
	"address":   "Address",
	"city":      "City",
	"state":     "State",
	"zipCode":   "ZIP code",
	"country":   "Country",
}

type Validator struct {
	v *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{v: v}
}

// Customer checks the required checkout fields in form order.
func (v *Validator) Customer(info domain.CustomerInfo) *ValidationError {
	verr := &ValidationError{}
	err := v.v.Struct(info)
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			verr.add(fe.Field(), fieldMessage(fe))
		}
	}
	if verr.empty() {
		return nil
	}
	return verr
}

func fieldMessage(fe validator.FieldError) string {
	label := fieldLabels[fe.Field()]
	if label == "" {
		label = fe.Field()
	}
	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "email":
		return "Please enter a valid email address"
	default:
		return label + " is invalid"
	}
}

// StockChecker looks up current catalog data for a cart line.
type StockChecker interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
}

// checkStock adds an "items" error for the first line that cannot be fulfilled.
func checkStock(ctx context.Context, stock StockChecker, lines []domain.CartLine, verr *ValidationError) error {
	for _, l := range lines {
		p, err := stock.GetProduct(ctx, l.ProductID)
		if errors.Is(err, catalog.ErrProductNotFound) {
			verr.add("items", fmt.Sprintf("%s is no longer available", l.Name))
			return nil
		}
		if err != nil {
			return fmt.Errorf("check stock for product %d: %w", l.ProductID, err)
		}
		if !p.InStock || p.StockCount <= 0 {
			verr.add("items", fmt.Sprintf("%s is out of stock", l.Name))
			return nil
		}
		if l.Quantity > p.StockCount {
			verr.add("items", fmt.Sprintf("Only %d of %s in stock", p.StockCount, l.Name))
			return nil
		}
	}
	return nil
}
