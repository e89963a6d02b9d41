package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Prices travel as plain JSON numbers, matching the catalog payloads.
	decimal.MarshalJSONWithoutQuotes = true
}

var (
	ErrProductNameRequired     = errors.New("name is required")
	ErrProductCategoryRequired = errors.New("category is required")
	ErrNegativePrice           = errors.New("price must not be negative")
	ErrNegativeStock           = errors.New("stock must not be negative")
)

type Product struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Stock     int64           `json:"stock"`
	Category  string          `json:"category"`
	ImageURL  *string         `json:"image_url,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Validate checks the fields an admin must supply when saving a product.
func (p Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrProductNameRequired
	}
	if strings.TrimSpace(p.Category) == "" {
		return ErrProductCategoryRequired
	}
	if p.Price.IsNegative() {
		return ErrNegativePrice
	}
	if p.Stock < 0 {
		return ErrNegativeStock
	}
	return nil
}

// InStock reports whether at least one unit can be sold.
func (p Product) InStock() bool {
	return p.Stock > 0
}
