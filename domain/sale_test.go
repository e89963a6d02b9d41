package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSaleTotalsEqualSubtotals(t *testing.T) {
	cashier := Identity{ID: 2, Username: "cashier", Role: RoleCashier, Name: "Cashier User"}
	lines := []SaleLine{
		NewSaleLine(1, "Laptop", 2, decimal.RequireFromString("1299.99")),
		NewSaleLine(6, "Desk Lamp", 3, decimal.RequireFromString("49.99")),
	}

	sale := NewSale("ref-1", cashier, PaymentCard, lines, time.Now())

	assert.True(t, sale.Items[0].Subtotal.Equal(decimal.RequireFromString("2599.98")))
	assert.True(t, sale.Items[1].Subtotal.Equal(decimal.RequireFromString("149.97")))
	assert.True(t, sale.Total.Equal(decimal.RequireFromString("2749.95")))
	assert.Equal(t, int64(2), sale.CashierID)
	assert.Equal(t, "Cashier User", sale.CashierName)
}

func TestNewSaleCopiesLines(t *testing.T) {
	lines := []SaleLine{NewSaleLine(1, "Laptop", 1, decimal.RequireFromString("1299.99"))}
	sale := NewSale("ref", Identity{ID: 1}, PaymentCash, lines, time.Now())

	lines[0].Quantity = 99
	assert.Equal(t, int64(1), sale.Items[0].Quantity)
}

func TestSaleRequest(t *testing.T) {
	sale := NewSale("abc", Identity{ID: 1}, PaymentCash, []SaleLine{
		NewSaleLine(3, "Coffee Maker", 2, decimal.RequireFromString("99.99")),
	}, time.Now())

	req := sale.Request()
	assert.Equal(t, "abc", req.Reference)
	assert.Equal(t, PaymentCash, req.PaymentMethod)
	assert.Equal(t, []SaleItemRequest{{ProductID: 3, Quantity: 2}}, req.Items)
}

func TestProductValidate(t *testing.T) {
	valid := Product{Name: "Laptop", Category: "Electronics", Price: decimal.RequireFromString("1299.99"), Stock: 15}
	require.NoError(t, valid.Validate())

	cases := map[string]struct {
		mutate func(*Product)
		want   error
	}{
		"missing name":     {func(p *Product) { p.Name = "  " }, ErrProductNameRequired},
		"missing category": {func(p *Product) { p.Category = "" }, ErrProductCategoryRequired},
		"negative price":   {func(p *Product) { p.Price = decimal.NewFromInt(-1) }, ErrNegativePrice},
		"negative stock":   {func(p *Product) { p.Stock = -1 }, ErrNegativeStock},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			p := valid
			tc.mutate(&p)
			assert.ErrorIs(t, p.Validate(), tc.want)
		})
	}
}

func TestProductPriceEncodesAsNumber(t *testing.T) {
	raw, err := json.Marshal(Product{ID: 1, Name: "Laptop", Price: decimal.RequireFromString("1299.99")})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"price":1299.99`)
	assert.NotContains(t, string(raw), "image_url")
}
