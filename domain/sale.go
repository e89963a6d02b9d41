package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cash"
	PaymentCard PaymentMethod = "card"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentCash || m == PaymentCard
}

// Sale is an immutable record of a completed checkout.
type Sale struct {
	ID            int64           `json:"id"`
	Reference     string          `json:"reference"`
	CashierID     int64           `json:"cashier_id"`
	CashierName   string          `json:"cashier_name"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	CreatedAt     time.Time       `json:"created_at"`
	Items         []SaleLine      `json:"items"`
}

type SaleLine struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// NewSaleLine prices a line; the subtotal is always unit price times quantity.
func NewSaleLine(productID int64, name string, quantity int64, unitPrice decimal.Decimal) SaleLine {
	return SaleLine{
		ProductID:   productID,
		ProductName: name,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		Subtotal:    unitPrice.Mul(decimal.NewFromInt(quantity)),
	}
}

// NewSale builds a sale whose total is the sum of its line subtotals.
func NewSale(reference string, cashier Identity, method PaymentMethod, lines []SaleLine, createdAt time.Time) Sale {
	items := make([]SaleLine, len(lines))
	copy(items, lines)
	return Sale{
		Reference:     reference,
		CashierID:     cashier.ID,
		CashierName:   cashier.Name,
		Total:         SumSubtotals(items),
		PaymentMethod: method,
		CreatedAt:     createdAt,
		Items:         items,
	}
}

func SumSubtotals(lines []SaleLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Subtotal)
	}
	return total
}

// Request converts the sale into the payload the sales service accepts.
func (s Sale) Request() SaleRequest {
	items := make([]SaleItemRequest, len(s.Items))
	for i, line := range s.Items {
		items[i] = SaleItemRequest{ProductID: line.ProductID, Quantity: line.Quantity}
	}
	return SaleRequest{Reference: s.Reference, PaymentMethod: s.PaymentMethod, Items: items}
}

type SaleItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

// SaleRequest is the createSale payload. Reference doubles as an idempotency key.
type SaleRequest struct {
	Reference     string            `json:"reference,omitempty"`
	PaymentMethod PaymentMethod     `json:"payment_method"`
	Items         []SaleItemRequest `json:"items"`
}

// Period aggregates sales over a reporting window.
type Period struct {
	Count int64           `json:"count"`
	Total decimal.Decimal `json:"total"`
}

// Summary is the admin dashboard view of recent sales.
type Summary struct {
	Today Period `json:"today"`
	Week  Period `json:"week"`
	Month Period `json:"month"`
}
