// Package receipt renders the printable text receipt of a recorded sale.
package receipt

import (
	"bytes"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/revelly2/smart-store-front/domain"
	"github.com/revelly2/smart-store-front/internal/report"
)

// Width is the character width of a receipt line.
const Width = 40

// Render lays out sale as a fixed-width receipt headed by storeName.
// Timestamps are printed in loc (UTC when nil).
func Render(sale domain.Sale, storeName string, loc *time.Location) []byte {
	if loc == nil {
		loc = time.UTC
	}
	var b bytes.Buffer
	rule := strings.Repeat("-", Width)

	b.WriteString(center(storeName) + "\n")
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "Receipt #%d\n", sale.ID)
	fmt.Fprintf(&b, "Date: %s\n", report.FormatDate(sale.CreatedAt, loc))
	fmt.Fprintf(&b, "Cashier: %s\n", sale.CashierName)
	if sale.Reference != "" {
		fmt.Fprintf(&b, "Ref: %s\n", sale.Reference)
	}
	b.WriteString(rule + "\n")

	for _, line := range sale.Items {
		b.WriteString(truncate(line.ProductName, Width) + "\n")
		detail := fmt.Sprintf("  %d x %s", line.Quantity, report.FormatCurrency(line.UnitPrice))
		b.WriteString(columns(detail, report.FormatCurrency(line.Subtotal)) + "\n")
	}

	b.WriteString(rule + "\n")
	b.WriteString(columns("TOTAL", report.FormatCurrency(sale.Total)) + "\n")
	b.WriteString(columns("Payment", strings.ToUpper(string(sale.PaymentMethod))) + "\n")
	b.WriteString(rule + "\n")
	b.WriteString(center("Thank you for shopping with us!") + "\n")
	return b.Bytes()
}

func columns(left, right string) string {
	gap := Width - utf8.RuneCountInString(left) - utf8.RuneCountInString(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

func center(s string) string {
	s = truncate(s, Width)
	pad := (Width - utf8.RuneCountInString(s)) / 2
	return strings.Repeat(" ", pad) + s
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
