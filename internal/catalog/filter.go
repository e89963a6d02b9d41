// Package catalog filters the product list shown on the cashier grid.
package catalog

import (
	"strings"

	"github.com/revelly2/smart-store-front/domain"
)

// AllCategories is the drop-down entry that disables category filtering.
const AllCategories = "All"

// Filter keeps products in category (empty or "All" matches everything) whose
// name or category contains search, ignoring case. Order is preserved.
func Filter(products []domain.Product, search, category string) []domain.Product {
	needle := strings.ToLower(search)
	out := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if Matches(p, needle, category) {
			out = append(out, p)
		}
	}
	return out
}

// Matches is the predicate behind Filter. search must already be lower case.
func Matches(p domain.Product, search, category string) bool {
	if category != "" && category != AllCategories && p.Category != category {
		return false
	}
	if search == "" {
		return true
	}
	return strings.Contains(strings.ToLower(p.Name), search) ||
		strings.Contains(strings.ToLower(p.Category), search)
}

// Categories lists "All" followed by each distinct category in first-seen order.
func Categories(products []domain.Product) []string {
	seen := make(map[string]struct{}, len(products))
	out := []string{AllCategories}
	for _, p := range products {
		if _, ok := seen[p.Category]; ok {
			continue
		}
		seen[p.Category] = struct{}{}
		out = append(out, p.Category)
	}
	return out
}
