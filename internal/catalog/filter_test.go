package catalog

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/revelly2/smart-store-front/domain"
)

func sampleProducts() []domain.Product {
	mk := func(id int64, name, price string, stock int64, category string) domain.Product {
		return domain.Product{ID: id, Name: name, Price: decimal.RequireFromString(price), Stock: stock, Category: category}
	}
	return []domain.Product{
		mk(1, "Laptop", "1299.99", 15, "Electronics"),
		mk(2, "Smartphone", "899.99", 25, "Electronics"),
		mk(3, "Coffee Maker", "99.99", 10, "Home Appliances"),
		mk(4, "Office Chair", "199.99", 8, "Furniture"),
		mk(5, "Headphones", "159.99", 20, "Electronics"),
		mk(6, "Desk Lamp", "49.99", 12, "Furniture"),
	}
}

func names(ps []domain.Product) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Name
	}
	return out
}

func TestFilter(t *testing.T) {
	products := sampleProducts()

	tests := []struct {
		name     string
		search   string
		category string
		want     []string
	}{
		{"search lap", "lap", "", []string{"Laptop"}},
		{"no filter", "", "", names(products)},
		{"all category", "", "All", names(products)},
		{"category only", "", "Furniture", []string{"Office Chair", "Desk Lamp"}},
		{"case insensitive", "LAMP", "", []string{"Desk Lamp"}},
		{"matches category text", "electro", "", []string{"Laptop", "Smartphone", "Headphones"}},
		{"search within category", "o", "Furniture", []string{"Office Chair"}},
		{"category is exact", "", "furniture", []string{}},
		{"nothing", "tablet", "", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, names(Filter(products, tt.search, tt.category)))
		})
	}
}

func TestFilterIsIdempotent(t *testing.T) {
	products := sampleProducts()
	once := Filter(products, "e", "Electronics")
	twice := Filter(once, "e", "Electronics")
	assert.Equal(t, once, twice)
}

func TestFilterDoesNotAliasInput(t *testing.T) {
	products := sampleProducts()
	out := Filter(products, "", "")
	out[0].Name = "changed"
	assert.Equal(t, "Laptop", products[0].Name)
}

func TestCategories(t *testing.T) {
	assert.Equal(t, []string{"All", "Electronics", "Home Appliances", "Furniture"}, Categories(sampleProducts()))
	assert.Equal(t, []string{"All"}, Categories(nil))
}
