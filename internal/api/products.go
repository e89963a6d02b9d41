package api

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/revelly2/smart-store-front/domain"
	"github.com/revelly2/smart-store-front/internal/catalog"
)

type productRow struct {
	ID        int64   `db:"id"`
	Name      string  `db:"name"`
	Price     string  `db:"price"`
	Stock     int64   `db:"stock"`
	Category  string  `db:"category"`
	ImageURL  *string `db:"image_url"`
	CreatedAt string  `db:"created_at"`
	UpdatedAt string  `db:"updated_at"`
}

func (p productRow) toDomain() (domain.Product, error) {
	price, err := decimal.NewFromString(p.Price)
	if err != nil {
		return domain.Product{}, fmt.Errorf("product %d price: %w", p.ID, err)
	}
	created, err := parseTime(p.CreatedAt)
	if err != nil {
		return domain.Product{}, fmt.Errorf("product %d created_at: %w", p.ID, err)
	}
	updated, err := parseTime(p.UpdatedAt)
	if err != nil {
		return domain.Product{}, fmt.Errorf("product %d updated_at: %w", p.ID, err)
	}
	return domain.Product{
		ID:        p.ID,
		Name:      p.Name,
		Price:     price,
		Stock:     p.Stock,
		Category:  p.Category,
		ImageURL:  p.ImageURL,
		CreatedAt: created,
		UpdatedAt: updated,
	}, nil
}

const productColumns = `id, name, price, stock, category, image_url, created_at, updated_at`

func (h *Handler) loadProducts() ([]domain.Product, error) {
	var rows []productRow
	if err := h.db.Select(&rows, `SELECT `+productColumns+` FROM products ORDER BY id`); err != nil {
		return nil, err
	}
	products := make([]domain.Product, 0, len(rows))
	for _, row := range rows {
		p, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, nil
}

func (h *Handler) loadProduct(id int64) (domain.Product, error) {
	var row productRow
	if err := h.db.Get(&row, `SELECT `+productColumns+` FROM products WHERE id = ?`, id); err != nil {
		return domain.Product{}, err
	}
	return row.toDomain()
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.loadProducts()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to fetch products")
		return
	}
	q := r.URL.Query()
	category := strings.TrimSpace(q.Get("category"))
	if category == "" {
		category = catalog.AllCategories
	}
	respondJSON(w, http.StatusOK, catalog.Filter(products, q.Get("search"), category))
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	products, err := h.loadProducts()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to fetch categories")
		return
	}
	respondJSON(w, http.StatusOK, catalog.Categories(products))
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	product, err := h.loadProduct(id)
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusNotFound, "product not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to fetch product")
		return
	}
	respondJSON(w, http.StatusOK, product)
}

type productRequest struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Stock    int64           `json:"stock"`
	Category string          `json:"category"`
	ImageURL *string         `json:"image_url"`
}

func (req productRequest) product() domain.Product {
	return domain.Product{
		Name:     strings.TrimSpace(req.Name),
		Price:    req.Price,
		Stock:    req.Stock,
		Category: strings.TrimSpace(req.Category),
		ImageURL: nullIfEmpty(req.ImageURL),
	}
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	p := req.product()
	if err := p.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := formatTime(h.now())
	res, err := h.db.Exec(`INSERT INTO products (name, price, stock, category, image_url, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.Price.String(), p.Stock, p.Category, p.ImageURL, now, now)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to create product")
		return
	}
	id, err := res.LastInsertId()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to create product")
		return
	}
	created, err := h.loadProduct(id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to fetch created product")
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	var req productRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	p := req.product()
	if err := p.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.db.Exec(`UPDATE products SET name = ?, price = ?, stock = ?, category = ?, image_url = ?, updated_at = ? WHERE id = ?`,
		p.Name, p.Price.String(), p.Stock, p.Category, p.ImageURL, formatTime(h.now()), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to update product")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		respondError(w, http.StatusNotFound, "product not found")
		return
	}
	updated, err := h.loadProduct(id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to fetch updated product")
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	res, err := h.db.Exec(`DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to delete product")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		respondError(w, http.StatusNotFound, "product not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
