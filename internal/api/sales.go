package api

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/revelly2/smart-store-front/domain"
	"github.com/revelly2/smart-store-front/internal/receipt"
	"github.com/revelly2/smart-store-front/internal/report"
)

type saleRow struct {
	ID            int64  `db:"id"`
	Reference     string `db:"reference"`
	CashierID     int64  `db:"cashier_id"`
	CashierName   string `db:"cashier_name"`
	Total         string `db:"total"`
	PaymentMethod string `db:"payment_method"`
	CreatedAt     string `db:"created_at"`
}

type saleItemRow struct {
	SaleID      int64  `db:"sale_id"`
	ProductID   int64  `db:"product_id"`
	ProductName string `db:"product_name"`
	Quantity    int64  `db:"quantity"`
	UnitPrice   string `db:"unit_price"`
	Subtotal    string `db:"subtotal"`
}

func (s saleRow) toDomain() (domain.Sale, error) {
	total, err := decimal.NewFromString(s.Total)
	if err != nil {
		return domain.Sale{}, fmt.Errorf("sale %d total: %w", s.ID, err)
	}
	created, err := parseTime(s.CreatedAt)
	if err != nil {
		return domain.Sale{}, fmt.Errorf("sale %d created_at: %w", s.ID, err)
	}
	return domain.Sale{
		ID:            s.ID,
		Reference:     s.Reference,
		CashierID:     s.CashierID,
		CashierName:   s.CashierName,
		Total:         total,
		PaymentMethod: domain.PaymentMethod(s.PaymentMethod),
		CreatedAt:     created,
		Items:         []domain.SaleLine{},
	}, nil
}

func (i saleItemRow) toDomain() (domain.SaleLine, error) {
	price, err := decimal.NewFromString(i.UnitPrice)
	if err != nil {
		return domain.SaleLine{}, fmt.Errorf("sale %d item price: %w", i.SaleID, err)
	}
	subtotal, err := decimal.NewFromString(i.Subtotal)
	if err != nil {
		return domain.SaleLine{}, fmt.Errorf("sale %d item subtotal: %w", i.SaleID, err)
	}
	return domain.SaleLine{
		ProductID:   i.ProductID,
		ProductName: i.ProductName,
		Quantity:    i.Quantity,
		UnitPrice:   price,
		Subtotal:    subtotal,
	}, nil
}

const saleColumns = `id, reference, cashier_id, cashier_name, total, payment_method, created_at`

// loadSales reads sales newest first, with their items when withItems is set.
func loadSales(q sqlx.Queryer, where string, args []any, withItems bool) ([]domain.Sale, error) {
	query := `SELECT ` + saleColumns + ` FROM sales`
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY created_at DESC, id DESC"

	var rows []saleRow
	if err := sqlx.Select(q, &rows, query, args...); err != nil {
		return nil, err
	}
	sales := make([]domain.Sale, len(rows))
	index := make(map[int64]int, len(rows))
	ids := make([]int64, len(rows))
	for i, row := range rows {
		s, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		sales[i] = s
		index[s.ID] = i
		ids[i] = s.ID
	}
	if !withItems || len(sales) == 0 {
		return sales, nil
	}

	itemsQuery, itemsArgs, err := sqlx.In(`SELECT sale_id, product_id, product_name, quantity, unit_price, subtotal
                FROM sale_items
                WHERE sale_id IN (?)
                ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	var items []saleItemRow
	if err := sqlx.Select(q, &items, itemsQuery, itemsArgs...); err != nil {
		return nil, err
	}
	for _, item := range items {
		line, err := item.toDomain()
		if err != nil {
			return nil, err
		}
		i := index[item.SaleID]
		sales[i].Items = append(sales[i].Items, line)
	}
	return sales, nil
}

func loadSale(q sqlx.Queryer, where string, args ...any) (domain.Sale, error) {
	sales, err := loadSales(q, where, args, true)
	if err != nil {
		return domain.Sale{}, err
	}
	if len(sales) == 0 {
		return domain.Sale{}, sql.ErrNoRows
	}
	return sales[0], nil
}

type stockError struct {
	product string
}

func (e stockError) Error() string {
	return "insufficient stock for " + e.product
}

func (h *Handler) createSale(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !req.PaymentMethod.Valid() {
		respondError(w, http.StatusBadRequest, "payment_method must be cash or card")
		return
	}
	if len(req.Items) == 0 {
		respondError(w, http.StatusBadRequest, "at least one item is required")
		return
	}
	for _, item := range req.Items {
		if item.ProductID <= 0 || item.Quantity <= 0 {
			respondError(w, http.StatusBadRequest, "product_id and a positive quantity are required for each item")
			return
		}
	}
	req.Reference = strings.TrimSpace(req.Reference)
	if req.Reference == "" {
		req.Reference = uuid.NewString()
	}

	cashier := identityFrom(r.Context())
	sale, created, err := h.recordSale(cashier, req)
	var stockErr stockError
	switch {
	case errors.As(err, &stockErr):
		respondError(w, http.StatusConflict, stockErr.Error())
		return
	case errors.Is(err, sql.ErrNoRows):
		respondError(w, http.StatusBadRequest, "product not found for one or more items")
		return
	case err != nil:
		h.logger.Error("record sale", zap.String("reference", req.Reference), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "unable to record sale")
		return
	}

	if !created {
		respondJSON(w, http.StatusOK, sale)
		return
	}
	if h.metrics != nil {
		h.metrics.SalesTotal.WithLabelValues(string(sale.PaymentMethod)).Inc()
		h.metrics.SalesAmount.Add(sale.Total.InexactFloat64())
	}
	h.logger.Info("sale recorded",
		zap.Int64("sale_id", sale.ID),
		zap.String("reference", sale.Reference),
		zap.String("cashier", cashier.Username),
		zap.String("total", sale.Total.StringFixed(2)))
	respondJSON(w, http.StatusCreated, sale)
}

// recordSale prices req from the catalog and stores it, decrementing stock in
// the same transaction. A reference seen before returns the stored sale with
// created false.
func (h *Handler) recordSale(cashier domain.Identity, req domain.SaleRequest) (domain.Sale, bool, error) {
	tx, err := h.db.Beginx()
	if err != nil {
		return domain.Sale{}, false, fmt.Errorf("start sale: %w", err)
	}
	defer tx.Rollback()

	existing, err := loadSale(tx, "reference = ?", req.Reference)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Sale{}, false, err
	}

	// Quantities of repeated products are merged so stock is checked once.
	order := make([]int64, 0, len(req.Items))
	quantities := make(map[int64]int64, len(req.Items))
	for _, item := range req.Items {
		if _, ok := quantities[item.ProductID]; !ok {
			order = append(order, item.ProductID)
		}
		quantities[item.ProductID] += item.Quantity
	}

	now := formatTime(h.now())
	lines := make([]domain.SaleLine, 0, len(order))
	for _, productID := range order {
		var row productRow
		if err := tx.Get(&row, `SELECT `+productColumns+` FROM products WHERE id = ?`, productID); err != nil {
			return domain.Sale{}, false, err
		}
		product, err := row.toDomain()
		if err != nil {
			return domain.Sale{}, false, err
		}
		qty := quantities[productID]
		if product.Stock < qty {
			return domain.Sale{}, false, stockError{product: product.Name}
		}
		if _, err := tx.Exec(`UPDATE products SET stock = stock - ?, updated_at = ? WHERE id = ?`, qty, now, productID); err != nil {
			return domain.Sale{}, false, fmt.Errorf("update stock: %w", err)
		}
		lines = append(lines, domain.NewSaleLine(product.ID, product.Name, qty, product.Price))
	}

	sale := domain.NewSale(req.Reference, cashier, req.PaymentMethod, lines, h.now())
	res, err := tx.Exec(`INSERT INTO sales (reference, cashier_id, cashier_name, total, payment_method, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		sale.Reference, sale.CashierID, sale.CashierName, sale.Total.String(), string(sale.PaymentMethod), formatTime(sale.CreatedAt))
	if err != nil {
		return domain.Sale{}, false, fmt.Errorf("insert sale: %w", err)
	}
	if sale.ID, err = res.LastInsertId(); err != nil {
		return domain.Sale{}, false, fmt.Errorf("sale id: %w", err)
	}
	for _, line := range sale.Items {
		if _, err := tx.Exec(`INSERT INTO sale_items (sale_id, product_id, product_name, quantity, unit_price, subtotal) VALUES (?, ?, ?, ?, ?, ?)`,
			sale.ID, line.ProductID, line.ProductName, line.Quantity, line.UnitPrice.String(), line.Subtotal.String()); err != nil {
			return domain.Sale{}, false, fmt.Errorf("insert sale item: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Sale{}, false, fmt.Errorf("commit sale: %w", err)
	}
	return sale, true, nil
}

func (h *Handler) listSales(w http.ResponseWriter, r *http.Request) {
	sales, err := loadSales(h.db, "", nil, true)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to fetch sales")
		return
	}
	respondJSON(w, http.StatusOK, report.FilterSales(sales, r.URL.Query().Get("search"), h.location))
}

func (h *Handler) findSale(w http.ResponseWriter, r *http.Request) (domain.Sale, bool) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid sale id")
		return domain.Sale{}, false
	}
	sale, err := loadSale(h.db, "id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusNotFound, "sale not found")
		return domain.Sale{}, false
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to fetch sale")
		return domain.Sale{}, false
	}
	return sale, true
}

func (h *Handler) getSale(w http.ResponseWriter, r *http.Request) {
	if sale, ok := h.findSale(w, r); ok {
		respondJSON(w, http.StatusOK, sale)
	}
}

// saleReceipt serves the printable receipt. Cashiers only see their own sales.
func (h *Handler) saleReceipt(w http.ResponseWriter, r *http.Request) {
	sale, ok := h.findSale(w, r)
	if !ok {
		return
	}
	user := identityFrom(r.Context())
	if user.Role == domain.RoleCashier && sale.CashierID != user.ID {
		respondError(w, http.StatusForbidden, "insufficient permissions")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(receipt.Render(sale, h.storeName, h.location))
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	sales, err := loadSales(h.db, "", nil, false)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to fetch sales summary")
		return
	}
	respondJSON(w, http.StatusOK, report.Summarize(sales, h.now().In(h.location)))
}
