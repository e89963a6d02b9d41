package seed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LoadProducts ingests the CSV into an empty products table. A catalog that
// already has rows is left alone so admin edits survive restarts.
func LoadProducts(db *sqlx.DB, csvPath string, logger *zap.Logger) (int, error) {
	var existing int
	if err := db.Get(&existing, `SELECT COUNT(*) FROM products`); err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	if existing > 0 {
		return 0, nil
	}

	file, err := os.Open(csvPath)
	if err != nil {
		return 0, fmt.Errorf("open product catalog %s: %w", csvPath, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	// Skip header
	if _, err := reader.Read(); err != nil {
		return 0, fmt.Errorf("read product header: %w", err)
	}

	tx, err := db.Beginx()
	if err != nil {
		return 0, fmt.Errorf("start product transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT INTO products (name, price, stock, category, image_url, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare product insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	rows := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logger.Warn("skipping unreadable product row", zap.Error(err))
			continue
		}
		if len(record) < 4 {
			continue
		}
		name := strings.TrimSpace(record[0])
		price, err := decimal.NewFromString(strings.TrimSpace(record[1]))
		if name == "" || err != nil || price.IsNegative() {
			logger.Warn("skipping invalid product row", zap.Strings("record", record))
			continue
		}
		stock, err := strconv.ParseInt(strings.TrimSpace(record[2]), 10, 64)
		if err != nil || stock < 0 {
			logger.Warn("skipping invalid product stock", zap.String("name", name))
			continue
		}
		var image *string
		if len(record) > 4 && strings.TrimSpace(record[4]) != "" {
			v := strings.TrimSpace(record[4])
			image = &v
		}

		if _, err := stmt.Exec(name, price.String(), stock, strings.TrimSpace(record[3]), image, now, now); err != nil {
			return 0, fmt.Errorf("insert product %s: %w", name, err)
		}
		rows++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit product seed: %w", err)
	}
	logger.Info("seeded product catalog", zap.Int("rows", rows))
	return rows, nil
}
