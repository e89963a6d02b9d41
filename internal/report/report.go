// Package report derives the admin views of recorded sales: the dashboard
// summary and the searchable sales list.
package report

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/revelly2/smart-store-front/domain"
)

// DateLayout is how sale timestamps are shown and searched.
const DateLayout = "Jan 2, 2006, 03:04 PM"

// Summarize aggregates sales into today, this week (from Monday) and this
// month, all relative to now in now's location.
func Summarize(sales []domain.Sale, now time.Time) domain.Summary {
	today := startOfDay(now)
	weekday := (int(today.Weekday()) + 6) % 7
	week := today.AddDate(0, 0, -weekday)
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	summary := domain.Summary{
		Today: domain.Period{Total: decimal.Zero},
		Week:  domain.Period{Total: decimal.Zero},
		Month: domain.Period{Total: decimal.Zero},
	}
	for _, s := range sales {
		at := s.CreatedAt.In(now.Location())
		if at.After(now) {
			continue
		}
		if !at.Before(today) {
			add(&summary.Today, s)
		}
		if !at.Before(week) {
			add(&summary.Week, s)
		}
		if !at.Before(month) {
			add(&summary.Month, s)
		}
	}
	return summary
}

func add(p *domain.Period, s domain.Sale) {
	p.Count++
	p.Total = p.Total.Add(s.Total)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// FilterSales keeps sales whose cashier name, id or displayed date contains
// term, case-insensitively. An empty term keeps everything.
func FilterSales(sales []domain.Sale, term string, loc *time.Location) []domain.Sale {
	needle := strings.ToLower(strings.TrimSpace(term))
	if loc == nil {
		loc = time.Local
	}
	out := make([]domain.Sale, 0, len(sales))
	for _, s := range sales {
		if needle == "" || matches(s, needle, loc) {
			out = append(out, s)
		}
	}
	return out
}

func matches(s domain.Sale, needle string, loc *time.Location) bool {
	return strings.Contains(strings.ToLower(s.CashierName), needle) ||
		strings.Contains(strconv.FormatInt(s.ID, 10), needle) ||
		strings.Contains(strings.ToLower(FormatDate(s.CreatedAt, loc)), needle)
}

func FormatDate(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DateLayout)
}

// FormatCurrency renders an amount in US dollars with thousands separators,
// e.g. $1,299.99 or -$5.00.
func FormatCurrency(amount decimal.Decimal) string {
	sign := ""
	if amount.IsNegative() {
		sign = "-"
		amount = amount.Neg()
	}
	fixed := amount.StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + "$" + b.String() + "." + frac
}
