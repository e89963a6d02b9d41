// Package cart holds the line items of the sale a cashier is building.
//
// Totals are never stored: TotalItems and TotalPrice are derived from the
// current lines on every call.
package cart

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/revelly2/smart-store-front/domain"
)

// Line is one product-quantity pair in the cart. Quantity is always >= 1.
type Line struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`
}

// Subtotal is unit price times quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(l.Quantity))
}

// Listener is notified after every mutation with a snapshot of the lines.
type Listener func(lines []Line)

type Store struct {
	mu        sync.Mutex
	lines     []Line
	listeners map[int]Listener
	nextID    int
}

func New() *Store {
	return &Store{listeners: make(map[int]Listener)}
}

// Add increments the line for product by qty, creating it when absent.
// A qty below one is ignored.
func (s *Store) Add(product domain.Product, qty int64) {
	if qty < 1 {
		return
	}
	s.mutate(func() bool {
		if i := s.indexOf(product.ID); i >= 0 {
			s.lines[i].Quantity += qty
			return true
		}
		s.lines = append(s.lines, Line{
			ProductID: product.ID,
			Name:      product.Name,
			UnitPrice: product.Price,
			Quantity:  qty,
		})
		return true
	})
}

// UpdateQuantity sets the quantity of a line; qty <= 0 removes it.
func (s *Store) UpdateQuantity(productID, qty int64) {
	s.mutate(func() bool {
		i := s.indexOf(productID)
		if i < 0 {
			return false
		}
		if qty <= 0 {
			s.removeAt(i)
			return true
		}
		s.lines[i].Quantity = qty
		return true
	})
}

// Adjust changes a line's quantity by delta, removing it once it reaches zero.
func (s *Store) Adjust(productID, delta int64) {
	s.mutate(func() bool {
		i := s.indexOf(productID)
		if i < 0 || delta == 0 {
			return false
		}
		next := s.lines[i].Quantity + delta
		if next <= 0 {
			s.removeAt(i)
			return true
		}
		s.lines[i].Quantity = next
		return true
	})
}

// Remove deletes the line for productID if present.
func (s *Store) Remove(productID int64) {
	s.mutate(func() bool {
		i := s.indexOf(productID)
		if i < 0 {
			return false
		}
		s.removeAt(i)
		return true
	})
}

func (s *Store) Clear() {
	s.mutate(func() bool {
		if len(s.lines) == 0 {
			return false
		}
		s.lines = nil
		return true
	})
}

// Lines returns a copy of the lines in insertion order.
func (s *Store) Lines() []Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Store) Line(productID int64) (Line, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(productID); i >= 0 {
		return s.lines[i], true
	}
	return Line{}, false
}

func (s *Store) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lines) == 0
}

func (s *Store) TotalItems() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, l := range s.lines {
		n += l.Quantity
	}
	return n
}

func (s *Store) TotalPrice() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Total(s.lines)
}

// Total sums the subtotals of lines.
func Total(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// Subscribe registers fn and returns a function that unregisters it.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) mutate(fn func() bool) {
	s.mu.Lock()
	changed := fn()
	var (
		lines     []Line
		listeners []Listener
	)
	if changed {
		lines = s.snapshot()
		for _, l := range s.listeners {
			listeners = append(listeners, l)
		}
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(lines)
	}
}

func (s *Store) indexOf(productID int64) int {
	for i, l := range s.lines {
		if l.ProductID == productID {
			return i
		}
	}
	return -1
}

func (s *Store) removeAt(i int) {
	s.lines = append(s.lines[:i], s.lines[i+1:]...)
}

func (s *Store) snapshot() []Line {
	out := make([]Line, len(s.lines))
	copy(out, s.lines)
	return out
}
