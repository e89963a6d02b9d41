// Package checkout turns the cashier's cart into a confirmed sale.
//
// A Flow moves Idle -> SelectingPayment -> Validating -> Confirmed. Only one
// checkout runs per session; a new sale starts from Idle (or directly from
// Confirmed). Recording the sale and fetching its receipt happen after
// confirmation and cannot undo it.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/revelly2/smart-store-front/domain"
	"github.com/revelly2/smart-store-front/internal/cart"
)

type State int

const (
	Idle State = iota
	SelectingPayment
	Validating
	Confirmed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case SelectingPayment:
		return "selecting_payment"
	case Validating:
		return "validating"
	case Confirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

var (
	ErrEmptyCart          = errors.New("cart is empty")
	ErrInProgress         = errors.New("a checkout is already in progress")
	ErrNotSelecting       = errors.New("checkout is not awaiting payment")
	ErrInvalidPayment     = errors.New("unknown payment method")
	ErrInsufficientCash   = errors.New("cash amount must be greater than or equal to the total")
	ErrInvalidAmount      = errors.New("cash amount must be a non-negative number")
	ErrCancelled          = errors.New("checkout was cancelled")
	ErrNotAuthenticated   = errors.New("no cashier is signed in")
	ErrNotRecorded        = errors.New("sale was not recorded; receipt unavailable")
	ErrRecorderMissing    = errors.New("no sales service configured")
	ErrReceiptUnavailable = errors.New("no receipt service configured")
)

// IdentitySource yields the signed-in cashier.
type IdentitySource interface {
	Identity() (domain.Identity, bool)
}

// Recorder persists a confirmed sale with the sales service.
type Recorder interface {
	CreateSale(ctx context.Context, req domain.SaleRequest) (*domain.Sale, error)
}

// ReceiptSource produces the printable receipt of a recorded sale.
type ReceiptSource interface {
	Receipt(ctx context.Context, saleID int64) ([]byte, error)
}

// Backlog keeps sale requests the Recorder could not accept, for a later retry
// on behalf of the cashier who confirmed them.
type Backlog interface {
	Defer(cashierID int64, req domain.SaleRequest)
}

// Change is what the tendered-amount field shows. Visible is false until the
// tendered amount covers the total.
type Change struct {
	Amount  decimal.Decimal
	Visible bool
}

// Confirmation describes a confirmed sale and what happened to its side effects.
type Confirmation struct {
	Sale       domain.Sale
	Tendered   decimal.Decimal
	Change     decimal.Decimal
	Recorded   *domain.Sale
	RecordErr  error
	Receipt    []byte
	ReceiptErr error
}

type Listener func(State)

type Flow struct {
	cart     *cart.Store
	identity IdentitySource
	recorder Recorder
	receipts ReceiptSource
	backlog  Backlog
	logger   *zap.Logger
	timeout  time.Duration
	now      func() time.Time
	newRef   func() string

	mu        sync.Mutex
	state     State
	method    domain.PaymentMethod
	tendered  string
	gen       uint64
	last      *Confirmation
	listeners map[int]Listener
	nextID    int
}

type Option func(*Flow)

func WithRecorder(r Recorder) Option {
	return func(f *Flow) {
		f.recorder = r
	}
}

func WithReceipts(r ReceiptSource) Option {
	return func(f *Flow) {
		f.receipts = r
	}
}

func WithBacklog(b Backlog) Option {
	return func(f *Flow) {
		f.backlog = b
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(f *Flow) {
		f.logger = logger
	}
}

// WithTimeout bounds each collaborator call made after confirmation.
func WithTimeout(d time.Duration) Option {
	return func(f *Flow) {
		f.timeout = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(f *Flow) {
		f.now = now
	}
}

func New(c *cart.Store, identity IdentitySource, opts ...Option) *Flow {
	f := &Flow{
		cart:      c,
		identity:  identity,
		logger:    zap.NewNop(),
		timeout:   5 * time.Second,
		now:       time.Now,
		newRef:    func() string { return uuid.NewString() },
		method:    domain.PaymentCash,
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Begin opens the payment step. It fails on an empty cart or while another
// checkout is open.
func (f *Flow) Begin() error {
	f.mu.Lock()
	switch f.state {
	case SelectingPayment, Validating:
		f.mu.Unlock()
		return ErrInProgress
	}
	if f.cart.IsEmpty() {
		f.mu.Unlock()
		return ErrEmptyCart
	}
	if f.state == Confirmed {
		f.gen++
	}
	f.method = domain.PaymentCash
	f.tendered = ""
	f.state = SelectingPayment
	f.mu.Unlock()

	f.publish(SelectingPayment)
	return nil
}

func (f *Flow) SelectPayment(method domain.PaymentMethod) error {
	if !method.Valid() {
		return ErrInvalidPayment
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != SelectingPayment {
		return ErrNotSelecting
	}
	f.method = method
	return nil
}

// EnterTendered records the raw tendered-amount input and returns the change
// to display for it.
func (f *Flow) EnterTendered(raw string) (Change, error) {
	f.mu.Lock()
	if f.state != SelectingPayment {
		f.mu.Unlock()
		return Change{}, ErrNotSelecting
	}
	f.tendered = raw
	f.mu.Unlock()
	return f.Change(), nil
}

// Change recomputes max(0, tendered - total) against the live cart total.
func (f *Flow) Change() Change {
	f.mu.Lock()
	raw := f.tendered
	f.mu.Unlock()
	return computeChange(raw, f.cart.TotalPrice())
}

func computeChange(raw string, total decimal.Decimal) Change {
	tendered, err := ParseAmount(raw)
	if err != nil {
		return Change{Amount: decimal.Zero}
	}
	diff := tendered.Sub(total)
	if diff.IsNegative() {
		return Change{Amount: decimal.Zero}
	}
	return Change{Amount: diff, Visible: true}
}

// ParseAmount reads a tendered amount typed by the cashier. Empty, non-numeric
// and negative input fail with ErrInvalidAmount.
func ParseAmount(raw string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return decimal.Zero, fmt.Errorf("%w: amount is empty", ErrInvalidAmount)
	}
	amount, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, trimmed)
	}
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidAmount, trimmed)
	}
	return amount, nil
}

// Cancel abandons the payment step without side effects. During Validating it
// also invalidates the running Submit, which then fails with ErrCancelled. It
// reports whether there was anything to cancel.
func (f *Flow) Cancel() bool {
	f.mu.Lock()
	if f.state != SelectingPayment && f.state != Validating {
		f.mu.Unlock()
		return false
	}
	f.state = Idle
	f.gen++
	f.mu.Unlock()

	f.publish(Idle)
	return true
}

// Finish leaves a confirmed sale and returns to Idle. Collaborator results
// still in flight for that sale are discarded.
func (f *Flow) Finish() {
	f.mu.Lock()
	if f.state != Confirmed {
		f.mu.Unlock()
		return
	}
	f.state = Idle
	f.gen++
	f.mu.Unlock()

	f.publish(Idle)
}

// Submit validates the payment and confirms the sale. Validation failures keep
// the flow awaiting payment and leave the cart untouched. After confirmation
// the cart is cleared, the sale is handed to the Recorder (deferred to the
// Backlog on failure) and its receipt is requested; neither outcome reverts
// the confirmation.
func (f *Flow) Submit(ctx context.Context) (*Confirmation, error) {
	f.mu.Lock()
	if f.state != SelectingPayment {
		f.mu.Unlock()
		return nil, ErrNotSelecting
	}
	f.state = Validating
	gen := f.gen
	f.mu.Unlock()
	f.publish(Validating)

	f.mu.Lock()
	if f.gen != gen || f.state != Validating {
		f.mu.Unlock()
		f.logger.Info("checkout cancelled while validating")
		return nil, ErrCancelled
	}
	conf, err := f.validateLocked()
	if err != nil {
		f.state = SelectingPayment
		f.mu.Unlock()
		f.logger.Info("checkout rejected", zap.Error(err))
		f.publish(SelectingPayment)
		return nil, err
	}
	f.state = Confirmed
	f.last = conf
	f.mu.Unlock()

	f.cart.Clear()
	f.logger.Info("sale confirmed",
		zap.String("reference", conf.Sale.Reference),
		zap.String("payment_method", string(conf.Sale.PaymentMethod)),
		zap.String("total", conf.Sale.Total.StringFixed(2)),
		zap.Int("lines", len(conf.Sale.Items)))
	f.publish(Confirmed)

	final := f.settle(ctx, *conf)

	f.mu.Lock()
	if f.gen == gen {
		f.last = &final
	}
	f.mu.Unlock()
	return &final, nil
}

func (f *Flow) validateLocked() (*Confirmation, error) {
	lines := f.cart.Lines()
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}
	identity, ok := f.identity.Identity()
	if !ok {
		return nil, ErrNotAuthenticated
	}
	total := cart.Total(lines)

	conf := &Confirmation{Tendered: decimal.Zero, Change: decimal.Zero}
	if f.method == domain.PaymentCash {
		tendered, err := ParseAmount(f.tendered)
		if err != nil {
			return nil, err
		}
		if tendered.LessThan(total) {
			return nil, ErrInsufficientCash
		}
		conf.Tendered = tendered
		conf.Change = tendered.Sub(total)
	}

	saleLines := make([]domain.SaleLine, len(lines))
	for i, l := range lines {
		saleLines[i] = domain.NewSaleLine(l.ProductID, l.Name, l.Quantity, l.UnitPrice)
	}
	conf.Sale = domain.NewSale(f.newRef(), identity, f.method, saleLines, f.now())
	return conf, nil
}

// settle runs the post-confirmation side effects. Each failure is recorded on
// the returned confirmation and never propagates.
func (f *Flow) settle(ctx context.Context, conf Confirmation) Confirmation {
	if f.recorder == nil {
		conf.RecordErr = ErrRecorderMissing
		conf.ReceiptErr = ErrNotRecorded
		return conf
	}

	req := conf.Sale.Request()
	recordCtx, cancel := context.WithTimeout(ctx, f.timeout)
	recorded, err := f.recorder.CreateSale(recordCtx, req)
	cancel()
	if err != nil {
		conf.RecordErr = fmt.Errorf("record sale: %w", err)
		conf.ReceiptErr = ErrNotRecorded
		f.logger.Warn("sale not recorded, deferring",
			zap.String("reference", req.Reference),
			zap.Error(err))
		if f.backlog != nil {
			f.backlog.Defer(conf.Sale.CashierID, req)
		}
		return conf
	}
	conf.Recorded = recorded

	if f.receipts == nil {
		conf.ReceiptErr = ErrReceiptUnavailable
		return conf
	}
	receiptCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	receipt, err := f.receipts.Receipt(receiptCtx, recorded.ID)
	if err != nil {
		conf.ReceiptErr = fmt.Errorf("fetch receipt: %w", err)
		f.logger.Warn("receipt unavailable", zap.Int64("sale_id", recorded.ID), zap.Error(err))
		return conf
	}
	conf.Receipt = receipt
	return conf
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// PaymentMethod is the method currently selected.
func (f *Flow) PaymentMethod() domain.PaymentMethod {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.method
}

// Last returns the most recent confirmation, if any.
func (f *Flow) Last() (Confirmation, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.last == nil {
		return Confirmation{}, false
	}
	return *f.last, true
}

func (f *Flow) Subscribe(fn Listener) func() {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.listeners, id)
		f.mu.Unlock()
	}
}

func (f *Flow) publish(st State) {
	f.mu.Lock()
	listeners := make([]Listener, 0, len(f.listeners))
	for _, l := range f.listeners {
		listeners = append(listeners, l)
	}
	f.mu.Unlock()
	for _, l := range listeners {
		l(st)
	}
}
