package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revelly2/smart-store-front/domain"
	"github.com/revelly2/smart-store-front/internal/cart"
)

var (
	laptop = domain.Product{ID: 1, Name: "Laptop", Price: decimal.RequireFromString("1299.99"), Stock: 15, Category: "Electronics"}
	lamp   = domain.Product{ID: 6, Name: "Desk Lamp", Price: decimal.RequireFromString("49.99"), Stock: 12, Category: "Furniture"}
	item   = domain.Product{ID: 9, Name: "Gift Box", Price: decimal.RequireFromString("245.50"), Stock: 3, Category: "Misc"}
)

type staticIdentity struct {
	identity domain.Identity
	ok       bool
}

func (s staticIdentity) Identity() (domain.Identity, bool) { return s.identity, s.ok }

var signedIn = staticIdentity{identity: domain.Identity{ID: 2, Username: "cashier", Role: domain.RoleCashier, Name: "Cashier User"}, ok: true}

type fakeRecorder struct {
	mu    sync.Mutex
	err   error
	reqs  []domain.SaleRequest
	block chan struct{}
}

func (r *fakeRecorder) CreateSale(ctx context.Context, req domain.SaleRequest) (*domain.Sale, error) {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
	if r.err != nil {
		return nil, r.err
	}
	return &domain.Sale{ID: int64(len(r.reqs)), Reference: req.Reference, PaymentMethod: req.PaymentMethod}, nil
}

type fakeReceipts struct {
	err error
	ids []int64
}

func (r *fakeReceipts) Receipt(_ context.Context, id int64) ([]byte, error) {
	r.ids = append(r.ids, id)
	if r.err != nil {
		return nil, r.err
	}
	return []byte("RECEIPT"), nil
}

type fakeBacklog struct {
	reqs     []domain.SaleRequest
	cashiers []int64
}

func (b *fakeBacklog) Defer(cashierID int64, req domain.SaleRequest) {
	b.reqs = append(b.reqs, req)
	b.cashiers = append(b.cashiers, cashierID)
}

func newFlow(t *testing.T, opts ...Option) (*Flow, *cart.Store) {
	t.Helper()
	c := cart.New()
	return New(c, signedIn, opts...), c
}

func TestBeginRejectsEmptyCart(t *testing.T) {
	f, _ := newFlow(t)
	assert.ErrorIs(t, f.Begin(), ErrEmptyCart)
	assert.Equal(t, Idle, f.State())
}

func TestBeginIsSingleton(t *testing.T) {
	f, c := newFlow(t)
	c.Add(laptop, 1)
	require.NoError(t, f.Begin())
	assert.ErrorIs(t, f.Begin(), ErrInProgress)
	assert.Equal(t, SelectingPayment, f.State())
}

func TestCancelHasNoSideEffects(t *testing.T) {
	rec := &fakeRecorder{}
	f, c := newFlow(t, WithRecorder(rec))
	c.Add(laptop, 1)
	require.NoError(t, f.Begin())

	assert.True(t, f.Cancel())
	assert.Equal(t, Idle, f.State())
	assert.Equal(t, int64(1), c.TotalItems())
	assert.Empty(t, rec.reqs)
	assert.False(t, f.Cancel())
}

func TestCancelWhileValidating(t *testing.T) {
	rec := &fakeRecorder{}
	f, c := newFlow(t, WithRecorder(rec))
	c.Add(lamp, 1)
	require.NoError(t, f.Begin())
	require.NoError(t, f.SelectPayment(domain.PaymentCard))
	f.Subscribe(func(s State) {
		if s == Validating {
			assert.True(t, f.Cancel())
		}
	})

	conf, err := f.Submit(context.Background())
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Nil(t, conf)
	assert.Equal(t, Idle, f.State())
	assert.Equal(t, int64(1), c.TotalItems())
	assert.Empty(t, rec.reqs)
	_, ok := f.Last()
	assert.False(t, ok)
}

func TestParseAmount(t *testing.T) {
	got, err := ParseAmount(" 12.50 ")
	require.NoError(t, err)
	assert.Equal(t, "12.5", got.String())

	got, err = ParseAmount("0")
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	for _, raw := range []string{"", "  ", "1O", "-0.01"} {
		_, err := ParseAmount(raw)
		assert.ErrorIs(t, err, ErrInvalidAmount, raw)
	}
}

func TestChangeComputation(t *testing.T) {
	f, c := newFlow(t)
	c.Add(item, 1)
	require.NoError(t, f.Begin())

	ch, err := f.EnterTendered("300.00")
	require.NoError(t, err)
	assert.True(t, ch.Visible)
	assert.Equal(t, "54.50", ch.Amount.StringFixed(2))

	ch, err = f.EnterTendered("200")
	require.NoError(t, err)
	assert.False(t, ch.Visible)
	assert.True(t, ch.Amount.IsZero())

	ch, err = f.EnterTendered("abc")
	require.NoError(t, err)
	assert.False(t, ch.Visible)
	assert.True(t, ch.Amount.IsZero())

	ch, err = f.EnterTendered("245.5")
	require.NoError(t, err)
	assert.True(t, ch.Visible)
	assert.True(t, ch.Amount.IsZero())
}

func TestEnterTenderedOutsidePayment(t *testing.T) {
	f, _ := newFlow(t)
	_, err := f.EnterTendered("10")
	assert.ErrorIs(t, err, ErrNotSelecting)
}

func TestCashRejected(t *testing.T) {
	tests := []struct {
		tendered string
		want     error
	}{
		{"200.00", ErrInsufficientCash},
		{"", ErrInvalidAmount},
		{"abc", ErrInvalidAmount},
		{"-300", ErrInvalidAmount},
	}
	for _, tt := range tests {
		tendered := tt.tendered
		t.Run(tendered, func(t *testing.T) {
			rec := &fakeRecorder{}
			f, c := newFlow(t, WithRecorder(rec))
			c.Add(item, 1)
			require.NoError(t, f.Begin())
			_, err := f.EnterTendered(tendered)
			require.NoError(t, err)

			conf, err := f.Submit(context.Background())
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, conf)
			assert.Equal(t, SelectingPayment, f.State())
			assert.Equal(t, int64(1), c.TotalItems())
			assert.Empty(t, rec.reqs)
		})
	}
}

func TestCashAccepted(t *testing.T) {
	rec := &fakeRecorder{}
	receipts := &fakeReceipts{}
	f, c := newFlow(t, WithRecorder(rec), WithReceipts(receipts))
	c.Add(item, 1)
	require.NoError(t, f.Begin())
	_, err := f.EnterTendered("300.00")
	require.NoError(t, err)

	conf, err := f.Submit(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Confirmed, f.State())
	assert.Zero(t, c.TotalItems())
	assert.Equal(t, "54.50", conf.Change.StringFixed(2))
	assert.Equal(t, "300.00", conf.Tendered.StringFixed(2))
	assert.Equal(t, "245.50", conf.Sale.Total.StringFixed(2))
	assert.Equal(t, domain.PaymentCash, conf.Sale.PaymentMethod)
	assert.Equal(t, int64(2), conf.Sale.CashierID)
	assert.NotEmpty(t, conf.Sale.Reference)
	require.NotNil(t, conf.Recorded)
	assert.NoError(t, conf.RecordErr)
	assert.Equal(t, []byte("RECEIPT"), conf.Receipt)
	assert.Equal(t, []int64{conf.Recorded.ID}, receipts.ids)
	require.Len(t, rec.reqs, 1)
	assert.Equal(t, conf.Sale.Reference, rec.reqs[0].Reference)
}

func TestCardSkipsCashValidation(t *testing.T) {
	f, c := newFlow(t, WithRecorder(&fakeRecorder{}), WithReceipts(&fakeReceipts{}))
	c.Add(laptop, 2)
	c.Add(lamp, 1)
	require.NoError(t, f.Begin())
	require.NoError(t, f.SelectPayment(domain.PaymentCard))

	conf, err := f.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentCard, conf.Sale.PaymentMethod)
	assert.Equal(t, "2649.97", conf.Sale.Total.StringFixed(2))
	assert.True(t, conf.Change.IsZero())
	assert.True(t, conf.Sale.Total.Equal(domain.SumSubtotals(conf.Sale.Items)))
}

func TestSelectPaymentValidates(t *testing.T) {
	f, c := newFlow(t)
	assert.ErrorIs(t, f.SelectPayment(domain.PaymentCard), ErrNotSelecting)
	c.Add(lamp, 1)
	require.NoError(t, f.Begin())
	assert.ErrorIs(t, f.SelectPayment("crypto"), ErrInvalidPayment)
	assert.Equal(t, domain.PaymentCash, f.PaymentMethod())
}

func TestSubmitRequiresIdentity(t *testing.T) {
	c := cart.New()
	f := New(c, staticIdentity{})
	c.Add(lamp, 1)
	require.NoError(t, f.Begin())
	require.NoError(t, f.SelectPayment(domain.PaymentCard))

	_, err := f.Submit(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Equal(t, SelectingPayment, f.State())
}

func TestSubmitWhenCartEmptiedMeanwhile(t *testing.T) {
	f, c := newFlow(t)
	c.Add(lamp, 1)
	require.NoError(t, f.Begin())
	c.Clear()

	_, err := f.Submit(context.Background())
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Equal(t, SelectingPayment, f.State())
}

func TestRecorderFailureStillConfirms(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("connection refused")}
	backlog := &fakeBacklog{}
	receipts := &fakeReceipts{}
	f, c := newFlow(t, WithRecorder(rec), WithReceipts(receipts), WithBacklog(backlog))
	c.Add(lamp, 2)
	require.NoError(t, f.Begin())
	require.NoError(t, f.SelectPayment(domain.PaymentCard))

	conf, err := f.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Confirmed, f.State())
	assert.True(t, c.IsEmpty())
	assert.Error(t, conf.RecordErr)
	assert.ErrorIs(t, conf.ReceiptErr, ErrNotRecorded)
	assert.Nil(t, conf.Recorded)
	require.Len(t, backlog.reqs, 1)
	assert.Equal(t, conf.Sale.Reference, backlog.reqs[0].Reference)
	assert.Equal(t, []int64{signedIn.identity.ID}, backlog.cashiers)
	assert.Empty(t, receipts.ids)
}

func TestReceiptFailureDoesNotRollBack(t *testing.T) {
	rec := &fakeRecorder{}
	f, c := newFlow(t, WithRecorder(rec), WithReceipts(&fakeReceipts{err: errors.New("printer offline")}))
	c.Add(lamp, 1)
	require.NoError(t, f.Begin())
	require.NoError(t, f.SelectPayment(domain.PaymentCard))

	conf, err := f.Submit(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, conf.Recorded)
	assert.Error(t, conf.ReceiptErr)
	assert.Equal(t, Confirmed, f.State())
	assert.True(t, c.IsEmpty())
}

func TestWithoutRecorder(t *testing.T) {
	f, c := newFlow(t)
	c.Add(lamp, 1)
	require.NoError(t, f.Begin())
	require.NoError(t, f.SelectPayment(domain.PaymentCard))

	conf, err := f.Submit(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, conf.RecordErr, ErrRecorderMissing)
}

func TestFinishDiscardsLateResults(t *testing.T) {
	rec := &fakeRecorder{block: make(chan struct{})}
	f, c := newFlow(t, WithRecorder(rec))
	c.Add(lamp, 1)
	require.NoError(t, f.Begin())
	require.NoError(t, f.SelectPayment(domain.PaymentCard))

	done := make(chan *Confirmation)
	go func() {
		conf, err := f.Submit(context.Background())
		assert.NoError(t, err)
		done <- conf
	}()

	require.Eventually(t, func() bool { return f.State() == Confirmed }, time.Second, time.Millisecond)
	f.Finish()
	close(rec.block)
	conf := <-done

	assert.NotNil(t, conf.Recorded)
	assert.Equal(t, Idle, f.State())
	last, ok := f.Last()
	require.True(t, ok)
	assert.Nil(t, last.Recorded, "late recording result must not reach flow state")
}

func TestBeginAfterConfirmedStartsNextSale(t *testing.T) {
	f, c := newFlow(t, WithRecorder(&fakeRecorder{}))
	c.Add(lamp, 1)
	require.NoError(t, f.Begin())
	require.NoError(t, f.SelectPayment(domain.PaymentCard))
	_, err := f.Submit(context.Background())
	require.NoError(t, err)

	assert.ErrorIs(t, f.Begin(), ErrEmptyCart)
	c.Add(laptop, 1)
	require.NoError(t, f.Begin())
	assert.Equal(t, SelectingPayment, f.State())
	assert.Equal(t, domain.PaymentCash, f.PaymentMethod())
}

func TestSubscribersSeeEveryTransition(t *testing.T) {
	f, c := newFlow(t)
	var seen []State
	f.Subscribe(func(s State) { seen = append(seen, s) })

	c.Add(item, 1)
	require.NoError(t, f.Begin())
	_, err := f.EnterTendered("10")
	require.NoError(t, err)
	_, err = f.Submit(context.Background())
	require.Error(t, err)
	_, err = f.EnterTendered("300")
	require.NoError(t, err)
	_, err = f.Submit(context.Background())
	require.NoError(t, err)
	f.Finish()

	assert.Equal(t, []State{SelectingPayment, Validating, SelectingPayment, Validating, Confirmed, Idle}, seen)
}

func TestSubmitUsesClock(t *testing.T) {
	at := time.Date(2025, 5, 19, 10, 12, 45, 0, time.UTC)
	f, c := newFlow(t, WithClock(func() time.Time { return at }))
	c.Add(lamp, 1)
	require.NoError(t, f.Begin())
	require.NoError(t, f.SelectPayment(domain.PaymentCard))

	conf, err := f.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, at, conf.Sale.CreatedAt)
}
