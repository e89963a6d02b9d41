// Package console composes the admin and cashier consoles: the session, the
// local product list, the cart, the checkout flow and the outbox of sales
// waiting to be recorded, all backed by the store API.
package console

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/revelly2/smart-store-front/domain"
	"github.com/revelly2/smart-store-front/internal/access"
	"github.com/revelly2/smart-store-front/internal/cart"
	"github.com/revelly2/smart-store-front/internal/catalog"
	"github.com/revelly2/smart-store-front/internal/checkout"
	"github.com/revelly2/smart-store-front/internal/client"
	"github.com/revelly2/smart-store-front/internal/outbox"
	"github.com/revelly2/smart-store-front/internal/session"
	"github.com/revelly2/smart-store-front/internal/storage"
)

var (
	ErrUnknownProduct = errors.New("product is not in the catalog")
	ErrOutOfStock     = errors.New("product is out of stock")
	ErrNotSignedIn    = errors.New("not signed in")
	ErrForbidden      = errors.New("not allowed for this role")
)

// RecentSales is how many sales the dashboard lists.
const RecentSales = 5

// Dashboard is the admin landing view.
type Dashboard struct {
	Summary domain.Summary
	Recent  []domain.Sale
}

type Console struct {
	api      *client.Client
	session  *session.Store
	cart     *cart.Store
	checkout *checkout.Flow
	outbox   *outbox.Queue
	logger   *zap.Logger
	interval time.Duration

	mu       sync.Mutex
	products []domain.Product
}

type options struct {
	logger   *zap.Logger
	timeout  time.Duration
	interval time.Duration
}

type Option func(*options)

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithTimeout bounds every backend call made on the user's behalf.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithOutboxInterval sets how often deferred sales are replayed. Zero leaves
// replay to explicit FlushOutbox calls.
func WithOutboxInterval(d time.Duration) Option {
	return func(o *options) {
		o.interval = d
	}
}

// New wires a console around api, persisting local state in st.
func New(api *client.Client, st storage.Storage, opts ...Option) *Console {
	o := options{logger: zap.NewNop(), timeout: 5 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	sess := session.New(api, st,
		session.WithLogger(o.logger.Named("session")),
		session.WithTimeout(o.timeout))
	api.SetTokens(sess)

	c := &Console{
		api:      api,
		session:  sess,
		cart:     cart.New(),
		logger:   o.logger,
		interval: o.interval,
	}
	c.outbox = outbox.New(api,
		outbox.WithIdentity(sess),
		outbox.WithStorage(st),
		outbox.WithLogger(o.logger.Named("outbox")),
		outbox.WithTimeout(o.timeout))
	c.checkout = checkout.New(c.cart, sess,
		checkout.WithRecorder(api),
		checkout.WithReceipts(api),
		checkout.WithBacklog(c.outbox),
		checkout.WithLogger(o.logger.Named("checkout")),
		checkout.WithTimeout(o.timeout))

	sess.OnLogout(func() {
		c.checkout.Cancel()
		c.checkout.Finish()
		c.cart.Clear()
	})
	return c
}

// Start restores the persisted session and pending sales, then begins
// replaying the outbox.
func (c *Console) Start(ctx context.Context) error {
	if err := c.session.Init(ctx); err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if err := c.outbox.Load(ctx); err != nil {
		return err
	}
	if c.interval > 0 {
		return c.outbox.Start(c.interval)
	}
	return nil
}

func (c *Console) Close() {
	c.outbox.Stop()
}

func (c *Console) Session() *session.Store { return c.session }

func (c *Console) Cart() *cart.Store { return c.cart }

func (c *Console) Checkout() *checkout.Flow { return c.checkout }

func (c *Console) Outbox() *outbox.Queue { return c.outbox }

// Login signs in and returns the view to show next: from when the user may
// open it, otherwise the landing view of their role.
func (c *Console) Login(ctx context.Context, username, password, from string) (string, error) {
	identity, err := c.session.Login(ctx, username, password)
	if err != nil {
		return "", err
	}
	return access.LoginReturn(identity, from), nil
}

// Logout signs out, empties the cart and returns the login view.
func (c *Console) Logout(ctx context.Context) string {
	c.session.Logout(ctx)
	c.mu.Lock()
	c.products = nil
	c.mu.Unlock()
	return access.LoginPath
}

// Open gates navigation to path.
func (c *Console) Open(path string) access.Decision {
	return access.Resolve(c.session.State(), path)
}

func (c *Console) require(role domain.Role) error {
	d := access.Decide(c.session.State(), role, "")
	switch {
	case d.Outcome == access.Render:
		return nil
	case d.Outcome == access.Redirect && d.Location != "" && !strings.HasPrefix(d.Location, access.LoginPath):
		return ErrForbidden
	default:
		return ErrNotSignedIn
	}
}

// LoadProducts replaces the local product list with the backend catalog.
func (c *Console) LoadProducts(ctx context.Context) error {
	if err := c.require(""); err != nil {
		return err
	}
	products, err := c.api.ListProducts(ctx, "", "")
	if err != nil {
		return fmt.Errorf("load products: %w", err)
	}
	c.mu.Lock()
	c.products = products
	c.mu.Unlock()
	return nil
}

// Products returns the local product list.
func (c *Console) Products() []domain.Product {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Product, len(c.products))
	copy(out, c.products)
	return out
}

// Browse filters the local product list for the cashier grid.
func (c *Console) Browse(search, category string) []domain.Product {
	return catalog.Filter(c.Products(), search, category)
}

func (c *Console) Categories() []string {
	return catalog.Categories(c.Products())
}

func (c *Console) product(id int64) (domain.Product, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.products {
		if p.ID == id {
			return p, true
		}
	}
	return domain.Product{}, false
}

// AddToCart puts one unit of a product in the cart.
func (c *Console) AddToCart(productID int64) error {
	if err := c.require(domain.RoleCashier); err != nil {
		return err
	}
	p, ok := c.product(productID)
	if !ok {
		return ErrUnknownProduct
	}
	if !p.InStock() {
		return ErrOutOfStock
	}
	c.cart.Add(p, 1)
	return nil
}

// CompleteSale runs checkout for the current cart in one go. Sales that
// cannot be recorded are queued in the outbox.
func (c *Console) CompleteSale(ctx context.Context, method domain.PaymentMethod, tendered string) (*checkout.Confirmation, error) {
	if err := c.require(domain.RoleCashier); err != nil {
		return nil, err
	}
	if err := c.checkout.Begin(); err != nil {
		return nil, err
	}
	if err := c.checkout.SelectPayment(method); err != nil {
		c.checkout.Cancel()
		return nil, err
	}
	if method == domain.PaymentCash {
		if _, err := c.checkout.EnterTendered(tendered); err != nil {
			c.checkout.Cancel()
			return nil, err
		}
	}
	conf, err := c.checkout.Submit(ctx)
	if err != nil {
		c.checkout.Cancel()
		return nil, err
	}
	return conf, nil
}

// FlushOutbox replays the signed-in cashier's deferred sales now. Sales of
// other cashiers stay queued until they sign in again.
func (c *Console) FlushOutbox(ctx context.Context) (int, error) {
	return c.outbox.Flush(ctx)
}

// SaveProduct creates (id 0) or updates a product. The local list changes
// only once the backend has accepted the edit.
func (c *Console) SaveProduct(ctx context.Context, id int64, in client.ProductInput) (domain.Product, error) {
	if err := c.require(domain.RoleAdmin); err != nil {
		return domain.Product{}, err
	}
	draft := domain.Product{Name: in.Name, Price: in.Price, Stock: in.Stock, Category: in.Category}
	if err := draft.Validate(); err != nil {
		return domain.Product{}, err
	}

	var (
		saved *domain.Product
		err   error
	)
	if id == 0 {
		saved, err = c.api.CreateProduct(ctx, in)
	} else {
		saved, err = c.api.UpdateProduct(ctx, id, in)
	}
	if err != nil {
		c.logger.Warn("product not saved", zap.Int64("id", id), zap.Error(err))
		return domain.Product{}, fmt.Errorf("save product: %w", err)
	}

	c.mu.Lock()
	replaced := false
	for i, p := range c.products {
		if p.ID == saved.ID {
			c.products[i] = *saved
			replaced = true
			break
		}
	}
	if !replaced {
		c.products = append(c.products, *saved)
	}
	c.mu.Unlock()
	return *saved, nil
}

// DeleteProduct removes a product, locally only after the backend agrees.
func (c *Console) DeleteProduct(ctx context.Context, id int64) error {
	if err := c.require(domain.RoleAdmin); err != nil {
		return err
	}
	if err := c.api.DeleteProduct(ctx, id); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	c.mu.Lock()
	for i, p := range c.products {
		if p.ID == id {
			c.products = append(c.products[:i], c.products[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	return nil
}

// Sales lists recorded sales matching search, newest first.
func (c *Console) Sales(ctx context.Context, search string) ([]domain.Sale, error) {
	if err := c.require(domain.RoleAdmin); err != nil {
		return nil, err
	}
	return c.api.ListSales(ctx, search)
}

// Receipt fetches the printable receipt of a recorded sale.
func (c *Console) Receipt(ctx context.Context, saleID int64) ([]byte, error) {
	if err := c.require(""); err != nil {
		return nil, err
	}
	return c.api.Receipt(ctx, saleID)
}

func (c *Console) Dashboard(ctx context.Context) (Dashboard, error) {
	if err := c.require(domain.RoleAdmin); err != nil {
		return Dashboard{}, err
	}
	summary, err := c.api.Summary(ctx)
	if err != nil {
		return Dashboard{}, fmt.Errorf("load summary: %w", err)
	}
	sales, err := c.api.ListSales(ctx, "")
	if err != nil {
		return Dashboard{}, fmt.Errorf("load recent sales: %w", err)
	}
	if len(sales) > RecentSales {
		sales = sales[:RecentSales]
	}
	return Dashboard{Summary: *summary, Recent: sales}, nil
}
