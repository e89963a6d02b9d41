package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/revelly2/smart-store-front/domain"
	"github.com/revelly2/smart-store-front/internal/api"
	"github.com/revelly2/smart-store-front/internal/database"
	"github.com/revelly2/smart-store-front/internal/migrations"
	"github.com/revelly2/smart-store-front/internal/seed"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := database.Connect(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migrations.Run(db))
	_, err = seed.LoadProducts(db, "../../assets/products.csv", zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, seed.EnsureUsers(db, seed.DefaultAccounts("admin123", "cashier123"), zap.NewNop()))

	srv := httptest.NewServer(api.New(db, "client-test", api.WithLocation(time.UTC)).Router())
	t.Cleanup(srv.Close)
	return srv
}

func signedIn(t *testing.T, baseURL, username, password string) *Client {
	t.Helper()
	res, err := New(baseURL).Login(context.Background(), username, password)
	require.NoError(t, err)
	return New(baseURL, WithTokens(staticToken(res.Token)))
}

func TestLogin(t *testing.T) {
	srv := newBackend(t)
	c := New(srv.URL + "/api/")

	res, err := c.Login(context.Background(), "admin", "admin123")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, res.User.Role)
	assert.NotEmpty(t, res.Token)

	_, err = c.Login(context.Background(), "admin", "wrong")
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, StatusOf(err))
	assert.EqualError(t, err, "backend returned 401: invalid credentials")
}

func TestCatalog(t *testing.T) {
	srv := newBackend(t)
	c := New(srv.URL + "/api")
	ctx := context.Background()

	products, err := c.ListProducts(ctx, "", "")
	require.NoError(t, err)
	assert.Len(t, products, 6)

	products, err = c.ListProducts(ctx, "LAP", "Electronics")
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Laptop", products[0].Name)

	categories, err := c.Categories(ctx)
	require.NoError(t, err)
	assert.Equal(t, "All", categories[0])

	p, err := c.GetProduct(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "Smartphone", p.Name)

	_, err = c.GetProduct(ctx, 404)
	assert.Equal(t, http.StatusNotFound, StatusOf(err))
}

func TestProductLifecycle(t *testing.T) {
	srv := newBackend(t)
	ctx := context.Background()
	admin := signedIn(t, srv.URL+"/api", "admin", "admin123")
	cashier := signedIn(t, srv.URL+"/api", "cashier", "cashier123")

	in := ProductInput{Name: "Monitor", Price: decimal.RequireFromString("249.50"), Stock: 4, Category: "Electronics"}
	_, err := cashier.CreateProduct(ctx, in)
	assert.Equal(t, http.StatusForbidden, StatusOf(err))

	created, err := admin.CreateProduct(ctx, in)
	require.NoError(t, err)
	assert.True(t, created.Price.Equal(in.Price))

	in = InputOf(*created)
	in.Stock = 9
	updated, err := admin.UpdateProduct(ctx, created.ID, in)
	require.NoError(t, err)
	assert.Equal(t, int64(9), updated.Stock)

	require.NoError(t, admin.DeleteProduct(ctx, created.ID))
	assert.Equal(t, http.StatusNotFound, StatusOf(admin.DeleteProduct(ctx, created.ID)))
}

func TestSalesRoundTrip(t *testing.T) {
	srv := newBackend(t)
	ctx := context.Background()
	admin := signedIn(t, srv.URL+"/api", "admin", "admin123")
	cashier := signedIn(t, srv.URL+"/api", "cashier", "cashier123")

	req := domain.SaleRequest{
		Reference:     "round-trip",
		PaymentMethod: domain.PaymentCash,
		Items:         []domain.SaleItemRequest{{ProductID: 5, Quantity: 2}},
	}
	sale, err := cashier.CreateSale(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "319.98", sale.Total.StringFixed(2))

	again, err := cashier.CreateSale(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, sale.ID, again.ID)

	receipt, err := cashier.Receipt(ctx, sale.ID)
	require.NoError(t, err)
	assert.Contains(t, string(receipt), "Headphones")

	sales, err := admin.ListSales(ctx, "cashier user")
	require.NoError(t, err)
	require.Len(t, sales, 1)

	got, err := admin.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, "round-trip", got.Reference)

	summary, err := admin.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Today.Count)

	_, err = cashier.ListSales(ctx, "")
	assert.Equal(t, http.StatusForbidden, StatusOf(err))
}

func TestCreateUserAndResetPassword(t *testing.T) {
	srv := newBackend(t)
	ctx := context.Background()
	admin := signedIn(t, srv.URL+"/api", "admin", "admin123")

	user, err := admin.CreateUser(ctx, "jane", "Jane Doe", "pw", domain.RoleCashier)
	require.NoError(t, err)
	assert.Equal(t, "jane", user.Username)

	jane := signedIn(t, srv.URL+"/api", "jane", "pw")
	require.NoError(t, jane.ResetPassword(ctx, "pw2"))
	_, err = New(srv.URL+"/api").Login(ctx, "jane", "pw2")
	assert.NoError(t, err)
}

func TestUnreachableBackend(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url, WithTimeout(time.Second)).ListProducts(context.Background(), "", "")
	require.Error(t, err)
	assert.Zero(t, StatusOf(err))
}

func TestNonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Summary(context.Background())
	assert.Equal(t, http.StatusBadGateway, StatusOf(err))
	assert.EqualError(t, err, "backend returned 502: upstream down")
}
