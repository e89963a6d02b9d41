package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/revelly2/smart-store-front/domain"
	"github.com/revelly2/smart-store-front/internal/access"
	"github.com/revelly2/smart-store-front/internal/metrics"
	"github.com/revelly2/smart-store-front/internal/session"
)

type ctxKey string

const ctxIdentity ctxKey = "identity"

// Handler bundles dependencies for HTTP handlers.
type Handler struct {
	db        *sqlx.DB
	secret    string
	logger    *zap.Logger
	metrics   *metrics.Metrics
	storeName string
	location  *time.Location
	now       func() time.Time
}

type Option func(*Handler)

func WithLogger(logger *zap.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

// WithStoreName sets the header printed on receipts.
func WithStoreName(name string) Option {
	return func(h *Handler) {
		h.storeName = name
	}
}

// WithLocation sets the time zone used for receipts, searches and reports.
func WithLocation(loc *time.Location) Option {
	return func(h *Handler) {
		h.location = loc
	}
}

func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		h.now = now
	}
}

// New constructs a Handler.
func New(db *sqlx.DB, secret string, opts ...Option) *Handler {
	h := &Handler{
		db:        db,
		secret:    secret,
		logger:    zap.NewNop(),
		storeName: "Smart Store",
		location:  time.Local,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Router wires up the HTTP API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	if h.metrics != nil {
		r.Use(h.metrics.Middleware)
	}
	r.Use(middleware.RequestID)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	r.Get("/health", h.health)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", h.login)
			r.With(h.requireRole("")).Post("/reset-password", h.resetPassword)
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.listProducts)
			r.Get("/categories", h.listCategories)
			r.Get("/{id}", h.getProduct)
			r.Group(func(admin chi.Router) {
				admin.Use(h.requireRole(domain.RoleAdmin))
				admin.Post("/", h.createProduct)
				admin.Put("/{id}", h.updateProduct)
				admin.Delete("/{id}", h.deleteProduct)
			})
		})

		r.With(h.requireRole(domain.RoleAdmin)).Post("/users", h.createUser)

		r.Route("/sales", func(r chi.Router) {
			r.With(h.requireRole(domain.RoleCashier)).Post("/", h.createSale)
			r.With(h.requireRole("")).Get("/{id}/receipt", h.saleReceipt)
			r.Group(func(admin chi.Router) {
				admin.Use(h.requireRole(domain.RoleAdmin))
				admin.Get("/", h.listSales)
				admin.Get("/{id}", h.getSale)
			})
		})

		r.With(h.requireRole(domain.RoleAdmin)).Get("/reports/summary", h.summary)
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// Authentication helpers

type authClaims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

func (h *Handler) generateToken(user domain.Identity) (string, error) {
	now := h.now()
	claims := authClaims{
		UserID:   user.ID,
		Username: user.Username,
		Name:     user.Name,
		Role:     string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.secret))
}

func (h *Handler) identityFromRequest(r *http.Request) (*domain.Identity, error) {
	header := r.Header.Get("Authorization")
	if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return nil, errors.New("missing bearer token")
	}
	tokenString := strings.TrimSpace(header[len("Bearer "):])
	token, err := jwt.ParseWithClaims(tokenString, &authClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(h.secret), nil
	}, jwt.WithTimeFunc(h.now))
	if err != nil || !token.Valid {
		return nil, errors.New("invalid token")
	}
	claims, ok := token.Claims.(*authClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}
	identity := domain.Identity{
		ID:       claims.UserID,
		Username: claims.Username,
		Role:     domain.Role(claims.Role),
		Name:     claims.Name,
	}
	if !identity.Valid() {
		return nil, errors.New("invalid token claims")
	}
	return &identity, nil
}

// requireRole gates a route with the same rules the consoles apply to views:
// no identity is 401, the wrong role is 403. An empty role admits any user.
func (h *Handler) requireRole(role domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, authErr := h.identityFromRequest(r)
			decision := access.Decide(session.State{Identity: identity}, role, r.URL.Path)
			switch {
			case decision.Outcome == access.Render:
				ctx := context.WithValue(r.Context(), ctxIdentity, *identity)
				next.ServeHTTP(w, r.WithContext(ctx))
			case decision.ToLogin():
				respondError(w, http.StatusUnauthorized, authErr.Error())
			default:
				respondError(w, http.StatusForbidden, "insufficient permissions")
			}
		})
	}
}

func identityFrom(ctx context.Context) domain.Identity {
	identity, _ := ctx.Value(ctxIdentity).(domain.Identity)
	return identity
}

// Helpers

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func nullIfEmpty(val *string) *string {
	if val == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*val)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func decodeJSON(r *http.Request, dest interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
