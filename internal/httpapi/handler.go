// Package httpapi serves the rental service's JSON API.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/bookstore/services/rental/internal/analytics"
	"github.com/bookstore/services/rental/internal/db"
	"github.com/bookstore/services/rental/internal/rental"
	"github.com/bookstore/services/rental/internal/repo"
	"go.uber.org/zap"
)

// Engine opens, closes and reports on rentals.
type Engine interface {
	OpenRental(ctx context.Context, req rental.OpenRequest) (*db.Rental, error)
	CloseRental(ctx context.Context, req rental.CloseRequest) (*db.Rental, error)
	ComputeOverdue(ctx context.Context, asOf time.Time) ([]rental.Overdue, error)
}

// Catalog manages books.
type Catalog interface {
	CreateBook(ctx context.Context, book *db.Book) error
	GetBook(ctx context.Context, id string) (*db.Book, error)
	UpdateBook(ctx context.Context, book *db.Book, updateMask []string) ([]string, error)
	ListBooks(ctx context.Context, filter repo.BookFilter) ([]*db.Book, int64, error)
}

// Directory manages members.
type Directory interface {
	CreateMember(ctx context.Context, in repo.NewMember) (*db.Member, error)
	GetMember(ctx context.Context, id string) (*db.Member, error)
	Authenticate(ctx context.Context, email, password string) (*db.Member, error)
}

// Ledger reads rental records.
type Ledger interface {
	GetRental(ctx context.Context, id string) (*db.Rental, error)
	ListRentals(ctx context.Context, filter repo.RentalFilter) ([]*db.Rental, error)
}

// Analytics serves reports.
type Analytics interface {
	Dashboard(ctx context.Context, asOf time.Time) (*analytics.Dashboard, error)
	CheckInventory(ctx context.Context) ([]analytics.Drift, error)
}

// Prober checks the service's dependencies.
type Prober interface {
	Probe() error
}

// Deps are the handler's collaborators. Metrics may be nil.
type Deps struct {
	Engine    Engine
	Catalog   Catalog
	Directory Directory
	Ledger    Ledger
	Analytics Analytics
	Health    Prober
	Metrics   http.Handler
}

// Handler serves the HTTP API.
type Handler struct {
	Deps
	loanPeriod time.Duration
	now        func() time.Time
	log        *zap.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithClock overrides time.Now for default dates.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// NewHandler creates the API handler. loanPeriod is the default rental length.
func NewHandler(deps Deps, loanPeriod time.Duration, log *zap.Logger, opts ...Option) *Handler {
	h := &Handler{
		Deps:       deps,
		loanPeriod: loanPeriod,
		now:        time.Now,
		log:        log,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the API mux wrapped in correlation and request logging middleware.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/rentals", h.handleOpenRental)
	mux.HandleFunc("GET /v1/rentals", h.handleListRentals)
	mux.HandleFunc("GET /v1/rentals/overdue", h.handleOverdue)
	mux.HandleFunc("GET /v1/rentals/{id}", h.handleGetRental)
	mux.HandleFunc("POST /v1/rentals/{id}/close", h.handleCloseRental)

	mux.HandleFunc("POST /v1/books", h.handleCreateBook)
	mux.HandleFunc("GET /v1/books", h.handleListBooks)
	mux.HandleFunc("GET /v1/books/{id}", h.handleGetBook)
	mux.HandleFunc("PATCH /v1/books/{id}", h.handleUpdateBook)

	mux.HandleFunc("POST /v1/members", h.handleCreateMember)
	mux.HandleFunc("GET /v1/members/{id}", h.handleGetMember)
	mux.HandleFunc("POST /v1/auth/login", h.handleLogin)

	mux.HandleFunc("GET /v1/analytics/summary", h.handleSummary)
	mux.HandleFunc("GET /v1/analytics/inventory", h.handleInventory)

	mux.HandleFunc("GET /healthz", h.handleHealth)
	if h.Metrics != nil {
		mux.Handle("GET /metrics", h.Metrics)
	}

	return h.withCorrelation(h.withLogging(mux))
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.Health.Probe(); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("unhealthy: " + err.Error()))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("healthy"))
}

// asOf reads the as_of query parameter, defaulting to today.
func (h *Handler) asOf(r *http.Request) (time.Time, error) {
	day, err := parseDate(r.URL.Query().Get("as_of"))
	if err != nil {
		return time.Time{}, err
	}
	if day.IsZero() {
		day = h.now()
	}
	return day, nil
}
