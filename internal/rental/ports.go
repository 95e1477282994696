package rental

import (
	"context"
	"errors"
	"time"

	"github.com/bookstore/services/rental/internal/db"
)

// Store-contract errors. Catalog, Directory and Ledger implementations return
// (or wrap) these so the engine can classify failures without seeing driver errors.
var (
	// ErrRecordNotFound means the referenced book, member or rental does not exist.
	ErrRecordNotFound = errors.New("record not found")

	// ErrNoCopyAvailable means a conditional availability update matched no row:
	// decrementing would go below zero, or incrementing would exceed total copies.
	ErrNoCopyAvailable = errors.New("no copy available")

	// ErrStatusChanged means a conditional status update found the rental no longer open.
	ErrStatusChanged = errors.New("rental status changed concurrently")

	// ErrDuplicateRequest means a rental with the same request id already exists.
	ErrDuplicateRequest = errors.New("duplicate request id")

	// ErrContention means the store aborted the work because of lock contention or a
	// serialization conflict. The whole unit of work may be retried.
	ErrContention = errors.New("store contention")
)

// Catalog is the book side of a unit of work.
type Catalog interface {
	GetBook(ctx context.Context, id string) (*db.Book, error)
	// AdjustAvailability adds delta to available_copies, refusing with ErrNoCopyAvailable
	// when the result would leave [0, total_copies].
	AdjustAvailability(ctx context.Context, id string, delta int) error
}

// Directory resolves members. The engine only reads it.
type Directory interface {
	GetMember(ctx context.Context, id string) (*db.Member, error)
}

// Ledger owns rental records.
type Ledger interface {
	InsertRental(ctx context.Context, rental *db.Rental) error
	GetRental(ctx context.Context, id string) (*db.Rental, error)
	FindByRequestID(ctx context.Context, requestID string) (*db.Rental, error)
	// UpdateStatus moves an open rental to status; ErrStatusChanged if it is no longer open.
	UpdateStatus(ctx context.Context, id string, status db.Status, notes string, at time.Time) error
	ListByStatus(ctx context.Context, statuses ...db.Status) ([]*db.Rental, error)
	ListByBook(ctx context.Context, bookID string) ([]*db.Rental, error)
	ListOpenDueBefore(ctx context.Context, before time.Time) ([]*db.Rental, error)
}

// Transactor runs fn with a catalog and a ledger bound to one transaction.
// A non-nil error from fn rolls back everything fn did.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context, catalog Catalog, ledger Ledger) error) error
}

// Notifier is told about committed state changes.
type Notifier interface {
	RentalOpened(ctx context.Context, rental *db.Rental) error
	RentalClosed(ctx context.Context, rental *db.Rental) error
}

// OverdueNotifier is told about each overdue rental found by the sweeper.
type OverdueNotifier interface {
	RentalOverdue(ctx context.Context, rental *db.Rental, daysOverdue int) error
}

// Observer receives operation timings, close outcomes and overdue counts.
type Observer interface {
	ObserveOperation(operation, outcome string, elapsed time.Duration)
	ObserveClosed(outcome string)
	ObserveOverdue(count int)
}
