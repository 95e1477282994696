package rental

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bookstore/services/rental/internal/db"
	"go.uber.org/zap"
)

const notifyTimeout = 10 * time.Second

// Engine orchestrates opening and closing rentals.
type Engine struct {
	tx        Transactor
	directory Directory
	ledger    Ledger
	policy    Policy
	notifier  Notifier
	observer  Observer
	log       *zap.Logger
	now       func() time.Time
	retry     retryConfig

	inflight sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithPolicy replaces the default borrowing policy (students only).
func WithPolicy(p Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithNotifier publishes committed changes.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithObserver records operation metrics.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithClock overrides time.Now, used for default close timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRetry sets how many times a unit of work aborted by contention is attempted
// and the base backoff between attempts.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(e *Engine) {
		if maxAttempts > 0 {
			e.retry.maxAttempts = maxAttempts
		}
		if baseDelay >= 0 {
			e.retry.baseDelay = baseDelay
		}
	}
}

// NewEngine creates a rental engine. directory and ledger serve reads outside a unit of work.
func NewEngine(tx Transactor, directory Directory, ledger Ledger, log *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		tx:        tx,
		directory: directory,
		ledger:    ledger,
		policy:    NewRolePolicy(db.RoleStudent),
		log:       log,
		now:       time.Now,
		retry:     defaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OpenRequest describes a new rental.
type OpenRequest struct {
	BookID   string
	MemberID string
	OpenedAt time.Time
	DueAt    time.Time
	// Status must be non-terminal; the zero value means Active.
	Status db.Status
	// RequestID is optional. Replaying a request id returns the rental it created.
	RequestID string
}

// OpenRental takes one copy of the book off the shelf and records the loan.
// Both steps commit together or not at all.
func (e *Engine) OpenRental(ctx context.Context, req OpenRequest) (*db.Rental, error) {
	start := time.Now()
	rental, err := e.openRental(ctx, req)
	e.observe("open", start, err)
	return rental, err
}

func (e *Engine) openRental(ctx context.Context, req OpenRequest) (*db.Rental, error) {
	status := req.Status
	if status == db.StatusUnknown {
		status = db.StatusActive
	}
	if !status.IsOpen() {
		return nil, newError(KindInvalidStatus, "status", status.String(), nil)
	}

	openedAt, dueAt := civilDate(req.OpenedAt), civilDate(req.DueAt)
	if !dueAt.After(openedAt) {
		return nil, newError(KindInvalidPeriod, "book", req.BookID, nil)
	}

	member, err := e.directory.GetMember(ctx, req.MemberID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, newError(KindNotFound, "member", req.MemberID, err)
		}
		return nil, e.persistenceFailure("open", "member", req.MemberID, err)
	}
	if !e.policy.CanBorrow(member) {
		return nil, newError(KindNotEligible, "member", req.MemberID, nil)
	}

	var requestID *string
	if req.RequestID != "" {
		requestID = &req.RequestID
	}

	var created, replayed *db.Rental
	err = e.retry.withRetry(ctx, func(ctx context.Context) error {
		created, replayed = nil, nil
		return e.tx.InTx(ctx, func(ctx context.Context, catalog Catalog, ledger Ledger) error {
			if requestID != nil {
				existing, err := ledger.FindByRequestID(ctx, *requestID)
				if err == nil {
					replayed = existing
					return nil
				}
				if !errors.Is(err, ErrRecordNotFound) {
					return err
				}
			}

			if _, err := catalog.GetBook(ctx, req.BookID); err != nil {
				if errors.Is(err, ErrRecordNotFound) {
					return newError(KindNotFound, "book", req.BookID, err)
				}
				return err
			}

			if err := catalog.AdjustAvailability(ctx, req.BookID, -1); err != nil {
				switch {
				case errors.Is(err, ErrNoCopyAvailable):
					return newError(KindOutOfStock, "book", req.BookID, err)
				case errors.Is(err, ErrRecordNotFound):
					return newError(KindNotFound, "book", req.BookID, err)
				}
				return err
			}

			rental := &db.Rental{
				BookID:    req.BookID,
				MemberID:  req.MemberID,
				OpenedAt:  openedAt,
				DueAt:     dueAt,
				Status:    status,
				RequestID: requestID,
			}
			if err := ledger.InsertRental(ctx, rental); err != nil {
				return err
			}
			created = rental
			return nil
		})
	})

	if errors.Is(err, ErrDuplicateRequest) && requestID != nil {
		// Lost a race with the same request; the winner's rental is the answer.
		existing, lookupErr := e.ledger.FindByRequestID(ctx, *requestID)
		if lookupErr == nil {
			replayed, err = existing, nil
		}
	}
	if err != nil {
		return nil, e.fail("open", "book", req.BookID, err)
	}

	if replayed != nil {
		e.log.Info("Rental request replayed",
			zap.String("request_id", req.RequestID),
			zap.String("rental_id", replayed.ID),
		)
		return replayed, nil
	}

	e.log.Info("Rental opened",
		zap.String("rental_id", created.ID),
		zap.String("book_id", created.BookID),
		zap.String("member_id", created.MemberID),
		zap.String("status", created.Status.String()),
		zap.Time("due_at", created.DueAt),
	)
	if e.notifier != nil {
		e.notify("rental opened", created, e.notifier.RentalOpened)
	}
	return created, nil
}

// CloseRequest ends a rental.
type CloseRequest struct {
	RentalID string
	// Outcome is Returned or Cancelled.
	Outcome         db.Status
	InspectionNotes string
	// ClosedAt defaults to now.
	ClosedAt time.Time
}

// CloseRental marks an open rental Returned or Cancelled and puts its copy back.
// Closing an already closed rental fails with ErrAlreadyTerminal and changes nothing.
func (e *Engine) CloseRental(ctx context.Context, req CloseRequest) (*db.Rental, error) {
	start := time.Now()
	rental, err := e.closeRental(ctx, req)
	e.observe("close", start, err)
	return rental, err
}

func (e *Engine) closeRental(ctx context.Context, req CloseRequest) (*db.Rental, error) {
	if !req.Outcome.IsTerminal() {
		return nil, newError(KindInvalidStatus, "status", req.Outcome.String(), nil)
	}

	closedAt := req.ClosedAt
	if closedAt.IsZero() {
		closedAt = e.now()
	}
	closedAt = closedAt.UTC()

	var closed *db.Rental
	err := e.retry.withRetry(ctx, func(ctx context.Context) error {
		closed = nil
		return e.tx.InTx(ctx, func(ctx context.Context, catalog Catalog, ledger Ledger) error {
			rental, err := ledger.GetRental(ctx, req.RentalID)
			if err != nil {
				if errors.Is(err, ErrRecordNotFound) {
					return newError(KindNotFound, "rental", req.RentalID, err)
				}
				return err
			}
			if rental.Status.IsTerminal() {
				return newError(KindAlreadyTerminal, "rental", req.RentalID, nil)
			}

			if err := ledger.UpdateStatus(ctx, rental.ID, req.Outcome, req.InspectionNotes, closedAt); err != nil {
				if errors.Is(err, ErrStatusChanged) {
					return newError(KindAlreadyTerminal, "rental", req.RentalID, err)
				}
				return err
			}

			if err := catalog.AdjustAvailability(ctx, rental.BookID, +1); err != nil {
				if errors.Is(err, ErrNoCopyAvailable) || errors.Is(err, ErrRecordNotFound) {
					e.log.Error("Copy counter out of step with ledger",
						zap.String("rental_id", rental.ID),
						zap.String("book_id", rental.BookID),
						zap.Error(err),
					)
				}
				return err
			}

			rental.Status = req.Outcome
			rental.InspectionNotes = req.InspectionNotes
			rental.ClosedAt = &closedAt
			closed = rental
			return nil
		})
	})
	if err != nil {
		return nil, e.fail("close", "rental", req.RentalID, err)
	}

	e.log.Info("Rental closed",
		zap.String("rental_id", closed.ID),
		zap.String("book_id", closed.BookID),
		zap.String("outcome", closed.Status.String()),
	)
	if e.observer != nil {
		e.observer.ObserveClosed(closed.Status.String())
	}
	if e.notifier != nil {
		e.notify("rental closed", closed, e.notifier.RentalClosed)
	}
	return closed, nil
}

// fail turns any error escaping a unit of work into an *Error.
func (e *Engine) fail(op, entity, ref string, err error) error {
	var engineErr *Error
	if errors.As(err, &engineErr) {
		return engineErr
	}
	return e.persistenceFailure(op, entity, ref, err)
}

func (e *Engine) persistenceFailure(op, entity, ref string, err error) *Error {
	failure := newError(KindPersistenceFailure, entity, ref, err)
	failure.Temporary = errors.Is(err, ErrContention)

	e.log.Error("Rental operation aborted",
		zap.String("operation", op),
		zap.String(entity+"_id", ref),
		zap.Bool("temporary", failure.Temporary),
		zap.Error(err),
	)
	return failure
}

func (e *Engine) observe(op string, start time.Time, err error) {
	if e.observer == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = KindOf(err).String()
	}
	e.observer.ObserveOperation(op, outcome, time.Since(start))
}

// notify runs the notifier in the background; a failed publish never undoes a commit.
func (e *Engine) notify(what string, rental *db.Rental, send func(context.Context, *db.Rental) error) {
	snapshot := *rental

	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		if err := send(ctx, &snapshot); err != nil {
			e.log.Error("Failed to publish event",
				zap.String("event", what),
				zap.String("rental_id", snapshot.ID),
				zap.Error(err),
			)
		}
	}()
}

// Drain waits until every background notification has finished, or ctx ends.
// Call it on shutdown before closing the notifier.
func (e *Engine) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// civilDate drops the time of day; rentals are dated, not timed. The day is the
// one on the caller's calendar, taken in t's own location.
func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
