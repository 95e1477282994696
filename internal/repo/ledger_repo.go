package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bookstore/services/rental/internal/db"
	"github.com/bookstore/services/rental/internal/rental"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrRentalNotFound is returned when a rental is not found
var ErrRentalNotFound = fmt.Errorf("rental %w", rental.ErrRecordNotFound)

// LedgerRepository stores rental records
type LedgerRepository struct {
	db  *db.DB
	log *zap.Logger
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(database *db.DB, logger *zap.Logger) *LedgerRepository {
	return &LedgerRepository{
		db:  database,
		log: logger,
	}
}

// InsertRental implements rental.Ledger.
func (r *LedgerRepository) InsertRental(ctx context.Context, record *db.Rental) error {
	err := r.db.WithContext(ctx).Omit(clause.Associations).Create(record).Error
	if err == nil {
		return nil
	}

	switch {
	case isUniqueViolation(err):
		return rental.ErrDuplicateRequest
	case isForeignKeyViolation(err):
		return fmt.Errorf("rental references: %w", rental.ErrRecordNotFound)
	}
	r.log.Error("Failed to insert rental",
		zap.String("book_id", record.BookID),
		zap.String("member_id", record.MemberID),
		zap.Error(err),
	)
	return classify(err)
}

// GetRental implements rental.Ledger.
func (r *LedgerRepository) GetRental(ctx context.Context, id string) (*db.Rental, error) {
	return r.first(ctx, "id = ?", id)
}

// FindByRequestID implements rental.Ledger.
func (r *LedgerRepository) FindByRequestID(ctx context.Context, requestID string) (*db.Rental, error) {
	return r.first(ctx, "request_id = ?", requestID)
}

func (r *LedgerRepository) first(ctx context.Context, cond string, arg string) (*db.Rental, error) {
	var record db.Rental
	err := r.db.WithContext(ctx).Where(cond, arg).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRentalNotFound
		}
		r.log.Error("Failed to get rental", zap.String("key", arg), zap.Error(err))
		return nil, classify(err)
	}
	return &record, nil
}

// UpdateStatus implements rental.Ledger. Only an open rental is updated; the status
// predicate makes a concurrent second close match no row.
func (r *LedgerRepository) UpdateStatus(ctx context.Context, id string, status db.Status, notes string, at time.Time) error {
	updates := map[string]interface{}{
		"status":     status.String(),
		"updated_at": time.Now().UTC(),
	}
	if status.IsTerminal() {
		updates["closed_at"] = at.UTC()
		updates["inspection_notes"] = notes
	}

	result := r.db.WithContext(ctx).Model(&db.Rental{}).
		Where("id = ? AND status IN ?", id, openStatusNames()).
		Updates(updates)
	if result.Error != nil {
		r.log.Error("Failed to update rental status",
			zap.String("rental_id", id),
			zap.String("status", status.String()),
			zap.Error(result.Error),
		)
		return classify(result.Error)
	}

	if result.RowsAffected == 0 {
		if _, err := r.GetRental(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("rental %s: %w", id, rental.ErrStatusChanged)
	}
	return nil
}

// ListByStatus implements rental.Ledger. No statuses means every rental.
func (r *LedgerRepository) ListByStatus(ctx context.Context, statuses ...db.Status) ([]*db.Rental, error) {
	query := r.db.WithContext(ctx).Model(&db.Rental{})
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statusNames(statuses))
	}
	return r.find(query.Order("opened_at DESC").Order("id ASC"))
}

// ListByBook implements rental.Ledger.
func (r *LedgerRepository) ListByBook(ctx context.Context, bookID string) ([]*db.Rental, error) {
	query := r.db.WithContext(ctx).Model(&db.Rental{}).Where("book_id = ?", bookID)
	return r.find(query.Order("opened_at DESC").Order("id ASC"))
}

// ListOpenDueBefore implements rental.Ledger.
func (r *LedgerRepository) ListOpenDueBefore(ctx context.Context, before time.Time) ([]*db.Rental, error) {
	query := r.db.WithContext(ctx).Model(&db.Rental{}).
		Where("status IN ?", openStatusNames()).
		Where("due_at < ?", before.UTC())
	return r.find(query.Order("due_at ASC").Order("id ASC"))
}

// RentalFilter narrows ListRentals.
type RentalFilter struct {
	MemberID string
	BookID   string
	Statuses []db.Status
	// OpenedFrom and OpenedTo bound opened_at, inclusive; zero means unbounded.
	OpenedFrom time.Time
	OpenedTo   time.Time
}

// ListRentals returns rental history matching filter, newest first.
func (r *LedgerRepository) ListRentals(ctx context.Context, filter RentalFilter) ([]*db.Rental, error) {
	query := r.db.WithContext(ctx).Model(&db.Rental{})
	if filter.MemberID != "" {
		query = query.Where("member_id = ?", filter.MemberID)
	}
	if filter.BookID != "" {
		query = query.Where("book_id = ?", filter.BookID)
	}
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", statusNames(filter.Statuses))
	}
	if !filter.OpenedFrom.IsZero() {
		query = query.Where("opened_at >= ?", filter.OpenedFrom.UTC())
	}
	if !filter.OpenedTo.IsZero() {
		query = query.Where("opened_at <= ?", filter.OpenedTo.UTC())
	}
	return r.find(query.Order("opened_at DESC").Order("id ASC"))
}

func (r *LedgerRepository) find(query *gorm.DB) ([]*db.Rental, error) {
	var rentals []*db.Rental
	if err := query.Find(&rentals).Error; err != nil {
		r.log.Error("Failed to list rentals", zap.Error(err))
		return nil, classify(err)
	}
	return rentals, nil
}

func openStatusNames() []string {
	return statusNames(db.OpenStatuses)
}

func statusNames(statuses []db.Status) []string {
	names := make([]string, 0, len(statuses))
	for _, s := range statuses {
		names = append(names, s.String())
	}
	return names
}
