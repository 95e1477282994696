package rental

import (
	"context"
	"sort"
	"time"

	"github.com/bookstore/services/rental/internal/db"
)

// Overdue is an open rental past its due date.
type Overdue struct {
	Rental      *db.Rental `json:"rental"`
	DaysOverdue int        `json:"days_overdue"`
}

// ComputeOverdue lists every open rental due before asOf, most overdue first,
// then by rental id. It has no side effects.
func (e *Engine) ComputeOverdue(ctx context.Context, asOf time.Time) ([]Overdue, error) {
	start := time.Now()
	overdue, err := e.computeOverdue(ctx, asOf)
	e.observe("overdue", start, err)
	return overdue, err
}

func (e *Engine) computeOverdue(ctx context.Context, asOf time.Time) ([]Overdue, error) {
	day := civilDate(asOf)

	rentals, err := e.ledger.ListOpenDueBefore(ctx, day)
	if err != nil {
		return nil, e.persistenceFailure("overdue", "date", day.Format(time.DateOnly), err)
	}

	overdue := make([]Overdue, 0, len(rentals))
	for _, r := range rentals {
		days := daysBetween(civilDate(r.DueAt), day)
		if days <= 0 || !r.Status.IsOpen() {
			continue
		}
		overdue = append(overdue, Overdue{Rental: r, DaysOverdue: days})
	}

	sort.Slice(overdue, func(i, j int) bool {
		if overdue[i].DaysOverdue != overdue[j].DaysOverdue {
			return overdue[i].DaysOverdue > overdue[j].DaysOverdue
		}
		return overdue[i].Rental.ID < overdue[j].Rental.ID
	})
	return overdue, nil
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}
