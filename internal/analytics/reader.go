// Package analytics answers read-only reporting queries over the catalog, the
// member directory and the rental ledger. Nothing here writes.
package analytics

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/bookstore/services/rental/internal/db"
	"go.uber.org/zap"
)

const (
	topGenresLimit     = 5
	popularBooksLimit  = 5
	activeMembersLimit = 10
	topAuthorsLimit    = 5
	activityWindowDays = 30
	trendWindowMonths  = 12
)

// Reader runs reporting queries.
type Reader struct {
	db  *db.DB
	log *zap.Logger
}

// NewReader creates an analytics reader
func NewReader(database *db.DB, log *zap.Logger) *Reader {
	return &Reader{db: database, log: log}
}

// Totals are the headline counters.
type Totals struct {
	Books           int64   `json:"total_books"`
	AvailableCopies int64   `json:"available_copies"`
	Members         int64   `json:"total_members"`
	Rentals         int64   `json:"total_rentals"`
	ActiveRentals   int64   `json:"active_rentals"`
	OverdueRentals  int64   `json:"overdue_rentals"`
	RentalsPerUser  float64 `json:"rentals_per_member"`
	UtilizationRate float64 `json:"utilization_rate"`
}

// GenreCount is the number of titles in a genre.
type GenreCount struct {
	Genre string `json:"genre"`
	Count int64  `json:"count"`
}

// BookCount is how often a title was rented.
type BookCount struct {
	BookID      string `json:"book_id"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	RentalCount int64  `json:"rental_count"`
}

// RoleCount is the number of members with a role.
type RoleCount struct {
	Role  db.Role `json:"role"`
	Count int64   `json:"count"`
}

// MemberCount is how many rentals a member opened.
type MemberCount struct {
	MemberID    string `json:"member_id"`
	LastName    string `json:"last_name"`
	FirstName   string `json:"first_name"`
	RentalCount int64  `json:"rental_count"`
}

// DailyCount is the number of rentals opened on one day.
type DailyCount struct {
	Date    string `json:"date"`
	Rentals int64  `json:"rentals"`
}

// AuthorCount is how often an author's titles were rented.
type AuthorCount struct {
	Author      string `json:"author"`
	RentalCount int64  `json:"rental_count"`
}

// GenreStock is the shelf state of a genre.
type GenreStock struct {
	Genre           string `json:"genre"`
	Titles          int64  `json:"titles"`
	AvailableCopies int64  `json:"available_copies"`
}

// MonthlyCount is the number of rentals opened in one month (YYYY-MM).
type MonthlyCount struct {
	Month   string `json:"month"`
	Rentals int64  `json:"rentals"`
}

// Dashboard bundles every report as of one day.
type Dashboard struct {
	AsOf           string         `json:"as_of"`
	Totals         Totals         `json:"totals"`
	TopGenres      []GenreCount   `json:"top_genres"`
	PopularBooks   []BookCount    `json:"popular_books"`
	MembersByRole  []RoleCount    `json:"members_by_role"`
	ActiveStudents []MemberCount  `json:"most_active_students"`
	RecentActivity []DailyCount   `json:"recent_activity"`
	MonthlyTrend   []MonthlyCount `json:"monthly_trend"`
	TopAuthors     []AuthorCount  `json:"top_authors"`
	GenreStock     []GenreStock   `json:"genre_availability"`
}

// Dashboard runs every report.
func (r *Reader) Dashboard(ctx context.Context, asOf time.Time) (*Dashboard, error) {
	day := civilDate(asOf)

	totals, err := r.Totals(ctx, day)
	if err != nil {
		return nil, err
	}
	genres, err := r.TopGenres(ctx, topGenresLimit)
	if err != nil {
		return nil, err
	}
	books, err := r.PopularBooks(ctx, popularBooksLimit)
	if err != nil {
		return nil, err
	}
	roles, err := r.MembersByRole(ctx)
	if err != nil {
		return nil, err
	}
	students, err := r.MostActiveStudents(ctx, activeMembersLimit)
	if err != nil {
		return nil, err
	}
	activity, err := r.DailyRentals(ctx, day, activityWindowDays)
	if err != nil {
		return nil, err
	}
	trend, err := r.MonthlyRentals(ctx, day, trendWindowMonths)
	if err != nil {
		return nil, err
	}
	authors, err := r.TopAuthors(ctx, topAuthorsLimit)
	if err != nil {
		return nil, err
	}
	stock, err := r.StockByGenre(ctx)
	if err != nil {
		return nil, err
	}

	return &Dashboard{
		AsOf:           day.Format(time.DateOnly),
		Totals:         *totals,
		TopGenres:      genres,
		PopularBooks:   books,
		MembersByRole:  roles,
		ActiveStudents: students,
		RecentActivity: activity,
		MonthlyTrend:   trend,
		TopAuthors:     authors,
		GenreStock:     stock,
	}, nil
}

// Totals counts books, copies, members and rentals. Overdue means open and due before asOf.
func (r *Reader) Totals(ctx context.Context, asOf time.Time) (*Totals, error) {
	var t Totals
	q := r.db.WithContext(ctx)
	open := openStatusNames()

	steps := []struct {
		name string
		run  func() error
	}{
		{"books", func() error { return q.Model(&db.Book{}).Count(&t.Books).Error }},
		{"available copies", func() error {
			return q.Model(&db.Book{}).Select("COALESCE(SUM(available_copies), 0)").Scan(&t.AvailableCopies).Error
		}},
		{"members", func() error { return q.Model(&db.Member{}).Count(&t.Members).Error }},
		{"rentals", func() error { return q.Model(&db.Rental{}).Count(&t.Rentals).Error }},
		{"active rentals", func() error {
			return q.Model(&db.Rental{}).Where("status IN ?", open).Count(&t.ActiveRentals).Error
		}},
		{"overdue rentals", func() error {
			return q.Model(&db.Rental{}).
				Where("status IN ?", open).
				Where("due_at < ?", civilDate(asOf)).
				Count(&t.OverdueRentals).Error
		}},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			r.log.Error("Failed to count", zap.String("metric", step.name), zap.Error(err))
			return nil, fmt.Errorf("count %s: %w", step.name, err)
		}
	}

	if t.Members > 0 {
		t.RentalsPerUser = round2(float64(t.Rentals) / float64(t.Members))
		t.UtilizationRate = round2(float64(t.ActiveRentals) / math.Max(float64(t.AvailableCopies), 1) * 100)
	}
	return &t, nil
}

// TopGenres returns the genres with the most titles.
func (r *Reader) TopGenres(ctx context.Context, limit int) ([]GenreCount, error) {
	genres := []GenreCount{}
	err := r.db.WithContext(ctx).Model(&db.Book{}).
		Select("genre, COUNT(*) AS count").
		Where("genre IS NOT NULL AND genre <> ''").
		Group("genre").
		Order("count DESC").Order("genre ASC").
		Limit(limit).
		Scan(&genres).Error
	if err != nil {
		r.log.Error("Failed to query top genres", zap.Error(err))
		return nil, err
	}
	return genres, nil
}

// PopularBooks returns the most rented titles, including never-rented ones when few exist.
func (r *Reader) PopularBooks(ctx context.Context, limit int) ([]BookCount, error) {
	books := []BookCount{}
	err := r.db.WithContext(ctx).Table("books AS b").
		Select("b.id AS book_id, b.title, b.author, COUNT(r.id) AS rental_count").
		Joins("LEFT JOIN rentals AS r ON r.book_id = b.id").
		Group("b.id, b.title, b.author").
		Order("rental_count DESC").Order("b.id ASC").
		Limit(limit).
		Scan(&books).Error
	if err != nil {
		r.log.Error("Failed to query popular books", zap.Error(err))
		return nil, err
	}
	return books, nil
}

// MembersByRole counts members per role.
func (r *Reader) MembersByRole(ctx context.Context) ([]RoleCount, error) {
	roles := []RoleCount{}
	err := r.db.WithContext(ctx).Model(&db.Member{}).
		Select("role, COUNT(*) AS count").
		Group("role").
		Order("role ASC").
		Scan(&roles).Error
	if err != nil {
		r.log.Error("Failed to query members by role", zap.Error(err))
		return nil, err
	}
	return roles, nil
}

// MostActiveStudents ranks students by rentals opened.
func (r *Reader) MostActiveStudents(ctx context.Context, limit int) ([]MemberCount, error) {
	members := []MemberCount{}
	err := r.db.WithContext(ctx).Table("members AS m").
		Select("m.id AS member_id, m.last_name, m.first_name, COUNT(r.id) AS rental_count").
		Joins("LEFT JOIN rentals AS r ON r.member_id = m.id").
		Where("m.role = ?", db.RoleStudent).
		Group("m.id, m.last_name, m.first_name").
		Order("rental_count DESC").Order("m.last_name ASC").Order("m.id ASC").
		Limit(limit).
		Scan(&members).Error
	if err != nil {
		r.log.Error("Failed to query active students", zap.Error(err))
		return nil, err
	}
	return members, nil
}

// DailyRentals counts rentals opened on each of the days up to and including asOf.
// Days without rentals are reported as zero.
func (r *Reader) DailyRentals(ctx context.Context, asOf time.Time, days int) ([]DailyCount, error) {
	end := civilDate(asOf)
	start := end.AddDate(0, 0, -(days - 1))

	var rows []struct {
		OpenedAt time.Time
		Rentals  int64
	}
	// opened_at is stored as a civil date, so grouping by it groups by day.
	err := r.db.WithContext(ctx).Model(&db.Rental{}).
		Select("opened_at, COUNT(*) AS rentals").
		Where("opened_at >= ? AND opened_at <= ?", start, end).
		Group("opened_at").
		Scan(&rows).Error
	if err != nil {
		r.log.Error("Failed to query daily rentals", zap.Error(err))
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[civilDate(row.OpenedAt).Format(time.DateOnly)] += row.Rentals
	}

	out := make([]DailyCount, 0, days)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		key := d.Format(time.DateOnly)
		out = append(out, DailyCount{Date: key, Rentals: counts[key]})
	}
	return out, nil
}

// MonthlyRentals counts rentals opened in each of the months up to and including
// the month of asOf. Months without rentals are reported as zero.
func (r *Reader) MonthlyRentals(ctx context.Context, asOf time.Time, months int) ([]MonthlyCount, error) {
	day := civilDate(asOf)
	last := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
	first := last.AddDate(0, -(months - 1), 0)

	var rows []struct {
		OpenedAt time.Time
		Rentals  int64
	}
	// Bucketing happens here rather than in SQL; month formatting differs between
	// PostgreSQL and SQLite.
	err := r.db.WithContext(ctx).Model(&db.Rental{}).
		Select("opened_at, COUNT(*) AS rentals").
		Where("opened_at >= ? AND opened_at < ?", first, last.AddDate(0, 1, 0)).
		Group("opened_at").
		Scan(&rows).Error
	if err != nil {
		r.log.Error("Failed to query monthly rentals", zap.Error(err))
		return nil, err
	}

	counts := make(map[string]int64, months)
	for _, row := range rows {
		counts[civilDate(row.OpenedAt).Format("2006-01")] += row.Rentals
	}

	out := make([]MonthlyCount, 0, months)
	for m := first; !m.After(last); m = m.AddDate(0, 1, 0) {
		key := m.Format("2006-01")
		out = append(out, MonthlyCount{Month: key, Rentals: counts[key]})
	}
	return out, nil
}

// TopAuthors ranks authors by rentals of their titles. Authors never rented are left out.
func (r *Reader) TopAuthors(ctx context.Context, limit int) ([]AuthorCount, error) {
	authors := []AuthorCount{}
	err := r.db.WithContext(ctx).Table("books AS b").
		Select("b.author, COUNT(r.id) AS rental_count").
		Joins("JOIN rentals AS r ON r.book_id = b.id").
		Group("b.author").
		Order("rental_count DESC").Order("b.author ASC").
		Limit(limit).
		Scan(&authors).Error
	if err != nil {
		r.log.Error("Failed to query top authors", zap.Error(err))
		return nil, err
	}
	return authors, nil
}

// StockByGenre counts titles and copies on the shelf per genre.
func (r *Reader) StockByGenre(ctx context.Context) ([]GenreStock, error) {
	stock := []GenreStock{}
	err := r.db.WithContext(ctx).Model(&db.Book{}).
		Select("genre, COUNT(*) AS titles, COALESCE(SUM(available_copies), 0) AS available_copies").
		Where("genre IS NOT NULL AND genre <> ''").
		Group("genre").
		Order("genre ASC").
		Scan(&stock).Error
	if err != nil {
		r.log.Error("Failed to query stock by genre", zap.Error(err))
		return nil, err
	}
	return stock, nil
}

// Drift is a book whose counter disagrees with its open rentals.
type Drift struct {
	BookID          string `json:"book_id"`
	TotalCopies     int    `json:"total_copies"`
	AvailableCopies int    `json:"available_copies"`
	OpenRentals     int    `json:"open_rentals"`
}

// CheckInventory returns every book where available copies plus open rentals
// differ from total copies. An empty result means the ledger and catalog agree.
func (r *Reader) CheckInventory(ctx context.Context) ([]Drift, error) {
	drift := []Drift{}
	err := r.db.WithContext(ctx).Table("books AS b").
		Select("b.id AS book_id, b.total_copies, b.available_copies, COUNT(r.id) AS open_rentals").
		Joins("LEFT JOIN rentals AS r ON r.book_id = b.id AND r.status IN ?", openStatusNames()).
		Group("b.id, b.total_copies, b.available_copies").
		Having("b.available_copies + COUNT(r.id) <> b.total_copies").
		Order("b.id ASC").
		Scan(&drift).Error
	if err != nil {
		r.log.Error("Failed to check inventory", zap.Error(err))
		return nil, err
	}
	if len(drift) > 0 {
		r.log.Warn("Inventory drift detected", zap.Int("books", len(drift)))
	}
	return drift, nil
}

func openStatusNames() []string {
	names := make([]string, 0, len(db.OpenStatuses))
	for _, s := range db.OpenStatuses {
		names = append(names, s.String())
	}
	return names
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// civilDate keeps the calendar day as seen in t's own location.
func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
