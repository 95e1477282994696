package analytics

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/bookstore/services/rental/internal/db"
	"github.com/bookstore/services/rental/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jan1 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type seeded struct {
	reader   *Reader
	database *db.DB
	dune     *db.Book
	emma     *db.Book
	alice    *db.Member
	bob      *db.Member
}

func setupReader(t *testing.T) *seeded {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "rental.db") + "?_foreign_keys=1&_busy_timeout=5000"
	database, err := db.Connect(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, db.RunMigrations(database))

	s := &seeded{
		reader:   NewReader(database, logger.NewLogger("test", "error")),
		database: database,
		dune:     &db.Book{ID: "BOOK-001", Title: "Dune", Author: "Frank Herbert", Genre: "sci-fi", TotalCopies: 3, AvailableCopies: 1},
		emma:     &db.Book{ID: "BOOK-002", Title: "Emma", Author: "Jane Austen", Genre: "classic", TotalCopies: 2, AvailableCopies: 2},
		alice:    &db.Member{LastName: "Liddell", FirstName: "Alice", Email: "alice@example.com", PasswordHash: "x", Role: db.RoleStudent},
		bob:      &db.Member{LastName: "Builder", FirstName: "Bob", Email: "bob@example.com", PasswordHash: "x", Role: db.RoleStudent},
	}
	admin := &db.Member{LastName: "Root", FirstName: "Ann", Email: "admin@example.com", PasswordHash: "x", Role: db.RoleAdmin}
	third := &db.Book{ID: "BOOK-003", Title: "Foundation", Author: "Isaac Asimov", Genre: "sci-fi", TotalCopies: 1, AvailableCopies: 1}

	for _, v := range []interface{}{s.dune, s.emma, third, s.alice, s.bob, admin} {
		require.NoError(t, database.Create(v).Error)
	}

	rentals := []*db.Rental{
		// Two open Dune rentals, one of them overdue by Jan 20.
		{BookID: s.dune.ID, MemberID: s.alice.ID, OpenedAt: jan1, DueAt: jan1.AddDate(0, 0, 14), Status: db.StatusActive},
		{BookID: s.dune.ID, MemberID: s.bob.ID, OpenedAt: jan1.AddDate(0, 0, 10), DueAt: jan1.AddDate(0, 0, 24), Status: db.StatusPending},
		// Closed rentals hold no copy.
		{BookID: s.emma.ID, MemberID: s.alice.ID, OpenedAt: jan1.AddDate(0, 0, 10), DueAt: jan1.AddDate(0, 0, 12), Status: db.StatusReturned},
		{BookID: s.dune.ID, MemberID: s.alice.ID, OpenedAt: jan1.AddDate(0, 0, 2), DueAt: jan1.AddDate(0, 0, 5), Status: db.StatusCancelled},
	}
	for _, r := range rentals {
		require.NoError(t, database.Create(r).Error)
	}
	return s
}

func TestTotals(t *testing.T) {
	s := setupReader(t)

	totals, err := s.reader.Totals(context.Background(), jan1.AddDate(0, 0, 19))
	require.NoError(t, err)

	assert.Equal(t, int64(3), totals.Books)
	assert.Equal(t, int64(4), totals.AvailableCopies)
	assert.Equal(t, int64(3), totals.Members)
	assert.Equal(t, int64(4), totals.Rentals)
	assert.Equal(t, int64(2), totals.ActiveRentals)
	assert.Equal(t, int64(1), totals.OverdueRentals)
	assert.Equal(t, 1.33, totals.RentalsPerUser)
	assert.Equal(t, 50.0, totals.UtilizationRate)
}

func TestTotalsEmpty(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "empty.db") + "?_foreign_keys=1"
	database, err := db.Connect(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, db.RunMigrations(database))

	totals, err := NewReader(database, logger.NewLogger("test", "error")).Totals(context.Background(), jan1)
	require.NoError(t, err)
	assert.Equal(t, Totals{}, *totals)
}

func TestRankings(t *testing.T) {
	s := setupReader(t)
	ctx := context.Background()

	genres, err := s.reader.TopGenres(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []GenreCount{{Genre: "sci-fi", Count: 2}, {Genre: "classic", Count: 1}}, genres)

	books, err := s.reader.PopularBooks(ctx, 2)
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, BookCount{BookID: "BOOK-001", Title: "Dune", Author: "Frank Herbert", RentalCount: 3}, books[0])
	assert.Equal(t, "BOOK-002", books[1].BookID)

	roles, err := s.reader.MembersByRole(ctx)
	require.NoError(t, err)
	assert.Equal(t, []RoleCount{{Role: db.RoleAdmin, Count: 1}, {Role: db.RoleStudent, Count: 2}}, roles)

	students, err := s.reader.MostActiveStudents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, students, 2)
	assert.Equal(t, s.alice.ID, students[0].MemberID)
	assert.Equal(t, int64(3), students[0].RentalCount)
	assert.Equal(t, int64(1), students[1].RentalCount)
}

func TestDailyRentals(t *testing.T) {
	s := setupReader(t)

	daily, err := s.reader.DailyRentals(context.Background(), jan1.AddDate(0, 0, 10).Add(9*time.Hour), 11)
	require.NoError(t, err)
	require.Len(t, daily, 11)

	assert.Equal(t, DailyCount{Date: "2024-01-01", Rentals: 1}, daily[0])
	assert.Equal(t, DailyCount{Date: "2024-01-02", Rentals: 0}, daily[1])
	assert.Equal(t, DailyCount{Date: "2024-01-03", Rentals: 1}, daily[2])
	assert.Equal(t, DailyCount{Date: "2024-01-11", Rentals: 2}, daily[10])
}

func TestDashboard(t *testing.T) {
	s := setupReader(t)

	dash, err := s.reader.Dashboard(context.Background(), jan1.AddDate(0, 0, 19))
	require.NoError(t, err)
	assert.Equal(t, "2024-01-20", dash.AsOf)
	assert.Len(t, dash.RecentActivity, activityWindowDays)
	assert.NotEmpty(t, dash.TopGenres)
	assert.Equal(t, int64(1), dash.Totals.OverdueRentals)
}

func TestCheckInventory(t *testing.T) {
	s := setupReader(t)
	ctx := context.Background()

	drift, err := s.reader.CheckInventory(ctx)
	require.NoError(t, err)
	assert.Empty(t, drift)

	// Simulate a lost increment.
	require.NoError(t, s.database.Model(&db.Book{}).Where("id = ?", s.emma.ID).Update("available_copies", 1).Error)

	drift, err = s.reader.CheckInventory(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Drift{{BookID: "BOOK-002", TotalCopies: 2, AvailableCopies: 1, OpenRentals: 0}}, drift)
}

func TestMonthlyRentals(t *testing.T) {
	s := setupReader(t)

	trend, err := s.reader.MonthlyRentals(context.Background(), time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), 3)
	require.NoError(t, err)
	assert.Equal(t, []MonthlyCount{
		{Month: "2024-01", Rentals: 4},
		{Month: "2024-02", Rentals: 0},
		{Month: "2024-03", Rentals: 0},
	}, trend)

	// The window ends at asOf's month; January falls outside a one-month window in February.
	trend, err = s.reader.MonthlyRentals(context.Background(), time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), 1)
	require.NoError(t, err)
	assert.Equal(t, []MonthlyCount{{Month: "2024-02", Rentals: 0}}, trend)
}

func TestTopAuthorsAndStockByGenre(t *testing.T) {
	s := setupReader(t)
	ctx := context.Background()

	authors, err := s.reader.TopAuthors(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []AuthorCount{
		{Author: "Frank Herbert", RentalCount: 3},
		{Author: "Jane Austen", RentalCount: 1},
	}, authors)

	stock, err := s.reader.StockByGenre(ctx)
	require.NoError(t, err)
	assert.Equal(t, []GenreStock{
		{Genre: "classic", Titles: 1, AvailableCopies: 2},
		{Genre: "sci-fi", Titles: 2, AvailableCopies: 2},
	}, stock)
}

func TestDashboardUsesCallerCalendarDay(t *testing.T) {
	s := setupReader(t)

	// 07:00 on Jan 21 in Tokyo is still Jan 20 in UTC.
	tokyo := time.FixedZone("JST", 9*60*60)
	dash, err := s.reader.Dashboard(context.Background(), time.Date(2024, 1, 21, 7, 0, 0, 0, tokyo))
	require.NoError(t, err)
	assert.Equal(t, "2024-01-21", dash.AsOf)
	assert.Len(t, dash.MonthlyTrend, trendWindowMonths)
	assert.Equal(t, "2024-01", dash.MonthlyTrend[trendWindowMonths-1].Month)
	assert.Equal(t, int64(4), dash.MonthlyTrend[trendWindowMonths-1].Rentals)
	assert.NotEmpty(t, dash.TopAuthors)
	assert.NotEmpty(t, dash.GenreStock)
}
