package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	dsn := "file:" + filepath.Join(t.TempDir(), "rental.db") + "?_foreign_keys=1&_busy_timeout=5000"
	database, err := Connect(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	require.NoError(t, RunMigrations(database))
	return database
}

func TestIsPostgresDSN(t *testing.T) {
	assert.True(t, IsPostgresDSN("postgres://u:p@localhost:5432/rental"))
	assert.True(t, IsPostgresDSN("postgresql://localhost/rental"))
	assert.False(t, IsPostgresDSN("file:rental.db"))
	assert.False(t, IsPostgresDSN(":memory:"))
}

func TestMigrationsAreIdempotent(t *testing.T) {
	database := setupTestDB(t)
	require.NoError(t, RunMigrations(database))
	assert.NoError(t, database.Ping())
}

func TestAvailableCopiesCheckConstraint(t *testing.T) {
	database := setupTestDB(t)

	book := &Book{ID: "BOOK-001", Title: "Dune", Author: "Frank Herbert", TotalCopies: 1, AvailableCopies: 1}
	require.NoError(t, database.Create(book).Error)

	err := database.Model(&Book{}).Where("id = ?", book.ID).Update("available_copies", -1).Error
	assert.Error(t, err, "available_copies must never go negative")

	err = database.Model(&Book{}).Where("id = ?", book.ID).Update("available_copies", 2).Error
	assert.Error(t, err, "available_copies must never exceed total_copies")
}

func TestRentalPeriodAndForeignKeys(t *testing.T) {
	database := setupTestDB(t)

	require.NoError(t, database.Create(&Book{ID: "BOOK-001", Title: "Dune", Author: "Frank Herbert", TotalCopies: 1, AvailableCopies: 1}).Error)
	member := &Member{LastName: "Doe", FirstName: "Jane", Email: "jane@example.com", PasswordHash: "x", Role: RoleStudent}
	require.NoError(t, database.Create(member).Error)
	assert.NotEmpty(t, member.ID)

	opened := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	bad := &Rental{BookID: "BOOK-001", MemberID: member.ID, OpenedAt: opened, DueAt: opened, Status: StatusActive}
	assert.Error(t, database.Create(bad).Error, "due_at must be after opened_at")

	orphan := &Rental{BookID: "BOOK-404", MemberID: member.ID, OpenedAt: opened, DueAt: opened.AddDate(0, 0, 14), Status: StatusActive}
	assert.Error(t, database.Create(orphan).Error, "book reference must resolve")

	ok := &Rental{BookID: "BOOK-001", MemberID: member.ID, OpenedAt: opened, DueAt: opened.AddDate(0, 0, 14), Status: StatusActive}
	require.NoError(t, database.Create(ok).Error)
	assert.NotEmpty(t, ok.ID)

	var stored Rental
	require.NoError(t, database.First(&stored, "id = ?", ok.ID).Error)
	assert.Equal(t, StatusActive, stored.Status)
	assert.True(t, stored.DueAt.Equal(ok.DueAt))
}
