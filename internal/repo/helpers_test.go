package repo

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/bookstore/services/rental/internal/db"
	"github.com/bookstore/services/rental/internal/security/password"
	"github.com/bookstore/services/rental/pkg/logger"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *db.DB {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "rental.db") + "?_foreign_keys=1&_busy_timeout=5000"
	database, err := db.Connect(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	// Run migrations
	require.NoError(t, db.RunMigrations(database))
	return database
}

func testHasher() password.Config {
	cfg := password.DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	return cfg
}

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(setupTestDB(t), testHasher(), logger.NewLogger("test", "error"))
}

func seedBook(t *testing.T, store *Store, title string, copies int) *db.Book {
	t.Helper()
	book := &db.Book{Title: title, Author: "Test Author", Genre: "fiction", TotalCopies: copies}
	require.NoError(t, store.Catalog.CreateBook(context.Background(), book))
	return book
}

func seedMember(t *testing.T, store *Store, email string, role db.Role) *db.Member {
	t.Helper()
	member, err := store.Directory.CreateMember(context.Background(), NewMember{
		LastName:  "Doe",
		FirstName: "Jane",
		Email:     email,
		Password:  "s3cret-pass",
		Role:      role,
	})
	require.NoError(t, err)
	return member
}
