package repo

import (
	"context"

	"github.com/bookstore/services/rental/internal/db"
	"github.com/bookstore/services/rental/internal/rental"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Store bundles the repositories over one database and runs units of work across them.
type Store struct {
	db  *db.DB
	log *zap.Logger

	Catalog   *CatalogRepository
	Directory *DirectoryRepository
	Ledger    *LedgerRepository
}

// NewStore creates the repositories for database.
func NewStore(database *db.DB, hasher PasswordHasher, log *zap.Logger) *Store {
	return &Store{
		db:        database,
		log:       log,
		Catalog:   NewCatalogRepository(database, log),
		Directory: NewDirectoryRepository(database, hasher, log),
		Ledger:    NewLedgerRepository(database, log),
	}
}

// InTx implements rental.Transactor. The catalog and ledger handed to fn share one
// database transaction, committed only when fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, catalog rental.Catalog, ledger rental.Ledger) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		scoped := &db.DB{DB: tx}
		return fn(ctx, NewCatalogRepository(scoped, s.log), NewLedgerRepository(scoped, s.log))
	})
	return classify(err)
}
