package db

import (
	"gorm.io/gorm"
)

// RunMigrations runs all database migrations
func RunMigrations(db *DB) error {
	if err := db.AutoMigrate(&Book{}, &Member{}, &Rental{}); err != nil {
		return err
	}

	// Create additional indexes if not exists
	if err := createIndexes(db.DB); err != nil {
		return err
	}

	return nil
}

func createIndexes(db *gorm.DB) error {
	// Partial indexes are understood by both PostgreSQL and SQLite.
	indexes := []string{
		// Overdue scans only look at open rentals
		`CREATE INDEX IF NOT EXISTS idx_rentals_open_due ON rentals(due_at) WHERE status IN ('Pending', 'Confirmed', 'Active')`,

		// Open rentals per book, used by the copy-count reconciliation
		`CREATE INDEX IF NOT EXISTS idx_rentals_open_book ON rentals(book_id) WHERE status IN ('Pending', 'Confirmed', 'Active')`,
	}

	for _, indexSQL := range indexes {
		if err := db.Exec(indexSQL).Error; err != nil {
			return err
		}
	}

	return nil
}
