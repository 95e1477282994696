package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bookstore/services/rental/internal/db"
	"github.com/bookstore/services/rental/internal/rental"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrBookNotFound is returned when a book is not found
	ErrBookNotFound = fmt.Errorf("book %w", rental.ErrRecordNotFound)

	// ErrBookAlreadyExists is returned when trying to create a book that already exists
	ErrBookAlreadyExists = errors.New("book already exists")

	// ErrInvalidBook is returned when a book fails validation
	ErrInvalidBook = errors.New("invalid book")
)

// editableBookFields are the fields catalog edits may touch. Copy counters are not among them.
var editableBookFields = []string{"title", "author", "publication_year", "genre", "notes"}

// CatalogRepository handles book catalog operations
type CatalogRepository struct {
	db  *db.DB
	log *zap.Logger
}

// NewCatalogRepository creates a new catalog repository
func NewCatalogRepository(database *db.DB, logger *zap.Logger) *CatalogRepository {
	return &CatalogRepository{
		db:  database,
		log: logger,
	}
}

// BookFilter narrows ListBooks.
type BookFilter struct {
	Page          int
	PageSize      int
	Genre         string
	Author        string
	AvailableOnly bool
}

// ListBooks returns a paginated list of books with optional filters
func (r *CatalogRepository) ListBooks(ctx context.Context, filter BookFilter) ([]*db.Book, int64, error) {
	query := r.db.WithContext(ctx).Model(&db.Book{})

	// Apply filters
	if filter.Genre != "" {
		query = query.Where("genre = ?", filter.Genre)
	}
	if filter.Author != "" {
		query = query.Where("LOWER(author) LIKE ?", "%"+strings.ToLower(filter.Author)+"%")
	}
	if filter.AvailableOnly {
		query = query.Where("available_copies > 0")
	}

	// Count total
	var total int64
	if err := query.Count(&total).Error; err != nil {
		r.log.Error("Failed to count books", zap.Error(err))
		return nil, 0, classify(err)
	}

	page, pageSize := NormalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * pageSize
	var books []*db.Book
	if err := query.Offset(offset).Limit(pageSize).Order("title ASC").Order("id ASC").Find(&books).Error; err != nil {
		r.log.Error("Failed to list books", zap.Error(err))
		return nil, 0, classify(err)
	}

	return books, total, nil
}

// GetBook retrieves a book by id
func (r *CatalogRepository) GetBook(ctx context.Context, id string) (*db.Book, error) {
	var book db.Book
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&book).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookNotFound
		}
		r.log.Error("Failed to get book", zap.String("book_id", id), zap.Error(err))
		return nil, classify(err)
	}

	return &book, nil
}

// CreateBook adds a title with TotalCopies copies, all of them available.
func (r *CatalogRepository) CreateBook(ctx context.Context, book *db.Book) error {
	if strings.TrimSpace(book.Title) == "" || strings.TrimSpace(book.Author) == "" {
		return fmt.Errorf("%w: title and author are required", ErrInvalidBook)
	}
	if book.TotalCopies < 0 {
		return fmt.Errorf("%w: total copies must not be negative", ErrInvalidBook)
	}
	book.AvailableCopies = book.TotalCopies

	// Generate id if not provided
	if book.ID == "" {
		id, err := r.generateNextID(ctx)
		if err != nil {
			r.log.Error("Failed to generate book id", zap.Error(err))
			return classify(err)
		}
		book.ID = id
	}

	if err := r.db.WithContext(ctx).Create(book).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrBookAlreadyExists
		}
		r.log.Error("Failed to create book", zap.String("book_id", book.ID), zap.Error(err))
		return classify(err)
	}

	r.log.Info("Book created",
		zap.String("book_id", book.ID),
		zap.String("title", book.Title),
		zap.Int("total_copies", book.TotalCopies),
	)
	return nil
}

// generateNextID generates the next sequential id (BOOK-001, BOOK-002, etc.)
func (r *CatalogRepository) generateNextID(ctx context.Context) (string, error) {
	var lastBook db.Book

	// Longer ids sort after shorter ones so BOOK-1000 follows BOOK-999.
	err := r.db.WithContext(ctx).
		Where("id LIKE ?", "BOOK-%").
		Order("LENGTH(id) DESC").
		Order("id DESC").
		First(&lastBook).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "BOOK-001", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get last book: %w", err)
	}

	var lastNum int
	if _, err := fmt.Sscanf(lastBook.ID, "BOOK-%d", &lastNum); err != nil {
		var count int64
		if err := r.db.WithContext(ctx).Model(&db.Book{}).Count(&count).Error; err != nil {
			return "", fmt.Errorf("failed to count books: %w", err)
		}
		return fmt.Sprintf("BOOK-%03d", count+1), nil
	}

	return fmt.Sprintf("BOOK-%03d", lastNum+1), nil
}

// UpdateBook updates the descriptive fields of an existing book and returns the ones that changed.
// An empty mask means every editable field.
func (r *CatalogRepository) UpdateBook(ctx context.Context, book *db.Book, updateMask []string) ([]string, error) {
	existing, err := r.GetBook(ctx, book.ID)
	if err != nil {
		return nil, err
	}

	fieldsChanged := getChangedFields(existing, book, updateMask)
	for _, field := range fieldsChanged {
		if (field == "title" && strings.TrimSpace(book.Title) == "") || (field == "author" && strings.TrimSpace(book.Author) == "") {
			return nil, fmt.Errorf("%w: %s must not be empty", ErrInvalidBook, field)
		}
	}
	if len(fieldsChanged) == 0 {
		r.log.Info("No fields changed", zap.String("book_id", book.ID))
		return fieldsChanged, nil
	}

	updates := make(map[string]interface{}, len(fieldsChanged)+1)
	for _, field := range fieldsChanged {
		switch field {
		case "title":
			updates["title"] = book.Title
		case "author":
			updates["author"] = book.Author
		case "publication_year":
			updates["publication_year"] = book.PublicationYear
		case "genre":
			updates["genre"] = book.Genre
		case "notes":
			updates["notes"] = book.Notes
		}
	}
	updates["updated_at"] = time.Now().UTC()

	if err := r.db.WithContext(ctx).Model(&db.Book{}).Where("id = ?", book.ID).Updates(updates).Error; err != nil {
		r.log.Error("Failed to update book", zap.String("book_id", book.ID), zap.Error(err))
		return nil, classify(err)
	}

	r.log.Info("Book updated", zap.String("book_id", book.ID), zap.Strings("fields_changed", fieldsChanged))
	return fieldsChanged, nil
}

// AdjustAvailability implements rental.Catalog. The change is a single conditional
// UPDATE, so concurrent callers are serialized on the book row and the counter
// stays within [0, total_copies].
func (r *CatalogRepository) AdjustAvailability(ctx context.Context, id string, delta int) error {
	query := r.db.WithContext(ctx).Model(&db.Book{}).Where("id = ?", id)
	if delta < 0 {
		query = query.Where("available_copies + ? >= 0", delta)
	} else {
		query = query.Where("available_copies + ? <= total_copies", delta)
	}

	result := query.Updates(map[string]interface{}{
		"available_copies": gorm.Expr("available_copies + ?", delta),
		"updated_at":       time.Now().UTC(),
	})
	if result.Error != nil {
		r.log.Error("Failed to adjust availability",
			zap.String("book_id", id),
			zap.Int("delta", delta),
			zap.Error(result.Error),
		)
		return classify(result.Error)
	}

	if result.RowsAffected == 0 {
		if _, err := r.GetBook(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("book %s: %w", id, rental.ErrNoCopyAvailable)
	}
	return nil
}

// getChangedFields compares old and new book and returns list of changed fields
func getChangedFields(old, new *db.Book, updateMask []string) []string {
	var changed []string

	checkFields := updateMask
	if len(checkFields) == 0 {
		checkFields = editableBookFields
	}

	for _, field := range checkFields {
		switch field {
		case "title":
			if old.Title != new.Title {
				changed = append(changed, "title")
			}
		case "author":
			if old.Author != new.Author {
				changed = append(changed, "author")
			}
		case "publication_year":
			if old.PublicationYear != new.PublicationYear {
				changed = append(changed, "publication_year")
			}
		case "genre":
			if old.Genre != new.Genre {
				changed = append(changed, "genre")
			}
		case "notes":
			if old.Notes != new.Notes {
				changed = append(changed, "notes")
			}
		}
	}

	return changed
}

// NormalizePage clamps paging input: pages start at 1, sizes default to 10 and cap at 100.
func NormalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}
	return page, pageSize
}
