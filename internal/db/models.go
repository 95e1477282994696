package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Book represents a catalog title and its copy counters.
// AvailableCopies is changed only by the rental engine; TotalCopies is fixed at creation.
type Book struct {
	ID              string    `gorm:"primaryKey;type:varchar(50)" json:"id"`
	Title           string    `gorm:"type:varchar(255);not null;index:idx_books_title" json:"title"`
	Author          string    `gorm:"type:varchar(255);not null;index:idx_books_author" json:"author"`
	PublicationYear int       `json:"publication_year,omitempty"`
	Genre           string    `gorm:"type:varchar(100);index:idx_books_genre" json:"genre,omitempty"`
	TotalCopies     int       `gorm:"not null;default:0;check:chk_books_total_copies,total_copies >= 0" json:"total_copies"`
	AvailableCopies int       `gorm:"not null;default:0;check:chk_books_available_copies,available_copies >= 0 AND available_copies <= total_copies" json:"available_copies"`
	Notes           string    `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt       time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time `gorm:"not null" json:"updated_at"`
}

// TableName specifies the table name for Book model
func (Book) TableName() string {
	return "books"
}

// Member is a directory entry. Only members whose role passes the eligibility policy may borrow.
type Member struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	LastName     string    `gorm:"type:varchar(100);not null" json:"last_name"`
	FirstName    string    `gorm:"type:varchar(100);not null" json:"first_name"`
	Email        string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_members_email" json:"email"`
	PasswordHash string    `gorm:"type:varchar(255);not null" json:"-"`
	Role         Role      `gorm:"type:varchar(16);not null;index:idx_members_role" json:"role"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time `gorm:"not null" json:"updated_at"`
}

// TableName specifies the table name for Member model
func (Member) TableName() string {
	return "members"
}

// FullName returns "First Last".
func (m *Member) FullName() string {
	return m.FirstName + " " + m.LastName
}

// BeforeCreate assigns an id when none was given
func (m *Member) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// Rental is one loan of one copy of a book to one member.
type Rental struct {
	ID              string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	BookID          string     `gorm:"type:varchar(50);not null;index:idx_rentals_book" json:"book_id"`
	MemberID        string     `gorm:"type:varchar(36);not null;index:idx_rentals_member" json:"member_id"`
	OpenedAt        time.Time  `gorm:"not null;index:idx_rentals_opened_at" json:"opened_at"`
	DueAt           time.Time  `gorm:"not null;check:chk_rentals_period,due_at > opened_at" json:"due_at"`
	Status          Status     `gorm:"type:varchar(16);not null;index:idx_rentals_status" json:"status"`
	RequestID       *string    `gorm:"type:varchar(100);uniqueIndex:idx_rentals_request_id" json:"request_id,omitempty"`
	InspectionNotes string     `gorm:"type:text" json:"inspection_notes,omitempty"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
	CreatedAt       time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"not null" json:"updated_at"`

	Book   *Book   `gorm:"foreignKey:BookID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
	Member *Member `gorm:"foreignKey:MemberID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
}

// TableName specifies the table name for Rental model
func (Rental) TableName() string {
	return "rentals"
}

// BeforeCreate assigns an id when none was given
func (r *Rental) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
