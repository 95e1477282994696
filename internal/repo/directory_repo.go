package repo

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"

	"github.com/bookstore/services/rental/internal/db"
	"github.com/bookstore/services/rental/internal/rental"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrMemberNotFound is returned when a member is not found
	ErrMemberNotFound = fmt.Errorf("member %w", rental.ErrRecordNotFound)

	// ErrMemberAlreadyExists is returned when the email is already registered
	ErrMemberAlreadyExists = errors.New("member already exists")

	// ErrInvalidMember is returned when a member fails validation
	ErrInvalidMember = errors.New("invalid member")

	// ErrInvalidCredentials is returned when email and password do not match a member
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// PasswordHasher hashes new passwords and checks supplied ones against stored hashes.
type PasswordHasher interface {
	Hash(password string) (string, error)
	VerifyCredential(stored, supplied string) bool
}

// DirectoryRepository handles member records
type DirectoryRepository struct {
	db     *db.DB
	hasher PasswordHasher
	log    *zap.Logger

	// dummyHash is verified against when the email is unknown, so both paths pay
	// for one hash verification.
	dummyOnce sync.Once
	dummyHash string
}

// NewDirectoryRepository creates a new directory repository
func NewDirectoryRepository(database *db.DB, hasher PasswordHasher, logger *zap.Logger) *DirectoryRepository {
	return &DirectoryRepository{
		db:     database,
		hasher: hasher,
		log:    logger,
	}
}

// NewMember is a registration request. Password is plain text and never stored.
type NewMember struct {
	LastName  string
	FirstName string
	Email     string
	Password  string
	Role      db.Role
}

// CreateMember registers a member with a hashed password.
func (r *DirectoryRepository) CreateMember(ctx context.Context, in NewMember) (*db.Member, error) {
	lastName := strings.TrimSpace(in.LastName)
	firstName := strings.TrimSpace(in.FirstName)
	if lastName == "" || firstName == "" {
		return nil, fmt.Errorf("%w: first and last name are required", ErrInvalidMember)
	}

	email := normalizeEmail(in.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: malformed email", ErrInvalidMember)
	}

	role := in.Role
	if role == "" {
		role = db.RoleStudent
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidMember, role)
	}

	hash, err := r.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMember, err)
	}

	member := &db.Member{
		LastName:     lastName,
		FirstName:    firstName,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	}
	if err := r.db.WithContext(ctx).Create(member).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrMemberAlreadyExists
		}
		r.log.Error("Failed to create member", zap.String("email", email), zap.Error(err))
		return nil, classify(err)
	}

	r.log.Info("Member created",
		zap.String("member_id", member.ID),
		zap.String("role", string(member.Role)),
	)
	return member, nil
}

// GetMember implements rental.Directory.
func (r *DirectoryRepository) GetMember(ctx context.Context, id string) (*db.Member, error) {
	var member db.Member
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		r.log.Error("Failed to get member", zap.String("member_id", id), zap.Error(err))
		return nil, classify(err)
	}
	return &member, nil
}

// GetMemberByEmail looks a member up by email, case-insensitively.
func (r *DirectoryRepository) GetMemberByEmail(ctx context.Context, email string) (*db.Member, error) {
	var member db.Member
	err := r.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		r.log.Error("Failed to get member by email", zap.Error(err))
		return nil, classify(err)
	}
	return &member, nil
}

// Authenticate returns the member whose email and password match.
// Unknown emails and wrong passwords both yield ErrInvalidCredentials.
func (r *DirectoryRepository) Authenticate(ctx context.Context, email, password string) (*db.Member, error) {
	member, err := r.GetMemberByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, rental.ErrRecordNotFound) {
			r.hasher.VerifyCredential(r.unknownMemberHash(), password)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !r.hasher.VerifyCredential(member.PasswordHash, password) {
		r.log.Info("Login rejected", zap.String("member_id", member.ID))
		return nil, ErrInvalidCredentials
	}
	return member, nil
}

func (r *DirectoryRepository) unknownMemberHash() string {
	r.dummyOnce.Do(func() {
		hash, err := r.hasher.Hash("unknown-member-placeholder")
		if err != nil {
			r.log.Warn("Failed to prepare placeholder hash", zap.Error(err))
			return
		}
		r.dummyHash = hash
	})
	return r.dummyHash
}

// ListMembers returns members ordered by last and first name, optionally of one role.
func (r *DirectoryRepository) ListMembers(ctx context.Context, role db.Role) ([]*db.Member, error) {
	query := r.db.WithContext(ctx).Model(&db.Member{})
	if role != "" {
		query = query.Where("role = ?", role)
	}

	var members []*db.Member
	if err := query.Order("last_name ASC").Order("first_name ASC").Order("id ASC").Find(&members).Error; err != nil {
		r.log.Error("Failed to list members", zap.Error(err))
		return nil, classify(err)
	}
	return members, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
