package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// CodeGenerator produces candidate referral codes. Uniqueness is enforced by the service.
type CodeGenerator interface {
	Generate() (string, error)
}

type Repository interface {
	FindCode(ctx context.Context, db *gorm.DB, code string) (*Code, error)
	FindActiveCodeByOwner(ctx context.Context, db *gorm.DB, userID string) (*Code, error)
	CodeExists(ctx context.Context, db *gorm.DB, code string) (bool, error)
	InsertCode(ctx context.Context, db *gorm.DB, code *Code) error
	DeactivateOwnerCodes(ctx context.Context, db *gorm.DB, userID string, now time.Time) (int64, error)
	IncrementUses(ctx context.Context, db *gorm.DB, code string, now time.Time) (int64, error)

	FindReferrer(ctx context.Context, db *gorm.DB, userID string) (string, error)
	ListUpline(ctx context.Context, db *gorm.DB, userID string) ([]Edge, error)
	ListDownline(ctx context.Context, db *gorm.DB, userID string) ([]Edge, error)
	InsertEdge(ctx context.Context, db *gorm.DB, edge *Edge) error

	CountByLevel(ctx context.Context, db *gorm.DB, referrerID string) ([]LevelCount, error)
	ListPaidCommissions(ctx context.Context, db *gorm.DB, userID string) ([]LevelAmount, error)
}

//go:generate mockgen -source=service.go -destination=./mocks/mock_service.go -package=mocks
type Service interface {
	// Generate issues a fresh code for the owner, retiring any active one.
	Generate(ctx context.Context, ownerID string) (*Code, error)
	// EnsureCode returns the owner's active code, generating one when absent.
	EnsureCode(ctx context.Context, ownerID string) (*Code, error)
	Apply(ctx context.Context, code, userID string) (*ApplyResult, error)
	Deactivate(ctx context.Context, ownerID string) error
	Stats(ctx context.Context, userID string) (*Stats, error)
}

var (
	ErrCodeRequired     = errors.New("referral_code_required")
	ErrUserRequired     = errors.New("user_required")
	ErrCodeNotFound     = errors.New("referral_code_not_found")
	ErrSelfReferral     = errors.New("self_referral")
	ErrAlreadyReferred  = errors.New("already_referred")
	ErrReferralCycle    = errors.New("referral_cycle")
	ErrExhaustedRetries = errors.New("referral_code_retries_exhausted")
)
