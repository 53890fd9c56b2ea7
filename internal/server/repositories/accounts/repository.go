package accounts

import (
	"context"
	"time"

	"github.com/lifexhealth/medvault/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	GetByID(ctx context.Context, id string) (*models.Account, error)

	// IncrementFailedAttempts atomically bumps the failure counter and
	// returns the new value, so two concurrent failed logins cannot
	// under-count and bypass lockout.
	IncrementFailedAttempts(ctx context.Context, id string) (int, error)
	ResetFailedAttempts(ctx context.Context, id string) error
	Lock(ctx context.Context, id string, until time.Time) error
	Deactivate(ctx context.Context, id string) error

	SetCredentialHash(ctx context.Context, id string, hash string) error
	CredentialHistory(ctx context.Context, id string, depth int) ([]string, error)
	PushCredentialHistory(ctx context.Context, id string, hash string, depth int) error
}
