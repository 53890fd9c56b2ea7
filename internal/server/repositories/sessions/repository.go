// Package sessions provides persistence for issued session tokens. The
// revoked flag is the durable side of the revocation set: a token marked
// revoked here must be rejected even before its nominal expiry.
package sessions

import (
	"context"

	"github.com/lifexhealth/medvault/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, session *models.Session) error
	Find(ctx context.Context, tokenID string) (*models.Session, error)
	Revoke(ctx context.Context, tokenID string) error
}
