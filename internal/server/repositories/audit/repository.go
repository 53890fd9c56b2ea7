// Package audit persists the append-only audit trail. The public contract
// deliberately has no update or delete operation.
package audit

import (
	"context"

	"github.com/lifexhealth/medvault/internal/server/models"
)

type Repository interface {
	// Append inserts the entry as a whole unit and fills in the assigned
	// sequence number and timestamp.
	Append(ctx context.Context, entry *models.AuditEntry) (int64, error)

	// Tail returns the most recently appended entry, or common.ErrNotFound
	// when the trail is empty. Used to seed the hash chain after restart.
	Tail(ctx context.Context) (*models.AuditEntry, error)

	Query(ctx context.Context, filter models.AuditFilter) ([]*models.AuditEntry, error)
}
