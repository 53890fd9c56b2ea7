package records

import (
	"context"
	"time"

	"github.com/lifexhealth/medvault/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, record *models.MedicalRecord) error
	Get(ctx context.Context, id string) (*models.MedicalRecord, error)
	ListByPatient(ctx context.Context, patientID string) ([]*models.MedicalRecord, error)
	ListByStatus(ctx context.Context, status models.AnchorStatus, limit int) ([]*models.MedicalRecord, error)

	// SetAnchored records the fingerprint exactly once. A second call for the
	// same record is a no-op at the SQL level (digest is write-once).
	SetAnchored(ctx context.Context, id string, digest string, at time.Time) error
	SetStatus(ctx context.Context, id string, status models.AnchorStatus) error
}
