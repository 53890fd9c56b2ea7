package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lifexhealth/medvault/internal/common"
	"github.com/lifexhealth/medvault/internal/dbx"
	"github.com/lifexhealth/medvault/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const recordColumns = `id, patient_id, uploaded_by, record_type, title, description, department,
	date_of_service, document_key, document_digest, is_encrypted, digest, status, anchored_at, created_at`

func (r *PostgresRepository) Create(ctx context.Context, record *models.MedicalRecord) error {
	query := `
		INSERT INTO medical_records
			(id, patient_id, uploaded_by, record_type, title, description, department,
			 date_of_service, document_key, document_digest, is_encrypted, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		record.ID, record.PatientID, record.UploadedByID, record.RecordType, record.Title,
		record.Description, record.Department, record.DateOfService,
		record.DocumentKey, record.DocumentDigest, record.IsEncrypted, record.Status).
		Scan(&record.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.MedicalRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM medical_records WHERE id = $1`
	record, err := scanRecord(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return record, nil
}

func (r *PostgresRepository) ListByPatient(ctx context.Context, patientID string) ([]*models.MedicalRecord, error) {
	query := `
		SELECT ` + recordColumns + ` FROM medical_records
		WHERE patient_id = $1
		ORDER BY date_of_service DESC, created_at DESC
	`
	return r.list(ctx, query, patientID)
}

func (r *PostgresRepository) ListByStatus(ctx context.Context, status models.AnchorStatus, limit int) ([]*models.MedicalRecord, error) {
	query := `
		SELECT ` + recordColumns + ` FROM medical_records
		WHERE status = $1
		ORDER BY created_at
		LIMIT $2
	`
	return r.list(ctx, query, status, limit)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.MedicalRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.MedicalRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) SetAnchored(ctx context.Context, id string, digest string, at time.Time) error {
	query := `
		UPDATE medical_records
		SET digest = $2, status = $3, anchored_at = $4
		WHERE id = $1 AND digest = ''
	`
	if _, err := r.db.ExecContext(ctx, query, id, digest, models.AnchorAnchored, at); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SetStatus(ctx context.Context, id string, status models.AnchorStatus) error {
	query := `
		UPDATE medical_records SET status = $2
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, status); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (*models.MedicalRecord, error) {
	record := &models.MedicalRecord{}
	var anchoredAt sql.NullTime
	err := row.Scan(&record.ID, &record.PatientID, &record.UploadedByID, &record.RecordType,
		&record.Title, &record.Description, &record.Department, &record.DateOfService,
		&record.DocumentKey, &record.DocumentDigest, &record.IsEncrypted,
		&record.Digest, &record.Status, &anchoredAt, &record.CreatedAt)
	if err != nil {
		return nil, err
	}
	if anchoredAt.Valid {
		record.AnchoredAt = &anchoredAt.Time
	}
	return record, nil
}
