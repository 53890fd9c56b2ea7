package records

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/lifexhealth/medvault/internal/common"
	"github.com/lifexhealth/medvault/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

var recordColumnNames = []string{"id", "patient_id", "uploaded_by", "record_type", "title",
	"description", "department", "date_of_service", "document_key", "document_digest",
	"is_encrypted", "digest", "status", "anchored_at", "created_at"}

func sampleRows(t *testing.T) *sqlmock.Rows {
	t.Helper()
	now := time.Now()
	return sqlmock.NewRows(recordColumnNames).
		AddRow("r-1", "p-1", "s-1", "LAB_RESULT", "CBC panel",
			"ciphertext-desc", "ciphertext-dept", now, "", "",
			true, "", "PENDING", nil, now)
}

func TestCreate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*INSERT\s+INTO\s+medical_records\s*\(.*\)\s*VALUES\s*\(\$1,.*\$12\)\s*RETURNING\s+created_at\s*$`

	now := time.Now()
	rows := sqlmock.NewRows([]string{"created_at"}).AddRow(now)
	mock.ExpectQuery(q).
		WithArgs("r-1", "p-1", "s-1", "LAB_RESULT", "CBC panel",
			"ct-desc", "ct-dept", now, "", "", true, "PENDING").
		WillReturnRows(rows)

	record := &models.MedicalRecord{
		ID: "r-1", PatientID: "p-1", UploadedByID: "s-1",
		RecordType: models.RecordLabResult, Title: "CBC panel",
		Description: "ct-desc", Department: "ct-dept", DateOfService: now,
		IsEncrypted: true, Status: models.AnchorPending,
	}
	if err := repo.Create(context.Background(), record); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if record.CreatedAt.IsZero() {
		t.Fatalf("created_at not scanned back")
	}
}

func TestGet_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)SELECT\s+id,\s*patient_id,.*FROM\s+medical_records\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs("r-1").
		WillReturnRows(sampleRows(t))

	got, err := repo.Get(context.Background(), "r-1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.ID != "r-1" || got.Status != models.AnchorPending || got.AnchoredAt != nil {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)SELECT\s+id,`).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "ghost")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want common.ErrNotFound, got %v", err)
	}
}

func TestListByStatus(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)SELECT\s+id,.*WHERE\s+status\s*=\s*\$1\s+ORDER\s+BY\s+created_at\s+LIMIT\s+\$2`).
		WithArgs("PENDING", 100).
		WillReturnRows(sampleRows(t))

	got, err := repo.ListByStatus(context.Background(), models.AnchorPending, 100)
	if err != nil {
		t.Fatalf("ListByStatus error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "r-1" {
		t.Fatalf("unexpected result: %+v", got)
	}
}

// The digest guard makes anchoring write-once at the SQL level: a second
// SetAnchored matches zero rows instead of overwriting.
func TestSetAnchored_WriteOnceGuard(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*UPDATE\s+medical_records\s+SET\s+digest\s*=\s*\$2,\s*status\s*=\s*\$3,\s*anchored_at\s*=\s*\$4\s+WHERE\s+id\s*=\s*\$1\s+AND\s+digest\s*=\s*''\s*$`

	at := time.Now()
	mock.ExpectExec(q).
		WithArgs("r-1", "abc123", "ANCHORED", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SetAnchored(context.Background(), "r-1", "abc123", at); err != nil {
		t.Fatalf("SetAnchored error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestSetStatus(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*UPDATE\s+medical_records\s+SET\s+status\s*=\s*\$2\s+WHERE\s+id\s*=\s*\$1\s*$`

	mock.ExpectExec(q).WithArgs("r-1", "UNVERIFIABLE").WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SetStatus(context.Background(), "r-1", models.AnchorUnverifiable); err != nil {
		t.Fatalf("SetStatus error: %v", err)
	}
}
