package accounts

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
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

const accountColumnsRe = `id,\s*email,\s*full_name,\s*role,\s*department,\s*credential_hash,\s*failed_attempts,\s*locked_until,\s*is_active,\s*created_at`

func accountRows(createdAt time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "email", "full_name", "role", "department",
		"credential_hash", "failed_attempts", "locked_until", "is_active", "created_at"}).
		AddRow("a-1", "alice@clinic.test", "Alice", "STAFF", "Radiology",
			"salt$hash", 0, nil, true, createdAt)
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*INSERT\s+INTO\s+accounts\s*\(email,\s*full_name,\s*role,\s*department,\s*credential_hash\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5\)\s*RETURNING\s+id,\s*created_at\s*$`

	created := time.Now()
	rows := sqlmock.NewRows([]string{"id", "created_at"}).AddRow("a-1", created)
	mock.ExpectQuery(q).
		WithArgs("alice@clinic.test", "Alice", "STAFF", "Radiology", "salt$hash").
		WillReturnRows(rows)

	got, err := repo.Create(context.Background(), &models.Account{
		Email: "alice@clinic.test", FullName: "Alice", Role: models.RoleStaff,
		Department: "Radiology", CredentialHash: "salt$hash",
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if got.ID != "a-1" || !got.Active {
		t.Fatalf("unexpected account: %+v", got)
	}
}

func TestGetByEmail_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*SELECT\s+` + accountColumnsRe + `\s+FROM\s+accounts\s+WHERE\s+email\s*=\s*\$1\s*$`

	mock.ExpectQuery(q).WithArgs("alice@clinic.test").WillReturnRows(accountRows(time.Now()))

	got, err := repo.GetByEmail(context.Background(), "alice@clinic.test")
	if err != nil {
		t.Fatalf("GetByEmail error: %v", err)
	}
	if got.ID != "a-1" || got.Role != models.RoleStaff || got.LockedUntil != nil {
		t.Fatalf("unexpected account: %+v", got)
	}
}

func TestGetByEmail_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*SELECT\s+` + accountColumnsRe + `\s+FROM\s+accounts\s+WHERE\s+email\s*=\s*\$1\s*$`

	mock.ExpectQuery(q).WithArgs("ghost@clinic.test").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByEmail(context.Background(), "ghost@clinic.test")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want common.ErrNotFound, got %v", err)
	}
}

func TestGetByID_LockedUntilScanned(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*SELECT\s+` + accountColumnsRe + `\s+FROM\s+accounts\s+WHERE\s+id\s*=\s*\$1\s*$`

	until := time.Now().Add(10 * time.Minute)
	rows := sqlmock.NewRows([]string{"id", "email", "full_name", "role", "department",
		"credential_hash", "failed_attempts", "locked_until", "is_active", "created_at"}).
		AddRow("a-2", "bob@clinic.test", "Bob", "PATIENT", "", "s$h", 5, until, true, time.Now())
	mock.ExpectQuery(q).WithArgs("a-2").WillReturnRows(rows)

	got, err := repo.GetByID(context.Background(), "a-2")
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if got.LockedUntil == nil || !got.LockedUntil.Equal(until) {
		t.Fatalf("locked_until not scanned: %+v", got.LockedUntil)
	}
	if got.FailedAttempts != 5 {
		t.Fatalf("unexpected failed attempts: %d", got.FailedAttempts)
	}
}

func TestIncrementFailedAttempts(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*UPDATE\s+accounts\s+SET\s+failed_attempts\s*=\s*failed_attempts\s*\+\s*1\s+WHERE\s+id\s*=\s*\$1\s+RETURNING\s+failed_attempts\s*$`

	rows := sqlmock.NewRows([]string{"failed_attempts"}).AddRow(3)
	mock.ExpectQuery(q).WithArgs("a-1").WillReturnRows(rows)

	got, err := repo.IncrementFailedAttempts(context.Background(), "a-1")
	if err != nil {
		t.Fatalf("IncrementFailedAttempts error: %v", err)
	}
	if got != 3 {
		t.Fatalf("unexpected attempts: %d", got)
	}
}

func TestResetFailedAttempts_ClearsLock(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*UPDATE\s+accounts\s+SET\s+failed_attempts\s*=\s*0,\s*locked_until\s*=\s*NULL\s+WHERE\s+id\s*=\s*\$1\s*$`

	mock.ExpectExec(q).WithArgs("a-1").WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.ResetFailedAttempts(context.Background(), "a-1"); err != nil {
		t.Fatalf("ResetFailedAttempts error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestLock(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*UPDATE\s+accounts\s+SET\s+locked_until\s*=\s*\$2\s+WHERE\s+id\s*=\s*\$1\s*$`

	until := time.Now().Add(15 * time.Minute)
	mock.ExpectExec(q).WithArgs("a-1", until).WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Lock(context.Background(), "a-1", until); err != nil {
		t.Fatalf("Lock error: %v", err)
	}
}

func TestCredentialHistory(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*SELECT\s+credential_hash\s+FROM\s+credential_history\s+WHERE\s+account_id\s*=\s*\$1\s+ORDER\s+BY\s+id\s+DESC\s+LIMIT\s+\$2\s*$`

	rows := sqlmock.NewRows([]string{"credential_hash"}).AddRow("h2").AddRow("h1")
	mock.ExpectQuery(q).WithArgs("a-1", 3).WillReturnRows(rows)

	got, err := repo.CredentialHistory(context.Background(), "a-1", 3)
	if err != nil {
		t.Fatalf("CredentialHistory error: %v", err)
	}
	if len(got) != 2 || got[0] != "h2" {
		t.Fatalf("unexpected history: %v", got)
	}
}

func TestPushCredentialHistory_InsertsAndTrims(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	insert := `(?s)^\s*INSERT\s+INTO\s+credential_history\s*\(account_id,\s*credential_hash\)\s*VALUES\s*\(\$1,\s*\$2\)\s*$`
	trim := `(?s)^\s*DELETE\s+FROM\s+credential_history\s+WHERE\s+account_id\s*=\s*\$1\s+AND\s+id\s+NOT\s+IN`

	mock.ExpectExec(insert).WithArgs("a-1", "old-hash").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(trim).WithArgs("a-1", 3).WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.PushCredentialHistory(context.Background(), "a-1", "old-hash", 3); err != nil {
		t.Fatalf("PushCredentialHistory error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)INSERT\s+INTO\s+accounts`).WillReturnError(errors.New("db down"))

	_, err := repo.Create(context.Background(), &models.Account{Email: "x@y", Role: models.RolePatient})
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}
