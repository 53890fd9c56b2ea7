package accounts

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

func (r *PostgresRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	query := `
		INSERT INTO accounts (email, full_name, role, department, credential_hash)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		account.Email, account.FullName, account.Role, account.Department, account.CredentialHash).
		Scan(&account.ID, &account.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	account.Active = true
	return account, nil
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `
		SELECT id, email, full_name, role, department, credential_hash,
		       failed_attempts, locked_until, is_active, created_at
		FROM accounts
		WHERE email = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, email))
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `
		SELECT id, email, full_name, role, department, credential_hash,
		       failed_attempts, locked_until, is_active, created_at
		FROM accounts
		WHERE id = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.Account, error) {
	account := &models.Account{}
	var lockedUntil sql.NullTime
	err := row.Scan(&account.ID, &account.Email, &account.FullName, &account.Role,
		&account.Department, &account.CredentialHash, &account.FailedAttempts,
		&lockedUntil, &account.Active, &account.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if lockedUntil.Valid {
		account.LockedUntil = &lockedUntil.Time
	}
	return account, nil
}

func (r *PostgresRepository) IncrementFailedAttempts(ctx context.Context, id string) (int, error) {
	query := `
		UPDATE accounts SET failed_attempts = failed_attempts + 1
		WHERE id = $1
		RETURNING failed_attempts
	`
	var attempts int
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&attempts); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return attempts, nil
}

func (r *PostgresRepository) ResetFailedAttempts(ctx context.Context, id string) error {
	query := `
		UPDATE accounts SET failed_attempts = 0, locked_until = NULL
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Lock(ctx context.Context, id string, until time.Time) error {
	query := `
		UPDATE accounts SET locked_until = $2
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, until); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Deactivate(ctx context.Context, id string) error {
	query := `
		UPDATE accounts SET is_active = FALSE
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SetCredentialHash(ctx context.Context, id string, hash string) error {
	query := `
		UPDATE accounts SET credential_hash = $2
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, hash); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) CredentialHistory(ctx context.Context, id string, depth int) ([]string, error) {
	query := `
		SELECT credential_hash FROM credential_history
		WHERE account_id = $1
		ORDER BY id DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, id, depth)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var history []string
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		history = append(history, hash)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return history, nil
}

// PushCredentialHistory records hash as the most recent retired credential
// and evicts everything beyond the newest depth entries.
func (r *PostgresRepository) PushCredentialHistory(ctx context.Context, id string, hash string, depth int) error {
	insert := `
		INSERT INTO credential_history (account_id, credential_hash)
		VALUES ($1, $2)
	`
	if _, err := r.db.ExecContext(ctx, insert, id, hash); err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	trim := `
		DELETE FROM credential_history
		WHERE account_id = $1 AND id NOT IN (
			SELECT id FROM credential_history
			WHERE account_id = $1
			ORDER BY id DESC
			LIMIT $2
		)
	`
	if _, err := r.db.ExecContext(ctx, trim, id, depth); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
