package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

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

// Append persists the entry exactly as handed over. Seq and created_at are
// assigned by the audittrail service (the chain hash covers them), so the
// row must not substitute sink-side values.
func (r *PostgresRepository) Append(ctx context.Context, entry *models.AuditEntry) (int64, error) {
	query := `
		INSERT INTO audit_entries
			(seq, actor, action, record_id, outcome, details, is_encrypted, chain_prev, chain_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		entry.Seq, entry.Actor, entry.Action, entry.RecordID, entry.Outcome, entry.Details,
		entry.IsEncrypted, entry.ChainPrev, entry.ChainHash, entry.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return entry.Seq, nil
}

func (r *PostgresRepository) Tail(ctx context.Context) (*models.AuditEntry, error) {
	query := `
		SELECT seq, actor, action, record_id, outcome, details, is_encrypted,
		       chain_prev, chain_hash, created_at
		FROM audit_entries
		ORDER BY seq DESC
		LIMIT 1
	`
	entry := &models.AuditEntry{}
	err := r.db.QueryRowContext(ctx, query).
		Scan(&entry.Seq, &entry.Actor, &entry.Action, &entry.RecordID, &entry.Outcome,
			&entry.Details, &entry.IsEncrypted, &entry.ChainPrev, &entry.ChainHash, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return entry, nil
}

func (r *PostgresRepository) Query(ctx context.Context, filter models.AuditFilter) ([]*models.AuditEntry, error) {
	var (
		conditions []string
		args       []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.Actor != "" {
		conditions = append(conditions, "actor = "+arg(filter.Actor))
	}
	if filter.Action != "" {
		conditions = append(conditions, "action = "+arg(filter.Action))
	}
	if !filter.From.IsZero() {
		conditions = append(conditions, "created_at >= "+arg(filter.From))
	}
	if !filter.To.IsZero() {
		conditions = append(conditions, "created_at < "+arg(filter.To))
	}
	if filter.AfterSeq > 0 {
		conditions = append(conditions, "seq > "+arg(filter.AfterSeq))
	}

	query := `
		SELECT seq, actor, action, record_id, outcome, details, is_encrypted,
		       chain_prev, chain_hash, created_at
		FROM audit_entries
	`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY seq"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.AuditEntry
	for rows.Next() {
		entry := &models.AuditEntry{}
		if err := rows.Scan(&entry.Seq, &entry.Actor, &entry.Action, &entry.RecordID,
			&entry.Outcome, &entry.Details, &entry.IsEncrypted,
			&entry.ChainPrev, &entry.ChainHash, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}
