// Package repomanager binds entity repositories to a database handle.
// Services ask for repositories per call, passing either the pooled *sql.DB
// or an open transaction, so multi-step writes can share a tx.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/lifexhealth/medvault/internal/dbx"
	"github.com/lifexhealth/medvault/internal/server/repositories/accounts"
	"github.com/lifexhealth/medvault/internal/server/repositories/audit"
	"github.com/lifexhealth/medvault/internal/server/repositories/records"
	"github.com/lifexhealth/medvault/internal/server/repositories/sessions"
)

type RepositoryManager interface {
	RunMigrations(ctx context.Context, db *sql.DB) error
	Accounts(db dbx.DBTX) accounts.Repository
	Sessions(db dbx.DBTX) sessions.Repository
	Records(db dbx.DBTX) records.Repository
	Audit(db dbx.DBTX) audit.Repository
}
