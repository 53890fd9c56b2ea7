package audittrail

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/lifexhealth/medvault/internal/common"
	"github.com/lifexhealth/medvault/internal/dbx"
	"github.com/lifexhealth/medvault/internal/logging"
	"github.com/lifexhealth/medvault/internal/server/models"
	accountsrepo "github.com/lifexhealth/medvault/internal/server/repositories/accounts"
	auditrepo "github.com/lifexhealth/medvault/internal/server/repositories/audit"
	recordsrepo "github.com/lifexhealth/medvault/internal/server/repositories/records"
	sessionsrepo "github.com/lifexhealth/medvault/internal/server/repositories/sessions"
)

// --- fakes ---

type memAuditRepo struct {
	entries   []*models.AuditEntry
	appendErr error
}

func (m *memAuditRepo) Append(ctx context.Context, entry *models.AuditEntry) (int64, error) {
	if m.appendErr != nil {
		return 0, m.appendErr
	}
	copied := *entry
	m.entries = append(m.entries, &copied)
	return copied.Seq, nil
}

func (m *memAuditRepo) Tail(ctx context.Context) (*models.AuditEntry, error) {
	if len(m.entries) == 0 {
		return nil, common.ErrNotFound
	}
	return m.entries[len(m.entries)-1], nil
}

func (m *memAuditRepo) Query(ctx context.Context, filter models.AuditFilter) ([]*models.AuditEntry, error) {
	var out []*models.AuditEntry
	for _, e := range m.entries {
		if e.Seq > filter.AfterSeq {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeRepoManager struct {
	audit *memAuditRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error    { return nil }
func (m *fakeRepoManager) Accounts(db dbx.DBTX) accountsrepo.Repository   { return nil }
func (m *fakeRepoManager) Sessions(db dbx.DBTX) sessionsrepo.Repository   { return nil }
func (m *fakeRepoManager) Records(db dbx.DBTX) recordsrepo.Repository     { return nil }
func (m *fakeRepoManager) Audit(db dbx.DBTX) auditrepo.Repository         { return m.audit }

func nopLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewJSONHandler(io.Discard, nil)))
}

func newTrail(repo *memAuditRepo) *Service {
	return NewService(nil, &fakeRepoManager{audit: repo}, nopLogger())
}

// --- tests ---

func TestAppend_LinksChain(t *testing.T) {
	repo := &memAuditRepo{}
	s := newTrail(repo)
	ctx := context.Background()

	seq1, err := s.Append(ctx, &models.AuditEntry{Actor: "a-1", Action: models.ActionLoginSuccess, Outcome: "authenticated"})
	if err != nil {
		t.Fatalf("Append error: %v", err)
	}
	seq2, err := s.Append(ctx, &models.AuditEntry{Actor: "a-1", Action: models.ActionViewRecord, RecordID: "r-1", Outcome: "viewed"})
	if err != nil {
		t.Fatalf("Append error: %v", err)
	}

	if seq1 != 1 || seq2 != 2 {
		t.Fatalf("unexpected sequence numbers: %d, %d", seq1, seq2)
	}

	first, second := repo.entries[0], repo.entries[1]
	if first.ChainPrev != "" {
		t.Fatalf("first entry must chain from empty prev, got %q", first.ChainPrev)
	}
	if first.ChainHash != ChainHash("", first) {
		t.Fatalf("first chain hash mismatch")
	}
	if second.ChainPrev != first.ChainHash {
		t.Fatalf("second entry not linked to first: %q vs %q", second.ChainPrev, first.ChainHash)
	}
}

func TestAppend_SeedsFromPersistedTail(t *testing.T) {
	repo := &memAuditRepo{}
	repo.entries = append(repo.entries, &models.AuditEntry{Seq: 10, ChainHash: "persisted-tail"})

	s := newTrail(repo)
	if _, err := s.Append(context.Background(), &models.AuditEntry{Actor: "a-1", Action: models.ActionLoginSuccess}); err != nil {
		t.Fatalf("Append error: %v", err)
	}

	appended := repo.entries[len(repo.entries)-1]
	if appended.ChainPrev != "persisted-tail" {
		t.Fatalf("chain not resumed from persisted tail: %q", appended.ChainPrev)
	}
}

func TestAppend_SinkFailure(t *testing.T) {
	repo := &memAuditRepo{appendErr: errors.New("sink down")}
	s := newTrail(repo)

	_, err := s.Append(context.Background(), &models.AuditEntry{Actor: "a-1", Action: models.ActionLoginFailure})
	if !errors.Is(err, common.ErrAuditUnavailable) {
		t.Fatalf("want ErrAuditUnavailable, got %v", err)
	}
}

func TestVerifyChain_Intact(t *testing.T) {
	repo := &memAuditRepo{}
	s := newTrail(repo)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.Append(ctx, &models.AuditEntry{Actor: "a-1", Action: models.ActionViewRecord, Outcome: "viewed"}); err != nil {
			t.Fatalf("Append error: %v", err)
		}
	}

	if broken := VerifyChain(repo.entries, ""); broken != 0 {
		t.Fatalf("expected intact chain, broken at %d", broken)
	}
}

func TestVerifyChain_DetectsMutation(t *testing.T) {
	repo := &memAuditRepo{}
	s := newTrail(repo)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.Append(ctx, &models.AuditEntry{Actor: "a-1", Action: models.ActionViewRecord, Outcome: "viewed"}); err != nil {
			t.Fatalf("Append error: %v", err)
		}
	}

	repo.entries[1].Details = "tampered"

	if broken := VerifyChain(repo.entries, ""); broken != 2 {
		t.Fatalf("expected break at seq 2, got %d", broken)
	}
}

func TestVerifyChain_DetectsTimestampRewrite(t *testing.T) {
	repo := &memAuditRepo{}
	s := newTrail(repo)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.Append(ctx, &models.AuditEntry{Actor: "a-1", Action: models.ActionViewRecord, Outcome: "viewed"}); err != nil {
			t.Fatalf("Append error: %v", err)
		}
	}

	// Reporting filters select on created_at, so shifting a row's timestamp
	// without touching the payload must still break the chain.
	repo.entries[1].CreatedAt = repo.entries[1].CreatedAt.Add(-time.Hour)

	if broken := VerifyChain(repo.entries, ""); broken != 2 {
		t.Fatalf("expected break at seq 2, got %d", broken)
	}
}

func TestVerifyChain_DetectsRenumbering(t *testing.T) {
	repo := &memAuditRepo{}
	s := newTrail(repo)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.Append(ctx, &models.AuditEntry{Actor: "a-1", Action: models.ActionViewRecord, Outcome: "viewed"}); err != nil {
			t.Fatalf("Append error: %v", err)
		}
	}

	repo.entries[2].Seq = 9

	if broken := VerifyChain(repo.entries, ""); broken != 9 {
		t.Fatalf("expected break at the renumbered entry, got %d", broken)
	}
}

func TestVerifyChain_DetectsRemoval(t *testing.T) {
	repo := &memAuditRepo{}
	s := newTrail(repo)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.Append(ctx, &models.AuditEntry{Actor: "a-1", Action: models.ActionViewRecord, Outcome: "viewed"}); err != nil {
			t.Fatalf("Append error: %v", err)
		}
	}

	// Drop the middle entry: the third one no longer links to its predecessor.
	gapped := []*models.AuditEntry{repo.entries[0], repo.entries[2]}

	if broken := VerifyChain(gapped, ""); broken != 3 {
		t.Fatalf("expected break at seq 3, got %d", broken)
	}
}
