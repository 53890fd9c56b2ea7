// Package records orchestrates the upload and view workflows, sequencing
// the vault, the ledger client, object storage, and the audit trail so
// callers get exactly one consistent outcome per operation.
package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lifexhealth/medvault/internal/common"
	"github.com/lifexhealth/medvault/internal/cryptox"
	"github.com/lifexhealth/medvault/internal/logging"
	"github.com/lifexhealth/medvault/internal/server/audittrail"
	"github.com/lifexhealth/medvault/internal/server/config"
	"github.com/lifexhealth/medvault/internal/server/ledger"
	"github.com/lifexhealth/medvault/internal/server/models"
	recordsrepo "github.com/lifexhealth/medvault/internal/server/repositories/records"
	"github.com/lifexhealth/medvault/internal/server/repositories/repomanager"
	"github.com/lifexhealth/medvault/internal/server/vault"
)

// sweepBatchSize bounds how many records one sweep pass re-anchors.
const sweepBatchSize = 100

type Service struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	vault       *vault.Vault
	ledger      *ledger.Client
	audit       *audittrail.Service
	store       ObjectStore
	logger      logging.Logger

	sweepInterval time.Duration

	now func() time.Time
}

func NewService(db *sql.DB, m repomanager.RepositoryManager, v *vault.Vault, l *ledger.Client,
	audit *audittrail.Service, store ObjectStore, logger logging.Logger, cfg *config.Config) *Service {
	return &Service{
		db:            db,
		repomanager:   m,
		vault:         v,
		ledger:        l,
		audit:         audit,
		store:         store,
		logger:        logger.With("module", "records"),
		sweepInterval: cfg.AnchorSweepInterval,
		now:           time.Now,
	}
}

// UploadInput carries the plaintext content of a new record. Document is
// the optional attachment payload; it is sealed before leaving the process.
type UploadInput struct {
	PatientID     string
	RecordType    models.RecordType
	Title         string
	Description   string
	Department    string
	DateOfService time.Time
	Document      []byte
}

// UploadResult reports a completed upload. Anchored distinguishes the full
// success from the degraded one where the record persisted but anchoring
// attempts were exhausted; the caller must not treat the latter as failure.
type UploadResult struct {
	Record   *models.MedicalRecord
	Anchored bool
}

// Upload persists a new record and anchors its fingerprint. Only staff
// upload records. The persisted record survives registry unavailability:
// anchoring failure downgrades the result, it does not roll back the write.
func (s *Service) Upload(ctx context.Context, uploader *models.Account, in *UploadInput) (*UploadResult, error) {
	if uploader.Role != models.RoleStaff {
		return nil, common.ErrUnauthorized
	}
	if !in.RecordType.Valid() {
		return nil, fmt.Errorf("unknown record type %q", in.RecordType)
	}

	patient, err := s.repomanager.Accounts(s.db).GetByID(ctx, in.PatientID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrNotFound
		}
		return nil, common.ErrInternal
	}
	if patient.Role != models.RolePatient {
		return nil, fmt.Errorf("account %s is not a patient", in.PatientID)
	}

	if err := s.vault.CheckPayloadBound(int64(len(in.Document))); err != nil {
		return nil, err
	}

	record := &models.MedicalRecord{
		ID:           uuid.NewString(),
		PatientID:    in.PatientID,
		UploadedByID: uploader.ID,
		RecordType:   in.RecordType,
		Title:        in.Title,
		Description:  in.Description,
		Department:   in.Department,
		// The service date is stored at day granularity. Normalizing here
		// keeps the anchored canonical bytes identical to what every later
		// read recomputes.
		DateOfService: in.DateOfService.UTC().Truncate(24 * time.Hour),
		Status:        models.AnchorPending,
	}

	if len(in.Document) > 0 {
		record.DocumentDigest = cryptox.Digest(in.Document)
		sealed, err := s.vault.SealPayload(in.Document)
		if err != nil {
			return nil, err
		}
		key := GetRandomStorageKey()
		if err := s.store.Put(ctx, key, sealed); err != nil {
			s.logger.Error(ctx, "document store put failed", "error", err.Error())
			return nil, common.ErrInternal
		}
		record.DocumentKey = key
	}

	// Canonical bytes come from the plaintext before sealing; this is the
	// content the registry will hold us to.
	canonical, err := CanonicalBytes(record)
	if err != nil {
		return nil, common.ErrInternal
	}

	if err := s.vault.SealSensitiveFields(record); err != nil {
		return nil, err
	}

	repo := s.repomanager.Records(s.db)
	if err := repo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("error creating record: %w", err)
	}

	result := &UploadResult{Record: record}

	anchor, err := s.ledger.Anchor(ctx, record.ID, canonical, uploader.ID)
	if err != nil {
		s.logger.Warn(ctx, "anchoring failed, record stays pending",
			"record", record.ID, "error", err.Error())
		if err := repo.SetStatus(ctx, record.ID, models.AnchorFailed); err != nil {
			return nil, common.ErrInternal
		}
		record.Status = models.AnchorFailed
	} else {
		at := anchor.AnchoredAt
		if err := repo.SetAnchored(ctx, record.ID, anchor.Digest, at); err != nil {
			return nil, common.ErrInternal
		}
		record.Digest = anchor.Digest
		record.Status = models.AnchorAnchored
		record.AnchoredAt = &at
		result.Anchored = true
	}

	outcome := "uploaded"
	details := fmt.Sprintf("status %s", record.Status)
	if _, err := s.audit.Append(ctx, &models.AuditEntry{
		Actor:    uploader.ID,
		Action:   models.ActionUploadRecord,
		RecordID: record.ID,
		Outcome:  outcome,
		Details:  details,
	}); err != nil {
		return nil, err
	}

	return result, nil
}

// RecordView is what a requester gets back from View: the record (plaintext
// or masked per the vault's policy), the attachment payload when present and
// readable, and the integrity badge.
type RecordView struct {
	Record   models.MedicalRecord
	Masked   bool
	Badge    models.VerificationBadge
	Document []byte
}

// View fetches a record, applies the vault's access policy, and verifies
// integrity against the ledger. Verification runs only for anchored records
// read in plaintext; masked and not-yet-anchored views carry the Unverified
// badge. A registry outage degrades the badge, never the view. A digest
// mismatch is reported in-band and escalates the record to Unverifiable.
func (s *Service) View(ctx context.Context, requester *models.Account, recordID, justification string) (*RecordView, error) {
	repo := s.repomanager.Records(s.db)

	record, err := repo.Get(ctx, recordID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrNotFound
		}
		return nil, common.ErrInternal
	}

	// Patients reaching for another patient's record is a hard denial, not
	// a masked view. The attempt is still audited.
	if requester.Role == models.RolePatient && requester.ID != record.PatientID {
		if _, err := s.audit.Append(ctx, &models.AuditEntry{
			Actor:    requester.ID,
			Action:   models.ActionViewRecord,
			RecordID: record.ID,
			Outcome:  "denied",
		}); err != nil {
			return nil, err
		}
		return nil, common.ErrUnauthorized
	}

	opened, err := s.vault.Open(record, requester, justification)
	if err != nil {
		if errors.Is(err, common.ErrEncryptionUnavailable) {
			return nil, err
		}
		// Undecryptable ciphertext means the stored row no longer matches
		// what was sealed. That is an integrity incident, not a plain error.
		return nil, s.escalate(ctx, repo, record, requester.ID, "sealed content unreadable")
	}

	view := &RecordView{
		Record: opened.Record,
		Masked: opened.Masked,
		Badge:  models.BadgeUnverified,
	}

	if !view.Masked && record.Status == models.AnchorAnchored {
		badge, err := s.verifyOpened(ctx, repo, record, &opened.Record, requester.ID)
		if err != nil {
			return nil, err
		}
		view.Badge = badge
	}

	if !view.Masked && record.DocumentKey != "" && view.Badge != models.BadgeMismatch {
		document, err := s.fetchDocument(ctx, record.DocumentKey)
		if err != nil {
			s.logger.Warn(ctx, "document fetch failed", "record", record.ID, "error", err.Error())
		} else {
			view.Document = document
		}
	}

	outcome := "viewed"
	if view.Masked {
		outcome = "masked"
	}
	if _, err := s.audit.Append(ctx, &models.AuditEntry{
		Actor:    requester.ID,
		Action:   models.ActionViewRecord,
		RecordID: record.ID,
		Outcome:  outcome,
		Details:  fmt.Sprintf("badge %s", view.Badge),
	}); err != nil {
		return nil, err
	}

	return view, nil
}

// verifyOpened checks the decrypted content against the registry. The
// attachment participates through a freshly recomputed digest, so a swapped
// object-store payload surfaces as a mismatch too.
func (s *Service) verifyOpened(ctx context.Context, repo recordsrepo.Repository, stored *models.MedicalRecord,
	opened *models.MedicalRecord, actor string) (models.VerificationBadge, error) {

	documentDigest := stored.DocumentDigest
	if stored.DocumentKey != "" {
		document, err := s.fetchDocument(ctx, stored.DocumentKey)
		if err != nil {
			s.logger.Warn(ctx, "document unavailable for verification",
				"record", stored.ID, "error", err.Error())
			return models.BadgeUnverified, nil
		}
		documentDigest = cryptox.Digest(document)
	}

	canonical, err := canonicalBytesWithDocument(opened, documentDigest)
	if err != nil {
		return "", common.ErrInternal
	}

	outcome, err := s.ledger.Verify(ctx, stored.ID, canonical)
	if err != nil {
		s.logger.Warn(ctx, "verification unavailable", "record", stored.ID, "error", err.Error())
		return models.BadgeUnverified, nil
	}

	if outcome == ledger.Mismatch {
		if err := s.escalate(ctx, repo, stored, actor, "digest mismatch, escalated for admin review"); err != nil {
			return "", err
		}
		return models.BadgeMismatch, nil
	}

	if _, err := s.audit.Append(ctx, &models.AuditEntry{
		Actor:    actor,
		Action:   models.ActionVerifyRecord,
		RecordID: stored.ID,
		Outcome:  string(ledger.Verified),
	}); err != nil {
		return "", err
	}
	return models.BadgeVerified, nil
}

// escalate marks the record Unverifiable and writes the mismatch audit
// entry. The anchored digest is never touched: the registry stays the
// authority on what the content was.
func (s *Service) escalate(ctx context.Context, repo recordsrepo.Repository, record *models.MedicalRecord, actor, details string) error {
	if err := repo.SetStatus(ctx, record.ID, models.AnchorUnverifiable); err != nil {
		return common.ErrInternal
	}
	s.logger.Error(ctx, "record integrity mismatch", "record", record.ID, "details", details)
	if _, err := s.audit.Append(ctx, &models.AuditEntry{
		Actor:    actor,
		Action:   models.ActionVerifyMismatch,
		RecordID: record.ID,
		Outcome:  string(ledger.Mismatch),
		Details:  details,
	}); err != nil {
		return err
	}
	return nil
}

// List returns a patient's records with sealed fields untouched. Patients
// see only their own; staff and admins may list any patient.
func (s *Service) List(ctx context.Context, requester *models.Account, patientID string) ([]*models.MedicalRecord, error) {
	if requester.Role == models.RolePatient && requester.ID != patientID {
		return nil, common.ErrUnauthorized
	}
	return s.repomanager.Records(s.db).ListByPatient(ctx, patientID)
}

func (s *Service) fetchDocument(ctx context.Context, key string) ([]byte, error) {
	sealed, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return s.vault.OpenPayload(sealed)
}

// RunSweeper periodically retries anchoring for records the upload path
// left Pending or Failed. It blocks until ctx is cancelled.
func (s *Service) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.SweepUnanchored(ctx); err != nil {
				s.logger.Error(ctx, "anchor sweep failed", "error", err.Error())
			}
		}
	}
}

// SweepUnanchored re-anchors one batch of Pending and Failed records. The
// registry's write-once semantics make the retry safe: a record anchored by
// a lost earlier attempt resolves idempotently.
func (s *Service) SweepUnanchored(ctx context.Context) error {
	repo := s.repomanager.Records(s.db)

	var batch []*models.MedicalRecord
	for _, status := range []models.AnchorStatus{models.AnchorPending, models.AnchorFailed} {
		part, err := repo.ListByStatus(ctx, status, sweepBatchSize)
		if err != nil {
			return err
		}
		batch = append(batch, part...)
	}

	for _, record := range batch {
		if err := s.sweepOne(ctx, repo, record); err != nil {
			s.logger.Warn(ctx, "re-anchor failed", "record", record.ID, "error", err.Error())
			if errors.Is(err, common.ErrAuditUnavailable) {
				return err
			}
			if err := repo.SetStatus(ctx, record.ID, models.AnchorFailed); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Service) sweepOne(ctx context.Context, repo recordsrepo.Repository, record *models.MedicalRecord) error {
	unsealed, err := s.vault.Unseal(record)
	if err != nil {
		return err
	}

	canonical, err := CanonicalBytes(unsealed)
	if err != nil {
		return err
	}

	anchor, err := s.ledger.Anchor(ctx, record.ID, canonical, record.UploadedByID)
	if err != nil {
		return err
	}

	if err := repo.SetAnchored(ctx, record.ID, anchor.Digest, anchor.AnchoredAt); err != nil {
		return err
	}

	if _, err := s.audit.Append(ctx, &models.AuditEntry{
		Actor:    models.SystemActor,
		Action:   models.ActionUploadRecord,
		RecordID: record.ID,
		Outcome:  "anchored",
		Details:  "background re-anchor",
	}); err != nil {
		return err
	}
	return nil
}
