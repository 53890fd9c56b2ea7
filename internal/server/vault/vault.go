// Package vault is the encryption boundary for sensitive record content.
// Designated fields (description, department) and document payloads only
// exist in plaintext on this side of the boundary; everything persisted is
// AES-GCM ciphertext. The key is injected at construction and is never
// derived from request data: losing it renders all previously sealed
// content permanently unrecoverable, which is an operational invariant of
// the design, not a defect.
package vault

import (
	"encoding/base64"

	"github.com/lifexhealth/medvault/internal/common"
	"github.com/lifexhealth/medvault/internal/cryptox"
	"github.com/lifexhealth/medvault/internal/logging"
	"github.com/lifexhealth/medvault/internal/server/models"
)

// RedactionMarker replaces sensitive fields in a masked view.
const RedactionMarker = "[REDACTED]"

type Vault struct {
	key               []byte
	maxCanonicalBytes int64
	logger            logging.Logger
}

func New(key []byte, maxCanonicalBytes int64, logger logging.Logger) *Vault {
	return &Vault{
		key:               key,
		maxCanonicalBytes: maxCanonicalBytes,
		logger:            logger.With("module", "vault"),
	}
}

// View is the result of opening a record. When Masked is set the sensitive
// fields hold RedactionMarker instead of plaintext; masking, not failure, is
// the outcome for unauthorized-but-legitimate read attempts.
type View struct {
	Record models.MedicalRecord
	Masked bool
}

// CheckPayloadBound rejects payloads exceeding the configured canonical byte
// bound. Called before any hashing or sealing work is spent on the payload.
func (v *Vault) CheckPayloadBound(size int64) error {
	if size > v.maxCanonicalBytes {
		return common.ErrPayloadTooLarge
	}
	return nil
}

// SealSensitiveFields encrypts the record's sensitive fields in place and
// sets is_encrypted. Each call uses a fresh nonce, so sealing identical
// plaintext twice yields different ciphertext.
func (v *Vault) SealSensitiveFields(record *models.MedicalRecord) error {
	if len(v.key) == 0 {
		return common.ErrEncryptionUnavailable
	}

	description, err := v.sealString(record.Description)
	if err != nil {
		return err
	}
	department, err := v.sealString(record.Department)
	if err != nil {
		return err
	}

	record.Description = description
	record.Department = department
	record.IsEncrypted = true
	return nil
}

// Open decrypts the record's sensitive fields for an authorized requester,
// or returns a masked view otherwise. Access policy, switched exhaustively
// over the closed role set:
//
//   - Patient: plaintext for their own records only.
//   - Staff: plaintext (clinical availability outranks minimization here).
//   - Admin: plaintext only with a non-empty justification, which the caller
//     records in the audit trail.
func (v *Vault) Open(record *models.MedicalRecord, requester *models.Account, justification string) (*View, error) {
	view := &View{Record: *record}

	if !v.authorized(record, requester, justification) {
		view.Record.Description = RedactionMarker
		view.Record.Department = RedactionMarker
		view.Masked = true
		return view, nil
	}

	unsealed, err := v.Unseal(record)
	if err != nil {
		return nil, err
	}
	view.Record = *unsealed
	return view, nil
}

// Unseal decrypts a record's sensitive fields for internal workflows (the
// anchor sweep, verification) that need canonical content without acting on
// behalf of a principal. Nothing returned from here leaves the process.
func (v *Vault) Unseal(record *models.MedicalRecord) (*models.MedicalRecord, error) {
	out := *record
	if !record.IsEncrypted {
		return &out, nil
	}
	if len(v.key) == 0 {
		return nil, common.ErrEncryptionUnavailable
	}

	description, err := v.openString(record.Description)
	if err != nil {
		return nil, err
	}
	department, err := v.openString(record.Department)
	if err != nil {
		return nil, err
	}

	out.Description = description
	out.Department = department
	out.IsEncrypted = false
	return &out, nil
}

// SealPayload encrypts a document payload for object storage.
func (v *Vault) SealPayload(plaintext []byte) ([]byte, error) {
	if len(v.key) == 0 {
		return nil, common.ErrEncryptionUnavailable
	}
	return cryptox.Seal(plaintext, v.key)
}

// OpenPayload decrypts a document payload fetched from object storage.
func (v *Vault) OpenPayload(sealed []byte) ([]byte, error) {
	if len(v.key) == 0 {
		return nil, common.ErrEncryptionUnavailable
	}
	return cryptox.Open(sealed, v.key)
}

func (v *Vault) authorized(record *models.MedicalRecord, requester *models.Account, justification string) bool {
	switch requester.Role {
	case models.RolePatient:
		return requester.ID == record.PatientID
	case models.RoleStaff:
		return true
	case models.RoleAdmin:
		return justification != ""
	default:
		return false
	}
}

func (v *Vault) sealString(plaintext string) (string, error) {
	sealed, err := cryptox.Seal([]byte(plaintext), v.key)
	if err != nil {
		return "", common.ErrInternal
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (v *Vault) openString(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", common.ErrInternal
	}
	plaintext, err := cryptox.Open(sealed, v.key)
	if err != nil {
		return "", common.ErrInternal
	}
	return string(plaintext), nil
}
