package records

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/lifexhealth/medvault/internal/server/models"
)

// canonicalContent is the fixed field set that gets fingerprinted. Field
// order is frozen: changing it would silently invalidate every previously
// anchored digest. The record ID is the registry key and is excluded; the
// document participates through its digest, not its bytes. The service date
// is persisted at day granularity, so it is canonicalized as a bare UTC date:
// a finer format would diverge from what a later read sees.
type canonicalContent struct {
	PatientID      string `json:"patient_id"`
	RecordType     string `json:"record_type"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	Department     string `json:"department"`
	DateOfService  string `json:"date_of_service"`
	DocumentDigest string `json:"document_digest"`
}

var errSealedContent = errors.New("canonical bytes require decrypted content")

// CanonicalBytes produces the deterministic byte representation of a
// record's semantic content. The record must be decrypted: ciphertext
// varies per seal, so canonical bytes over sealed fields would never
// reproduce.
func CanonicalBytes(record *models.MedicalRecord) ([]byte, error) {
	return canonicalBytesWithDocument(record, record.DocumentDigest)
}

// canonicalBytesWithDocument substitutes a freshly recomputed document
// digest, letting verification catch a swapped payload in object storage.
func canonicalBytesWithDocument(record *models.MedicalRecord, documentDigest string) ([]byte, error) {
	if record.IsEncrypted {
		return nil, errSealedContent
	}
	return json.Marshal(canonicalContent{
		PatientID:      record.PatientID,
		RecordType:     string(record.RecordType),
		Title:          record.Title,
		Description:    record.Description,
		Department:     record.Department,
		DateOfService:  record.DateOfService.UTC().Format(time.DateOnly),
		DocumentDigest: documentDigest,
	})
}
