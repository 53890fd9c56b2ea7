package models

import "time"

// RecordType is the closed set of medical record categories.
type RecordType string

const (
	RecordLabResult    RecordType = "LAB_RESULT"
	RecordXRay         RecordType = "XRAY"
	RecordCTScan       RecordType = "CT_SCAN"
	RecordMRI          RecordType = "MRI"
	RecordPrescription RecordType = "PRESCRIPTION"
	RecordConsultation RecordType = "CONSULTATION"
	RecordDiagnosis    RecordType = "DIAGNOSIS"
	RecordVaccination  RecordType = "VACCINATION"
	RecordOther        RecordType = "OTHER"
)

func (t RecordType) Valid() bool {
	switch t {
	case RecordLabResult, RecordXRay, RecordCTScan, RecordMRI, RecordPrescription,
		RecordConsultation, RecordDiagnosis, RecordVaccination, RecordOther:
		return true
	}
	return false
}

// AnchorStatus tracks the record's relationship to the external ledger.
type AnchorStatus string

const (
	// AnchorPending means no registration attempt has completed yet.
	AnchorPending AnchorStatus = "PENDING"
	// AnchorAnchored means the digest is registered; it is write-once from here.
	AnchorAnchored AnchorStatus = "ANCHORED"
	// AnchorFailed means registration attempts were exhausted. The record
	// stays usable in a degraded, unverifiable state.
	AnchorFailed AnchorStatus = "FAILED"
	// AnchorUnverifiable means a later verification against the registered
	// digest did not return Verified.
	AnchorUnverifiable AnchorStatus = "UNVERIFIABLE"
)

// MedicalRecord is a patient record. Title is searchable plaintext;
// Description and Department are sealed at rest and only ever cross the
// vault boundary in plaintext form. Digest is set once after successful
// anchoring; content changes after that point require a new record, never
// an in-place edit.
type MedicalRecord struct {
	ID            string
	PatientID     string
	UploadedByID  string
	RecordType    RecordType
	Title         string
	Description   string
	Department    string
	DateOfService time.Time

	// DocumentKey is the object-store key of the sealed document payload,
	// empty when the record has no attachment. DocumentDigest is the sha256
	// of the plaintext payload, folded into the canonical bytes.
	DocumentKey    string
	DocumentDigest string

	IsEncrypted bool
	Digest      string
	Status      AnchorStatus
	AnchoredAt  *time.Time
	CreatedAt   time.Time
}

// VerificationBadge is the integrity signal returned with every view.
type VerificationBadge string

const (
	BadgeVerified   VerificationBadge = "VERIFIED"
	BadgeUnverified VerificationBadge = "UNVERIFIED"
	BadgeMismatch   VerificationBadge = "MISMATCH"
)
