package models

import "time"

// LedgerAnchor is the write-once registry entry for a record fingerprint.
// The core never updates or deletes one after registration.
type LedgerAnchor struct {
	RecordID      string
	Digest        string
	OwnerIdentity string
	TxHash        string
	BlockNumber   int64
	AnchoredAt    time.Time
}
