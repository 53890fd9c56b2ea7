// Package ledger computes record fingerprints and anchors them in an
// external, write-once registry. The registry's consensus mechanism is not
// our concern: it is consumed as an opaque immutable key-value store keyed
// by document identifier.
package ledger

import "context"

// Receipt is the registry's acknowledgement of a registration.
type Receipt struct {
	TxHash      string
	BlockNumber int64
}

// Registry is the interface boundary to the external immutable registry.
// Entries are write-once: Register for an already-registered document ID
// must fail with common.ErrDuplicateAnchor, never overwrite.
type Registry interface {
	Register(ctx context.Context, documentID, digest, ownerIdentity string) (*Receipt, error)
	Lookup(ctx context.Context, documentID string) (string, error)
}
