package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/lifexhealth/medvault/internal/common"
	"github.com/lifexhealth/medvault/internal/cryptox"
	"github.com/lifexhealth/medvault/internal/logging"
	"github.com/lifexhealth/medvault/internal/server/config"
	"github.com/lifexhealth/medvault/internal/server/models"
)

// Outcome is the result of a verification. Mismatch is a first-class,
// expected value signaling tampering or corruption, not an error.
type Outcome string

const (
	Verified Outcome = "VERIFIED"
	Mismatch Outcome = "MISMATCH"
)

// Client anchors and verifies record fingerprints against a Registry.
type Client struct {
	registry Registry
	logger   logging.Logger

	anchorAttempts uint64
	verifyRetries  uint64
	backoffBase    time.Duration

	now func() time.Time
}

func NewClient(registry Registry, logger logging.Logger, cfg *config.Config) *Client {
	attempts := cfg.AnchorRetryAttempts
	if attempts == 0 {
		attempts = 1
	}
	return &Client{
		registry:       registry,
		logger:         logger.With("module", "ledger"),
		anchorAttempts: attempts,
		verifyRetries:  cfg.VerifyRetryAttempts,
		backoffBase:    cfg.RegistryBackoffBase,
		now:            time.Now,
	}
}

// Fingerprint computes the fixed-length digest of canonical bytes. Hashing
// always runs over decrypted semantic content: ciphertext varies per seal,
// so a ciphertext fingerprint would be meaningless.
func Fingerprint(canonicalBytes []byte) string {
	return cryptox.Digest(canonicalBytes)
}

// Anchor registers the fingerprint of canonicalBytes under recordID.
// Transient registry failures are retried with bounded exponential backoff;
// registration is at-least-once, made safe by the registry's write-once
// duplicate policy. Re-anchoring an identical (recordID, digest) pair
// returns the existing anchor; a conflicting digest for an already-anchored
// record surfaces ErrDuplicateAnchor.
func (c *Client) Anchor(ctx context.Context, recordID string, canonicalBytes []byte, ownerIdentity string) (*models.LedgerAnchor, error) {
	digest := Fingerprint(canonicalBytes)

	var receipt *Receipt

	backoff := retry.WithMaxRetries(c.anchorAttempts-1, retry.NewExponential(c.backoffBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		receipt, err = c.registry.Register(ctx, recordID, digest, ownerIdentity)
		if err == nil {
			return nil
		}
		if errors.Is(err, common.ErrDuplicateAnchor) {
			stored, lookupErr := c.registry.Lookup(ctx, recordID)
			if lookupErr != nil {
				if errors.Is(lookupErr, common.ErrRegistryUnavailable) {
					return retry.RetryableError(lookupErr)
				}
				return lookupErr
			}
			if stored == digest {
				// Idempotent replay of our own registration.
				receipt = &Receipt{}
				return nil
			}
			return common.ErrDuplicateAnchor
		}
		if errors.Is(err, common.ErrRegistryUnavailable) {
			c.logger.Warn(ctx, "registry unavailable, backing off", "record", recordID)
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	return &models.LedgerAnchor{
		RecordID:      recordID,
		Digest:        digest,
		OwnerIdentity: ownerIdentity,
		TxHash:        receipt.TxHash,
		BlockNumber:   receipt.BlockNumber,
		AnchoredAt:    c.now(),
	}, nil
}

// Verify recomputes the digest of canonicalBytes and compares it with the
// digest stored for recordID. A Mismatch can transiently come from a
// lagging registry replica, so one bounded re-read happens before the
// mismatch is reported; the previously anchored digest stays authoritative
// and is never overwritten.
func (c *Client) Verify(ctx context.Context, recordID string, canonicalBytes []byte) (Outcome, error) {
	digest := Fingerprint(canonicalBytes)

	var outcome Outcome

	backoff := retry.WithMaxRetries(c.verifyRetries, retry.NewExponential(c.backoffBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		stored, err := c.registry.Lookup(ctx, recordID)
		if err != nil {
			if errors.Is(err, common.ErrRegistryUnavailable) {
				return retry.RetryableError(err)
			}
			return err
		}
		if stored != digest {
			outcome = Mismatch
			return retry.RetryableError(errReplicaLag)
		}
		outcome = Verified
		return nil
	})
	if err != nil && !errors.Is(err, errReplicaLag) {
		return "", err
	}

	return outcome, nil
}

// errReplicaLag drives the bounded re-read of a mismatching lookup; it never
// escapes Verify.
var errReplicaLag = errors.New("digest mismatch, re-reading")
