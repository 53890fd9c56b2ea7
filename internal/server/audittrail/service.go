// Package audittrail implements the tamper-evident audit log. Every
// security-relevant action appends exactly one entry; entries carry a hash
// chain so that any later mutation, removal, or reordering of the stored
// rows breaks every subsequent link. Append durability is a correctness
// requirement: when the sink is unreachable the enclosing business operation
// must fail rather than proceed unaudited.
package audittrail

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/lifexhealth/medvault/internal/common"
	"github.com/lifexhealth/medvault/internal/logging"
	"github.com/lifexhealth/medvault/internal/server/models"
	"github.com/lifexhealth/medvault/internal/server/repositories/repomanager"
)

type Service struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger

	// mu serializes appends: the chain tail is shared state and entries
	// must be written as whole units in arrival order.
	mu      sync.Mutex
	tail    string
	lastSeq int64
	seeded  bool

	now func() time.Time
}

func NewService(db *sql.DB, m repomanager.RepositoryManager, logger logging.Logger) *Service {
	return &Service{
		db:          db,
		repomanager: m,
		logger:      logger.With("module", "audittrail"),
		now:         time.Now,
	}
}

// Append assigns the sequence number, timestamp, and chain links, persists
// the entry, and returns its sequence number. Both seq and created_at are
// assigned here rather than by the sink: the chain hash covers them, so a
// rewritten timestamp or renumbered row breaks the chain like any other
// mutation. Any sink failure is reported as ErrAuditUnavailable.
func (s *Service) Append(ctx context.Context, entry *models.AuditEntry) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.seeded {
		if err := s.seedTail(ctx); err != nil {
			return 0, fmt.Errorf("%w: %v", common.ErrAuditUnavailable, err)
		}
	}

	entry.Seq = s.lastSeq + 1
	entry.CreatedAt = s.now().UTC()
	entry.ChainPrev = s.tail
	entry.ChainHash = ChainHash(s.tail, entry)

	repo := s.repomanager.Audit(s.db)
	seq, err := repo.Append(ctx, entry)
	if err != nil {
		s.logger.Error(ctx, "audit append failed", "action", entry.Action, "error", err.Error())
		return 0, fmt.Errorf("%w: %v", common.ErrAuditUnavailable, err)
	}

	s.tail = entry.ChainHash
	s.lastSeq = entry.Seq
	return seq, nil
}

// Query exposes the read-only reporting interface. There is deliberately no
// corresponding update or delete.
func (s *Service) Query(ctx context.Context, filter models.AuditFilter) ([]*models.AuditEntry, error) {
	repo := s.repomanager.Audit(s.db)
	return repo.Query(ctx, filter)
}

// seedTail resumes the chain from the last persisted entry after restart.
func (s *Service) seedTail(ctx context.Context) error {
	repo := s.repomanager.Audit(s.db)
	last, err := repo.Tail(ctx)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			s.tail = ""
			s.seeded = true
			return nil
		}
		return err
	}
	s.tail = last.ChainHash
	s.lastSeq = last.Seq
	s.seeded = true
	return nil
}

// ChainHash folds the previous chain hash with the entry's content:
// h = H(prev || content). Fields are length-prefixed so adjacent values
// cannot be shifted into one another without changing the hash. The sequence
// number and timestamp are part of the content: reporting filters rely on
// created_at, so it must be as tamper-evident as the payload fields.
func ChainHash(prev string, entry *models.AuditEntry) string {
	h := sha256.New()
	writeField := func(s string) {
		var n [4]byte
		binary.BigEndian.PutUint32(n[:], uint32(len(s)))
		h.Write(n[:])
		h.Write([]byte(s))
	}
	writeField(prev)
	writeField(strconv.FormatInt(entry.Seq, 10))
	writeField(entry.CreatedAt.UTC().Format(time.RFC3339Nano))
	writeField(entry.Actor)
	writeField(string(entry.Action))
	writeField(entry.RecordID)
	writeField(entry.Outcome)
	writeField(entry.Details)
	if entry.IsEncrypted {
		writeField("1")
	} else {
		writeField("0")
	}
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyChain re-walks entries (which must be in ascending sequence order)
// from the given starting chain hash. It returns the sequence number of the
// first entry whose stored links do not match, or 0 when the chain is
// intact.
func VerifyChain(entries []*models.AuditEntry, start string) int64 {
	prev := start
	for _, entry := range entries {
		if entry.ChainPrev != prev || entry.ChainHash != ChainHash(prev, entry) {
			return entry.Seq
		}
		prev = entry.ChainHash
	}
	return 0
}
