// Package credguard authenticates principals and manages the account
// lockout state machine, credential history, and session token lifecycle.
//
// Lockout transitions: Active -> (5 consecutive failures) -> Locked ->
// (cooldown elapsed) -> Active. Explicit deactivation moves an account to
// Inactive; reactivation is an out-of-scope admin workflow.
package credguard

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lifexhealth/medvault/internal/common"
	"github.com/lifexhealth/medvault/internal/cryptox"
	"github.com/lifexhealth/medvault/internal/dbx"
	"github.com/lifexhealth/medvault/internal/logging"
	"github.com/lifexhealth/medvault/internal/server/audittrail"
	"github.com/lifexhealth/medvault/internal/server/auth"
	"github.com/lifexhealth/medvault/internal/server/config"
	"github.com/lifexhealth/medvault/internal/server/models"
	"github.com/lifexhealth/medvault/internal/server/repositories/repomanager"
)

type Service struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	audit       *audittrail.Service
	logger      logging.Logger

	tokenSecret      []byte
	sessionValidity  time.Duration
	lockoutThreshold int
	lockoutCooldown  time.Duration
	historyDepth     int

	// revoked is the in-process revocation set. Inserts are atomic under mu;
	// the sessions table carries the durable copy.
	mu      sync.RWMutex
	revoked map[string]struct{}

	now func() time.Time
}

func NewService(db *sql.DB, m repomanager.RepositoryManager, audit *audittrail.Service, logger logging.Logger, cfg *config.Config) *Service {
	return &Service{
		db:               db,
		repomanager:      m,
		audit:            audit,
		logger:           logger.With("module", "credguard"),
		tokenSecret:      []byte(cfg.TokenSecret),
		sessionValidity:  cfg.SessionValidity,
		lockoutThreshold: cfg.LockoutThreshold,
		lockoutCooldown:  cfg.LockoutCooldown,
		historyDepth:     cfg.CredentialHistoryDepth,
		revoked:          make(map[string]struct{}),
		now:              time.Now,
	}
}

// Enroll creates an account. Used by the operator enrollment tool; patient
// self-registration goes through the excluded web layer, which calls this
// same entry point.
func (s *Service) Enroll(ctx context.Context, email, fullName string, role models.Role, department string, secret []byte) (*models.Account, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("unknown role %q", role)
	}

	hash, err := cryptox.HashCredential(secret)
	if err != nil {
		return nil, common.ErrInternal
	}

	repo := s.repomanager.Accounts(s.db)
	account, err := repo.Create(ctx, &models.Account{
		Email:          email,
		FullName:       fullName,
		Role:           role,
		Department:     department,
		CredentialHash: hash,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating account: %w", err)
	}
	return account, nil
}

// Authenticate verifies the identifier/secret pair and issues a session.
// Every call, success or failure, produces exactly one LOGIN_* audit entry;
// the lockout transition produces one additional LOCKOUT entry. An
// unreachable audit sink fails the call.
func (s *Service) Authenticate(ctx context.Context, identifier string, secret []byte) (*models.Session, error) {
	repo := s.repomanager.Accounts(s.db)

	account, err := repo.GetByEmail(ctx, identifier)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			if err := s.auditLogin(ctx, identifier, models.ActionLoginFailure, "unknown identifier"); err != nil {
				return nil, err
			}
			return nil, common.ErrInvalidCredential
		}
		return nil, common.ErrInternal
	}

	if !account.Active {
		if err := s.auditLogin(ctx, account.ID, models.ActionLoginFailure, "account inactive"); err != nil {
			return nil, err
		}
		return nil, common.ErrAccountInactive
	}

	if account.Locked(s.now()) {
		if err := s.auditLogin(ctx, account.ID, models.ActionLoginFailure, "account locked"); err != nil {
			return nil, err
		}
		return nil, common.ErrAccountLocked
	}

	ok, err := cryptox.VerifyCredential(account.CredentialHash, secret)
	if err != nil {
		return nil, common.ErrInternal
	}
	if !ok {
		if err := s.registerFailure(ctx, account); err != nil {
			return nil, err
		}
		return nil, common.ErrInvalidCredential
	}

	// Counter resets to zero on any success, which also ends an elapsed
	// cooldown window.
	if err := repo.ResetFailedAttempts(ctx, account.ID); err != nil {
		return nil, common.ErrInternal
	}

	session, err := s.issueSession(ctx, account.ID, account.Role)
	if err != nil {
		return nil, err
	}

	if err := s.auditLogin(ctx, account.ID, models.ActionLoginSuccess, "authenticated"); err != nil {
		return nil, err
	}

	return session, nil
}

func (s *Service) registerFailure(ctx context.Context, account *models.Account) error {
	repo := s.repomanager.Accounts(s.db)

	// Atomic compare-and-increment: concurrent failures each observe their
	// own count, so the threshold cannot be skipped over.
	attempts, err := repo.IncrementFailedAttempts(ctx, account.ID)
	if err != nil {
		return common.ErrInternal
	}

	if attempts >= s.lockoutThreshold {
		until := s.now().Add(s.lockoutCooldown)
		if err := repo.Lock(ctx, account.ID, until); err != nil {
			return common.ErrInternal
		}
		s.logger.Warn(ctx, "account locked", "account", account.ID, "until", until)
		if _, err := s.audit.Append(ctx, &models.AuditEntry{
			Actor:   account.ID,
			Action:  models.ActionLockout,
			Outcome: "locked",
			Details: fmt.Sprintf("locked after %d consecutive failures", attempts),
		}); err != nil {
			return err
		}
	}

	return s.auditLogin(ctx, account.ID, models.ActionLoginFailure, "invalid credential")
}

// CheckSession resolves a presented token to its claims. The revocation
// check runs before the expiry check: a rotated-away token is reported as
// revoked even after it would have expired anyway.
func (s *Service) CheckSession(ctx context.Context, tokenString string) (*auth.Claims, error) {
	claims, parseErr := auth.ParseToken(tokenString, s.tokenSecret)
	if parseErr != nil && !errors.Is(parseErr, common.ErrSessionExpired) {
		return nil, common.ErrInvalidToken
	}

	if s.isRevoked(claims.ID) {
		return nil, common.ErrSessionRevoked
	}

	session, err := s.repomanager.Sessions(s.db).Find(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, common.ErrInternal
	}
	if session.Revoked {
		s.markRevoked(claims.ID)
		return nil, common.ErrSessionRevoked
	}

	if parseErr != nil {
		return nil, common.ErrSessionExpired
	}

	return claims, nil
}

// RotateSession invalidates old and issues a replacement. The old token ID
// joins the revocation set, so it is rejected by all subsequent checks even
// before its nominal expiry.
func (s *Service) RotateSession(ctx context.Context, oldToken string) (*models.Session, error) {
	claims, parseErr := auth.ParseToken(oldToken, s.tokenSecret)
	if parseErr != nil && !errors.Is(parseErr, common.ErrSessionExpired) {
		return nil, common.ErrInvalidToken
	}
	if s.isRevoked(claims.ID) {
		return nil, common.ErrSessionRevoked
	}
	if parseErr != nil {
		return nil, common.ErrSessionExpired
	}

	if err := s.revokeToken(ctx, claims.ID); err != nil {
		return nil, err
	}

	return s.issueSession(ctx, claims.AccountID, claims.Role)
}

// Logout revokes the presented token.
func (s *Service) Logout(ctx context.Context, tokenString string) error {
	claims, parseErr := auth.ParseToken(tokenString, s.tokenSecret)
	if parseErr != nil && !errors.Is(parseErr, common.ErrSessionExpired) {
		return common.ErrInvalidToken
	}
	return s.revokeToken(ctx, claims.ID)
}

// ChangeCredential replaces the account's secret, rejecting any secret whose
// hash matches the current one or any of the bounded history. The retired
// hash is pushed onto the history (evicting the oldest beyond the depth) in
// the same transaction that installs the new hash.
func (s *Service) ChangeCredential(ctx context.Context, accountID string, newSecret []byte) error {
	repo := s.repomanager.Accounts(s.db)

	account, err := repo.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.ErrNotFound
		}
		return common.ErrInternal
	}

	history, err := repo.CredentialHistory(ctx, accountID, s.historyDepth)
	if err != nil {
		return common.ErrInternal
	}

	for _, encoded := range append([]string{account.CredentialHash}, history...) {
		match, err := cryptox.VerifyCredential(encoded, newSecret)
		if err != nil {
			return common.ErrInternal
		}
		if match {
			return common.ErrReusedCredential
		}
	}

	newHash, err := cryptox.HashCredential(newSecret)
	if err != nil {
		return common.ErrInternal
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repoTx := s.repomanager.Accounts(tx)
		if err := repoTx.PushCredentialHistory(ctx, accountID, account.CredentialHash, s.historyDepth); err != nil {
			return err
		}
		return repoTx.SetCredentialHash(ctx, accountID, newHash)
	})
}

// Deactivate moves the account to its terminal Inactive state.
func (s *Service) Deactivate(ctx context.Context, accountID string) error {
	if err := s.repomanager.Accounts(s.db).Deactivate(ctx, accountID); err != nil {
		return common.ErrInternal
	}
	return nil
}

// Account exposes principal lookup for authorization decisions downstream.
func (s *Service) Account(ctx context.Context, accountID string) (*models.Account, error) {
	return s.repomanager.Accounts(s.db).GetByID(ctx, accountID)
}

// --- helpers below ---

func (s *Service) issueSession(ctx context.Context, accountID string, role models.Role) (*models.Session, error) {
	tokenID := uuid.NewString()
	now := s.now()

	token, err := auth.GenerateToken(tokenID, accountID, role, s.tokenSecret, s.sessionValidity)
	if err != nil {
		return nil, common.ErrInternal
	}

	session := &models.Session{
		TokenID:   tokenID,
		AccountID: accountID,
		Role:      role,
		Token:     token,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.sessionValidity),
	}

	if err := s.repomanager.Sessions(s.db).Create(ctx, session); err != nil {
		return nil, common.ErrInternal
	}

	return session, nil
}

func (s *Service) revokeToken(ctx context.Context, tokenID string) error {
	if err := s.repomanager.Sessions(s.db).Revoke(ctx, tokenID); err != nil {
		return common.ErrInternal
	}
	s.markRevoked(tokenID)
	return nil
}

func (s *Service) markRevoked(tokenID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[tokenID] = struct{}{}
}

func (s *Service) isRevoked(tokenID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.revoked[tokenID]
	return ok
}

func (s *Service) auditLogin(ctx context.Context, actor string, action models.ActionKind, outcome string) error {
	_, err := s.audit.Append(ctx, &models.AuditEntry{
		Actor:   actor,
		Action:  action,
		Outcome: outcome,
	})
	return err
}
