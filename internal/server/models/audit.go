package models

import "time"

// ActionKind enumerates the auditable privileged actions.
type ActionKind string

const (
	ActionLoginSuccess   ActionKind = "LOGIN_SUCCESS"
	ActionLoginFailure   ActionKind = "LOGIN_FAILURE"
	ActionLockout        ActionKind = "LOCKOUT"
	ActionUploadRecord   ActionKind = "UPLOAD_RECORD"
	ActionViewRecord     ActionKind = "VIEW_RECORD"
	ActionVerifyRecord   ActionKind = "VERIFY_RECORD"
	ActionVerifyMismatch ActionKind = "VERIFY_MISMATCH"
)

// SystemActor is recorded when an action has no authenticated principal
// behind it (e.g. the background anchor sweep).
const SystemActor = "system"

// AuditEntry is one appended row of the tamper-evident trail. Seq is
// assigned by the sink and strictly increases; ChainHash folds the previous
// entry's chain hash with this entry's content so any later mutation or
// removal breaks every subsequent link. Entries are never updated or
// deleted, by anyone, including Admin.
type AuditEntry struct {
	Seq         int64
	Actor       string
	Action      ActionKind
	RecordID    string
	Outcome     string
	Details     string
	IsEncrypted bool
	ChainPrev   string
	ChainHash   string
	CreatedAt   time.Time
}

// AuditFilter selects entries for admin reporting. Zero values mean "any".
type AuditFilter struct {
	Actor    string
	Action   ActionKind
	From     time.Time
	To       time.Time
	AfterSeq int64
	Limit    int
}
