package logging

import (
	"context"
	"log/slog"
	"strings"
)

// redactedValue replaces attribute values that must never reach a log sink.
const redactedValue = "[REDACTED]"

// sensitiveKeys are attribute keys whose values are dropped from every log
// line regardless of level: credential material, key material, and the
// plaintext sensitive record fields. Matching is case-insensitive on the
// full key.
var sensitiveKeys = map[string]struct{}{
	"secret":          {},
	"credential":      {},
	"credential_hash": {},
	"key":             {},
	"encryption_key":  {},
	"token":           {},
	"description":     {},
	"department":      {},
	"justification":   {},
}

// redactArgs returns a copy of the key-value args with sensitive values
// replaced. Odd trailing elements and non-string keys pass through
// untouched; slog reports those as malformed on its own.
func redactArgs(args []any) []any {
	out := make([]any, len(args))
	copy(out, args)
	for i := 0; i+1 < len(out); i += 2 {
		k, ok := out[i].(string)
		if !ok {
			continue
		}
		if _, sensitive := sensitiveKeys[strings.ToLower(k)]; sensitive {
			out[i+1] = redactedValue
		}
	}
	return out
}

// SlogLogger adapts slog to the Logger interface and enforces the project's
// redaction policy on every attribute it forwards.
type SlogLogger struct {
	l *slog.Logger
}

func NewSlogLogger(l *slog.Logger) *SlogLogger {
	return &SlogLogger{l: l}
}

func (s *SlogLogger) Debug(ctx context.Context, msg string, args ...any) {
	s.l.DebugContext(ctx, msg, redactArgs(args)...)
}

func (s *SlogLogger) Info(ctx context.Context, msg string, args ...any) {
	s.l.InfoContext(ctx, msg, redactArgs(args)...)
}

func (s *SlogLogger) Warn(ctx context.Context, msg string, args ...any) {
	s.l.WarnContext(ctx, msg, redactArgs(args)...)
}

func (s *SlogLogger) Error(ctx context.Context, msg string, args ...any) {
	s.l.ErrorContext(ctx, msg, redactArgs(args)...)
}

func (s *SlogLogger) With(args ...any) Logger {
	return &SlogLogger{l: s.l.With(redactArgs(args)...)}
}
