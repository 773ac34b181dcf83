// Package audit records audit events on a transaction scope isolated from
// the calling operation: an audit row commits even when the caller's work
// rolls back, and a failed audit write never fails the caller.
package audit

import "context"

// Recorder is fire-and-forget: implementations must not block the calling
// operation and must swallow their own errors.
type Recorder interface {
	Record(ctx context.Context, action, entityID, details string)
}

// NoopRecorder discards all events. Used in tests and local mode.
type NoopRecorder struct{}

func (NoopRecorder) Record(context.Context, string, string, string) {}
