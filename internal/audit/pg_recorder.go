package audit

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const (
	base62Chars     = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	hashLength      = 6
	hashMaxAttempts = 10
	recordTimeout   = 5 * time.Second
)

// PgRecorder writes audit rows through its own pool acquisition, so the
// write is independent of whatever transaction the caller is running.
type PgRecorder struct {
	pool *pgxpool.Pool
}

func NewPgRecorder(pool *pgxpool.Pool) *PgRecorder {
	return &PgRecorder{pool: pool}
}

// Record inserts the audit row asynchronously. The caller's context is
// detached so cancelling the request does not lose the audit trail.
func (r *PgRecorder) Record(ctx context.Context, action, entityID, details string) {
	detached := context.WithoutCancel(ctx)

	go func() {
		writeCtx, cancel := context.WithTimeout(detached, recordTimeout)
		defer cancel()

		hash, err := r.uniqueHash(writeCtx)
		if err != nil {
			log.Warn().Err(err).Str("action", action).Msg("audit hash generation failed")
			return
		}

		_, err = r.pool.Exec(writeCtx, `
			INSERT INTO audit_logs (audit_hash, action, entity_id, details, created_at)
			VALUES ($1, $2, $3, $4, now())
		`, hash, action, entityID, details)
		if err != nil {
			log.Warn().Err(err).Str("action", action).Str("entity_id", entityID).Msg("audit write failed")
		}
	}()
}

// uniqueHash produces a 6-character base62 hash, regenerating on the
// unlikely collision and falling back to a timestamp-derived value after
// too many attempts.
func (r *PgRecorder) uniqueHash(ctx context.Context) (string, error) {
	for attempt := 0; attempt < hashMaxAttempts; attempt++ {
		hash, err := randomHash()
		if err != nil {
			return "", err
		}

		var exists bool
		err = r.pool.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM audit_logs WHERE audit_hash = $1)
		`, hash).Scan(&exists)
		if err != nil {
			return "", err
		}
		if !exists {
			return hash, nil
		}
	}

	return fmt.Sprintf("%06d", time.Now().UnixMilli()%1000000), nil
}

func randomHash() (string, error) {
	buf := make([]byte, hashLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	hash := make([]byte, hashLength)
	for i, b := range buf {
		hash[i] = base62Chars[int(b)%len(base62Chars)]
	}
	return string(hash), nil
}
