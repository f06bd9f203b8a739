package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"

	"rentpool/internal/app/middleware"
)

// IdempotencyStore keeps replayable results in app_idempotency. Rows older
// than TTL are ignored on read and removed by PurgeExpired.
type IdempotencyStore struct {
	DB  DB
	TTL time.Duration
}

func (s IdempotencyStore) Get(ctx context.Context, key string) (middleware.IdempotencyRecord, bool, error) {
	rec := middleware.IdempotencyRecord{Key: key}
	err := s.DB.QueryRow(ctx, `SELECT command, payload, occurred_at FROM app_idempotency
		WHERE key = $1 AND ($2::bigint = 0 OR created_at > now() - make_interval(secs => $2::bigint))`,
		key, int64(s.TTL.Seconds()),
	).Scan(&rec.Command, &rec.Payload, &rec.OccurredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return middleware.IdempotencyRecord{}, false, nil
	}
	if err != nil {
		return middleware.IdempotencyRecord{}, false, err
	}
	rec.OccurredAt = rec.OccurredAt.UTC()
	return rec, true, nil
}

func (s IdempotencyStore) Save(ctx context.Context, rec middleware.IdempotencyRecord) error {
	_, err := s.DB.Exec(ctx, `INSERT INTO app_idempotency (key, command, payload, occurred_at, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (key) DO UPDATE SET command = EXCLUDED.command, payload = EXCLUDED.payload,
			occurred_at = EXCLUDED.occurred_at, created_at = EXCLUDED.created_at`,
		rec.Key, rec.Command, rec.Payload, rec.OccurredAt)
	return err
}

// PurgeExpired deletes rows past the TTL and reports how many went.
func (s IdempotencyStore) PurgeExpired(ctx context.Context) (int64, error) {
	if s.TTL <= 0 {
		return 0, nil
	}
	tag, err := s.DB.Exec(ctx, `DELETE FROM app_idempotency WHERE created_at <= now() - make_interval(secs => $1::bigint)`,
		int64(s.TTL.Seconds()))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ middleware.IdempotencyStore = IdempotencyStore{}
