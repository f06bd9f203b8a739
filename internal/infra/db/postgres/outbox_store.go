package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"

	appoutbox "rentpool/internal/app/outbox"
	infraoutbox "rentpool/internal/infra/outbox"
)

var ErrOutboxRecordNotFound = errors.New("postgres: outbox record not found")

type outboxWriter struct {
	u *Unit
}

func (w outboxWriter) Add(ctx context.Context, record appoutbox.EventRecord) error {
	if err := w.u.writable(); err != nil {
		return err
	}
	headers, err := json.Marshal(record.Headers)
	if err != nil {
		return err
	}
	_, err = w.u.tx.Exec(ctx, `INSERT INTO app_outbox (id, name, payload, occurred_at, aggregate, headers, state,
		attempts, next_attempt_at, created_at) VALUES ($1, $2, $3, $4, $5, $6::jsonb, 'NEW', 0, now(), now())`,
		record.ID, record.Name, record.Payload, record.OccurredAt, record.Aggregate, string(headers))
	return mapError(err)
}

// OutboxStore is the relay side. Claims use SKIP LOCKED so several relays can
// drain the table without handing out the same record.
type OutboxStore struct {
	DB DB
	// Lease is how long a claim holds before another relay may retake it.
	Lease time.Duration
}

func (s OutboxStore) Claim(ctx context.Context, workerID string) (*infraoutbox.Record, error) {
	var (
		rec     infraoutbox.Record
		headers string
	)
	err := s.DB.QueryRow(ctx, `UPDATE app_outbox SET state = 'CLAIMED', claimed_by = $1, claimed_at = now()
		WHERE id = (
			SELECT id FROM app_outbox
			WHERE (state IN ('NEW', 'FAILED') AND next_attempt_at <= now())
			   OR (state = 'CLAIMED' AND claimed_at <= now() - make_interval(secs => $2::bigint))
			ORDER BY next_attempt_at, created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED)
		RETURNING id, name, payload, occurred_at, aggregate, headers::text, attempts`,
		workerID, int64(s.lease().Seconds()),
	).Scan(&rec.ID, &rec.Name, &rec.Payload, &rec.OccurredAt, &rec.Aggregate, &headers, &rec.Attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(headers), &rec.Headers); err != nil {
		return nil, err
	}
	rec.OccurredAt = rec.OccurredAt.UTC()
	return &rec, nil
}

func (s OutboxStore) MarkSent(ctx context.Context, id string) error {
	return s.exec(ctx, `UPDATE app_outbox SET state = 'SENT', sent_at = now() WHERE id = $1`, id)
}

func (s OutboxStore) MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error {
	return s.exec(ctx, `UPDATE app_outbox SET state = 'FAILED', attempts = attempts + 1, next_attempt_at = $2,
		last_error = $3 WHERE id = $1`, id, next.UTC(), errMsg)
}

func (s OutboxStore) exec(ctx context.Context, stmt string, args ...any) error {
	tag, err := s.DB.Exec(ctx, stmt, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOutboxRecordNotFound
	}
	return nil
}

func (s OutboxStore) lease() time.Duration {
	if s.Lease <= 0 {
		return time.Minute
	}
	return s.Lease
}

var _ infraoutbox.Store = OutboxStore{}
var _ appoutbox.Outbox = outboxWriter{}
