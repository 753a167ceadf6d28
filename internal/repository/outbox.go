package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// OutboxRecord описывает событие, ожидающее публикации.
type OutboxRecord struct {
	ID        int64
	EventID   string
	Topic     string
	Key       string
	Payload   json.RawMessage
	CreatedAt time.Time
}

// FetchPendingEvents возвращает неопубликованные события в порядке записи.
func (r *PostgresRepository) FetchPendingEvents(ctx context.Context, limit int) ([]OutboxRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, event_id::text, topic, key, payload, created_at
		 FROM outbox
		 WHERE sent_at IS NULL
		 ORDER BY id
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select outbox: %w", err)
	}
	defer rows.Close()

	var res []OutboxRecord
	for rows.Next() {
		var rec OutboxRecord
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.Topic, &rec.Key, &rec.Payload, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox: %w", err)
		}
		res = append(res, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// MarkEventSent отмечает событие опубликованным.
func (r *PostgresRepository) MarkEventSent(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE outbox SET sent_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark outbox sent: %w", err)
	}
	return nil
}
