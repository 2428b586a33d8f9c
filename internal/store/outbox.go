package store

import "time"

// QueueOutbox adds an event to the delivery outbox. Queuing an event id
// twice is a no-op.
func (db *DB) QueueOutbox(eventID, routingKey string, body []byte) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT OR IGNORE INTO outbox (event_id, routing_key, body, status, created_at, updated_at)
		VALUES (?, ?, ?, 'queued', ?, ?)`,
		eventID, routingKey, body, now, now)
	return err
}

// AckOutbox removes a delivered entry.
func (db *DB) AckOutbox(id int64) error {
	_, err := db.Exec(`DELETE FROM outbox WHERE id = ?`, id)
	return err
}

// MarkOutboxFailed records a failed delivery attempt. The entry stays
// queued until it has failed maxAttempts times.
func (db *DB) MarkOutboxFailed(id int64, errMsg string, maxAttempts int) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		UPDATE outbox
		SET attempts = attempts + 1,
		    error_message = ?,
		    status = CASE WHEN attempts + 1 >= ? THEN 'failed' ELSE status END,
		    updated_at = ?
		WHERE id = ?`, errMsg, maxAttempts, now, id)
	return err
}

// PendingOutbox returns up to limit queued entries, oldest first.
func (db *DB) PendingOutbox(limit int) ([]OutboxEntry, error) {
	rows, err := db.Query(`
		SELECT id, event_id, routing_key, body, status, attempts, error_message
		FROM outbox WHERE status = 'queued' ORDER BY id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		if err := rows.Scan(&e.ID, &e.EventID, &e.RoutingKey, &e.Body, &e.Status, &e.Attempts, &e.ErrorMessage); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// OutboxCount returns the number of entries with the given status.
func (db *DB) OutboxCount(status string) (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM outbox WHERE status = ?`, status).Scan(&n)
	return n, err
}
