package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/aideals/internal/database"
	"github.com/dukerupert/aideals/internal/model"
)

type WebhookEventStore struct {
	db *sql.DB
}

func NewWebhookEventStore(db *sql.DB) *WebhookEventStore {
	return &WebhookEventStore{db: db}
}

// WebhookClaimLease is how long a claim blocks redeliveries. A claim that
// was never marked processed or failed, because the process died mid-event,
// can be taken again once the lease runs out.
const WebhookClaimLease = 5 * time.Minute

// Claim atomically reserves an event for processing at now. It returns true
// for a first delivery, for a redelivery of an event whose last attempt
// failed, and for an event whose claim lease has expired. Processed events
// and events still within their lease are not claimable.
func (s *WebhookEventStore) Claim(eventID, eventType string, now time.Time) (bool, error) {
	res, err := s.db.Exec(
		`INSERT INTO webhook_events (event_id, event_type, claimed_at) VALUES (?, ?, ?)
		 ON CONFLICT(event_id) DO UPDATE SET
		   attempts = webhook_events.attempts + 1,
		   processing_error = NULL,
		   claimed_at = excluded.claimed_at
		 WHERE webhook_events.processed_at IS NULL
		   AND (webhook_events.processing_error IS NOT NULL OR webhook_events.claimed_at <= ?)`,
		eventID, eventType, database.FormatTime(now), database.FormatTime(now.Add(-WebhookClaimLease)),
	)
	if err != nil {
		return false, fmt.Errorf("claim webhook event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *WebhookEventStore) MarkProcessed(eventID string) error {
	_, err := s.db.Exec(
		`UPDATE webhook_events SET processed_at = CURRENT_TIMESTAMP, processing_error = NULL WHERE event_id = ?`,
		eventID,
	)
	if err != nil {
		return fmt.Errorf("mark webhook event processed: %w", err)
	}
	return nil
}

// MarkFailed records the failure so a redelivery can claim the event again.
func (s *WebhookEventStore) MarkFailed(eventID string, cause error) error {
	_, err := s.db.Exec(
		`UPDATE webhook_events SET processing_error = ? WHERE event_id = ?`,
		cause.Error(), eventID,
	)
	if err != nil {
		return fmt.Errorf("mark webhook event failed: %w", err)
	}
	return nil
}

func (s *WebhookEventStore) Get(eventID string) (*model.WebhookEvent, error) {
	var e model.WebhookEvent
	var procErr sql.NullString
	var processedAt sql.NullTime
	err := s.db.QueryRow(
		`SELECT event_id, event_type, attempts, processing_error, processed_at, claimed_at, received_at FROM webhook_events WHERE event_id = ?`,
		eventID,
	).Scan(&e.EventID, &e.EventType, &e.Attempts, &procErr, &processedAt, &e.ClaimedAt, &e.ReceivedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook event: %w", err)
	}
	if procErr.Valid {
		e.ProcessingError = &procErr.String
	}
	if processedAt.Valid {
		e.ProcessedAt = &processedAt.Time
	}
	return &e, nil
}

// Count returns the number of recorded events.
func (s *WebhookEventStore) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM webhook_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count webhook events: %w", err)
	}
	return n, nil
}
