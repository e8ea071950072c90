package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/aideals/internal/model"
)

type PushStore struct {
	db *sql.DB
}

func NewPushStore(db *sql.DB) *PushStore {
	return &PushStore{db: db}
}

const pushCols = `id, endpoint, p256dh_key, auth_key, device_name, created_at`

// Subscribe registers an admin device. Re-registering an endpoint refreshes its keys.
func (s *PushStore) Subscribe(endpoint, p256dh, authKey, deviceName string) (*model.AdminPushSubscription, error) {
	_, err := s.db.Exec(
		`INSERT INTO admin_push_subscriptions (endpoint, p256dh_key, auth_key, device_name)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(endpoint) DO UPDATE SET
		   p256dh_key = excluded.p256dh_key,
		   auth_key = excluded.auth_key,
		   device_name = excluded.device_name`,
		endpoint, p256dh, authKey, deviceName,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert push subscription: %w", err)
	}

	var sub model.AdminPushSubscription
	err = s.db.QueryRow(`SELECT `+pushCols+` FROM admin_push_subscriptions WHERE endpoint = ?`, endpoint).
		Scan(&sub.ID, &sub.Endpoint, &sub.P256dhKey, &sub.AuthKey, &sub.DeviceName, &sub.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get push subscription: %w", err)
	}
	return &sub, nil
}

func (s *PushStore) List() ([]model.AdminPushSubscription, error) {
	rows, err := s.db.Query(`SELECT ` + pushCols + ` FROM admin_push_subscriptions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list push subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []model.AdminPushSubscription
	for rows.Next() {
		var sub model.AdminPushSubscription
		if err := rows.Scan(&sub.ID, &sub.Endpoint, &sub.P256dhKey, &sub.AuthKey, &sub.DeviceName, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan push subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (s *PushStore) DeleteByEndpoint(endpoint string) error {
	_, err := s.db.Exec(`DELETE FROM admin_push_subscriptions WHERE endpoint = ?`, endpoint)
	if err != nil {
		return fmt.Errorf("delete push subscription by endpoint: %w", err)
	}
	return nil
}
