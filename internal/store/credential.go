package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/aideals/internal/model"
)

type CredentialStore struct {
	db *sql.DB
}

func NewCredentialStore(db *sql.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

const credentialCols = `id, order_id, email, encrypted_password, created_at`

// Create stores an already-encrypted credential for an order.
func (s *CredentialStore) Create(orderID, email, encryptedPassword string) (*model.OrderCredential, error) {
	result, err := s.db.Exec(
		`INSERT INTO order_credentials (order_id, email, encrypted_password) VALUES (?, ?, ?)`,
		orderID, email, encryptedPassword,
	)
	if err != nil {
		return nil, fmt.Errorf("insert credential: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	var c model.OrderCredential
	err = s.db.QueryRow(`SELECT `+credentialCols+` FROM order_credentials WHERE id = ?`, id).
		Scan(&c.ID, &c.OrderID, &c.Email, &c.EncryptedPassword, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return &c, nil
}

// LatestForOrder returns the most recently stored credential of an order.
func (s *CredentialStore) LatestForOrder(orderID string) (*model.OrderCredential, error) {
	var c model.OrderCredential
	err := s.db.QueryRow(
		`SELECT `+credentialCols+` FROM order_credentials WHERE order_id = ? ORDER BY id DESC LIMIT 1`,
		orderID,
	).Scan(&c.ID, &c.OrderID, &c.Email, &c.EncryptedPassword, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential for order: %w", err)
	}
	return &c, nil
}
