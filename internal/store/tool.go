package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/aideals/internal/model"
)

type ToolStore struct {
	db *sql.DB
}

func NewToolStore(db *sql.DB) *ToolStore {
	return &ToolStore{db: db}
}

func scanTool(s scanner) (*model.Tool, error) {
	var t model.Tool
	var isActive int
	err := s.Scan(
		&t.ID, &t.ToolID, &t.Name, &t.Category, &t.Price, &t.DeliveryType,
		&t.AccessURL, &t.ActivationTime, &isActive, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.IsActive = isActive != 0
	return &t, nil
}

const toolCols = `id, tool_id, name, category, price, delivery_type, access_url, activation_time, is_active, created_at, updated_at`

// Upsert inserts the tool or updates the row with the same tool_id.
func (s *ToolStore) Upsert(t model.Tool) (*model.Tool, error) {
	_, err := s.db.Exec(
		`INSERT INTO tools (tool_id, name, category, price, delivery_type, access_url, activation_time, is_active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(tool_id) DO UPDATE SET
		   name = excluded.name,
		   category = excluded.category,
		   price = excluded.price,
		   delivery_type = excluded.delivery_type,
		   access_url = excluded.access_url,
		   activation_time = excluded.activation_time,
		   is_active = excluded.is_active,
		   updated_at = CURRENT_TIMESTAMP`,
		t.ToolID, t.Name, t.Category, t.Price, t.DeliveryType, t.AccessURL, t.ActivationTime, boolInt(t.IsActive),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert tool: %w", err)
	}
	return s.GetByToolID(t.ToolID)
}

func (s *ToolStore) GetByToolID(toolID string) (*model.Tool, error) {
	row := s.db.QueryRow(`SELECT `+toolCols+` FROM tools WHERE tool_id = ?`, toolID)
	t, err := scanTool(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tool: %w", err)
	}
	return t, nil
}

// List returns tools ordered by name. With activeOnly, disabled tools are skipped.
func (s *ToolStore) List(activeOnly bool) ([]model.Tool, error) {
	query := `SELECT ` + toolCols + ` FROM tools`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY name ASC`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	defer rows.Close()

	var tools []model.Tool
	for rows.Next() {
		t, err := scanTool(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tool: %w", err)
		}
		tools = append(tools, *t)
	}
	return tools, rows.Err()
}

// SetActive toggles visibility without deleting the tool. It returns false
// when no tool has the given tool_id.
func (s *ToolStore) SetActive(toolID string, active bool) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE tools SET is_active = ?, updated_at = CURRENT_TIMESTAMP WHERE tool_id = ?`,
		boolInt(active), toolID,
	)
	if err != nil {
		return false, fmt.Errorf("set tool active: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
