package store

import (
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/aideals/internal/model"
)

type PlanStore struct {
	db *sql.DB
}

func NewPlanStore(db *sql.DB) *PlanStore {
	return &PlanStore{db: db}
}

func scanPlan(s scanner) (*model.ToolPlan, error) {
	var p model.ToolPlan
	var price decimal.NullDecimal
	var isActive int
	err := s.Scan(
		&p.ID, &p.ToolID, &p.PlanID, &p.PlanName, &price, &p.DeliveryType,
		&p.ActivationTime, &isActive, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if price.Valid {
		p.MonthlyPrice = &price.Decimal
	}
	p.IsActive = isActive != 0
	return &p, nil
}

const planCols = `id, tool_id, plan_id, plan_name, monthly_price, delivery_type, activation_time, is_active, created_at, updated_at`

const planInsert = `INSERT INTO tool_plans (tool_id, plan_id, plan_name, monthly_price, delivery_type, activation_time, is_active)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

const planUpsert = planInsert + `
	ON CONFLICT(tool_id, plan_id) DO UPDATE SET
	  plan_name = excluded.plan_name,
	  monthly_price = excluded.monthly_price,
	  delivery_type = excluded.delivery_type,
	  activation_time = excluded.activation_time,
	  is_active = excluded.is_active,
	  updated_at = CURRENT_TIMESTAMP`

func planArgs(p model.ToolPlan) []any {
	var price any
	if p.MonthlyPrice != nil {
		price = p.MonthlyPrice.String()
	}
	return []any{p.ToolID, p.PlanID, p.PlanName, price, p.DeliveryType, p.ActivationTime, boolInt(p.IsActive)}
}

// Upsert writes a single plan keyed on (tool_id, plan_id).
func (s *PlanStore) Upsert(p model.ToolPlan) (*model.ToolPlan, error) {
	if _, err := s.db.Exec(planUpsert, planArgs(p)...); err != nil {
		return nil, fmt.Errorf("upsert plan: %w", err)
	}
	return s.Get(p.ToolID, p.PlanID)
}

func (s *PlanStore) Get(toolID, planID string) (*model.ToolPlan, error) {
	row := s.db.QueryRow(`SELECT `+planCols+` FROM tool_plans WHERE tool_id = ? AND plan_id = ?`, toolID, planID)
	p, err := scanPlan(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get plan: %w", err)
	}
	return p, nil
}

func (s *PlanStore) GetByID(id int64) (*model.ToolPlan, error) {
	row := s.db.QueryRow(`SELECT `+planCols+` FROM tool_plans WHERE id = ?`, id)
	p, err := scanPlan(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get plan by id: %w", err)
	}
	return p, nil
}

// List returns plans ordered by tool and price. An empty toolID lists every tool.
func (s *PlanStore) List(toolID string, activeOnly bool) ([]model.ToolPlan, error) {
	query := `SELECT ` + planCols + ` FROM tool_plans WHERE 1 = 1`
	var args []any
	if toolID != "" {
		query += ` AND tool_id = ?`
		args = append(args, toolID)
	}
	if activeOnly {
		query += ` AND is_active = 1`
	}
	query += ` ORDER BY tool_id ASC, monthly_price IS NULL, CAST(monthly_price AS REAL) ASC, plan_id ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var plans []model.ToolPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		plans = append(plans, *p)
	}
	return plans, rows.Err()
}

// SetActive toggles a plan by id. It returns false when the id is unknown.
func (s *PlanStore) SetActive(id int64, active bool) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE tool_plans SET is_active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		boolInt(active), id,
	)
	if err != nil {
		return false, fmt.Errorf("set plan active: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// InsertBatch inserts every plan in one transaction. If any (tool_id, plan_id)
// already exists nothing is written and the error wraps ErrConflict.
func (s *PlanStore) InsertBatch(plans []model.ToolPlan) error {
	return s.batch(planInsert, plans)
}

// UpsertBatch inserts or replaces every plan in one transaction.
func (s *PlanStore) UpsertBatch(plans []model.ToolPlan) error {
	return s.batch(planUpsert, plans)
}

func (s *PlanStore) batch(query string, plans []model.ToolPlan) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(query)
	if err != nil {
		return fmt.Errorf("prepare plan write: %w", err)
	}
	defer stmt.Close()

	for _, p := range plans {
		if _, err := stmt.Exec(planArgs(p)...); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("plan %s: %w", p.Key(), ErrConflict)
			}
			return fmt.Errorf("write plan %s: %w", p.Key(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit plans: %w", err)
	}
	return nil
}
