// Package planimport reads and writes the tool plan CSV format and diffs
// imported rows against the stored catalog.
package planimport

import (
	"encoding/csv"
	"errors"
	"fmt"
	"html"
	"io"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/dukerupert/aideals/internal/model"
)

// Columns is the CSV column order, shared by import and export.
var Columns = []string{"tool_id", "plan_id", "plan_name", "monthly_price", "delivery_type", "activation_time", "is_active"}

var requiredColumns = []string{"tool_id", "plan_id", "plan_name"}

const (
	DefaultDeliveryType   = model.DeliveryProvideAccount
	DefaultActivationTime = 24
)

var ErrHeader = errors.New("invalid csv header")

var strict = bluemonday.StrictPolicy()

// CleanText strips markup from free-text catalog fields and trims spaces.
func CleanText(s string) string {
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}

// RowError is a problem with one data row. Line is the 1-based line in the file.
type RowError struct {
	Line int
	Msg  string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

type Row struct {
	Line int
	Plan model.ToolPlan
}

// Result holds the valid rows of a file and the combined row errors.
type Result struct {
	Rows   []Row
	Errors error
}

func (r *Result) Plans() []model.ToolPlan {
	plans := make([]model.ToolPlan, len(r.Rows))
	for i, row := range r.Rows {
		plans[i] = row.Plan
	}
	return plans
}

// RowErrors returns each row error as a message.
func (r *Result) RowErrors() []string {
	errs := multierr.Errors(r.Errors)
	out := make([]string, len(errs))
	for i, err := range errs {
		out[i] = err.Error()
	}
	return out
}

// Parse reads a plan CSV. A bad header fails the whole file; bad rows are
// collected in Result.Errors and left out of Result.Rows.
func Parse(r io.Reader) (*Result, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty file", ErrHeader)
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	seen := make(map[string]int)
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				res.Errors = multierr.Append(res.Errors, &RowError{Line: pe.Line, Msg: pe.Err.Error()})
				continue
			}
			return nil, fmt.Errorf("read csv: %w", err)
		}
		line, _ := cr.FieldPos(0)
		if blank(record) {
			continue
		}

		plan, err := parseRow(record, idx)
		if err != nil {
			res.Errors = multierr.Append(res.Errors, &RowError{Line: line, Msg: err.Error()})
			continue
		}
		if first, dup := seen[plan.Key()]; dup {
			res.Errors = multierr.Append(res.Errors, &RowError{
				Line: line,
				Msg:  fmt.Sprintf("duplicate plan %s (first on line %d)", plan.Key(), first),
			})
			continue
		}
		seen[plan.Key()] = line
		res.Rows = append(res.Rows, Row{Line: line, Plan: plan})
	}
	return res, nil
}

func columnIndex(header []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		idx[name] = i
	}
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing column(s) %s", ErrHeader, strings.Join(missing, ", "))
	}
	return idx, nil
}

func parseRow(record []string, idx map[string]int) (model.ToolPlan, error) {
	field := func(name string) (string, bool) {
		i, ok := idx[name]
		if !ok || i >= len(record) {
			return "", false
		}
		return strings.TrimSpace(record[i]), true
	}

	p := model.ToolPlan{
		DeliveryType:   DefaultDeliveryType,
		ActivationTime: DefaultActivationTime,
		IsActive:       true,
	}
	toolID, _ := field("tool_id")
	planID, _ := field("plan_id")
	p.ToolID = NormalizeID(toolID)
	p.PlanID = NormalizeID(planID)
	name, _ := field("plan_name")
	p.PlanName = CleanText(name)

	var errs error
	if p.ToolID == "" {
		errs = multierr.Append(errs, errors.New("tool_id is required"))
	}
	if p.PlanID == "" {
		errs = multierr.Append(errs, errors.New("plan_id is required"))
	}
	if p.PlanName == "" {
		errs = multierr.Append(errs, errors.New("plan_name is required"))
	}

	if v, _ := field("monthly_price"); v != "" {
		price, err := decimal.NewFromString(strings.TrimPrefix(v, "$"))
		switch {
		case err != nil:
			errs = multierr.Append(errs, fmt.Errorf("monthly_price %q is not a number", v))
		case price.IsNegative():
			errs = multierr.Append(errs, fmt.Errorf("monthly_price %q is negative", v))
		default:
			p.MonthlyPrice = &price
		}
	}

	if v, _ := field("delivery_type"); v != "" {
		if !model.ValidDeliveryType(v) {
			errs = multierr.Append(errs, fmt.Errorf("unknown delivery_type %q", v))
		}
		p.DeliveryType = v
	}

	if v, _ := field("activation_time"); v != "" {
		hours, err := strconv.Atoi(v)
		if err != nil || hours <= 0 {
			errs = multierr.Append(errs, fmt.Errorf("activation_time %q must be a positive number of hours", v))
		}
		p.ActivationTime = hours
	}

	if v, ok := field("is_active"); ok && v != "" {
		p.IsActive = v == "true"
	}

	if errs != nil {
		// Fold per-field problems into one message for the row.
		msgs := make([]string, 0, 3)
		for _, e := range multierr.Errors(errs) {
			msgs = append(msgs, e.Error())
		}
		return model.ToolPlan{}, errors.New(strings.Join(msgs, "; "))
	}
	return p, nil
}

// NormalizeID canonicalizes a tool or plan slug. Catalog ids are
// case-insensitive and stored lowercase.
func NormalizeID(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func blank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// RejectUnknownTools moves rows whose tool_id is not in the catalog from
// Rows to Errors.
func (r *Result) RejectUnknownTools(known func(toolID string) bool) {
	kept := r.Rows[:0]
	for _, row := range r.Rows {
		if !known(row.Plan.ToolID) {
			r.Errors = multierr.Append(r.Errors, &RowError{
				Line: row.Line,
				Msg:  fmt.Sprintf("unknown tool %q", row.Plan.ToolID),
			})
			continue
		}
		kept = append(kept, row)
	}
	r.Rows = kept
}
