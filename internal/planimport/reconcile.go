package planimport

import "github.com/dukerupert/aideals/internal/model"

// Diff splits imported plans into those that would be inserted and those
// that match an existing (tool_id, plan_id) and would overwrite it.
type Diff struct {
	ToCreate []model.ToolPlan `json:"toCreate"`
	ToUpdate []model.ToolPlan `json:"toUpdate"`
}

// Reconcile classifies incoming against existing by natural key. Input
// order is preserved within each list.
func Reconcile(incoming, existing []model.ToolPlan) Diff {
	stored := make(map[string]model.ToolPlan, len(existing))
	for _, p := range existing {
		stored[p.Key()] = p
	}

	d := Diff{ToCreate: []model.ToolPlan{}, ToUpdate: []model.ToolPlan{}}
	for _, p := range incoming {
		if cur, ok := stored[p.Key()]; ok {
			p.ID = cur.ID
			d.ToUpdate = append(d.ToUpdate, p)
			continue
		}
		d.ToCreate = append(d.ToCreate, p)
	}
	return d
}
