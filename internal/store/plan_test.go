package store

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/aideals/internal/model"
)

func setupPlanTestDB(t *testing.T) (*PlanStore, *ToolStore) {
	t.Helper()
	db := setupTestDB(t)
	return NewPlanStore(db), NewToolStore(db)
}

func pricePtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func testPlan(toolID, planID, name string, price *decimal.Decimal) model.ToolPlan {
	return model.ToolPlan{
		ToolID:         toolID,
		PlanID:         planID,
		PlanName:       name,
		MonthlyPrice:   price,
		DeliveryType:   model.DeliveryProvideAccount,
		ActivationTime: 6,
		IsActive:       true,
	}
}

func TestPlanUpsertAndGet(t *testing.T) {
	ps, ts := setupPlanTestDB(t)
	seedTool(t, ts, "chatgpt", 6)

	p, err := ps.Upsert(testPlan("chatgpt", "pro", "Pro", pricePtr("20")))
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if p.Key() != "chatgpt::pro" {
		t.Errorf("key = %q", p.Key())
	}
	if p.MonthlyPrice == nil || !p.MonthlyPrice.Equal(decimal.NewFromInt(20)) {
		t.Errorf("monthly_price = %v, want 20", p.MonthlyPrice)
	}

	p2, err := ps.Upsert(testPlan("chatgpt", "pro", "Pro Max", pricePtr("25")))
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if p2.ID != p.ID {
		t.Errorf("upsert created a new row: %d != %d", p2.ID, p.ID)
	}
	if p2.PlanName != "Pro Max" {
		t.Errorf("plan_name = %q, want Pro Max", p2.PlanName)
	}
}

func TestPlanContactPricing(t *testing.T) {
	ps, ts := setupPlanTestDB(t)
	seedTool(t, ts, "chatgpt", 6)

	p, err := ps.Upsert(testPlan("chatgpt", "enterprise", "Enterprise", nil))
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if p.MonthlyPrice != nil {
		t.Errorf("monthly_price = %v, want nil", p.MonthlyPrice)
	}
}

func TestPlanRequiresKnownTool(t *testing.T) {
	ps, _ := setupPlanTestDB(t)

	if _, err := ps.Upsert(testPlan("ghost", "pro", "Pro", nil)); err == nil {
		t.Fatal("expected foreign key failure for unknown tool")
	}
}

func TestPlanListOrdering(t *testing.T) {
	ps, ts := setupPlanTestDB(t)
	seedTool(t, ts, "chatgpt", 6)
	seedTool(t, ts, "claude", 6)

	ps.Upsert(testPlan("chatgpt", "team", "Team", pricePtr("30")))
	ps.Upsert(testPlan("chatgpt", "enterprise", "Enterprise", nil))
	ps.Upsert(testPlan("chatgpt", "plus", "Plus", pricePtr("9.5")))
	ps.Upsert(testPlan("claude", "pro", "Pro", pricePtr("20")))

	plans, err := ps.List("chatgpt", false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var got []string
	for _, p := range plans {
		got = append(got, p.PlanID)
	}
	want := []string{"plus", "team", "enterprise"}
	if len(got) != len(want) {
		t.Fatalf("plans = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("plans = %v, want %v", got, want)
		}
	}

	all, _ := ps.List("", false)
	if len(all) != 4 {
		t.Errorf("all plans = %d, want 4", len(all))
	}
}

func TestPlanSetActive(t *testing.T) {
	ps, ts := setupPlanTestDB(t)
	seedTool(t, ts, "chatgpt", 6)
	p, _ := ps.Upsert(testPlan("chatgpt", "pro", "Pro", pricePtr("20")))

	ok, err := ps.SetActive(p.ID, false)
	if err != nil || !ok {
		t.Fatalf("set active: ok=%v err=%v", ok, err)
	}
	active, _ := ps.List("chatgpt", true)
	if len(active) != 0 {
		t.Errorf("active plans = %d, want 0", len(active))
	}
	got, _ := ps.GetByID(p.ID)
	if got == nil || got.IsActive {
		t.Errorf("plan should still exist and be inactive: %+v", got)
	}
}

func TestPlanInsertBatchRejectsExisting(t *testing.T) {
	ps, ts := setupPlanTestDB(t)
	seedTool(t, ts, "chatgpt", 6)
	ps.Upsert(testPlan("chatgpt", "pro", "Pro", pricePtr("20")))

	err := ps.InsertBatch([]model.ToolPlan{
		testPlan("chatgpt", "team", "Team", pricePtr("30")),
		testPlan("chatgpt", "pro", "Pro Overwrite", pricePtr("99")),
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("insert batch error = %v, want ErrConflict", err)
	}

	existing, _ := ps.Get("chatgpt", "pro")
	if existing.PlanName != "Pro" || !existing.MonthlyPrice.Equal(decimal.NewFromInt(20)) {
		t.Errorf("existing plan was overwritten: %+v", existing)
	}
	team, _ := ps.Get("chatgpt", "team")
	if team != nil {
		t.Error("batch should be rolled back entirely")
	}
}

func TestPlanUpsertBatch(t *testing.T) {
	ps, ts := setupPlanTestDB(t)
	seedTool(t, ts, "chatgpt", 6)
	ps.Upsert(testPlan("chatgpt", "pro", "Pro", pricePtr("20")))

	err := ps.UpsertBatch([]model.ToolPlan{
		testPlan("chatgpt", "team", "Team", pricePtr("30")),
		testPlan("chatgpt", "pro", "Pro v2", pricePtr("21")),
	})
	if err != nil {
		t.Fatalf("upsert batch: %v", err)
	}

	pro, _ := ps.Get("chatgpt", "pro")
	if pro.PlanName != "Pro v2" {
		t.Errorf("plan_name = %q, want Pro v2", pro.PlanName)
	}
	team, _ := ps.Get("chatgpt", "team")
	if team == nil {
		t.Error("expected team plan to be created")
	}
}
