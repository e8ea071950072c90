package store

import (
	"testing"
	"time"
)

func TestCredentialCreateAndLatest(t *testing.T) {
	db := setupTestDB(t)
	seedTool(t, NewToolStore(db), "chatgpt", 6)
	order, _ := NewOrderStore(db).Create(newTestOrder("cs_1", time.Now(), 6))
	cs := NewCredentialStore(db)

	if _, err := cs.Create(order.ID, "old@example.com", "blob-1"); err != nil {
		t.Fatalf("create: %v", err)
	}
	c, err := cs.Create(order.ID, "new@example.com", "blob-2")
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if c.OrderID != order.ID {
		t.Errorf("order_id = %q, want %q", c.OrderID, order.ID)
	}

	latest, err := cs.LatestForOrder(order.ID)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.Email != "new@example.com" || latest.EncryptedPassword != "blob-2" {
		t.Errorf("latest = %+v", latest)
	}
}

func TestCredentialRequiresOrder(t *testing.T) {
	cs := NewCredentialStore(setupTestDB(t))

	if _, err := cs.Create("missing-order", "a@example.com", "blob"); err == nil {
		t.Fatal("expected foreign key failure for unknown order")
	}
	latest, err := cs.LatestForOrder("missing-order")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest != nil {
		t.Error("expected nil for order without credentials")
	}
}
