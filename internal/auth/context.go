package auth

import (
	"context"
	"strconv"
	"strings"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
	RoleGuest = "guest"
)

type contextKey struct{}

// Identity is the caller resolved from a bearer token. Users carry their
// account id. Guests carry the single order their checkout token was issued
// for. Admins carry only an email and never match a buyer account.
type Identity struct {
	UserID  int64
	Email   string
	Role    string
	OrderID string
}

func (id Identity) IsGuest() bool {
	return id.Role == RoleGuest
}

// Owner is the key dashboard messages are routed by: "user:<id>" for
// accounts, "order:<id>" for guests and "admin:<email>" for admins.
func (id Identity) Owner() string {
	switch id.Role {
	case RoleGuest:
		return "order:" + id.OrderID
	case RoleAdmin:
		return "admin:" + strings.ToLower(id.Email)
	}
	return "user:" + strconv.FormatInt(id.UserID, 10)
}

// OwnsOrder reports whether the caller bought the order: the account that
// placed it, or the guest holding that order's checkout token.
func (id Identity) OwnsOrder(orderID string, userID *int64) bool {
	switch id.Role {
	case RoleUser:
		return userID != nil && *userID == id.UserID
	case RoleGuest:
		return userID == nil && id.OrderID != "" && id.OrderID == orderID
	}
	return false
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

func IsAdmin(ctx context.Context) bool {
	id, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return id.Role == RoleAdmin
}
