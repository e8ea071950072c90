package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// GuestTokenTTL is how long a checkout guest token grants dashboard access.
const GuestTokenTTL = 30 * 24 * time.Hour

var ErrInvalidToken = errors.New("invalid token")

type claims struct {
	Email   string `json:"email"`
	Role    string `json:"role"`
	OrderID string `json:"order_id,omitempty"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies HS256 bearer tokens.
type Tokens struct {
	secret []byte
	now    func() time.Time
}

func NewTokens(secret string) *Tokens {
	return &Tokens{secret: []byte(secret), now: time.Now}
}

// Issue signs a token for the identity. The subject is the user id for
// accounts and the email for guests and admins.
func (t *Tokens) Issue(id Identity, ttl time.Duration) (string, error) {
	subject := id.Email
	if id.Role == RoleUser {
		subject = strconv.FormatInt(id.UserID, 10)
	}
	now := t.now()
	c := claims{
		Email:   id.Email,
		Role:    id.Role,
		OrderID: id.OrderID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// IssueGuest returns a guest token that grants access to one order only.
func (t *Tokens) IssueGuest(email, orderID string) (string, error) {
	if orderID == "" {
		return "", fmt.Errorf("%w: guest token needs an order", ErrInvalidToken)
	}
	return t.Issue(Identity{Email: strings.ToLower(email), Role: RoleGuest, OrderID: orderID}, GuestTokenTTL)
}

// Parse verifies the signature and expiry and returns the identity.
func (t *Tokens) Parse(tokenString string) (Identity, error) {
	var c claims
	_, err := jwt.ParseWithClaims(tokenString, &c, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now), jwt.WithExpirationRequired())
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	id := Identity{Email: c.Email, Role: c.Role}
	switch c.Role {
	case RoleGuest:
		if id.Email == "" {
			id.Email = c.Subject
		}
		if id.Email == "" || c.OrderID == "" {
			return Identity{}, fmt.Errorf("%w: guest token without email or order", ErrInvalidToken)
		}
		id.OrderID = c.OrderID
	case RoleAdmin:
		if id.Email == "" {
			id.Email = c.Subject
		}
		if id.Email == "" {
			return Identity{}, fmt.Errorf("%w: admin token without email", ErrInvalidToken)
		}
	case RoleUser:
		uid, err := strconv.ParseInt(c.Subject, 10, 64)
		if err != nil || uid <= 0 {
			return Identity{}, fmt.Errorf("%w: bad subject %q", ErrInvalidToken, c.Subject)
		}
		id.UserID = uid
	default:
		return Identity{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, c.Role)
	}
	return id, nil
}

// OrderOwnerKey is the routing key of the buyer who owns an order: the
// account for signed-in purchases, the order itself for guest checkouts.
func OrderOwnerKey(orderID string, userID *int64) string {
	if userID != nil {
		return "user:" + strconv.FormatInt(*userID, 10)
	}
	return "order:" + orderID
}
