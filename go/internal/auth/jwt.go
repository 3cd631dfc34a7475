// Package auth issues and verifies the bearer credentials carried by RPC
// calls and realtime connections.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/gavel/go/internal/apperr"
	"github.com/mcdev12/gavel/go/internal/models"
)

// DefaultTTL is how long an issued token stays valid.
const DefaultTTL = 24 * time.Hour

const issuer = "gavel"

// Claims represents the JWT claims. The subject is the user id.
type Claims struct {
	Role models.UserRole `json:"role"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller.
type Principal struct {
	UserID uuid.UUID
	Role   models.UserRole
}

func (p Principal) IsAdmin() bool { return p.Role == models.UserRoleAdmin }

// Issuer signs and verifies HS256 tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	clock  clockwork.Clock
}

// NewIssuer creates an issuer. A zero ttl means DefaultTTL.
func NewIssuer(secret string, ttl time.Duration, clock clockwork.Clock) (*Issuer, error) {
	if secret == "" {
		return nil, fmt.Errorf("JWT secret not configured")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, clock: clock}, nil
}

// Issue generates a signed token for a user
func (i *Issuer) Issue(userID uuid.UUID, role models.UserRole) (string, error) {
	now := i.clock.Now()
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify validates a token and returns the caller it names. Every failure is
// an Auth error.
func (i *Issuer) Verify(tokenString string) (Principal, error) {
	if tokenString == "" {
		return Principal{}, apperr.Auth("authentication token required")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Principal{}, &apperr.Error{Kind: apperr.KindAuth, Reason: "token expired", Err: err}
		}
		return Principal{}, &apperr.Error{Kind: apperr.KindAuth, Reason: "invalid token", Err: err}
	}
	if !token.Valid {
		return Principal{}, apperr.Auth("invalid token")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Principal{}, &apperr.Error{Kind: apperr.KindAuth, Reason: "invalid token subject", Err: err}
	}
	return Principal{UserID: userID, Role: claims.Role}, nil
}
