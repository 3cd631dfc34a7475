package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/gavel/go/internal/apperr"
	"github.com/mcdev12/gavel/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer(t *testing.T) (*Issuer, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC))
	iss, err := NewIssuer("test-secret", time.Hour, clock)
	require.NoError(t, err)
	return iss, clock
}

func TestIssueAndVerify(t *testing.T) {
	iss, _ := newTestIssuer(t)
	userID := uuid.New()

	token, err := iss.Issue(userID, models.UserRoleAdmin)
	require.NoError(t, err)

	p, err := iss.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, userID, p.UserID)
	assert.True(t, p.IsAdmin())
}

func TestVerifyRejects(t *testing.T) {
	iss, clock := newTestIssuer(t)
	userID := uuid.New()
	token, err := iss.Issue(userID, models.UserRoleParticipant)
	require.NoError(t, err)

	other, err := NewIssuer("other-secret", time.Hour, clock)
	require.NoError(t, err)
	forged, err := other.Issue(userID, models.UserRoleAdmin)
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		Role: models.UserRoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
		},
	})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"empty":    "",
		"garbage":  "not-a-token",
		"forged":   forged,
		"unsigned": unsigned,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := iss.Verify(tok)
			assert.True(t, apperr.IsKind(err, apperr.KindAuth), "got %v", err)
		})
	}

	clock.Advance(2 * time.Hour)
	_, err = iss.Verify(token)
	require.True(t, apperr.IsKind(err, apperr.KindAuth))
	assert.Contains(t, err.Error(), "expired")
}

func TestNewIssuerRequiresSecret(t *testing.T) {
	_, err := NewIssuer("", 0, nil)
	require.Error(t, err)
}

func TestRequireAdmin(t *testing.T) {
	_, err := RequireAdmin(context.Background())
	assert.True(t, apperr.IsKind(err, apperr.KindAuth))

	ctx := WithPrincipal(context.Background(), Principal{UserID: uuid.New(), Role: models.UserRoleParticipant})
	_, err = RequireAdmin(ctx)
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))

	ctx = WithPrincipal(context.Background(), Principal{UserID: uuid.New(), Role: models.UserRoleAdmin})
	p, err := RequireAdmin(ctx)
	require.NoError(t, err)
	assert.True(t, p.IsAdmin())
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer  abc "))
	assert.Equal(t, "", BearerToken("Basic abc"))
	assert.Equal(t, "", BearerToken("Bearer "))
}

func TestMiddleware(t *testing.T) {
	iss, _ := newTestIssuer(t)
	userID := uuid.New()
	token, err := iss.Issue(userID, models.UserRoleParticipant)
	require.NoError(t, err)

	var seen Principal
	h := Middleware(iss)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, userID, seen.UserID)
}

func TestInterceptor(t *testing.T) {
	iss, _ := newTestIssuer(t)
	token, err := iss.Issue(uuid.New(), models.UserRoleParticipant)
	require.NoError(t, err)

	var called bool
	next := connect.UnaryFunc(func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		_, called = FromContext(ctx)
		return nil, nil
	})
	unary := NewInterceptor(iss).WrapUnary(next)

	_, err = unary(context.Background(), connect.NewRequest(&struct{}{}))
	require.Error(t, err)
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
	assert.False(t, called)

	req := connect.NewRequest(&struct{}{})
	req.Header().Set("Authorization", "Bearer "+token)
	_, err = unary(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, called)
}
