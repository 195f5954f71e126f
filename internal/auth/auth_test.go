package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractTokenFromHeader(t *testing.T) {
	tests := []struct {
		name        string
		authHeader  string
		expectedErr bool
		errContains string
		wantToken   string
	}{
		{name: "empty header", authHeader: "", expectedErr: true, errContains: "authorization header is required"},
		{name: "no bearer prefix", authHeader: "token123", expectedErr: true, errContains: "must be Bearer token"},
		{name: "wrong prefix", authHeader: "Basic token123", expectedErr: true, errContains: "must be Bearer token"},
		{name: "bearer only no token", authHeader: "Bearer", expectedErr: true, errContains: "must be Bearer token"},
		{name: "valid bearer token", authHeader: "Bearer mytoken123", wantToken: "mytoken123"},
		{name: "bearer mixed case", authHeader: "BEARER mytoken789", wantToken: "mytoken789"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := ExtractTokenFromHeader(tt.authHeader)

			if tt.expectedErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				assert.Empty(t, token)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantToken, token)
			}
		})
	}
}

func TestClaimsFromToken(t *testing.T) {
	claims := claimsFromToken("uid-1", map[string]interface{}{
		"email":          "ana@example.com",
		"email_verified": true,
		"name":           "Ana",
		"admin":          true,
		"accounts":       []interface{}{"acct-1", "", 7, "acct-2"},
	})

	assert.Equal(t, "uid-1", claims.UID)
	assert.Equal(t, "ana@example.com", claims.Email)
	assert.Equal(t, "Ana", claims.DisplayName)
	assert.True(t, claims.Verified)
	assert.True(t, claims.Admin)
	assert.Equal(t, []string{"acct-1", "acct-2"}, claims.Accounts)

	single := claimsFromToken("uid-2", map[string]interface{}{"accounts": "acct-9"})
	assert.Equal(t, []string{"acct-9"}, single.Accounts)
	assert.False(t, single.Admin)

	bare := claimsFromToken("uid-3", nil)
	assert.Empty(t, bare.Accounts)
}

func TestContextUserClaims(t *testing.T) {
	t.Run("GetUserClaims returns false for empty context", func(t *testing.T) {
		claims, ok := GetUserClaims(context.Background())
		assert.False(t, ok)
		assert.Nil(t, claims)

		uid, ok := GetUserID(context.Background())
		assert.False(t, ok)
		assert.Empty(t, uid)
	})

	t.Run("GetUserID returns UID when claims exist", func(t *testing.T) {
		ctx := WithUserClaims(context.Background(), &UserClaims{UID: "user-123"})
		uid, ok := GetUserID(ctx)
		assert.True(t, ok)
		assert.Equal(t, "user-123", uid)
	})
}

func TestRequireAccountAccess(t *testing.T) {
	_, err := RequireAccountAccess(context.Background(), "acct-1")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	ctx := WithUserClaims(context.Background(), &UserClaims{UID: "u", Accounts: []string{"acct-1"}})
	_, err = RequireAccountAccess(ctx, "acct-1")
	assert.NoError(t, err)
	_, err = RequireAccountAccess(ctx, "acct-2")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	all := WithUserClaims(context.Background(), &UserClaims{UID: "ops", Accounts: []string{AllAccounts}})
	_, err = RequireAccountAccess(all, "anything")
	assert.NoError(t, err)
}

func TestRequireAdmin(t *testing.T) {
	_, err := RequireAdmin(WithUserClaims(context.Background(), &UserClaims{UID: "u"}))
	assert.ErrorIs(t, err, ErrPermissionDenied)

	claims, err := RequireAdmin(WithUserClaims(context.Background(), &UserClaims{UID: "root", Admin: true}))
	require.NoError(t, err)
	assert.Equal(t, "root", claims.UID)
}

type fakeVerifier map[string]*UserClaims

func (f fakeVerifier) VerifyToken(_ context.Context, token string) (*UserClaims, error) {
	if c, ok := f[token]; ok {
		return c, nil
	}
	return nil, errors.New("bad token")
}

func TestMiddleware(t *testing.T) {
	verifier := fakeVerifier{"good": {UID: "user-1"}}
	var denied error
	deny := func(w http.ResponseWriter, _ *http.Request, err error) {
		denied = err
		w.WriteHeader(http.StatusUnauthorized)
	}
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = GetUserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := Middleware(verifier, deny)(next)

	tests := []struct {
		name       string
		path       string
		header     string
		wantStatus int
		wantUser   string
	}{
		{"public path skips auth", "/health", "", http.StatusNoContent, ""},
		{"missing header", "/v1/statements:ingest", "", http.StatusUnauthorized, ""},
		{"rejected token", "/v1/statements:ingest", "Bearer nope", http.StatusUnauthorized, ""},
		{"verified token", "/v1/statements:ingest", "Bearer good", http.StatusNoContent, "user-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen, denied = "", nil
			req := httptest.NewRequest(http.MethodPost, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantUser, seen)
			assert.Equal(t, tt.wantStatus == http.StatusUnauthorized, denied != nil)
		})
	}
}

func TestLocalDevMiddleware(t *testing.T) {
	var claims *UserClaims
	h := LocalDevMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, _ = GetUserClaims(r.Context())
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/transactions:search", nil))
	require.NotNil(t, claims)
	assert.Equal(t, "local-dev-user", claims.UID)
	assert.True(t, claims.Admin)
	assert.True(t, claims.CanAccessAccount("acct-42"))

	req := httptest.NewRequest(http.MethodGet, "/v1/transactions:search", nil)
	req.Header.Set("X-Debug-Impersonate-User", "alice")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "alice", claims.UID)
	assert.Equal(t, "alice@debug.local", claims.Email)
}
