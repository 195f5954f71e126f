package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// AllAccounts in the accounts claim grants access to every account.
const AllAccounts = "*"

var (
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrPermissionDenied = errors.New("permission denied")
)

// UserClaims represents the authenticated caller.
type UserClaims struct {
	UID         string
	Email       string
	DisplayName string
	Verified    bool
	// Accounts are the statement accounts the caller may ingest into and read.
	Accounts []string
	// Admin callers may reload merchant data.
	Admin bool
}

// CanAccessAccount reports whether the caller holds accountID or AllAccounts.
func (c *UserClaims) CanAccessAccount(accountID string) bool {
	return slices.Contains(c.Accounts, AllAccounts) || slices.Contains(c.Accounts, accountID)
}

// claimsFromToken reads the standard profile claims plus the custom
// "accounts" (list of ids) and "admin" (bool) claims.
func claimsFromToken(uid string, raw map[string]interface{}) *UserClaims {
	claims := &UserClaims{UID: uid}
	claims.Verified, _ = raw["email_verified"].(bool)
	claims.Email, _ = raw["email"].(string)
	claims.DisplayName, _ = raw["name"].(string)
	claims.Admin, _ = raw["admin"].(bool)

	switch accounts := raw["accounts"].(type) {
	case []interface{}:
		for _, a := range accounts {
			if s, ok := a.(string); ok && s != "" {
				claims.Accounts = append(claims.Accounts, s)
			}
		}
	case string:
		if accounts != "" {
			claims.Accounts = []string{accounts}
		}
	}
	return claims
}

type contextKey string

const userClaimsKey contextKey = "user_claims"

// WithUserClaims adds user claims to the context
func WithUserClaims(ctx context.Context, claims *UserClaims) context.Context {
	return context.WithValue(ctx, userClaimsKey, claims)
}

// GetUserClaims extracts user claims from context
func GetUserClaims(ctx context.Context) (*UserClaims, bool) {
	claims, ok := ctx.Value(userClaimsKey).(*UserClaims)
	return claims, ok
}

// GetUserID is a convenience function to get the user ID from context
func GetUserID(ctx context.Context) (string, bool) {
	if claims, ok := GetUserClaims(ctx); ok {
		return claims.UID, true
	}
	return "", false
}

// RequireAuth extracts user claims from context or returns ErrUnauthenticated.
func RequireAuth(ctx context.Context) (*UserClaims, error) {
	claims, ok := GetUserClaims(ctx)
	if !ok {
		return nil, fmt.Errorf("user not authenticated: %w", ErrUnauthenticated)
	}
	return claims, nil
}

// RequireAccountAccess verifies the caller may use accountID.
func RequireAccountAccess(ctx context.Context, accountID string) (*UserClaims, error) {
	claims, err := RequireAuth(ctx)
	if err != nil {
		return nil, err
	}
	if !claims.CanAccessAccount(accountID) {
		return nil, fmt.Errorf("cannot access account %q: %w", accountID, ErrPermissionDenied)
	}
	return claims, nil
}

// RequireAdmin verifies the caller carries the admin claim.
func RequireAdmin(ctx context.Context) (*UserClaims, error) {
	claims, err := RequireAuth(ctx)
	if err != nil {
		return nil, err
	}
	if !claims.Admin {
		return nil, fmt.Errorf("admin claim required: %w", ErrPermissionDenied)
	}
	return claims, nil
}
