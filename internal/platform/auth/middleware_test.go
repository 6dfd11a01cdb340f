package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

type staticVerifier struct {
	claims Claims
	err    error
}

func (v staticVerifier) VerifyToken(context.Context, string) (Claims, error) {
	if v.err != nil {
		return Claims{}, v.err
	}
	return v.claims, nil
}

func protectedHandler(t *testing.T, captured **Identity) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatal("expected identity on context")
		}
		*captured = identity
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestRequireAuthRejectsMissingHeader(t *testing.T) {
	mw := NewAuthenticator(staticVerifier{}).RequireAuth()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	mw(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run without credentials")
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireAuthAttachesIdentity(t *testing.T) {
	verifier := staticVerifier{claims: Claims{
		UID:   "usr_1",
		Email: "pilot@example.com",
		Custom: map[string]any{
			"roles": []any{"Operator", "operator", "admin"},
		},
	}}
	var identity *Identity
	mw := NewAuthenticator(verifier).RequireAuth()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer token")
	mw(protectedHandler(t, &identity)).ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if identity.UID != "usr_1" {
		t.Fatalf("unexpected uid %s", identity.UID)
	}
	if len(identity.Roles) != 2 {
		t.Fatalf("expected deduplicated roles, got %v", identity.Roles)
	}
	if !identity.HasRole("OPERATOR") || !identity.HasRole("admin") {
		t.Fatalf("expected operator and admin roles, got %v", identity.Roles)
	}
}

func TestRequireAuthFallbackRole(t *testing.T) {
	verifier := staticVerifier{claims: Claims{UID: "usr_1"}}
	var identity *Identity
	mw := NewAuthenticator(verifier).RequireAuth()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer token")
	mw(protectedHandler(t, &identity)).ServeHTTP(rec, req)

	if !identity.HasRole(RoleCustomer) {
		t.Fatalf("expected fallback customer role, got %v", identity.Roles)
	}
}

func TestRequireAuthEnforcesAllowedRoles(t *testing.T) {
	verifier := staticVerifier{claims: Claims{
		UID:    "usr_1",
		Custom: map[string]any{"roles": "customer"},
	}}
	mw := NewAuthenticator(verifier).RequireAuth(RoleAdmin)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/services/svc_1", nil)
	req.Header.Set("Authorization", "Bearer token")
	mw(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run for insufficient role")
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestRequireAuthExpiredToken(t *testing.T) {
	mw := NewAuthenticator(staticVerifier{err: ErrTokenExpired}).RequireAuth()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer token")
	mw(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run for expired token")
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestLocalVerifierRoundTrip(t *testing.T) {
	verifier, err := NewLocalVerifier("dev-secret")
	if err != nil {
		t.Fatalf("NewLocalVerifier returned error: %v", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "usr_1",
		"email": "pilot@example.com",
		"roles": []string{"operator"},
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("dev-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	claims, err := verifier.VerifyToken(context.Background(), signed)
	if err != nil {
		t.Fatalf("VerifyToken returned error: %v", err)
	}
	if claims.UID != "usr_1" || claims.Email != "pilot@example.com" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestLocalVerifierRejectsWrongSecret(t *testing.T) {
	verifier, _ := NewLocalVerifier("dev-secret")

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "usr_1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("other-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := verifier.VerifyToken(context.Background(), signed); err == nil {
		t.Fatal("expected verification failure")
	}
}

func TestLocalVerifierExpiredToken(t *testing.T) {
	verifier, _ := NewLocalVerifier("dev-secret")

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "usr_1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("dev-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	_, err = verifier.VerifyToken(context.Background(), signed)
	if err == nil {
		t.Fatal("expected expired token error")
	}
}
