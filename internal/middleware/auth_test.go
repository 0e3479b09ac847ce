package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/polisync/internal/auth"
)

// mockVerifier は関数フィールドで挙動を差し替えるTokenVerifierのモック。
type mockVerifier struct {
	verifyFunc func(ctx context.Context, token string) (*auth.Identity, error)
}

func (m *mockVerifier) Verify(ctx context.Context, token string) (*auth.Identity, error) {
	if m.verifyFunc != nil {
		return m.verifyFunc(ctx, token)
	}
	return &auth.Identity{SubjectID: "sub-1", Email: "u1@example.com"}, nil
}

func decodeAuthError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return body["error"]
}

// トークンなしのリクエストが401になることを検証
func TestAuthMiddleware_MissingToken_Returns401(t *testing.T) {
	mw := NewAuthMiddleware(&mockVerifier{})
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/policies", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if msg := decodeAuthError(t, rec); msg != "Authorization token required" {
		t.Errorf("error = %q, want %q", msg, "Authorization token required")
	}
}

// Bearer以外のスキームが401になることを検証
func TestAuthMiddleware_NonBearerScheme_Returns401(t *testing.T) {
	mw := NewAuthMiddleware(&mockVerifier{})
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/policies", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

// 無効なトークンが401になることを検証
func TestAuthMiddleware_InvalidToken_Returns401(t *testing.T) {
	verifier := &mockVerifier{
		verifyFunc: func(_ context.Context, _ string) (*auth.Identity, error) {
			return nil, fmt.Errorf("%w: signature mismatch", auth.ErrInvalidToken)
		},
	}
	mw := NewAuthMiddleware(verifier)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/policies", nil)
	req.Header.Set("Authorization", "Bearer bad-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if msg := decodeAuthError(t, rec); msg != "Invalid or expired credentials" {
		t.Errorf("error = %q, want %q", msg, "Invalid or expired credentials")
	}
}

// テナント不一致のトークンが403になることを検証
func TestAuthMiddleware_ForeignTenant_Returns403(t *testing.T) {
	verifier := &mockVerifier{
		verifyFunc: func(_ context.Context, _ string) (*auth.Identity, error) {
			return nil, fmt.Errorf("%w: aud=other", auth.ErrForeignTenant)
		},
	}
	mw := NewAuthMiddleware(verifier)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/policies", nil)
	req.Header.Set("Authorization", "Bearer foreign-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
	if msg := decodeAuthError(t, rec); msg != "Invalid authentication source" {
		t.Errorf("error = %q, want %q", msg, "Invalid authentication source")
	}
}

// 有効なトークンで身元情報がコンテキストに注入されることを検証
func TestAuthMiddleware_ValidToken_InjectsIdentity(t *testing.T) {
	mw := NewAuthMiddleware(&mockVerifier{})

	var gotIdent *auth.Identity
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident, err := IdentityFromContext(r.Context())
		if err != nil {
			t.Fatalf("identity not in context: %v", err)
		}
		gotIdent = ident
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/policies", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if gotIdent == nil || gotIdent.Email != "u1@example.com" {
		t.Errorf("identity = %+v", gotIdent)
	}
}

// IdentityFromContextが未注入のコンテキストでエラーを返すことを検証
func TestIdentityFromContext_Missing_ReturnsError(t *testing.T) {
	_, err := IdentityFromContext(context.Background())
	if err == nil {
		t.Fatal("expected error for missing identity")
	}
}

// extractBearerTokenの各パターンを検証
func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"normal", "Bearer abc123", "abc123"},
		{"lowercase scheme", "bearer abc123", "abc123"},
		{"empty header", "", ""},
		{"scheme only", "Bearer ", ""},
		{"basic auth", "Basic abc123", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if got := extractBearerToken(req); got != tt.want {
				t.Errorf("extractBearerToken() = %q, want %q", got, tt.want)
			}
		})
	}
}
