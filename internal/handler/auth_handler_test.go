package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/polisync/internal/auth"
	"github.com/hitoshi/polisync/internal/middleware"
	"github.com/hitoshi/polisync/internal/model"
)

// mockAuthService は関数フィールドで挙動を差し替えるAuthServiceInterfaceのモック。
type mockAuthService struct {
	findOrCreateFunc   func(ctx context.Context, ident *auth.Identity) (*model.User, bool, error)
	getBySubjectIDFunc func(ctx context.Context, subjectID string) (*model.User, error)
}

func (m *mockAuthService) FindOrCreate(ctx context.Context, ident *auth.Identity) (*model.User, bool, error) {
	if m.findOrCreateFunc != nil {
		return m.findOrCreateFunc(ctx, ident)
	}
	return testUser(), false, nil
}

func (m *mockAuthService) GetBySubjectID(ctx context.Context, subjectID string) (*model.User, error) {
	if m.getBySubjectIDFunc != nil {
		return m.getBySubjectIDFunc(ctx, subjectID)
	}
	return testUser(), nil
}

func testUser() *model.User {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return &model.User{
		ID:          "user-1",
		SubjectID:   "sub-abc",
		Email:       "u1@example.com",
		DisplayName: "Taro",
		Provider:    "google.com",
		Role:        model.RoleUser,
		LastLogin:   &now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func testIdentity() *auth.Identity {
	return &auth.Identity{
		SubjectID:   "sub-abc",
		Email:       "u1@example.com",
		DisplayName: "Taro",
		Provider:    "google.com",
	}
}

func authedReq(method, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	return req.WithContext(middleware.ContextWithIdentity(req.Context(), testIdentity()))
}

// ログイン確認がユーザー情報を返すことを検証
func TestConfirmation_ReturnsUser(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{})

	rec := httptest.NewRecorder()
	h.Confirmation(rec, authedReq(http.MethodPost, "/api/auth/confirmation"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body struct {
		User struct {
			ID    string `json:"id"`
			Email string `json:"email"`
			Role  string `json:"role"`
		} `json:"user"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.User.ID != "user-1" {
		t.Errorf("user.id = %q, want %q", body.User.ID, "user-1")
	}
	if body.User.Email != "u1@example.com" {
		t.Errorf("user.email = %q", body.User.Email)
	}
	if body.User.Role != "user" {
		t.Errorf("user.role = %q, want %q", body.User.Role, "user")
	}
}

// 未認証のログイン確認が401になることを検証
func TestConfirmation_NoIdentity_Returns401(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{})

	rec := httptest.NewRecorder()
	h.Confirmation(rec, httptest.NewRequest(http.MethodPost, "/api/auth/confirmation", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

// サービスエラーで500が返ることを検証
func TestConfirmation_ServiceError_Returns500(t *testing.T) {
	svc := &mockAuthService{
		findOrCreateFunc: func(_ context.Context, _ *auth.Identity) (*model.User, bool, error) {
			return nil, false, errors.New("connection lost")
		},
	}
	h := NewAuthHandler(svc)

	rec := httptest.NewRecorder()
	h.Confirmation(rec, authedReq(http.MethodPost, "/api/auth/confirmation"))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

// 登録済みユーザーのセッション検証を検証
func TestSession_KnownUser_ReturnsAuthenticated(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{})

	rec := httptest.NewRecorder()
	h.Session(rec, authedReq(http.MethodGet, "/api/auth/session"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body struct {
		Authenticated bool          `json:"authenticated"`
		User          *userResponse `json:"user"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !body.Authenticated {
		t.Error("authenticated = false, want true")
	}
	if body.User == nil || body.User.Email != "u1@example.com" {
		t.Errorf("user = %+v", body.User)
	}
}

// 未登録ユーザーのセッション検証が401になることを検証
func TestSession_UnknownUser_Returns401(t *testing.T) {
	svc := &mockAuthService{
		getBySubjectIDFunc: func(_ context.Context, _ string) (*model.User, error) {
			return nil, nil
		},
	}
	h := NewAuthHandler(svc)

	rec := httptest.NewRecorder()
	h.Session(rec, authedReq(http.MethodGet, "/api/auth/session"))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	var body struct {
		Authenticated bool `json:"authenticated"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Authenticated {
		t.Error("authenticated = true, want false")
	}
}

// サービスエラーでもauthenticated: falseの401になることを検証
func TestSession_ServiceError_Returns401(t *testing.T) {
	svc := &mockAuthService{
		getBySubjectIDFunc: func(_ context.Context, _ string) (*model.User, error) {
			return nil, errors.New("connection lost")
		},
	}
	h := NewAuthHandler(svc)

	rec := httptest.NewRecorder()
	h.Session(rec, authedReq(http.MethodGet, "/api/auth/session"))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}
