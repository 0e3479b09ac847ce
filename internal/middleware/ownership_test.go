package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/polisync/internal/auth"
	"github.com/hitoshi/polisync/internal/model"
)

// mockPolicyLoader は関数フィールドで挙動を差し替えるPolicyLoaderのモック。
type mockPolicyLoader struct {
	findByIDFunc func(ctx context.Context, id string) (*model.Policy, error)
}

func (m *mockPolicyLoader) FindByID(ctx context.Context, id string) (*model.Policy, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, nil
}

func ownedPolicy(owner string) *model.Policy {
	return &model.Policy{
		ID:        "pol-1",
		CreatedBy: owner,
		Created:   time.Now(),
		Updated:   time.Now(),
	}
}

// requestWithRouteID はchiのルートパラメータと身元情報を持つリクエストを作る。
func requestWithRouteID(id string, ident *auth.Identity) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/policies/"+id, nil)

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	if ident != nil {
		ctx = ContextWithIdentity(ctx, ident)
	}
	return req.WithContext(ctx)
}

// 所有者本人のアクセスでポリシーがコンテキストに注入されることを検証
func TestOwnershipMiddleware_Owner_InjectsPolicy(t *testing.T) {
	loader := &mockPolicyLoader{
		findByIDFunc: func(_ context.Context, _ string) (*model.Policy, error) {
			return ownedPolicy("u1@example.com"), nil
		},
	}
	mw := NewOwnershipMiddleware(loader)

	var gotPolicy *model.Policy
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := PolicyFromContext(r.Context())
		if err != nil {
			t.Fatalf("policy not in context: %v", err)
		}
		gotPolicy = p
		w.WriteHeader(http.StatusOK)
	}))

	req := requestWithRouteID("pol-1", &auth.Identity{SubjectID: "sub-1", Email: "u1@example.com"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if gotPolicy == nil || gotPolicy.ID != "pol-1" {
		t.Errorf("policy = %+v", gotPolicy)
	}
}

// 存在しないポリシーと他人のポリシーが同一の404レスポンスになることを検証
func TestOwnershipMiddleware_AbsentAndForeign_Indistinguishable(t *testing.T) {
	ident := &auth.Identity{SubjectID: "sub-1", Email: "u1@example.com"}
	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	})

	absentLoader := &mockPolicyLoader{
		findByIDFunc: func(_ context.Context, _ string) (*model.Policy, error) {
			return nil, nil
		},
	}
	foreignLoader := &mockPolicyLoader{
		findByIDFunc: func(_ context.Context, _ string) (*model.Policy, error) {
			return ownedPolicy("someone-else@example.com"), nil
		},
	}

	absentRec := httptest.NewRecorder()
	NewOwnershipMiddleware(absentLoader)(nextHandler).ServeHTTP(absentRec, requestWithRouteID("no-such-id", ident))

	foreignRec := httptest.NewRecorder()
	NewOwnershipMiddleware(foreignLoader)(nextHandler).ServeHTTP(foreignRec, requestWithRouteID("pol-1", ident))

	if absentRec.Code != http.StatusNotFound {
		t.Errorf("absent status = %d, want %d", absentRec.Code, http.StatusNotFound)
	}
	if foreignRec.Code != http.StatusNotFound {
		t.Errorf("foreign status = %d, want %d", foreignRec.Code, http.StatusNotFound)
	}
	// ステータスもボディも完全一致していなければ存在が観測できてしまう
	if absentRec.Body.String() != foreignRec.Body.String() {
		t.Errorf("responses differ: absent=%q foreign=%q", absentRec.Body.String(), foreignRec.Body.String())
	}
}

// 未認証のリクエストが401になることを検証
func TestOwnershipMiddleware_NoIdentity_Returns401(t *testing.T) {
	mw := NewOwnershipMiddleware(&mockPolicyLoader{})
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := requestWithRouteID("pol-1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

// リポジトリエラーが500になることを検証
func TestOwnershipMiddleware_LoaderError_Returns500(t *testing.T) {
	loader := &mockPolicyLoader{
		findByIDFunc: func(_ context.Context, _ string) (*model.Policy, error) {
			return nil, errors.New("connection lost")
		},
	}
	mw := NewOwnershipMiddleware(loader)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := requestWithRouteID("pol-1", &auth.Identity{Email: "u1@example.com"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

// PolicyFromContextが未注入のコンテキストでエラーを返すことを検証
func TestPolicyFromContext_Missing_ReturnsError(t *testing.T) {
	_, err := PolicyFromContext(context.Background())
	if err == nil {
		t.Fatal("expected error for missing policy")
	}
}
