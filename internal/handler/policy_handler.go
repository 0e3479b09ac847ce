package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/polisync/internal/middleware"
	"github.com/hitoshi/polisync/internal/model"
	"github.com/hitoshi/polisync/internal/policy"
)

// PolicyServiceInterface はポリシーハンドラーが必要とするサービスインターフェース。
type PolicyServiceInterface interface {
	// Create は認証ユーザーを所有者として保険証券を作成する。
	Create(ctx context.Context, ownerRef string, in *policy.Input) (*model.Policy, error)
	// List は所有する保険証券を更新日時降順で返す。
	List(ctx context.Context, ownerRef string, includeDeleted bool) ([]*model.Policy, error)
	// Get はロード済みポリシーを返す。削除済みはnot-found。
	Get(p *model.Policy) (*model.Policy, error)
	// Update は入力に含まれるフィールドだけを適用して保存する。
	Update(ctx context.Context, ownerRef string, p *model.Policy, in *policy.Input) (*model.Policy, error)
	// SoftDelete はポリシーを論理削除する。
	SoftDelete(ctx context.Context, p *model.Policy) error
	// Restore は論理削除済みポリシーを復元する。
	Restore(ctx context.Context, p *model.Policy) (*model.Policy, error)
}

// PolicyHandler は保険証券管理のHTTPハンドラー。
type PolicyHandler struct {
	service PolicyServiceInterface
}

// NewPolicyHandler はPolicyHandlerを生成する。
func NewPolicyHandler(service PolicyServiceInterface) *PolicyHandler {
	return &PolicyHandler{service: service}
}

// List は認証ユーザーの保険証券一覧を返す。
// includeDeleted=trueクエリで論理削除済みも含める。
// GET /api/policies
func (h *PolicyHandler) List(w http.ResponseWriter, r *http.Request) {
	ident, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		writeEnvelopeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	includeDeleted := r.URL.Query().Get("includeDeleted") == "true"

	policies, err := h.service.List(r.Context(), ident.Email, includeDeleted)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	items := make([]policyResponse, len(policies))
	for i, p := range policies {
		items[i] = toPolicyResponse(p)
	}

	writeSuccessWithCount(w, http.StatusOK, items, len(items))
}

// Create は新しい保険証券を作成する。
// POST /api/policies
func (h *PolicyHandler) Create(w http.ResponseWriter, r *http.Request) {
	ident, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		writeEnvelopeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var in policy.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeEnvelopeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	created, err := h.service.Create(r.Context(), ident.Email, &in)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, toPolicyResponse(created))
}

// Get は保険証券の詳細を返す。所有権検査はミドルウェアで済んでいる。
// GET /api/policies/{id}
func (h *PolicyHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := middleware.PolicyFromContext(r.Context())
	if err != nil {
		writeEnvelopeError(w, http.StatusNotFound, "Policy not found")
		return
	}

	result, err := h.service.Get(p)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, toPolicyResponse(result))
}

// Update は保険証券を更新する。PUTとPATCHの両方を処理する:
// どちらも入力に含まれるフィールドだけを適用する。
// PUT /api/policies/{id}, PATCH /api/policies/{id}
func (h *PolicyHandler) Update(w http.ResponseWriter, r *http.Request) {
	ident, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		writeEnvelopeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	p, err := middleware.PolicyFromContext(r.Context())
	if err != nil {
		writeEnvelopeError(w, http.StatusNotFound, "Policy not found")
		return
	}

	var in policy.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeEnvelopeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	updated, err := h.service.Update(r.Context(), ident.Email, p, &in)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, toPolicyResponse(updated))
}

// Delete は保険証券を論理削除する。
// DELETE /api/policies/{id}
func (h *PolicyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, err := middleware.PolicyFromContext(r.Context())
	if err != nil {
		writeEnvelopeError(w, http.StatusNotFound, "Policy not found")
		return
	}

	if err := h.service.SoftDelete(r.Context(), p); err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{})
}

// Restore は論理削除済みの保険証券を復元する。
// POST /api/policies/{id}/restore
func (h *PolicyHandler) Restore(w http.ResponseWriter, r *http.Request) {
	p, err := middleware.PolicyFromContext(r.Context())
	if err != nil {
		writeEnvelopeError(w, http.StatusNotFound, "Policy not found")
		return
	}

	restored, err := h.service.Restore(r.Context(), p)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, toPolicyResponse(restored))
}
