package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/polisync/internal/auth"
	"github.com/hitoshi/polisync/internal/middleware"
	"github.com/hitoshi/polisync/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	// FindOrCreate は検証済み身元情報からローカルユーザーを検索または作成する。
	FindOrCreate(ctx context.Context, ident *auth.Identity) (*model.User, bool, error)
	// GetBySubjectID は外部IdPのsubjectでユーザーを取得する。未検出はnil。
	GetBySubjectID(ctx context.Context, subjectID string) (*model.User, error)
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

// authConfirmationResponse はログイン確認レスポンスのボディ。
type authConfirmationResponse struct {
	User userResponse `json:"user"`
}

// sessionResponse はセッション検証レスポンスのボディ。
type sessionResponse struct {
	Authenticated bool          `json:"authenticated"`
	User          *userResponse `json:"user,omitempty"`
}

// Confirmation はIdPログイン後のユーザー確認を処理する。
// ローカルユーザーを検索または作成し、ユーザー情報を返す。
// POST /api/auth/confirmation
func (h *AuthHandler) Confirmation(w http.ResponseWriter, r *http.Request) {
	ident, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		writeEnvelopeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	user, _, err := h.service.FindOrCreate(r.Context(), ident)
	if err != nil {
		slog.Error("social authentication failed",
			slog.String("subject_id", ident.SubjectID),
			slog.String("error", err.Error()),
		)
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, authConfirmationResponse{
		User: toUserResponse(user),
	})
}

// Session は現在のトークンに対応するローカルユーザーの存在を検証する。
// ユーザーが未登録の場合は401で authenticated: false を返す。
// GET /api/auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	ident, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, sessionResponse{Authenticated: false})
		return
	}

	user, err := h.service.GetBySubjectID(r.Context(), ident.SubjectID)
	if err != nil {
		slog.Error("session verification failed",
			slog.String("subject_id", ident.SubjectID),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusUnauthorized, sessionResponse{Authenticated: false})
		return
	}
	if user == nil {
		writeJSON(w, http.StatusUnauthorized, sessionResponse{Authenticated: false})
		return
	}

	resp := toUserResponse(user)
	writeJSON(w, http.StatusOK, sessionResponse{
		Authenticated: true,
		User:          &resp,
	})
}
