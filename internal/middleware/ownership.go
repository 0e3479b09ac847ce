package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/polisync/internal/model"
)

// policyContextKey はリクエストコンテキストにロード済みポリシーを格納するためのキー。
var policyContextKey = contextKey("policy")

// PolicyLoader はポリシーの検索に必要なインターフェース。
// repository.PolicyRepositoryの部分集合として定義する。
type PolicyLoader interface {
	FindByID(ctx context.Context, id string) (*model.Policy, error)
}

// NewOwnershipMiddleware はパスのポリシーIDを解決し、所有権を検査するミドルウェアを返す。
// 所有者が一致しない場合も404を返し、他人のポリシーの存在を漏らさない。
// ロードしたポリシーをリクエストコンテキストに注入する。
func NewOwnershipMiddleware(loader PolicyLoader) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			policyID := chi.URLParam(r, "id")
			if policyID == "" {
				WriteEnvelopeError(w, http.StatusBadRequest, model.NewPolicyIDRequiredError().Message)
				return
			}

			ident, err := IdentityFromContext(r.Context())
			if err != nil {
				WriteEnvelopeError(w, http.StatusUnauthorized, model.NewUnauthorizedError().Message)
				return
			}

			p, err := loader.FindByID(r.Context(), policyID)
			if err != nil {
				slog.Error("failed to load policy for ownership check",
					slog.String("policy_id", policyID),
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}

			// 未検出と所有者不一致は同一レスポンス: 存在の有無を観測させない
			if p == nil || p.CreatedBy != ident.Email {
				if p != nil {
					slog.Warn("ownership mismatch on policy access",
						slog.String("policy_id", policyID),
						slog.String("requester", ident.Email),
					)
				}
				WriteEnvelopeError(w, http.StatusNotFound, "Policy not found")
				return
			}

			ctx := context.WithValue(r.Context(), policyContextKey, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PolicyFromContext はリクエストコンテキストからロード済みポリシーを取得する。
// 所有権ミドルウェアを通過したリクエストでのみ有効。
func PolicyFromContext(ctx context.Context) (*model.Policy, error) {
	p, ok := ctx.Value(policyContextKey).(*model.Policy)
	if !ok || p == nil {
		return nil, fmt.Errorf("policy not found in context")
	}
	return p, nil
}

// ContextWithPolicy はコンテキストにポリシーを注入する。テスト用。
func ContextWithPolicy(ctx context.Context, p *model.Policy) context.Context {
	return context.WithValue(ctx, policyContextKey, p)
}
