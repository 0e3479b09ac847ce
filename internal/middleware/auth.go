package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/polisync/internal/auth"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// identityContextKey はリクエストコンテキストに検証済み身元情報を格納するためのキー。
var identityContextKey = contextKey("identity")

// NewAuthMiddleware はAuthorizationヘッダーのベアラートークンを検証するミドルウェアを返す。
// 検証済みの身元情報をリクエストコンテキストに注入する。
// トークン欠落・無効は401、テナント不一致は403を返す。
func NewAuthMiddleware(verifier auth.TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. Authorizationヘッダーからベアラートークンを取得
			token := extractBearerToken(r)
			if token == "" {
				slog.Warn("authentication attempt without token",
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr),
				)
				WriteAuthError(w, http.StatusUnauthorized, "Authorization token required")
				return
			}

			// 2. トークンを検証
			ident, err := verifier.Verify(r.Context(), token)
			if err != nil {
				if errors.Is(err, auth.ErrForeignTenant) {
					slog.Warn("token issued for a foreign tenant",
						slog.String("path", r.URL.Path),
						slog.String("token_prefix", tokenPrefix(token)),
					)
					WriteAuthError(w, http.StatusForbidden, "Invalid authentication source")
					return
				}

				slog.Warn("token verification failed",
					slog.String("path", r.URL.Path),
					slog.String("token_prefix", tokenPrefix(token)),
					slog.String("error", err.Error()),
				)
				WriteAuthError(w, http.StatusUnauthorized, "Invalid or expired credentials")
				return
			}

			// 3. 検証済み身元情報をコンテキストに注入
			ctx := context.WithValue(r.Context(), identityContextKey, ident)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractBearerToken はAuthorizationヘッダーからベアラートークンを取り出す。
// ヘッダー欠落やBearer以外のスキームの場合は空文字を返す。
func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// tokenPrefix はログ用にトークンの先頭8文字だけを返す。
func tokenPrefix(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8] + "..."
}

// IdentityFromContext はリクエストコンテキストから検証済み身元情報を取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func IdentityFromContext(ctx context.Context) (*auth.Identity, error) {
	ident, ok := ctx.Value(identityContextKey).(*auth.Identity)
	if !ok || ident == nil {
		return nil, fmt.Errorf("identity not found in context")
	}
	return ident, nil
}

// ContextWithIdentity はコンテキストに身元情報を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithIdentity(ctx context.Context, ident *auth.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, ident)
}
