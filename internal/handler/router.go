package handler

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/polisync/internal/auth"
	"github.com/hitoshi/polisync/internal/metrics"
	"github.com/hitoshi/polisync/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenVerifier     auth.TokenVerifier
	PolicyLoader      middleware.PolicyLoader
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// サービス
	AuthService   AuthServiceInterface
	PolicyService PolicyServiceInterface

	// 運用
	DB               *sql.DB
	MetricsGatherer  prometheus.Gatherer
	MetricsCollector metrics.MetricsCollector
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → CORS → Logging → Metrics → (Auth → RateLimit → Ownership)
//
// /health と /metrics は認証チェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	if deps.MetricsCollector != nil {
		r.Use(metrics.NewHTTPMiddleware(deps.MetricsCollector))
	}

	authHandler := NewAuthHandler(deps.AuthService)
	policyHandler := NewPolicyHandler(deps.PolicyService)

	// --- 認証不要のルート ---

	r.Get("/health", newHealthHandler(deps.DB))

	if deps.MetricsGatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	// --- 認証が必要なルート ---

	authMW := middleware.NewAuthMiddleware(deps.TokenVerifier)

	// 認証ルート: IP単位のレート制限をトークン検証より前に適用
	r.Route("/api/auth", func(r chi.Router) {
		r.Use(deps.RateLimiter.AuthMiddleware())
		r.Use(authMW)

		r.Post("/confirmation", authHandler.Confirmation)
		r.Get("/session", authHandler.Session)
	})

	// ポリシー管理: 認証 → ユーザー単位レート制限
	r.Route("/api/policies", func(r chi.Router) {
		r.Use(authMW)
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/", policyHandler.List)
		r.Post("/", policyHandler.Create)

		// ID付きルートは所有権検査を通す
		r.Route("/{id}", func(r chi.Router) {
			r.Use(middleware.NewOwnershipMiddleware(deps.PolicyLoader))

			r.Get("/", policyHandler.Get)
			r.Put("/", policyHandler.Update)
			r.Patch("/", policyHandler.Update)
			r.Delete("/", policyHandler.Delete)
			r.Post("/restore", policyHandler.Restore)
		})
	})

	return r
}

// newHealthHandler はデータベース疎通を確認するヘルスチェックハンドラーを返す。
func newHealthHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "unavailable",
				})
				return
			}
		}

		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
		})
	}
}
