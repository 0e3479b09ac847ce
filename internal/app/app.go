// Package app はアプリケーションの起動と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/polisync/internal/auth"
	"github.com/hitoshi/polisync/internal/config"
	"github.com/hitoshi/polisync/internal/database"
	"github.com/hitoshi/polisync/internal/handler"
	"github.com/hitoshi/polisync/internal/logger"
	"github.com/hitoshi/polisync/internal/metrics"
	"github.com/hitoshi/polisync/internal/middleware"
	"github.com/hitoshi/polisync/internal/notification"
	"github.com/hitoshi/polisync/internal/policy"
	"github.com/hitoshi/polisync/internal/repository"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// developmentモードではDebugレベルで出力する。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 動作モードに応じてログレベルを確定する
	if cfg.IsDevelopment() {
		logger.SetupDefault(w, slog.LevelDebug)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("run_mode", cfg.RunMode),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// developmentモードでは起動時にスキーマを最新へ自動適用する
	if cfg.IsDevelopment() {
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("auto-migration failed: %w", err)
		}
		slog.Info("database schema is up to date")
	}

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	policyRepo := repository.NewPostgresPolicyRepo(db)

	// 3. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. トークン検証器の初期化
	verifier, err := newTokenVerifier(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize token verifier: %w", err)
	}

	// 5. 通知の初期化。SMTP未設定の環境では送信をスキップする
	var mailer auth.WelcomeMailer
	if cfg.MailEnabled() {
		smtp, err := notification.NewSMTPMailer(
			cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword,
			cfg.MailFrom, cfg.MailFromName,
		)
		if err != nil {
			return fmt.Errorf("failed to initialize mailer: %w", err)
		}
		mailer = &instrumentedMailer{next: smtp, collector: collector}
	} else {
		slog.Info("mail delivery disabled: SMTP_HOST or MAIL_FROM not configured")
		mailer = notification.NopMailer{}
	}

	// 6. ドメインサービスの初期化
	authService := auth.NewService(userRepo, mailer)
	policyService := policy.NewService(policyRepo, collector)

	// 7. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitAuth),
	)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		TokenVerifier:     verifier,
		PolicyLoader:      policyRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),

		AuthService:   authService,
		PolicyService: policyService,

		DB:               db,
		MetricsGatherer:  registry,
		MetricsCollector: collector,
	}

	router := handler.NewRouter(deps)

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// newTokenVerifier は設定に応じたトークン検証器を生成する。
// developmentモードで共有シークレットが設定されていればHS256、
// JWKS URLが明示されていればディスカバリなし、それ以外はOIDCディスカバリを使う。
func newTokenVerifier(cfg *config.Config) (auth.TokenVerifier, error) {
	if cfg.IsDevelopment() && cfg.AuthDevSecret != "" {
		slog.Warn("using HS256 token verification: development only")
		return auth.NewHS256Verifier(cfg.AuthDevSecret, cfg.AuthIssuerURL, cfg.AuthAudience)
	}

	if cfg.AuthJWKSURL != "" {
		return auth.NewOIDCVerifierFromJWKS(
			context.Background(), cfg.AuthJWKSURL, cfg.AuthIssuerURL, cfg.AuthAudience,
		), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return auth.NewOIDCVerifier(ctx, cfg.AuthIssuerURL, cfg.AuthAudience)
}

// instrumentedMailer はメール送信の成否をメトリクスに記録するデコレータ。
type instrumentedMailer struct {
	next      auth.WelcomeMailer
	collector metrics.MetricsCollector
}

func (m *instrumentedMailer) SendWelcome(ctx context.Context, to, name string) error {
	if err := m.next.SendWelcome(ctx, to, name); err != nil {
		m.collector.RecordWelcomeMailFailure()
		return err
	}
	m.collector.RecordWelcomeMailSent()
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL は接続URLの認証情報をログ用にマスクする。
func maskDatabaseURL(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "(unparsable)"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "****")
	}
	return u.String()
}
