package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/polisync/internal/auth"
	"golang.org/x/time/rate"
)

func testRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(1),
		GeneralBurst:    2,
		AuthRate:        rate.Limit(1),
		AuthBurst:       2,
		CleanupInterval: time.Minute,
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func authedRequest(email string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/policies", nil)
	return req.WithContext(ContextWithIdentity(req.Context(), &auth.Identity{Email: email}))
}

// バースト超過で429が返ることを検証
func TestGeneralMiddleware_BurstExceeded_Returns429(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	var lastRec *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		lastRec = httptest.NewRecorder()
		handler.ServeHTTP(lastRec, authedRequest("u1@example.com"))
	}

	if lastRec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", lastRec.Code, http.StatusTooManyRequests)
	}
	if lastRec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header should be set")
	}
}

// ユーザーごとに独立したリミッターであることを検証
func TestGeneralMiddleware_PerUserIsolation(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	// u1のバーストを使い切る
	for i := 0; i < 3; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), authedRequest("u1@example.com"))
	}

	// u2は影響を受けない
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest("u2@example.com"))
	if rec.Code != http.StatusOK {
		t.Errorf("status for unrelated user = %d, want %d", rec.Code, http.StatusOK)
	}

	if rl.GeneralLimiterCount() != 2 {
		t.Errorf("limiter count = %d, want 2", rl.GeneralLimiterCount())
	}
}

// 未認証のリクエストが401になることを検証
func TestGeneralMiddleware_NoIdentity_Returns401(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/policies", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

// 認証エンドポイント用リミッターがIP単位で動作することを検証
func TestAuthMiddleware_RateLimit_PerIP(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	handler := rl.AuthMiddleware()(okHandler())

	// 同一IPからバーストを使い切る
	var lastRec *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/confirmation", nil)
		req.RemoteAddr = "10.0.0.1:52000"
		lastRec = httptest.NewRecorder()
		handler.ServeHTTP(lastRec, req)
	}
	if lastRec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", lastRec.Code, http.StatusTooManyRequests)
	}

	// 別IPは影響を受けない
	req := httptest.NewRequest(http.MethodPost, "/api/auth/confirmation", nil)
	req.RemoteAddr = "10.0.0.2:52000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status for unrelated IP = %d, want %d", rec.Code, http.StatusOK)
	}
}

// クリーンアップで期限切れエントリが削除されることを検証
func TestRateLimiter_Cleanup_RemovesStaleEntries(t *testing.T) {
	config := testRateLimiterConfig()
	config.CleanupInterval = 10 * time.Millisecond
	rl := NewRateLimiter(config)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())
	handler.ServeHTTP(httptest.NewRecorder(), authedRequest("u1@example.com"))

	if rl.GeneralLimiterCount() != 1 {
		t.Fatalf("limiter count = %d, want 1", rl.GeneralLimiterCount())
	}

	// TTL(2*interval)を超えて待つ
	deadline := time.Now().Add(2 * time.Second)
	for rl.GeneralLimiterCount() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if rl.GeneralLimiterCount() != 0 {
		t.Errorf("limiter count = %d, want 0 after cleanup", rl.GeneralLimiterCount())
	}
}

// NewRateLimiterConfigの変換を検証
func TestNewRateLimiterConfig(t *testing.T) {
	config := NewRateLimiterConfig(120, 30)

	if config.GeneralRate != rate.Limit(2) {
		t.Errorf("GeneralRate = %v, want 2", config.GeneralRate)
	}
	if config.GeneralBurst != 120 {
		t.Errorf("GeneralBurst = %d, want 120", config.GeneralBurst)
	}
	if config.AuthRate != rate.Limit(0.5) {
		t.Errorf("AuthRate = %v, want 0.5", config.AuthRate)
	}
	if config.AuthBurst != 30 {
		t.Errorf("AuthBurst = %d, want 30", config.AuthBurst)
	}
}
