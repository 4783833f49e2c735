package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func newTestRateLimiter(t *testing.T, cfg RateLimiterConfig) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(cfg)
	t.Cleanup(rl.Stop)
	return rl
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterConfigPerMinute(t *testing.T) {
	cfg := RateLimiterConfigPerMinute(120, 6)

	if cfg.GeneralRate != rate.Limit(2) {
		t.Errorf("GeneralRate = %v, want 2", cfg.GeneralRate)
	}
	if cfg.GeneralBurst != 120 || cfg.CheckoutBurst != 6 {
		t.Errorf("bursts = %d/%d", cfg.GeneralBurst, cfg.CheckoutBurst)
	}
	if cfg.CheckoutRate != rate.Limit(0.1) {
		t.Errorf("CheckoutRate = %v, want 0.1", cfg.CheckoutRate)
	}
}

func TestGeneralMiddleware_ExceedsBurst_Returns429(t *testing.T) {
	cfg := DefaultRateLimiterConfig()
	cfg.GeneralRate = rate.Limit(1.0 / 60.0)
	cfg.GeneralBurst = 2
	rl := newTestRateLimiter(t, cfg)

	handler := rl.GeneralMiddleware()(okHandler())

	codes := make([]int, 3)
	for i := range codes {
		req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
		req.RemoteAddr = "203.0.113.7:5000"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		codes[i] = w.Code
		if i == 2 {
			if got := w.Header().Get("Retry-After"); got != "60" {
				t.Errorf("Retry-After = %q, want 60", got)
			}
			var body ErrorResponseBody
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Success || body.StatusCode != http.StatusTooManyRequests {
				t.Errorf("body = %+v", body)
			}
		}
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 200 429]", codes)
	}
}

// ユーザーIDがあればIPではなくユーザー単位で制限される
func TestCheckoutMiddleware_KeyedByUser(t *testing.T) {
	cfg := DefaultRateLimiterConfig()
	cfg.CheckoutRate = rate.Limit(1.0 / 60.0)
	cfg.CheckoutBurst = 1
	rl := newTestRateLimiter(t, cfg)

	handler := rl.CheckoutMiddleware()(okHandler())

	do := func(userID string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/checkout", nil)
		req.RemoteAddr = "198.51.100.1:1234"
		req = req.WithContext(ContextWithUserID(req.Context(), userID))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	if got := do("user-a"); got != http.StatusOK {
		t.Errorf("user-a first = %d", got)
	}
	if got := do("user-a"); got != http.StatusTooManyRequests {
		t.Errorf("user-a second = %d, want 429", got)
	}
	if got := do("user-b"); got != http.StatusOK {
		t.Errorf("user-b first = %d, want 200", got)
	}
	if n := rl.CheckoutLimiterCount(); n != 2 {
		t.Errorf("CheckoutLimiterCount = %d, want 2", n)
	}
	if n := rl.GeneralLimiterCount(); n != 0 {
		t.Errorf("GeneralLimiterCount = %d, want 0", n)
	}
}

func TestRateLimiter_CleanupRemovesStaleEntries(t *testing.T) {
	cfg := DefaultRateLimiterConfig()
	cfg.CleanupInterval = time.Minute
	rl := newTestRateLimiter(t, cfg)

	handler := rl.GeneralMiddleware()(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if rl.GeneralLimiterCount() != 1 {
		t.Fatalf("GeneralLimiterCount = %d, want 1", rl.GeneralLimiterCount())
	}

	rl.cleanup(time.Now())
	if rl.GeneralLimiterCount() != 1 {
		t.Errorf("fresh entry should survive cleanup")
	}

	rl.cleanup(time.Now().Add(3 * time.Minute))
	if rl.GeneralLimiterCount() != 0 {
		t.Errorf("stale entry should be removed, count = %d", rl.GeneralLimiterCount())
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig())
	rl.Stop()
	rl.Stop()
}
