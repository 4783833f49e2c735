package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func cookieAuthed(r *http.Request) *http.Request {
	ctx := context.WithValue(r.Context(), cookieAuthContextKey, true)
	return r.WithContext(ctx)
}

func TestCSRFMiddleware(t *testing.T) {
	mw := NewCSRFMiddleware("https://tickets.example.com", "")

	tests := []struct {
		name   string
		method string
		cookie bool
		origin string
		refer  string
		want   int
	}{
		{"GETは検証しない", http.MethodGet, true, "", "", http.StatusOK},
		{"Bearer認証は検証しない", http.MethodPost, false, "https://evil.example", "", http.StatusOK},
		{"一致するOrigin", http.MethodPost, true, "https://tickets.example.com", "", http.StatusOK},
		{"大文字のOrigin", http.MethodPut, true, "https://Tickets.Example.com", "", http.StatusOK},
		{"Refererで代替", http.MethodDelete, true, "", "https://tickets.example.com/events/1", http.StatusOK},
		{"異なるOrigin", http.MethodPost, true, "https://evil.example", "", http.StatusForbidden},
		{"Originなし", http.MethodPost, true, "", "", http.StatusForbidden},
		{"null Origin", http.MethodPost, true, "null", "", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/events", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.refer != "" {
				req.Header.Set("Referer", tt.refer)
			}
			if tt.cookie {
				req = cookieAuthed(req)
			}
			w := httptest.NewRecorder()

			mw(okHandler()).ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}
