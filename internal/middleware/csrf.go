package middleware

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// NewCSRFMiddleware はCookie認証された状態変更リクエストのオリジンを検証するミドルウェアを返す。
// SessionMiddlewareの後に配置する。
// 安全なメソッド（GET, HEAD, OPTIONS）とBearerトークンで認証されたリクエストは検証をスキップする。
// それ以外はOriginヘッダー（なければRefererのオリジン）が許可オリジンのいずれかと一致する必要がある。
func NewCSRFMiddleware(allowedOrigins ...string) func(next http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o = normalizeOrigin(o); o != "" {
			allowed[o] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) || !authenticatedByCookie(r.Context()) {
				next.ServeHTTP(w, r)
				return
			}

			origin := r.Header.Get("Origin")
			if origin == "" {
				origin = r.Header.Get("Referer")
			}
			if _, ok := allowed[normalizeOrigin(origin)]; !ok {
				slog.Warn("CSRF validation failed: origin mismatch",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("origin", origin),
				)
				WriteErrorResponse(w, http.StatusForbidden, "CSRF validation failed")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// isSafeMethod はHTTPメソッドが安全（読み取り専用）かどうかを判定する。
func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// normalizeOrigin はURLから "scheme://host[:port]" を取り出す。解釈できない場合は空文字列。
func normalizeOrigin(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme + "://" + u.Host)
}
