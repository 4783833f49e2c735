// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/ticketbox/internal/auth"
	"github.com/hitoshi/ticketbox/internal/model"
)

// sessionCookieName はIdPがセッショントークンを格納するCookieの名前。
const sessionCookieName = "__session"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// userIDContextKey はリクエストコンテキストに内部ユーザーIDを格納するためのキー。
	userIDContextKey = contextKey("user_id")
	// clerkIDContextKey はリクエストコンテキストに外部識別子を格納するためのキー。
	clerkIDContextKey = contextKey("clerk_id")
	// cookieAuthContextKey はCookieで認証されたリクエストであることを示すキー。
	cookieAuthContextKey = contextKey("cookie_auth")
)

// TokenVerifier はセッショントークンを検証する。auth.Verifierが実装する。
type TokenVerifier interface {
	Verify(token string) (*auth.Identity, error)
}

// UserResolver は外部識別子から内部ユーザーを解決する。
// repository.UserRepositoryの部分集合として定義する。
type UserResolver interface {
	FindByClerkID(ctx context.Context, clerkID string) (*model.User, error)
}

// NewSessionMiddleware はAuthorizationヘッダーまたはセッションCookieからトークンを読み取り、
// 検証するミドルウェアを返す。
// 認証済みユーザーIDをリクエストコンテキストに注入する。
// 未認証リクエスト、またはまだ同期されていないユーザーには401 Unauthorizedを返す。
func NewSessionMiddleware(verifier TokenVerifier, resolver UserResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. トークンの取得
			token, fromCookie := sessionToken(r)
			if token == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			// 2. トークンの検証
			identity, err := verifier.Verify(token)
			if err != nil {
				if model.KindOf(err) == model.KindConfiguration {
					slog.Error("session verifier is not configured", slog.String("error", err.Error()))
					WriteInternalServerError(w)
					return
				}
				slog.Warn("session token rejected", slog.String("error", err.Error()))
				WriteErrorResponse(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			// 3. 内部ユーザーIDの解決。トークンに含まれない場合はDBを参照する
			userID := identity.UserID
			if userID == "" {
				user, err := resolver.FindByClerkID(r.Context(), identity.ClerkID)
				if err != nil {
					slog.Error("failed to resolve user",
						slog.String("clerk_id", identity.ClerkID),
						slog.String("error", err.Error()),
					)
					WriteErrorResponse(w, StatusForKind(model.KindOf(err)), "failed to resolve user")
					return
				}
				if user == nil {
					WriteErrorResponse(w, http.StatusUnauthorized, "user is not provisioned")
					return
				}
				userID = user.ID
			}

			// 4. 認証情報をコンテキストに注入
			ctx := ContextWithUserID(r.Context(), userID)
			ctx = context.WithValue(ctx, clerkIDContextKey, identity.ClerkID)
			ctx = context.WithValue(ctx, cookieAuthContextKey, fromCookie)
			recordIdentity(ctx, userID, identity.ClerkID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// sessionToken はBearerトークンを優先し、なければセッションCookieを返す。
func sessionToken(r *http.Request) (token string, fromCookie bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		if scheme, value, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(value), false
		}
		return "", false
	}
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}
	return "", false
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ClerkIDFromContext はリクエストコンテキストから外部識別子を取得する。
func ClerkIDFromContext(ctx context.Context) string {
	clerkID, _ := ctx.Value(clerkIDContextKey).(string)
	return clerkID
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

func authenticatedByCookie(ctx context.Context) bool {
	v, _ := ctx.Value(cookieAuthContextKey).(bool)
	return v
}
