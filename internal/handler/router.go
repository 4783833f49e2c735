package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/ticketbox/internal/action"
	"github.com/hitoshi/ticketbox/internal/cache"
	"github.com/hitoshi/ticketbox/internal/metrics"
	"github.com/hitoshi/ticketbox/internal/middleware"
)

// Actions はルーター配下の全ハンドラーが必要とする操作。action.Serviceが実装する。
type Actions interface {
	EventActions
	CategoryActions
	UserActions
	OrderActions
}

var _ Actions = (*action.Service)(nil)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Verifier          middleware.TokenVerifier
	Users             middleware.UserResolver
	CORSAllowedOrigin string
	AllowedOrigins    []string
	RateLimiter       *middleware.RateLimiter
	Metrics           *metrics.Collector
	MetricsHandler    http.Handler
	PageCache         *cache.PageCache
	Logger            *slog.Logger

	// ドメイン操作
	Actions  Actions
	Checkout CheckoutInitiator
	DB       Pinger

	// Webhook
	IdentityWebhook http.Handler
	PaymentWebhook  http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Logging → Recovery → Metrics → SecurityHeaders → CORS
//	→ (認証ルートのみ) Session → CSRF → RateLimit(General)
//
// Webhookとヘルスチェックはレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware(logger))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware())
	}
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	eventHandler := NewEventHandler(deps.Actions)
	categoryHandler := NewCategoryHandler(deps.Actions)
	userHandler := NewUserHandler(deps.Actions)
	orderHandler := NewOrderHandler(deps.Actions)
	checkoutHandler := NewCheckoutHandler(deps.Actions, deps.Checkout, logger)

	// --- 運用エンドポイント ---
	r.Get("/health", NewHealthHandler(deps.DB))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- Webhook（署名で認証する） ---
	r.Route("/api/webhook", func(r chi.Router) {
		r.Handle("/clerk", deps.IdentityWebhook)
		r.Handle("/stripe", deps.PaymentWebhook)
	})

	// --- 認証不要のルート ---
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.With(cached(deps.PageCache, listingKey)).Get("/api/events", eventHandler.List)
		r.With(cached(deps.PageCache, eventKey("detail"))).Get("/api/events/{id}", eventHandler.Get)
		r.With(cached(deps.PageCache, eventKey("related"))).Get("/api/events/{id}/related", eventHandler.Related)
		r.Get("/api/categories", categoryHandler.List)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → CSRF → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.Verifier, deps.Users))
		r.Use(middleware.NewCSRFMiddleware(deps.AllowedOrigins...))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// イベント管理
		r.Post("/api/events", eventHandler.Create)
		r.Put("/api/events/{id}", eventHandler.Update)
		r.Delete("/api/events/{id}", eventHandler.Delete)
		r.Get("/api/events/{id}/orders", orderHandler.ListByEvent)

		r.Post("/api/categories", categoryHandler.Create)

		// ユーザー自身の情報
		r.Route("/api/users/me", func(r chi.Router) {
			r.Get("/", userHandler.Me)
			r.With(cached(deps.PageCache, profileKey)).Get("/events", userHandler.Events)
			r.With(cached(deps.PageCache, profileKey)).Get("/orders", userHandler.Orders)
		})

		// POST /api/checkout - 決済開始（決済専用レート制限を追加）
		r.With(deps.RateLimiter.CheckoutMiddleware()).Post("/api/checkout", checkoutHandler.Create)
	})

	return r
}

// cached はページキャッシュが設定されている場合にキャッシュミドルウェアを返す。
func cached(pc *cache.PageCache, keyFn cache.KeyFunc) func(http.Handler) http.Handler {
	if pc == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return pc.Middleware(keyFn)
}

// listingKey はイベント一覧のキャッシュキー。検索条件ごとに区別する。
func listingKey(r *http.Request) (string, string) {
	return action.HomePath, "events?" + r.URL.RawQuery
}

// eventKey はイベント詳細ページを構成するレスポンスのキャッシュキー関数を返す。
func eventKey(variant string) cache.KeyFunc {
	return func(r *http.Request) (string, string) {
		return EventPath(chi.URLParam(r, "id")), variant + "?" + r.URL.RawQuery
	}
}
