// Package app はサブコマンドの解析と依存関係のワイヤリングを行う。
package app

import (
	"context"
	"errors"
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
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/ticketbox/internal/action"
	"github.com/hitoshi/ticketbox/internal/auth"
	"github.com/hitoshi/ticketbox/internal/cache"
	"github.com/hitoshi/ticketbox/internal/clerk"
	"github.com/hitoshi/ticketbox/internal/config"
	"github.com/hitoshi/ticketbox/internal/database"
	"github.com/hitoshi/ticketbox/internal/handler"
	"github.com/hitoshi/ticketbox/internal/logger"
	"github.com/hitoshi/ticketbox/internal/metrics"
	"github.com/hitoshi/ticketbox/internal/middleware"
	"github.com/hitoshi/ticketbox/internal/model"
	"github.com/hitoshi/ticketbox/internal/payment"
	"github.com/hitoshi/ticketbox/internal/repository"
	"github.com/hitoshi/ticketbox/internal/security"
	"github.com/hitoshi/ticketbox/internal/webhook"
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再初期化
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

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
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, cfg)
	}
}

// Server はワイヤリング済みのHTTPハンドラーと、停止時に解放するリソースを保持する。
type Server struct {
	Handler http.Handler

	conn        *database.Connector
	rateLimiter *middleware.RateLimiter
	closers     []io.Closer
}

// Close はサーバーが保持するリソースを解放する。
func (s *Server) Close() error {
	s.rateLimiter.Stop()
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	errs = append(errs, s.conn.Close())
	return errors.Join(errs...)
}

// NewServer は設定から全依存関係をワイヤリングしたServerを生成する。
// DB接続は最初の操作まで確立しないため、DBが起動していなくても生成できる。
// 外部サービスの秘密情報が未設定でも生成でき、該当する操作がConfigurationErrorで失敗する。
func NewServer(cfg *config.Config, reg *prometheus.Registry) (*Server, error) {
	log := slog.Default()

	// 1. 永続化層
	conn := database.NewConnector(cfg.DatabaseURL, database.WithConnectTimeout(cfg.DBConnectTimeout))
	userRepo := repository.NewPostgresUserRepo(conn)
	categoryRepo := repository.NewPostgresCategoryRepo(conn)
	eventRepo := repository.NewPostgresEventRepo(conn)
	orderRepo := repository.NewPostgresOrderRepo(conn)

	// 2. メトリクス
	collector := metrics.NewCollector(reg)

	// 3. ページキャッシュ
	var closers []io.Closer
	var store cache.Store
	if cfg.RedisURL != "" {
		redisStore, err := cache.NewRedisStore(cfg.RedisURL)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to configure redis: %w", err)
		}
		closers = append(closers, redisStore)
		store = redisStore
		log.Info("page cache backed by redis", slog.String("redis", maskURL(cfg.RedisURL)))
	} else {
		store = cache.NewMemoryStore()
		log.Info("page cache backed by memory")
	}
	pageCache := cache.NewPageCache(store, cfg.PageCacheTTL, log)

	// 4. アクション層
	svc := action.NewService(action.Deps{
		Conn:        conn,
		Users:       userRepo,
		Categories:  categoryRepo,
		Events:      eventRepo,
		Orders:      orderRepo,
		Revalidator: pageCache,
		Sanitizer:   security.NewDescriptionSanitizer(),
		Images:      security.NewImageGuard(cfg.ImageCheckTimeout),
		Recorder:    collector,
		Logger:      log,
	})

	// 5. 外部サービス
	clerkClient := clerk.NewClient(nil, cfg.ClerkSecretKey, cfg.ClerkAPIURL, log)
	checkout := payment.NewCheckoutService(
		payment.NewStripeSessionCreator(cfg.StripeSecretKey),
		cfg.BaseURL, cfg.CheckoutCurrency, collector,
	)

	// 6. Webhook
	identityWebhook := webhook.NewIdentityHandler(cfg.ClerkWebhookSecret, svc, clerkClient, collector, log)
	paymentWebhook := webhook.NewPaymentHandler(cfg.StripeWebhookSecret, svc,
		webhook.PaymentOptions{StrictMetadata: cfg.PaymentStrictMetadata}, collector, log)

	// 7. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitCheckout),
	)

	router := handler.NewRouter(&handler.RouterDeps{
		Verifier:          newSessionVerifier(cfg.ClerkJWTKey, log),
		Users:             userRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		AllowedOrigins:    cfg.AllowedOrigins(),
		RateLimiter:       rateLimiter,
		Metrics:           collector,
		MetricsHandler:    metrics.Handler(reg),
		PageCache:         pageCache,
		Logger:            log,
		Actions:           svc,
		Checkout:          checkout,
		DB:                conn,
		IdentityWebhook:   identityWebhook,
		PaymentWebhook:    paymentWebhook,
	})

	return &Server{
		Handler:     router,
		conn:        conn,
		rateLimiter: rateLimiter,
		closers:     closers,
	}, nil
}

// newRegistry はGo/プロセスのメトリクスを含むレジストリを生成する。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// runServe はAPIサーバーモードで起動する。
// 全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxが終了するとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	srv, err := NewServer(cfg, newRegistry())
	if err != nil {
		return err
	}
	defer srv.Close()

	// 1. DB接続の事前確認（失敗しても起動は続け、最初の操作で再試行する）
	pingCtx, cancel := context.WithTimeout(ctx, cfg.DBConnectTimeout)
	if err := srv.conn.Ping(pingCtx); err != nil {
		slog.Warn("database is not reachable yet", slog.String("error", err.Error()))
	} else {
		slog.Info("database connection established")
	}
	cancel()

	// 2. HTTPサーバーの起動
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           srv.Handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskURL(cfg.DatabaseURL)),
	)

	status, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(status.Version)),
		slog.Bool("changed", status.Changed),
		slog.Bool("dirty", status.Dirty),
	)
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

// maskURL は接続文字列の認証情報をマスクする。
func maskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	if u.User != nil {
		u.User = url.User("***")
	}
	u.RawQuery = ""
	return u.String()
}

// unconfiguredVerifier は公開鍵が使えない場合のTokenVerifier。常に設定エラーを返す。
type unconfiguredVerifier struct {
	err error
}

func (v unconfiguredVerifier) Verify(string) (*auth.Identity, error) {
	return nil, v.err
}

// newSessionVerifier はセッショントークンの検証器を生成する。
// 公開鍵が未設定または不正な場合、認証が必要なルートは500で応答する。
func newSessionVerifier(publicKeyPEM string, log *slog.Logger) middleware.TokenVerifier {
	v, err := auth.NewVerifier(publicKeyPEM)
	if err == nil {
		return v
	}
	log.Error("session verifier is not available", slog.String("error", err.Error()))
	if model.KindOf(err) != model.KindConfiguration {
		err = &model.AppError{Kind: model.KindConfiguration, Message: "invalid CLERK_JWT_KEY", Field: "CLERK_JWT_KEY", Err: err}
	}
	return unconfiguredVerifier{err: err}
}
