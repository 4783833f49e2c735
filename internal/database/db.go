package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/singleflight"

	"github.com/hitoshi/ticketbox/internal/model"
)

// defaultConnectTimeout は接続確立（Open + Ping）の既定タイムアウト。
const defaultConnectTimeout = 10 * time.Second

// Opener は接続文字列から接続確認済みの*sql.DBを生成する関数。
// テストではフェイクに差し替える。
type Opener func(ctx context.Context, databaseURL string) (*sql.DB, error)

// Open はPostgreSQLデータベース接続を開く。
// sql.Openは接続を試行しないため、実際の接続確認にはPingを使用すること。
func Open(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return db, nil
}

// OpenAndPing は接続を開き、Pingで到達性を確認する。
// Pingに失敗した場合は接続プールを閉じてエラーを返す。
func OpenAndPing(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := Open(databaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// ConnectorOption はConnectorの設定を変更する。
type ConnectorOption func(*Connector)

// WithOpener は接続生成関数を差し替える。
func WithOpener(open Opener) ConnectorOption {
	return func(c *Connector) {
		c.open = open
	}
}

// WithConnectTimeout は接続確立のタイムアウトを設定する。
func WithConnectTimeout(d time.Duration) ConnectorOption {
	return func(c *Connector) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// Connector は遅延初期化されるデータストア接続を管理する。
//
// 最初のConnect呼び出しで接続を確立し、以降は同じ*sql.DBを返す。
// 並行する初回呼び出しは接続文字列をキーに1回の接続試行を共有する。
// 失敗した試行はキャッシュせず、次の呼び出しで再試行する。
type Connector struct {
	url     string
	open    Opener
	timeout time.Duration

	mu    sync.RWMutex
	db    *sql.DB
	group singleflight.Group
}

// NewConnector はConnectorを生成する。この時点では接続しない。
func NewConnector(databaseURL string, opts ...ConnectorOption) *Connector {
	c := &Connector{
		url:     databaseURL,
		open:    OpenAndPing,
		timeout: defaultConnectTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect は確立済みの接続を返す。未接続の場合は接続を確立する。
//
// 接続文字列が空の場合はConfigurationError、接続に失敗した場合はConnectionErrorを返す。
// 待機中の呼び出し元のctxが終了した場合はctx.Err()を返すが、共有中の接続試行は継続する。
func (c *Connector) Connect(ctx context.Context) (*sql.DB, error) {
	if db := c.current(); db != nil {
		return db, nil
	}

	if c.url == "" {
		return nil, model.NewConfigurationError("DATABASE_URL")
	}

	ch := c.group.DoChan(c.url, func() (any, error) {
		// 二重チェック: 直前の試行で確立済みの場合
		if db := c.current(); db != nil {
			return db, nil
		}

		// 呼び出し元のキャンセルが共有試行に波及しないよう切り離す
		attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		db, err := c.open(attemptCtx, c.url)
		if err != nil {
			return nil, model.NewConnectionError(err)
		}

		c.mu.Lock()
		c.db = db
		c.mu.Unlock()
		return db, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*sql.DB), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Ping は接続を確立したうえで到達性を確認する。ヘルスチェック用。
func (c *Connector) Ping(ctx context.Context) error {
	db, err := c.Connect(ctx)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		return model.NewConnectionError(err)
	}
	return nil
}

// Close は確立済みの接続プールを閉じる。未接続の場合は何もしない。
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

func (c *Connector) current() *sql.DB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db
}
