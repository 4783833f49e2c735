package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// keyPrefix はページキャッシュのキーのプレフィックス。
const keyPrefix = "page:"

// DefaultTTL はTTL未指定時のキャッシュ有効期間。
const DefaultTTL = 60 * time.Second

// KeyFunc はリクエストから論理パスとバリアントを決定する。
// 論理パスは再検証の単位で、バリアントはクエリやユーザーごとの区別に使う。
type KeyFunc func(r *http.Request) (path, variant string)

// PageCache はGETレスポンスを論理パス単位でキャッシュする。
// 書き込み系の操作がRevalidateを呼ぶことで、次のリクエストで最新の内容が返る。
type PageCache struct {
	store  Store
	ttl    time.Duration
	logger *slog.Logger
}

// NewPageCache はPageCacheを生成する。
func NewPageCache(store Store, ttl time.Duration, logger *slog.Logger) *PageCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PageCache{store: store, ttl: ttl, logger: logger}
}

// Key はキャッシュキーを組み立てる。
func Key(path, variant string) string {
	return keyPrefix + path + "|" + variant
}

// Revalidate は論理パスの全バリアントを破棄する。
func (c *PageCache) Revalidate(ctx context.Context, path string) error {
	n, err := c.store.DeletePrefix(ctx, keyPrefix+path+"|")
	if err != nil {
		return fmt.Errorf("revalidate %s: %w", path, err)
	}
	c.logger.Debug("page revalidated", slog.String("path", path), slog.Int("deleted", n))
	return nil
}

type cachedPage struct {
	ContentType string `json:"contentType"`
	Body        []byte `json:"body"`
}

// Middleware はGETリクエストのレスポンスをキャッシュするミドルウェアを返す。
// 200以外のレスポンスはキャッシュしない。ストアの障害時はキャッシュを素通りする。
func (c *PageCache) Middleware(keyFn KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			path, variant := keyFn(r)
			key := Key(path, variant)

			// 1. キャッシュ参照
			raw, ok, err := c.store.Get(r.Context(), key)
			if err != nil {
				c.logger.Warn("page cache get failed", slog.String("key", key), slog.String("error", err.Error()))
			}
			if ok {
				var page cachedPage
				if err := json.Unmarshal(raw, &page); err == nil {
					w.Header().Set("Content-Type", page.ContentType)
					w.Header().Set("X-Cache", "HIT")
					w.WriteHeader(http.StatusOK)
					w.Write(page.Body)
					return
				}
			}

			// 2. ハンドラ実行とレスポンスの捕捉
			w.Header().Set("X-Cache", "MISS")
			rec := &bodyRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.statusCode != http.StatusOK {
				return
			}

			// 3. 保存
			encoded, err := json.Marshal(cachedPage{
				ContentType: w.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
			})
			if err != nil {
				return
			}
			if err := c.store.Set(r.Context(), key, encoded, c.ttl); err != nil {
				c.logger.Warn("page cache set failed", slog.String("key", key), slog.String("error", err.Error()))
			}
		})
	}
}

// bodyRecorder はステータスコードとボディを記録するResponseWriterラッパー。
type bodyRecorder struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (r *bodyRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *bodyRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
