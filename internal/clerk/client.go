// Package clerk はIdP（Clerk）のバックエンドAPIクライアントを提供する。
// ユーザー作成後に内部IDを外部ユーザーのメタデータへ書き込むために使用する。
package clerk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	clerksdk "github.com/clerk/clerk-sdk-go/v2"
	"github.com/clerk/clerk-sdk-go/v2/user"

	"github.com/hitoshi/ticketbox/internal/model"
)

const (
	// DefaultAPIURL はClerkバックエンドAPIのベースURL。APIバージョンはSDKが付与する。
	DefaultAPIURL = "https://api.clerk.com"
	// defaultTimeout はAPI呼び出しのタイムアウト。
	defaultTimeout = 10 * time.Second
)

// Client はClerkバックエンドAPIのクライアント。
type Client struct {
	users     *user.Client
	logger    *slog.Logger
	secretKey string
	baseURL   string
	backoff   func(failures int) time.Duration
}

// NewClient はClientの新しいインスタンスを生成する。
// httpClientがnilの場合はタイムアウト付きのクライアントを使用する。
// baseURL末尾のAPIバージョン（/v1）は取り除く。
func NewClient(httpClient *http.Client, secretKey, baseURL string, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	baseURL = strings.TrimSuffix(strings.TrimRight(baseURL, "/"), "/v1")
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	if logger == nil {
		logger = slog.Default()
	}

	config := &clerksdk.ClientConfig{}
	config.HTTPClient = httpClient
	config.URL = clerksdk.String(baseURL)
	config.Key = clerksdk.String(secretKey)

	return &Client{
		users:     user.NewClient(config),
		logger:    logger,
		secretKey: secretKey,
		baseURL:   baseURL,
		backoff:   backoff,
	}
}

// SetInternalUserID は外部ユーザーのpublic_metadataに内部ユーザーIDを書き込む。
// 既存のメタデータとはClerk側でマージされる。
func (c *Client) SetInternalUserID(ctx context.Context, clerkUserID, userID string) error {
	if c.secretKey == "" {
		return model.NewConfigurationError("CLERK_SECRET_KEY")
	}
	if clerkUserID == "" {
		return model.NewValidationError("clerkId", "required")
	}

	metadata, err := json.Marshal(map[string]any{"userId": userID})
	if err != nil {
		return fmt.Errorf("メタデータの生成に失敗しました: %w", err)
	}
	raw := json.RawMessage(metadata)
	params := &user.UpdateMetadataParams{PublicMetadata: &raw}

	// 429/5xxと通信エラーは指数バックオフで再試行する
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("Clerk APIの再試行を中断しました: %w", ctx.Err())
			case <-time.After(c.backoff(attempt - 1)):
			}
		}

		_, err := c.users.UpdateMetadata(ctx, clerkUserID, params)
		result := c.classify(ctx, clerkUserID, err)
		if result == callOK {
			return nil
		}
		lastErr = fmt.Errorf("Clerk APIの呼び出しに失敗しました: %w", err)
		if result == callFail {
			return lastErr
		}
	}
	return lastErr
}

// classify はSDKの呼び出し結果を分類し、失敗をログに記録する。
func (c *Client) classify(ctx context.Context, clerkUserID string, err error) callResult {
	if err == nil {
		return callOK
	}

	var apiErr *clerksdk.APIErrorResponse
	if errors.As(err, &apiErr) {
		c.logger.Error("Clerk APIがエラーステータスを返しました",
			slog.String("clerk_user_id", clerkUserID),
			slog.Int("http_status", apiErr.HTTPStatusCode),
		)
		return classifyStatus(apiErr.HTTPStatusCode)
	}

	c.logger.Error("Clerk APIの呼び出しに失敗しました",
		slog.String("clerk_user_id", clerkUserID),
		slog.String("error", err.Error()),
	)
	if ctx.Err() != nil {
		return callFail
	}
	return callRetry
}
