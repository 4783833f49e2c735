// Package action はUI・Webhookから呼ばれるドメイン操作を提供する。
//
// すべての操作は Result[T] を返し、失敗を統一された形で呼び出し元に伝える。
// 各操作は次の順で実行される:
//  1. データストア接続の確保（失敗しても接続はキャッシュに残し、次回再試行する）
//  2. 入力検証とドメインロジック
//  3. 失敗・panicの Result への変換、ログとメトリクスの記録
package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/ticketbox/internal/model"
	"github.com/hitoshi/ticketbox/internal/repository"
)

// Result は操作結果の統一エンベロープ。
// 失敗時は StatusCode=500, Success=false, Error=メッセージとなる。
// Errは分類判定用の元エラーで、シリアライズされない。
type Result[T any] struct {
	StatusCode int    `json:"statusCode"`
	Success    bool   `json:"success"`
	Data       T      `json:"data"`
	Error      string `json:"error,omitempty"`
	TotalPages *int   `json:"totalPages,omitempty"`
	Err        error  `json:"-"`
}

// Kind は失敗時のエラー分類を返す。成功時は空文字列。
func (r Result[T]) Kind() model.ErrorKind {
	if r.Success {
		return ""
	}
	return model.KindOf(r.Err)
}

func success[T any](data T) Result[T] {
	return Result[T]{StatusCode: 200, Success: true, Data: data}
}

func failure[T any](err error) Result[T] {
	return Result[T]{StatusCode: 500, Success: false, Error: err.Error(), Err: err}
}

// withPages は成功時に総ページ数を付与する。
func (r Result[T]) withPages(pages int) Result[T] {
	if r.Success {
		r.TotalPages = &pages
	}
	return r
}

// Revalidator は論理パスのキャッシュを破棄する。cache.PageCacheが実装する。
type Revalidator interface {
	Revalidate(ctx context.Context, path string) error
}

// Sanitizer はイベント説明文を無害化する。
type Sanitizer interface {
	Sanitize(description string) string
}

// ImageValidator はイベント画像URLを検証する。
type ImageValidator interface {
	ValidateImageURL(ctx context.Context, rawURL string) error
}

// Recorder は操作のメトリクスを記録する。metrics.Collectorが実装する。
type Recorder interface {
	ObserveAction(operation string, d time.Duration)
	RecordActionFailure(operation, kind string)
	RecordOrderCreated()
	RecordRevalidation(outcome string)
}

type noopRecorder struct{}

func (noopRecorder) ObserveAction(string, time.Duration) {}
func (noopRecorder) RecordActionFailure(string, string)  {}
func (noopRecorder) RecordOrderCreated()                 {}
func (noopRecorder) RecordRevalidation(string)           {}

// Deps はServiceの依存関係。Revalidator・Sanitizer・Images・Recorder・Loggerは省略可能。
type Deps struct {
	Conn        repository.DBProvider
	Users       repository.UserRepository
	Categories  repository.CategoryRepository
	Events      repository.EventRepository
	Orders      repository.OrderRepository
	Revalidator Revalidator
	Sanitizer   Sanitizer
	Images      ImageValidator
	Recorder    Recorder
	Logger      *slog.Logger
}

// Service はドメイン操作の実装。並行に使用できる。
type Service struct {
	conn        repository.DBProvider
	users       repository.UserRepository
	categories  repository.CategoryRepository
	events      repository.EventRepository
	orders      repository.OrderRepository
	revalidator Revalidator
	sanitizer   Sanitizer
	images      ImageValidator
	recorder    Recorder
	logger      *slog.Logger
	validate    *validator.Validate
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(d Deps) *Service {
	s := &Service{
		conn:        d.Conn,
		users:       d.Users,
		categories:  d.Categories,
		events:      d.Events,
		orders:      d.Orders,
		revalidator: d.Revalidator,
		sanitizer:   d.Sanitizer,
		images:      d.Images,
		recorder:    d.Recorder,
		logger:      d.Logger,
		validate:    newValidator(),
	}
	if s.recorder == nil {
		s.recorder = noopRecorder{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// newValidator はJSONフィールド名でエラーを報告するvalidatorを生成する。
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// validateStruct は検証エラーをValidationErrorに変換する。最初の違反のみ報告する。
func (s *Service) validateStruct(in any) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		msg := fe.Tag()
		if fe.Param() != "" {
			msg = fmt.Sprintf("%s=%s", fe.Tag(), fe.Param())
		}
		return model.NewValidationError(fe.Field(), "failed on "+msg)
	}
	return model.NewValidationError("input", err.Error())
}

// execute は操作の共通処理を行う。
func execute[T any](ctx context.Context, s *Service, op string, fn func(ctx context.Context) (T, error)) (res Result[T]) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = failure[T](fmt.Errorf("panic in %s: %v", op, r))
		}
		s.recorder.ObserveAction(op, time.Since(start))
		if !res.Success {
			s.logFailure(ctx, op, res.Err)
		}
	}()

	// 1. 接続確保
	if _, err := s.conn.Connect(ctx); err != nil {
		return failure[T](err)
	}

	// 2. ドメインロジック
	data, err := fn(ctx)
	if err != nil {
		return failure[T](err)
	}
	return success(data)
}

// logFailure は失敗を記録する。呼び出し元の入力に起因する分類はWARN、それ以外はERROR。
func (s *Service) logFailure(ctx context.Context, op string, err error) {
	kind := model.KindOf(err)
	s.recorder.RecordActionFailure(op, string(kind))

	level := slog.LevelError
	switch kind {
	case model.KindDuplicateKey, model.KindNotFound, model.KindValidation, model.KindAuthorization:
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "action failed",
		slog.String("operation", op),
		slog.String("error_kind", string(kind)),
		slog.String("error", err.Error()),
	)
}

// revalidate は論理パスを再検証する。失敗してもログに記録するのみで、呼び出し元の操作は失敗させない。
func (s *Service) revalidate(ctx context.Context, path string) {
	if s.revalidator == nil || path == "" {
		return
	}
	if err := s.revalidator.Revalidate(ctx, path); err != nil {
		s.recorder.RecordRevalidation("failure")
		s.logger.Warn("revalidation failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return
	}
	s.recorder.RecordRevalidation("success")
}
