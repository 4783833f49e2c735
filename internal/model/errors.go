// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// ErrorKind はエラー分類を表す。
// ログ属性・メトリクスラベル・HTTPステータスの決定に使用する。
type ErrorKind string

const (
	KindConfiguration ErrorKind = "configuration"
	KindConnection    ErrorKind = "connection"
	KindNotFound      ErrorKind = "not_found"
	KindAuthorization ErrorKind = "authorization"
	KindDuplicateKey  ErrorKind = "duplicate_key"
	KindVerification  ErrorKind = "verification"
	KindValidation    ErrorKind = "validation"
	KindInternal      ErrorKind = "internal"
)

// 分類判定用のセンチネルエラー。errors.Is(err, model.ErrNotFound) のように使用する。
var (
	ErrConfiguration = errors.New("configuration error")
	ErrConnection    = errors.New("connection error")
	ErrNotFound      = errors.New("not found")
	ErrAuthorization = errors.New("unauthorized")
	ErrDuplicateKey  = errors.New("duplicate key")
	ErrVerification  = errors.New("verification failed")
	ErrValidation    = errors.New("validation failed")
)

var sentinels = map[ErrorKind]error{
	KindConfiguration: ErrConfiguration,
	KindConnection:    ErrConnection,
	KindNotFound:      ErrNotFound,
	KindAuthorization: ErrAuthorization,
	KindDuplicateKey:  ErrDuplicateKey,
	KindVerification:  ErrVerification,
	KindValidation:    ErrValidation,
}

// AppError は分類付きのアプリケーションエラー。
// Messageは呼び出し元にそのまま返してよい文言、Errは原因エラーを保持する。
type AppError struct {
	Kind    ErrorKind
	Message string
	Field   string
	Err     error
}

// Error はerrorインターフェースを実装する。
func (e *AppError) Error() string {
	return e.Message
}

// Unwrap は原因エラーを返す。
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is は同じ分類のセンチネルエラーと一致する。
func (e *AppError) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// KindOf はエラーの分類を返す。分類できないエラーはKindInternal。
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	for kind, s := range sentinels {
		if errors.Is(err, s) {
			return kind
		}
	}
	return KindInternal
}

// NewConfigurationError は必須設定の欠落エラーを生成する。
func NewConfigurationError(key string) *AppError {
	return &AppError{
		Kind:    KindConfiguration,
		Message: fmt.Sprintf("missing required configuration: %s", key),
		Field:   key,
	}
}

// NewConnectionError はデータストア接続失敗エラーを生成する。
func NewConnectionError(err error) *AppError {
	return &AppError{
		Kind:    KindConnection,
		Message: fmt.Sprintf("failed to connect to database: %v", err),
		Err:     err,
	}
}

// NewNotFoundError は参照先が存在しない場合のエラーを生成する。
func NewNotFoundError(resource, id string) *AppError {
	return &AppError{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s not found: %s", resource, id),
		Field:   resource,
	}
}

// NewAuthorizationError は所有者以外による変更操作のエラーを生成する。
func NewAuthorizationError(message string) *AppError {
	return &AppError{
		Kind:    KindAuthorization,
		Message: message,
	}
}

// NewDuplicateKeyError は一意キー制約違反エラーを生成する。
// Webhookの再送検知に使用されるため、原因エラーを必ず保持する。
func NewDuplicateKeyError(resource, key string, err error) *AppError {
	return &AppError{
		Kind:    KindDuplicateKey,
		Message: fmt.Sprintf("%s already exists: %s", resource, key),
		Field:   key,
		Err:     err,
	}
}

// NewVerificationError は署名検証やトークン検証の失敗エラーを生成する。
func NewVerificationError(err error) *AppError {
	return &AppError{
		Kind:    KindVerification,
		Message: fmt.Sprintf("verification failed: %v", err),
		Err:     err,
	}
}

// NewValidationError は入力値の不正エラーを生成する。
func NewValidationError(field, message string) *AppError {
	return &AppError{
		Kind:    KindValidation,
		Message: fmt.Sprintf("invalid %s: %s", field, message),
		Field:   field,
	}
}
