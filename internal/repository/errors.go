package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hitoshi/ticketbox/internal/model"
)

// PostgreSQLのSQLSTATE
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// translateError はドライバのエラーをドメインのエラー分類に変換する。
// 一意制約違反はDuplicateKeyError、外部キー違反は参照先のNotFoundErrorになる。
func translateError(err error, op, resource, key string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return model.NewDuplicateKeyError(resource, key, err)
		case pqForeignKeyViolation:
			ref := referencedResource(pqErr.Constraint)
			return &model.AppError{
				Kind:    model.KindNotFound,
				Message: fmt.Sprintf("referenced %s does not exist", ref),
				Field:   ref,
				Err:     err,
			}
		}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// referencedResource は外部キー制約名から参照先のリソース名を返す。
func referencedResource(constraint string) string {
	switch {
	case strings.Contains(constraint, "category"):
		return "category"
	case strings.Contains(constraint, "organizer"), strings.Contains(constraint, "buyer"):
		return "user"
	default:
		return "reference"
	}
}

// escapeLike はLIKE/ILIKEパターンのワイルドカードをエスケープする。
// 利用者の検索語は常にリテラルとして扱う。
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// containsPattern は部分一致用のILIKEパターンを返す。
func containsPattern(s string) string {
	return "%" + escapeLike(s) + "%"
}

// isUUID はIDがUUID形式かを判定する。
// 形式外のIDはDBに問い合わせず「見つからない」として扱う。
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// nullableUUID は空文字列をNULLとして扱う。
func nullableUUID(id string) any {
	if id == "" {
		return nil
	}
	return id
}

// connect は接続を取得する。
func connect(ctx context.Context, conn DBProvider) (*sql.DB, error) {
	db, err := conn.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return db, nil
}
