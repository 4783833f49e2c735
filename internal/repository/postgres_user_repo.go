package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/ticketbox/internal/model"
)

const userColumns = `id, clerk_id, email, username, first_name, last_name, photo, created_at, updated_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	conn DBProvider
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(conn DBProvider) *PostgresUserRepo {
	return &PostgresUserRepo{conn: conn}
}

// Create はユーザーを作成する。IDと作成日時は未設定の場合に採番する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	db, err := connect(ctx, r.conn)
	if err != nil {
		return err
	}

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err = db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		user.ID, user.ClerkID, user.Email, user.Username, user.FirstName, user.LastName,
		user.Photo, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return translateError(err, "insert user", "user", user.ClerkID)
	}
	return nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if !isUUID(id) {
		return nil, nil
	}
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// FindByClerkID は外部識別子でユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByClerkID(ctx context.Context, clerkID string) (*model.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE clerk_id = $1`, clerkID)
}

// UpdateByClerkID はnilでないフィールドのみを更新する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) UpdateByClerkID(ctx context.Context, clerkID string, update model.UserUpdate) (*model.User, error) {
	return r.findOne(ctx,
		`UPDATE users SET
			first_name = COALESCE($2::text, first_name),
			last_name  = COALESCE($3::text, last_name),
			username   = COALESCE($4::text, username),
			photo      = COALESCE($5::text, photo),
			updated_at = NOW()
		 WHERE clerk_id = $1
		 RETURNING `+userColumns,
		clerkID, update.FirstName, update.LastName, update.Username, update.Photo,
	)
}

// DeleteWithDetach はイベントの主催者参照と注文の購入者参照をNULLにしてからユーザーを削除する。
// 途中で失敗した場合はロールバックされ、どの変更も残らない。
func (r *PostgresUserRepo) DeleteWithDetach(ctx context.Context, userID string) (model.DetachResult, error) {
	var result model.DetachResult

	if !isUUID(userID) {
		return result, model.NewNotFoundError("user", userID)
	}

	db, err := connect(ctx, r.conn)
	if err != nil {
		return result, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 1. 主催イベントから参照を外す
	res, err := tx.ExecContext(ctx,
		`UPDATE events SET organizer_id = NULL, updated_at = NOW() WHERE organizer_id = $1`,
		userID,
	)
	if err != nil {
		return result, fmt.Errorf("failed to detach events: %w", err)
	}
	if result.EventsDetached, err = res.RowsAffected(); err != nil {
		return result, fmt.Errorf("failed to get rows affected: %w", err)
	}

	// 2. 購入した注文から参照を外す
	res, err = tx.ExecContext(ctx,
		`UPDATE orders SET buyer_id = NULL, updated_at = NOW() WHERE buyer_id = $1`,
		userID,
	)
	if err != nil {
		return result, fmt.Errorf("failed to detach orders: %w", err)
	}
	if result.OrdersDetached, err = res.RowsAffected(); err != nil {
		return result, fmt.Errorf("failed to get rows affected: %w", err)
	}

	// 3. ユーザーを削除
	res, err = tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return result, fmt.Errorf("failed to delete user: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return result, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if deleted == 0 {
		return model.DetachResult{}, model.NewNotFoundError("user", userID)
	}

	if err := tx.Commit(); err != nil {
		return model.DetachResult{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return result, nil
}

func (r *PostgresUserRepo) findOne(ctx context.Context, query string, args ...any) (*model.User, error) {
	db, err := connect(ctx, r.conn)
	if err != nil {
		return nil, err
	}

	user := &model.User{}
	err = db.QueryRowContext(ctx, query, args...).Scan(
		&user.ID, &user.ClerkID, &user.Email, &user.Username, &user.FirstName,
		&user.LastName, &user.Photo, &user.CreatedAt, &user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return user, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
