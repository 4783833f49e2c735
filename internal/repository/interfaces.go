// Package repository はデータ永続化のインターフェースとPostgreSQL実装を定義する。
package repository

import (
	"context"
	"database/sql"

	"github.com/hitoshi/ticketbox/internal/model"
)

// DBProvider は遅延初期化された接続を提供する。
// database.Connectorが実装する。
type DBProvider interface {
	Connect(ctx context.Context) (*sql.DB, error)
}

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// Create はユーザーを作成する。clerk_idが重複する場合はDuplicateKeyErrorを返す。
	Create(ctx context.Context, user *model.User) error

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByClerkID は外部識別子でユーザーを取得する。見つからない場合はnilを返す。
	FindByClerkID(ctx context.Context, clerkID string) (*model.User, error)

	// UpdateByClerkID は外部識別子で指定したユーザーを部分更新する。
	// 見つからない場合はnilを返す。
	UpdateByClerkID(ctx context.Context, clerkID string, update model.UserUpdate) (*model.User, error)

	// DeleteWithDetach はユーザーが主催するイベントと購入した注文から参照を外したうえで
	// ユーザーを削除する。すべて同一トランザクションで行う。
	// ユーザーが存在しない場合はNotFoundErrorを返す。
	DeleteWithDetach(ctx context.Context, userID string) (model.DetachResult, error)
}

// CategoryRepository はカテゴリデータの永続化インターフェース。
type CategoryRepository interface {
	// Create はカテゴリを作成する。名前が重複する場合はDuplicateKeyErrorを返す。
	Create(ctx context.Context, category *model.Category) error

	// List は全カテゴリを名前順に返す。
	List(ctx context.Context) ([]*model.Category, error)

	// FindByName は名前でカテゴリを検索する（大文字小文字を区別しない）。
	// 完全一致を優先し、なければ部分一致の先頭を返す。見つからない場合はnilを返す。
	FindByName(ctx context.Context, name string) (*model.Category, error)
}

// EventRepository はイベントデータの永続化インターフェース。
type EventRepository interface {
	// Create はイベントを作成する。カテゴリが存在しない場合はNotFoundErrorを返す。
	Create(ctx context.Context, event *model.Event) error

	// FindByID は主催者とカテゴリを結合したイベントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Event, error)

	// UpdateOwned は主催者がorganizerIDと一致する場合に限りイベントを更新する。
	// 更新対象がなかった場合はfalseを返す。
	UpdateOwned(ctx context.Context, event *model.Event, organizerID string) (bool, error)

	// Delete はイベントを削除し、削除したかどうかを返す。
	Delete(ctx context.Context, id string) (bool, error)

	// List は条件に一致するイベントを作成日時の降順で返す。総件数も併せて返す。
	List(ctx context.Context, filter model.EventFilter, page model.Page) ([]*model.Event, int, error)
}

// OrderRepository は注文データの永続化インターフェース。
type OrderRepository interface {
	// Create は注文を作成する。stripe_idが重複する場合はDuplicateKeyErrorを返す。
	Create(ctx context.Context, order *model.Order) error

	// ListByBuyer は購入者の注文をイベント概要付きで新しい順に返す。総件数も併せて返す。
	ListByBuyer(ctx context.Context, buyerID string, page model.Page) ([]*model.OrderWithEvent, int, error)

	// ListByEvent はイベントの注文を購入者名で絞り込んで返す。
	ListByEvent(ctx context.Context, eventID, search string) ([]*model.OrderItem, error)
}
