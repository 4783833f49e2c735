package model

import "time"

// User はIdPから同期されたユーザーを表す。
// ClerkIDはIdPが発行する外部識別子で、一意である。
type User struct {
	ID        string    `json:"id"`
	ClerkID   string    `json:"clerkId"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Photo     string    `json:"photo"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// UserUpdate はユーザーの部分更新内容を表す。nilのフィールドは変更しない。
// メールアドレスはIdP側で管理されるため更新対象に含めない。
type UserUpdate struct {
	FirstName *string `json:"firstName,omitempty"`
	LastName  *string `json:"lastName,omitempty"`
	Username  *string `json:"username,omitempty"`
	Photo     *string `json:"photo,omitempty"`
}

// Organizer はイベント一覧・詳細に埋め込む主催者情報。
type Organizer struct {
	ID        string `json:"id"`
	ClerkID   string `json:"clerkId,omitempty"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// DetachResult はユーザー削除時に参照を外した件数を表す。
type DetachResult struct {
	EventsDetached int64
	OrdersDetached int64
}
