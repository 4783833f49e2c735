package model

import "time"

// Category はイベントの分類。名前は大文字小文字を区別せず一意。
type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CategoryRef はイベントに埋め込むカテゴリ情報。
type CategoryRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Event は主催者が公開するイベント。
// Priceは10進数文字列（例: "25.99"）。無料イベントでは空文字列になりうる。
// OrganizerIDは主催者の退会後に空文字列となる。
type Event struct {
	ID            string       `json:"id"`
	Title         string       `json:"title"`
	Description   string       `json:"description"`
	Location      string       `json:"location"`
	ImageURL      string       `json:"imageUrl"`
	StartDateTime time.Time    `json:"startDateTime"`
	EndDateTime   time.Time    `json:"endDateTime"`
	Price         string       `json:"price"`
	IsFree        bool         `json:"isFree"`
	URL           string       `json:"url"`
	CategoryID    string       `json:"categoryId"`
	OrganizerID   string       `json:"organizerId"`
	Category      *CategoryRef `json:"category,omitempty"`
	Organizer     *Organizer   `json:"organizer,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// EventFilter はイベント一覧の検索条件。空のフィールドは条件に含めない。
type EventFilter struct {
	Title       string
	CategoryID  string
	OrganizerID string
	ExcludeID   string
}
