package model

import "time"

// Order は決済完了によって作成される購入記録。
// StripeIDは決済セッションIDで一意。TotalAmountは10進数文字列。
// EventID・BuyerIDは参照先の削除後に空文字列となる。
type Order struct {
	ID          string    `json:"id"`
	StripeID    string    `json:"stripeId"`
	TotalAmount string    `json:"totalAmount"`
	EventID     string    `json:"eventId"`
	BuyerID     string    `json:"buyerId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// OrderEvent は購入履歴に埋め込むイベント概要。
type OrderEvent struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	ImageURL      string     `json:"imageUrl"`
	StartDateTime time.Time  `json:"startDateTime"`
	Price         string     `json:"price"`
	IsFree        bool       `json:"isFree"`
	Organizer     *Organizer `json:"organizer,omitempty"`
}

// OrderWithEvent はユーザーの購入履歴の1件。
// 参照先イベントが削除済みの場合Eventはnil。
type OrderWithEvent struct {
	Order
	Event *OrderEvent `json:"event"`
}

// OrderItem はイベント別注文一覧の1行。Buyerは購入者の "first last"。
type OrderItem struct {
	ID          string    `json:"id"`
	TotalAmount string    `json:"totalAmount"`
	CreatedAt   time.Time `json:"createdAt"`
	EventTitle  string    `json:"eventTitle"`
	EventID     string    `json:"eventId"`
	Buyer       string    `json:"buyer"`
}
