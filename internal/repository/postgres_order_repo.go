package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/ticketbox/internal/model"
)

// PostgresOrderRepo はPostgreSQLを使用した注文リポジトリ。
type PostgresOrderRepo struct {
	conn DBProvider
}

// NewPostgresOrderRepo はPostgresOrderRepoを生成する。
func NewPostgresOrderRepo(conn DBProvider) *PostgresOrderRepo {
	return &PostgresOrderRepo{conn: conn}
}

// Create は注文を作成する。CreatedAtが設定済みの場合はその値を使用する。
func (r *PostgresOrderRepo) Create(ctx context.Context, order *model.Order) error {
	db, err := connect(ctx, r.conn)
	if err != nil {
		return err
	}

	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO orders (id, stripe_id, total_amount, event_id, buyer_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		order.ID, order.StripeID, order.TotalAmount,
		nullableUUID(order.EventID), nullableUUID(order.BuyerID), order.CreatedAt,
	)
	if err != nil {
		return translateError(err, "insert order", "order", order.StripeID)
	}
	return nil
}

// ListByBuyer は購入者の注文をイベント概要と主催者付きで返す。
func (r *PostgresOrderRepo) ListByBuyer(ctx context.Context, buyerID string, page model.Page) ([]*model.OrderWithEvent, int, error) {
	if !isUUID(buyerID) {
		return []*model.OrderWithEvent{}, 0, nil
	}

	db, err := connect(ctx, r.conn)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE buyer_id = $1`, buyerID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT o.id, o.stripe_id, o.total_amount, o.event_id, o.buyer_id, o.created_at,
			e.id, e.title, e.image_url, e.start_date_time, e.price, e.is_free,
			u.id, u.first_name, u.last_name
		 FROM orders o
		 LEFT JOIN events e ON e.id = o.event_id
		 LEFT JOIN users u ON u.id = e.organizer_id
		 WHERE o.buyer_id = $1
		 ORDER BY o.created_at DESC, o.id
		 LIMIT $2 OFFSET $3`,
		buyerID, page.Limit, page.Offset(),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders by buyer: %w", err)
	}
	defer rows.Close()

	orders := make([]*model.OrderWithEvent, 0)
	for rows.Next() {
		var (
			o                               model.OrderWithEvent
			eventRef, buyerRef              sql.NullString
			eventID, title, imageURL, price sql.NullString
			startDateTime                   sql.NullTime
			isFree                          sql.NullBool
			organizerID, orgFirst, orgLast  sql.NullString
		)
		if err := rows.Scan(
			&o.ID, &o.StripeID, &o.TotalAmount, &eventRef, &buyerRef, &o.CreatedAt,
			&eventID, &title, &imageURL, &startDateTime, &price, &isFree,
			&organizerID, &orgFirst, &orgLast,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan order: %w", err)
		}

		o.EventID = eventRef.String
		o.BuyerID = buyerRef.String
		if eventID.Valid {
			o.Event = &model.OrderEvent{
				ID:            eventID.String,
				Title:         title.String,
				ImageURL:      imageURL.String,
				StartDateTime: startDateTime.Time,
				Price:         price.String,
				IsFree:        isFree.Bool,
			}
			if organizerID.Valid {
				o.Event.Organizer = &model.Organizer{
					ID:        organizerID.String,
					FirstName: orgFirst.String,
					LastName:  orgLast.String,
				}
			}
		}
		orders = append(orders, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate orders: %w", err)
	}

	return orders, total, nil
}

// ListByEvent はイベントの注文を購入者の "first last" に対する部分一致で絞り込む。
// 購入者が退会済みの注文は対象外となる。
func (r *PostgresOrderRepo) ListByEvent(ctx context.Context, eventID, search string) ([]*model.OrderItem, error) {
	if !isUUID(eventID) {
		return []*model.OrderItem{}, nil
	}

	db, err := connect(ctx, r.conn)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT o.id, o.total_amount, o.created_at, e.title, e.id,
			(b.first_name || ' ' || b.last_name) AS buyer
		 FROM orders o
		 JOIN users b ON b.id = o.buyer_id
		 JOIN events e ON e.id = o.event_id
		 WHERE o.event_id = $1
		   AND (b.first_name || ' ' || b.last_name) ILIKE $2 ESCAPE '\'
		 ORDER BY o.created_at DESC, o.id`,
		eventID, containsPattern(search),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders by event: %w", err)
	}
	defer rows.Close()

	items := make([]*model.OrderItem, 0)
	for rows.Next() {
		item := &model.OrderItem{}
		if err := rows.Scan(&item.ID, &item.TotalAmount, &item.CreatedAt, &item.EventTitle, &item.EventID, &item.Buyer); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate order items: %w", err)
	}

	return items, nil
}

// compile-time interface check
var _ OrderRepository = (*PostgresOrderRepo)(nil)
