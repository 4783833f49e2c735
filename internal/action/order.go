package action

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/ticketbox/internal/model"
)

// DefaultOrdersLimit はユーザーの購入履歴の既定件数。
const DefaultOrdersLimit = 3

// CreateOrderInput は注文作成の入力。決済Webhookから組み立てる。
// EventID・BuyerIDは空文字列を許容し、その場合は参照なしの注文となる。
type CreateOrderInput struct {
	StripeID    string `json:"stripeId" validate:"required"`
	TotalAmount string `json:"totalAmount" validate:"required,numeric"`
	EventID     string `json:"eventId" validate:"omitempty,uuid"`
	BuyerID     string `json:"buyerId" validate:"omitempty,uuid"`
	// RequireBuyer がtrueの場合、存在しない購入者はNotFoundErrorとする。
	// falseの場合は購入者の参照を外して注文を記録する。
	RequireBuyer bool `json:"-"`
}

// GetOrdersByUserParams はGetOrdersByUserの引数。
type GetOrdersByUserParams struct {
	UserID string
	Page   int
	Limit  int
}

// GetOrdersByEventParams はGetOrdersByEventの引数。SearchStringは購入者名の部分一致。
type GetOrdersByEventParams struct {
	EventID      string
	SearchString string
}

// CreateOrder は注文を作成し、購入履歴（ProfilePath）を再検証する。
// 同じ決済セッションIDの注文が既にある場合はDuplicateKeyErrorで失敗する（再送の検知）。
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) Result[*model.Order] {
	return execute(ctx, s, "createOrder", func(ctx context.Context) (*model.Order, error) {
		in.StripeID = strings.TrimSpace(in.StripeID)
		if err := s.validateStruct(in); err != nil {
			return nil, err
		}

		// 購入者が指定されている場合は存在を確認する
		if in.BuyerID != "" {
			buyer, err := s.users.FindByID(ctx, in.BuyerID)
			if err != nil {
				return nil, fmt.Errorf("購入者の取得に失敗しました: %w", err)
			}
			if buyer == nil {
				if in.RequireBuyer {
					return nil, model.NewNotFoundError("user", in.BuyerID)
				}
				// 決済済みの注文は失わない。退会済みユーザーと同じく参照なしで記録する
				s.logger.Warn("buyer not found, recording order without buyer",
					slog.String("stripe_id", in.StripeID),
					slog.String("buyer_id", in.BuyerID),
				)
				in.BuyerID = ""
			}
		}

		order := &model.Order{
			StripeID:    in.StripeID,
			TotalAmount: in.TotalAmount,
			EventID:     in.EventID,
			BuyerID:     in.BuyerID,
		}
		if err := s.orders.Create(ctx, order); err != nil {
			return nil, err
		}
		s.recorder.RecordOrderCreated()
		s.revalidate(ctx, ProfilePath)
		return order, nil
	})
}

// GetOrdersByUser は購入者の注文をイベント概要付きで新しい順に返す。
func (s *Service) GetOrdersByUser(ctx context.Context, p GetOrdersByUserParams) Result[[]*model.OrderWithEvent] {
	page := model.NewPage(p.Page, p.Limit, DefaultOrdersLimit)
	var pages int

	res := execute(ctx, s, "getOrdersByUser", func(ctx context.Context) ([]*model.OrderWithEvent, error) {
		if p.UserID == "" {
			return nil, model.NewValidationError("userId", "required")
		}
		orders, total, err := s.orders.ListByBuyer(ctx, p.UserID, page)
		if err != nil {
			return nil, fmt.Errorf("購入履歴の取得に失敗しました: %w", err)
		}
		if orders == nil {
			orders = []*model.OrderWithEvent{}
		}
		pages = model.TotalPages(total, page.Limit)
		return orders, nil
	})
	return res.withPages(pages)
}

// GetOrdersByEvent はイベントの注文一覧を返す。購入者の "first last" で絞り込める。
func (s *Service) GetOrdersByEvent(ctx context.Context, p GetOrdersByEventParams) Result[[]*model.OrderItem] {
	return execute(ctx, s, "getOrdersByEvent", func(ctx context.Context) ([]*model.OrderItem, error) {
		if p.EventID == "" {
			return nil, model.NewValidationError("eventId", "required")
		}
		items, err := s.orders.ListByEvent(ctx, p.EventID, strings.TrimSpace(p.SearchString))
		if err != nil {
			return nil, fmt.Errorf("注文一覧の取得に失敗しました: %w", err)
		}
		if items == nil {
			items = []*model.OrderItem{}
		}
		return items, nil
	})
}
