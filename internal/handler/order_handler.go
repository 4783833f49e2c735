package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/ticketbox/internal/action"
	"github.com/hitoshi/ticketbox/internal/middleware"
	"github.com/hitoshi/ticketbox/internal/model"
)

// OrderActions は注文ハンドラーが必要とする操作。
type OrderActions interface {
	GetEventByID(ctx context.Context, eventID string) action.Result[*model.Event]
	GetOrdersByEvent(ctx context.Context, p action.GetOrdersByEventParams) action.Result[[]*model.OrderItem]
}

// OrderHandler はイベント別注文一覧のHTTPハンドラー。
type OrderHandler struct {
	actions OrderActions
}

// NewOrderHandler はOrderHandlerを生成する。
func NewOrderHandler(actions OrderActions) *OrderHandler {
	return &OrderHandler{actions: actions}
}

// ListByEvent はイベントの注文一覧を返す。主催者本人のみ参照できる。
// GET /api/events/{id}/orders?searchString=
func (h *OrderHandler) ListByEvent(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	// 1. 主催者の確認
	eventID := chi.URLParam(r, "id")
	event := h.actions.GetEventByID(r.Context(), eventID)
	if !event.Success {
		writeResult(w, http.StatusOK, event)
		return
	}
	if event.Data.OrganizerID == "" || event.Data.OrganizerID != userID {
		middleware.WriteErrorResponse(w, http.StatusForbidden, "only the organizer can view orders for this event")
		return
	}

	// 2. 注文一覧の取得
	res := h.actions.GetOrdersByEvent(r.Context(), action.GetOrdersByEventParams{
		EventID:      eventID,
		SearchString: r.URL.Query().Get("searchString"),
	})
	writeResult(w, http.StatusOK, res)
}
