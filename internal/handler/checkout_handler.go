package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/ticketbox/internal/action"
	"github.com/hitoshi/ticketbox/internal/middleware"
	"github.com/hitoshi/ticketbox/internal/model"
	"github.com/hitoshi/ticketbox/internal/payment"
)

// CheckoutInitiator は決済セッションを開始する。payment.CheckoutServiceが実装する。
type CheckoutInitiator interface {
	InitiateCheckout(ctx context.Context, req payment.CheckoutRequest) (string, error)
}

// EventFinder は決済対象のイベントを取得する。
type EventFinder interface {
	GetEventByID(ctx context.Context, eventID string) action.Result[*model.Event]
}

// CheckoutHandler はチケット購入の決済開始を扱うHTTPハンドラー。
type CheckoutHandler struct {
	events   EventFinder
	checkout CheckoutInitiator
	logger   *slog.Logger
}

// NewCheckoutHandler はCheckoutHandlerを生成する。
func NewCheckoutHandler(events EventFinder, checkout CheckoutInitiator, logger *slog.Logger) *CheckoutHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckoutHandler{events: events, checkout: checkout, logger: logger}
}

type checkoutRequest struct {
	EventID string `json:"eventId"`
}

type checkoutResponse struct {
	URL string `json:"url"`
}

// Create は決済セッションを作成し、決済ページへ303でリダイレクトする。
// POST /api/checkout
func (h *CheckoutHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req checkoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.EventID == "" {
		writeError(w, model.NewValidationError("eventId", "required"))
		return
	}

	// 1. 対象イベントの取得
	event := h.events.GetEventByID(r.Context(), req.EventID)
	if !event.Success {
		writeResult(w, http.StatusOK, event)
		return
	}

	// 2. 決済セッションの作成
	url, err := h.checkout.InitiateCheckout(r.Context(), payment.CheckoutRequest{
		EventID:    event.Data.ID,
		EventTitle: event.Data.Title,
		Price:      event.Data.Price,
		IsFree:     event.Data.IsFree,
		BuyerID:    userID,
	})
	if err != nil {
		h.logger.Error("checkout session creation failed",
			slog.String("event_id", event.Data.ID),
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		status := middleware.StatusForKind(model.KindOf(err))
		if model.KindOf(err) == model.KindInternal {
			status = http.StatusBadGateway
		}
		middleware.WriteErrorResponse(w, status, err.Error())
		return
	}

	// 3. 決済ページへリダイレクト
	w.Header().Set("Location", url)
	writeJSON(w, http.StatusSeeOther, action.Result[checkoutResponse]{
		StatusCode: http.StatusSeeOther,
		Success:    true,
		Data:       checkoutResponse{URL: url},
	})
}
