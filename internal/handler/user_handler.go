package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/ticketbox/internal/action"
	"github.com/hitoshi/ticketbox/internal/middleware"
	"github.com/hitoshi/ticketbox/internal/model"
)

// ProfilePath は利用者ごとのイベント・購入履歴の論理パス。
const ProfilePath = action.ProfilePath

// UserActions はユーザーハンドラーが必要とする操作。
type UserActions interface {
	GetUserByID(ctx context.Context, userID string) action.Result[*model.User]
	GetEventsByUser(ctx context.Context, p action.GetEventsByUserParams) action.Result[[]*model.Event]
	GetOrdersByUser(ctx context.Context, p action.GetOrdersByUserParams) action.Result[[]*model.OrderWithEvent]
}

// UserHandler は認証済みユーザー自身の情報を扱うHTTPハンドラー。
type UserHandler struct {
	actions UserActions
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(actions UserActions) *UserHandler {
	return &UserHandler{actions: actions}
}

// Me は認証済みユーザーを返す。
// GET /api/users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	writeResult(w, http.StatusOK, h.actions.GetUserByID(r.Context(), userID))
}

// Events は認証済みユーザーが主催するイベントを返す。
// GET /api/users/me/events?page=
func (h *UserHandler) Events(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	res := h.actions.GetEventsByUser(r.Context(), action.GetEventsByUserParams{
		UserID: userID,
		Page:   queryInt(r, "page"),
		Limit:  queryInt(r, "limit"),
	})
	writeResult(w, http.StatusOK, res)
}

// Orders は認証済みユーザーの購入履歴を返す。
// GET /api/users/me/orders?page=
func (h *UserHandler) Orders(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	res := h.actions.GetOrdersByUser(r.Context(), action.GetOrdersByUserParams{
		UserID: userID,
		Page:   queryInt(r, "page"),
		Limit:  queryInt(r, "limit"),
	})
	writeResult(w, http.StatusOK, res)
}

// profileKey はユーザーごとのページキャッシュキーを返す。
// 論理パスは全ユーザー共通の/profileで、バリアントにユーザーIDを含める。
func profileKey(r *http.Request) (string, string) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	return ProfilePath, userID + "|" + r.URL.Path + "?" + r.URL.RawQuery
}
