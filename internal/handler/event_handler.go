package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/ticketbox/internal/action"
	"github.com/hitoshi/ticketbox/internal/model"
)

// EventActions はイベントハンドラーが必要とする操作。action.Serviceが実装する。
type EventActions interface {
	CreateEvent(ctx context.Context, p action.CreateEventParams) action.Result[*model.Event]
	GetEventByID(ctx context.Context, eventID string) action.Result[*model.Event]
	UpdateEvent(ctx context.Context, p action.UpdateEventParams) action.Result[*model.Event]
	DeleteEvent(ctx context.Context, p action.DeleteEventParams) action.Result[*model.Event]
	GetAllEvents(ctx context.Context, p action.GetAllEventsParams) action.Result[[]*model.Event]
	GetRelatedEventsByCategory(ctx context.Context, p action.GetRelatedEventsParams) action.Result[[]*model.Event]
}

// EventHandler はイベント管理のHTTPハンドラー。
type EventHandler struct {
	actions EventActions
}

// NewEventHandler はEventHandlerを生成する。
func NewEventHandler(actions EventActions) *EventHandler {
	return &EventHandler{actions: actions}
}

// EventPath はイベント詳細の論理パスを返す。
func EventPath(eventID string) string {
	return "/events/" + eventID
}

// List は公開イベントの一覧を返す。
// GET /api/events?query=&category=&page=&limit=
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res := h.actions.GetAllEvents(r.Context(), action.GetAllEventsParams{
		Query:    q.Get("query"),
		Category: q.Get("category"),
		Page:     queryInt(r, "page"),
		Limit:    queryInt(r, "limit"),
	})
	writeResult(w, http.StatusOK, res)
}

// Get はイベント詳細を返す。
// GET /api/events/{id}
func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeResult(w, http.StatusOK, h.actions.GetEventByID(r.Context(), chi.URLParam(r, "id")))
}

// Related は同じカテゴリの他のイベントを返す。
// GET /api/events/{id}/related?page=
func (h *EventHandler) Related(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "id")

	event := h.actions.GetEventByID(r.Context(), eventID)
	if !event.Success {
		writeResult(w, http.StatusOK, event)
		return
	}

	res := h.actions.GetRelatedEventsByCategory(r.Context(), action.GetRelatedEventsParams{
		CategoryID: event.Data.CategoryID,
		EventID:    eventID,
		Page:       queryInt(r, "page"),
		Limit:      queryInt(r, "limit"),
	})
	writeResult(w, http.StatusOK, res)
}

// Create は認証済みユーザーを主催者としてイベントを作成する。
// POST /api/events
func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var in action.EventInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	res := h.actions.CreateEvent(r.Context(), action.CreateEventParams{
		Event:       in,
		OrganizerID: userID,
		Path:        "/profile",
	})
	writeResult(w, http.StatusCreated, res)
}

// Update は主催者本人のイベントを更新する。
// PUT /api/events/{id}
func (h *EventHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var in action.EventInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	eventID := chi.URLParam(r, "id")
	res := h.actions.UpdateEvent(r.Context(), action.UpdateEventParams{
		EventID:     eventID,
		Event:       in,
		OrganizerID: userID,
		Path:        EventPath(eventID),
	})
	writeResult(w, http.StatusOK, res)
}

// Delete は主催者本人のイベントを削除する。存在しないイベントの削除も成功として扱う。
// DELETE /api/events/{id}
func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	res := h.actions.DeleteEvent(r.Context(), action.DeleteEventParams{
		EventID:     chi.URLParam(r, "id"),
		OrganizerID: userID,
		Path:        action.HomePath,
	})
	writeResult(w, http.StatusOK, res)
}
