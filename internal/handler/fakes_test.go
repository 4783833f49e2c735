package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/ticketbox/internal/action"
	"github.com/hitoshi/ticketbox/internal/middleware"
	"github.com/hitoshi/ticketbox/internal/model"
	"github.com/hitoshi/ticketbox/internal/payment"
)

// --- モック ---

// fakeActions はActionsのモック実装。未設定の操作は成功の空結果を返す。
type fakeActions struct {
	events map[string]*model.Event

	createEventFn  func(p action.CreateEventParams) action.Result[*model.Event]
	updateEventFn  func(p action.UpdateEventParams) action.Result[*model.Event]
	deleteEventFn  func(p action.DeleteEventParams) action.Result[*model.Event]
	getAllEventsFn func(p action.GetAllEventsParams) action.Result[[]*model.Event]
	relatedFn      func(p action.GetRelatedEventsParams) action.Result[[]*model.Event]
	ordersByEvent  func(p action.GetOrdersByEventParams) action.Result[[]*model.OrderItem]
	ordersByUser   func(p action.GetOrdersByUserParams) action.Result[[]*model.OrderWithEvent]
	eventsByUser   func(p action.GetEventsByUserParams) action.Result[[]*model.Event]
	createCategory func(name string) action.Result[*model.Category]

	calls map[string]int
}

func newFakeActions() *fakeActions {
	return &fakeActions{events: map[string]*model.Event{}, calls: map[string]int{}}
}

func ok[T any](data T) action.Result[T] {
	return action.Result[T]{StatusCode: http.StatusOK, Success: true, Data: data}
}

func fail[T any](err error) action.Result[T] {
	return action.Result[T]{StatusCode: http.StatusInternalServerError, Error: err.Error(), Err: err}
}

func (f *fakeActions) CreateEvent(_ context.Context, p action.CreateEventParams) action.Result[*model.Event] {
	f.calls["createEvent"]++
	if f.createEventFn != nil {
		return f.createEventFn(p)
	}
	return ok(&model.Event{ID: "new", Title: p.Event.Title, OrganizerID: p.OrganizerID})
}

func (f *fakeActions) GetEventByID(_ context.Context, eventID string) action.Result[*model.Event] {
	f.calls["getEventByID"]++
	if e, found := f.events[eventID]; found {
		return ok(e)
	}
	return fail[*model.Event](model.NewNotFoundError("event", eventID))
}

func (f *fakeActions) UpdateEvent(_ context.Context, p action.UpdateEventParams) action.Result[*model.Event] {
	f.calls["updateEvent"]++
	if f.updateEventFn != nil {
		return f.updateEventFn(p)
	}
	return ok(&model.Event{ID: p.EventID})
}

func (f *fakeActions) DeleteEvent(_ context.Context, p action.DeleteEventParams) action.Result[*model.Event] {
	f.calls["deleteEvent"]++
	if f.deleteEventFn != nil {
		return f.deleteEventFn(p)
	}
	return ok[*model.Event](nil)
}

func (f *fakeActions) GetAllEvents(_ context.Context, p action.GetAllEventsParams) action.Result[[]*model.Event] {
	f.calls["getAllEvents"]++
	if f.getAllEventsFn != nil {
		return f.getAllEventsFn(p)
	}
	return ok([]*model.Event{})
}

func (f *fakeActions) GetRelatedEventsByCategory(_ context.Context, p action.GetRelatedEventsParams) action.Result[[]*model.Event] {
	f.calls["related"]++
	if f.relatedFn != nil {
		return f.relatedFn(p)
	}
	return ok([]*model.Event{})
}

func (f *fakeActions) CreateCategory(_ context.Context, name string) action.Result[*model.Category] {
	f.calls["createCategory"]++
	if f.createCategory != nil {
		return f.createCategory(name)
	}
	return ok(&model.Category{ID: "c1", Name: name})
}

func (f *fakeActions) GetAllCategories(context.Context) action.Result[[]*model.Category] {
	f.calls["getAllCategories"]++
	return ok([]*model.Category{{ID: "c1", Name: "Music"}})
}

func (f *fakeActions) GetUserByID(_ context.Context, userID string) action.Result[*model.User] {
	f.calls["getUserByID"]++
	return ok(&model.User{ID: userID})
}

func (f *fakeActions) GetEventsByUser(_ context.Context, p action.GetEventsByUserParams) action.Result[[]*model.Event] {
	f.calls["eventsByUser"]++
	if f.eventsByUser != nil {
		return f.eventsByUser(p)
	}
	return ok([]*model.Event{})
}

func (f *fakeActions) GetOrdersByUser(_ context.Context, p action.GetOrdersByUserParams) action.Result[[]*model.OrderWithEvent] {
	f.calls["ordersByUser"]++
	if f.ordersByUser != nil {
		return f.ordersByUser(p)
	}
	return ok([]*model.OrderWithEvent{})
}

func (f *fakeActions) GetOrdersByEvent(_ context.Context, p action.GetOrdersByEventParams) action.Result[[]*model.OrderItem] {
	f.calls["ordersByEvent"]++
	if f.ordersByEvent != nil {
		return f.ordersByEvent(p)
	}
	return ok([]*model.OrderItem{})
}

// fakeCheckout はCheckoutInitiatorのモック実装。
type fakeCheckout struct {
	url  string
	err  error
	last payment.CheckoutRequest
}

func (f *fakeCheckout) InitiateCheckout(_ context.Context, req payment.CheckoutRequest) (string, error) {
	f.last = req
	return f.url, f.err
}

// fakePinger はPingerのモック実装。
type fakePinger struct{ err error }

func (f *fakePinger) Ping(context.Context) error { return f.err }

// --- ヘルパー ---

// withUserID はリクエストコンテキストに認証済みユーザーIDを注入する。
func withUserID(r *http.Request, userID string) *http.Request {
	return r.WithContext(middleware.ContextWithUserID(r.Context(), userID))
}

// envelope はレスポンスエンベロープのデコード先。
type envelope struct {
	StatusCode int             `json:"statusCode"`
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error"`
	TotalPages *int            `json:"totalPages"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), "body: %s", w.Body.String())
	return env
}

func contextWithRoute(r *http.Request, rctx *chi.Context) context.Context {
	return context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
}
