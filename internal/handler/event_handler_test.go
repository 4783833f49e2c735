package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/ticketbox/internal/action"
	"github.com/hitoshi/ticketbox/internal/model"
)

// withURLParam はchiのURLパラメータをリクエストに設定する。
func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(contextWithRoute(r, rctx))
}

const validEventBody = `{
	"title": "Jazz Night",
	"description": "<p>Live</p>",
	"location": "Park",
	"imageUrl": "https://utfs.io/f/a.png",
	"startDateTime": "2026-11-01T19:00:00Z",
	"endDateTime": "2026-11-01T22:00:00Z",
	"categoryId": "6f1c1b9e-3c55-4d1b-9a34-3f1e5bde2a10",
	"price": "25.99",
	"isFree": false,
	"url": "https://example.com"
}`

func TestEventHandler_List_PassesQuery(t *testing.T) {
	actions := newFakeActions()
	var got action.GetAllEventsParams
	actions.getAllEventsFn = func(p action.GetAllEventsParams) action.Result[[]*model.Event] {
		got = p
		pages := 4
		res := ok([]*model.Event{{ID: "e1"}})
		res.TotalPages = &pages
		return res
	}

	req := httptest.NewRequest(http.MethodGet, "/api/events?query=jazz&category=Music&page=2&limit=10", nil)
	w := httptest.NewRecorder()
	NewEventHandler(actions).List(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, action.GetAllEventsParams{Query: "jazz", Category: "Music", Page: 2, Limit: 10}, got)
	env := decodeEnvelope(t, w)
	require.NotNil(t, env.TotalPages)
	assert.Equal(t, 4, *env.TotalPages)
}

func TestEventHandler_Get_NotFound(t *testing.T) {
	req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/events/missing", nil), "id", "missing")
	w := httptest.NewRecorder()
	NewEventHandler(newFakeActions()).Get(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, http.StatusNotFound, decodeEnvelope(t, w).StatusCode)
}

func TestEventHandler_Related_UsesEventCategory(t *testing.T) {
	actions := newFakeActions()
	actions.events["e1"] = &model.Event{ID: "e1", CategoryID: "cat-1"}
	var got action.GetRelatedEventsParams
	actions.relatedFn = func(p action.GetRelatedEventsParams) action.Result[[]*model.Event] {
		got = p
		return ok([]*model.Event{})
	}

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/events/e1/related?page=2", nil), "id", "e1")
	w := httptest.NewRecorder()
	NewEventHandler(actions).Related(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, action.GetRelatedEventsParams{CategoryID: "cat-1", EventID: "e1", Page: 2}, got)
}

func TestEventHandler_Create_SetsOrganizer(t *testing.T) {
	actions := newFakeActions()
	var got action.CreateEventParams
	actions.createEventFn = func(p action.CreateEventParams) action.Result[*model.Event] {
		got = p
		return ok(&model.Event{ID: "e1"})
	}

	req := withUserID(httptest.NewRequest(http.MethodPost, "/api/events", strings.NewReader(validEventBody)), "user-1")
	w := httptest.NewRecorder()
	NewEventHandler(actions).Create(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "user-1", got.OrganizerID)
	assert.Equal(t, "Jazz Night", got.Event.Title)
	assert.Equal(t, "25.99", got.Event.Price)
}

func TestEventHandler_Create_Unauthenticated(t *testing.T) {
	actions := newFakeActions()
	req := httptest.NewRequest(http.MethodPost, "/api/events", strings.NewReader(validEventBody))
	w := httptest.NewRecorder()
	NewEventHandler(actions).Create(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, actions.calls["createEvent"])
}

func TestEventHandler_Create_MalformedBody(t *testing.T) {
	actions := newFakeActions()
	req := withUserID(httptest.NewRequest(http.MethodPost, "/api/events", strings.NewReader("{")), "user-1")
	w := httptest.NewRecorder()
	NewEventHandler(actions).Create(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, actions.calls["createEvent"])
}

func TestEventHandler_Update_RevalidatesEventPath(t *testing.T) {
	actions := newFakeActions()
	var got action.UpdateEventParams
	actions.updateEventFn = func(p action.UpdateEventParams) action.Result[*model.Event] {
		got = p
		return fail[*model.Event](model.NewAuthorizationError("not the organizer"))
	}

	req := httptest.NewRequest(http.MethodPut, "/api/events/e1", strings.NewReader(validEventBody))
	req = withURLParam(withUserID(req, "user-2"), "id", "e1")
	w := httptest.NewRecorder()
	NewEventHandler(actions).Update(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "e1", got.EventID)
	assert.Equal(t, "user-2", got.OrganizerID)
	assert.Equal(t, "/events/e1", got.Path)
}

func TestEventHandler_Delete_GuardsByOrganizer(t *testing.T) {
	actions := newFakeActions()
	var got action.DeleteEventParams
	actions.deleteEventFn = func(p action.DeleteEventParams) action.Result[*model.Event] {
		got = p
		return ok[*model.Event](nil)
	}

	req := withURLParam(withUserID(httptest.NewRequest(http.MethodDelete, "/api/events/e1", nil), "user-1"), "id", "e1")
	w := httptest.NewRecorder()
	NewEventHandler(actions).Delete(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, action.DeleteEventParams{EventID: "e1", OrganizerID: "user-1", Path: "/"}, got)
}
