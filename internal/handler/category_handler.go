package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/ticketbox/internal/action"
	"github.com/hitoshi/ticketbox/internal/model"
)

// CategoryActions はカテゴリハンドラーが必要とする操作。
type CategoryActions interface {
	CreateCategory(ctx context.Context, name string) action.Result[*model.Category]
	GetAllCategories(ctx context.Context) action.Result[[]*model.Category]
}

// CategoryHandler はカテゴリのHTTPハンドラー。
type CategoryHandler struct {
	actions CategoryActions
}

// NewCategoryHandler はCategoryHandlerを生成する。
func NewCategoryHandler(actions CategoryActions) *CategoryHandler {
	return &CategoryHandler{actions: actions}
}

type createCategoryRequest struct {
	Name string `json:"name"`
}

// List は全カテゴリを返す。
// GET /api/categories
func (h *CategoryHandler) List(w http.ResponseWriter, r *http.Request) {
	writeResult(w, http.StatusOK, h.actions.GetAllCategories(r.Context()))
}

// Create はカテゴリを作成する。同名のカテゴリがある場合は409。
// POST /api/categories
func (h *CategoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, http.StatusCreated, h.actions.CreateCategory(r.Context(), req.Name))
}
