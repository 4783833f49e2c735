package action

import (
	"context"
	"fmt"
	"strings"

	"github.com/hitoshi/ticketbox/internal/model"
)

type createCategoryInput struct {
	Name string `json:"name" validate:"required,max=50"`
}

// CreateCategory はカテゴリを作成する。名前は前後の空白を除去し、大文字小文字を区別せず一意。
func (s *Service) CreateCategory(ctx context.Context, name string) Result[*model.Category] {
	return execute(ctx, s, "createCategory", func(ctx context.Context) (*model.Category, error) {
		in := createCategoryInput{Name: strings.TrimSpace(name)}
		if err := s.validateStruct(in); err != nil {
			return nil, err
		}

		category := &model.Category{Name: in.Name}
		if err := s.categories.Create(ctx, category); err != nil {
			return nil, err
		}
		return category, nil
	})
}

// GetAllCategories は全カテゴリを返す。
func (s *Service) GetAllCategories(ctx context.Context) Result[[]*model.Category] {
	return execute(ctx, s, "getAllCategories", func(ctx context.Context) ([]*model.Category, error) {
		categories, err := s.categories.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("カテゴリ一覧の取得に失敗しました: %w", err)
		}
		if categories == nil {
			categories = []*model.Category{}
		}
		return categories, nil
	})
}
