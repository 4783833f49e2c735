package action

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/ticketbox/internal/model"
)

// HomePath はイベント一覧の論理パス。
const HomePath = "/"

// ProfilePath は利用者ごとの主催イベント・購入履歴の論理パス。
const ProfilePath = "/profile"

// CreateUserInput はユーザー作成の入力。IdPのuser.createdイベントから組み立てる。
type CreateUserInput struct {
	ClerkID   string `json:"clerkId" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Username  string `json:"username" validate:"max=100"`
	FirstName string `json:"firstName" validate:"max=100"`
	LastName  string `json:"lastName" validate:"max=100"`
	Photo     string `json:"photo" validate:"omitempty,url"`
}

// CreateUser はユーザーを作成する。
// clerkIdが既に存在する場合はDuplicateKeyErrorで失敗し、Webhook再送の検知に使われる。
func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) Result[*model.User] {
	return execute(ctx, s, "createUser", func(ctx context.Context) (*model.User, error) {
		in.ClerkID = strings.TrimSpace(in.ClerkID)
		in.Email = strings.TrimSpace(in.Email)
		if err := s.validateStruct(in); err != nil {
			return nil, err
		}

		user := &model.User{
			ClerkID:   in.ClerkID,
			Email:     in.Email,
			Username:  in.Username,
			FirstName: in.FirstName,
			LastName:  in.LastName,
			Photo:     in.Photo,
		}
		if err := s.users.Create(ctx, user); err != nil {
			return nil, err
		}
		return user, nil
	})
}

// GetUserByID は内部IDでユーザーを取得する。
func (s *Service) GetUserByID(ctx context.Context, userID string) Result[*model.User] {
	return execute(ctx, s, "getUserById", func(ctx context.Context) (*model.User, error) {
		user, err := s.users.FindByID(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
		}
		if user == nil {
			return nil, model.NewNotFoundError("user", userID)
		}
		return user, nil
	})
}

// UpdateUser は外部識別子で指定したユーザーを部分更新し、更新後のユーザーを返す。
// メールアドレスは更新しない。
func (s *Service) UpdateUser(ctx context.Context, clerkID string, update model.UserUpdate) Result[*model.User] {
	return execute(ctx, s, "updateUser", func(ctx context.Context) (*model.User, error) {
		if strings.TrimSpace(clerkID) == "" {
			return nil, model.NewValidationError("clerkId", "required")
		}
		user, err := s.users.UpdateByClerkID(ctx, clerkID, update)
		if err != nil {
			return nil, fmt.Errorf("ユーザーの更新に失敗しました: %w", err)
		}
		if user == nil {
			return nil, model.NewNotFoundError("user", clerkID)
		}
		return user, nil
	})
}

// DeleteUser は外部識別子で指定したユーザーを削除し、削除したユーザーを返す。
// 主催イベントと購入注文からの参照解除と削除は同一トランザクションで行い、
// 完了後にイベント一覧を再検証する。
func (s *Service) DeleteUser(ctx context.Context, clerkID string) Result[*model.User] {
	return execute(ctx, s, "deleteUser", func(ctx context.Context) (*model.User, error) {
		// 1. 対象ユーザーの取得
		user, err := s.users.FindByClerkID(ctx, clerkID)
		if err != nil {
			return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
		}
		if user == nil {
			return nil, model.NewNotFoundError("user", clerkID)
		}

		// 2. 参照解除と削除
		detached, err := s.users.DeleteWithDetach(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		s.logger.Info("user deleted",
			slog.String("user_id", user.ID),
			slog.Int64("events_detached", detached.EventsDetached),
			slog.Int64("orders_detached", detached.OrdersDetached),
		)

		// 3. 再検証
		s.revalidate(ctx, HomePath)
		s.revalidate(ctx, ProfilePath)
		return user, nil
	})
}
