package action

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/ticketbox/internal/model"
)

// ページングの既定件数
const (
	DefaultEventsLimit        = 6
	DefaultRelatedEventsLimit = 3
)

// EventInput はイベント作成・更新の入力。
// Priceは10進数文字列で、無料イベントでは無視される。
type EventInput struct {
	Title         string    `json:"title" validate:"required,min=3,max=200"`
	Description   string    `json:"description" validate:"max=5000"`
	Location      string    `json:"location" validate:"max=400"`
	ImageURL      string    `json:"imageUrl" validate:"required,url"`
	StartDateTime time.Time `json:"startDateTime" validate:"required"`
	EndDateTime   time.Time `json:"endDateTime" validate:"required,gtefield=StartDateTime"`
	CategoryID    string    `json:"categoryId" validate:"required,uuid"`
	Price         string    `json:"price"`
	IsFree        bool      `json:"isFree"`
	URL           string    `json:"url" validate:"omitempty,url"`
}

// CreateEventParams はCreateEventの引数。
type CreateEventParams struct {
	Event       EventInput
	OrganizerID string
	Path        string
}

// UpdateEventParams はUpdateEventの引数。Pathは更新後に再検証する論理パス。
type UpdateEventParams struct {
	EventID     string
	Event       EventInput
	OrganizerID string
	Path        string
}

// DeleteEventParams はDeleteEventの引数。
// OrganizerIDが指定された場合は主催者以外の削除をAuthorizationErrorとする。
type DeleteEventParams struct {
	EventID     string
	OrganizerID string
	Path        string
}

// GetAllEventsParams はGetAllEventsの引数。Categoryはカテゴリ名。
type GetAllEventsParams struct {
	Query    string
	Category string
	Page     int
	Limit    int
}

// GetEventsByUserParams はGetEventsByUserの引数。
type GetEventsByUserParams struct {
	UserID string
	Page   int
	Limit  int
}

// GetRelatedEventsParams はGetRelatedEventsByCategoryの引数。
type GetRelatedEventsParams struct {
	CategoryID string
	EventID    string
	Page       int
	Limit      int
}

// prepareEvent は入力を検証し、保存用のイベントに変換する。
func (s *Service) prepareEvent(ctx context.Context, in EventInput) (*model.Event, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Location = strings.TrimSpace(in.Location)
	in.Price = strings.TrimSpace(in.Price)
	if err := s.validateStruct(in); err != nil {
		return nil, err
	}

	// 無料イベントは価格を保持しない
	price := ""
	if !in.IsFree {
		if in.Price == "" {
			return nil, model.NewValidationError("price", "required unless the event is free")
		}
		v, err := strconv.ParseFloat(in.Price, 64)
		if err != nil || v < 0 {
			return nil, model.NewValidationError("price", "must be a non-negative decimal number")
		}
		price = in.Price
	}

	if s.images != nil {
		if err := s.images.ValidateImageURL(ctx, in.ImageURL); err != nil {
			return nil, err
		}
	}

	description := in.Description
	if s.sanitizer != nil {
		description = s.sanitizer.Sanitize(description)
	}

	return &model.Event{
		Title:         in.Title,
		Description:   description,
		Location:      in.Location,
		ImageURL:      in.ImageURL,
		StartDateTime: in.StartDateTime.UTC(),
		EndDateTime:   in.EndDateTime.UTC(),
		Price:         price,
		IsFree:        in.IsFree,
		URL:           in.URL,
		CategoryID:    in.CategoryID,
	}, nil
}

// CreateEvent は主催者のイベントを作成する。
// 主催者が存在しない場合はNotFoundError。作成時は主催者の一覧（ProfilePath）のみ再検証する。
func (s *Service) CreateEvent(ctx context.Context, p CreateEventParams) Result[*model.Event] {
	return execute(ctx, s, "createEvent", func(ctx context.Context) (*model.Event, error) {
		// 1. 主催者の解決
		organizer, err := s.users.FindByID(ctx, p.OrganizerID)
		if err != nil {
			return nil, fmt.Errorf("主催者の取得に失敗しました: %w", err)
		}
		if organizer == nil {
			return nil, model.NewNotFoundError("user", p.OrganizerID)
		}

		// 2. 入力の検証と変換
		event, err := s.prepareEvent(ctx, p.Event)
		if err != nil {
			return nil, err
		}
		event.OrganizerID = organizer.ID

		// 3. 保存
		if err := s.events.Create(ctx, event); err != nil {
			return nil, err
		}
		event.Organizer = &model.Organizer{
			ID:        organizer.ID,
			ClerkID:   organizer.ClerkID,
			FirstName: organizer.FirstName,
			LastName:  organizer.LastName,
		}
		s.revalidate(ctx, ProfilePath)
		return event, nil
	})
}

// GetEventByID は主催者とカテゴリ付きでイベントを取得する。
func (s *Service) GetEventByID(ctx context.Context, eventID string) Result[*model.Event] {
	return execute(ctx, s, "getEventById", func(ctx context.Context) (*model.Event, error) {
		event, err := s.events.FindByID(ctx, eventID)
		if err != nil {
			return nil, fmt.Errorf("イベントの取得に失敗しました: %w", err)
		}
		if event == nil {
			return nil, model.NewNotFoundError("event", eventID)
		}
		return event, nil
	})
}

// UpdateEvent は主催者本人によるイベント更新を行い、指定された論理パスを再検証する。
// 主催者以外の場合はAuthorizationErrorとなり、イベントは変更されない。
func (s *Service) UpdateEvent(ctx context.Context, p UpdateEventParams) Result[*model.Event] {
	return execute(ctx, s, "updateEvent", func(ctx context.Context) (*model.Event, error) {
		// 1. 既存イベントの取得と所有者確認
		existing, err := s.events.FindByID(ctx, p.EventID)
		if err != nil {
			return nil, fmt.Errorf("イベントの取得に失敗しました: %w", err)
		}
		if existing == nil {
			return nil, model.NewNotFoundError("event", p.EventID)
		}
		if existing.OrganizerID == "" || existing.OrganizerID != p.OrganizerID {
			return nil, model.NewAuthorizationError("only the organizer can update this event")
		}

		// 2. 入力の検証と変換
		event, err := s.prepareEvent(ctx, p.Event)
		if err != nil {
			return nil, err
		}
		event.ID = existing.ID
		event.OrganizerID = existing.OrganizerID

		// 3. 所有者条件付き更新。確認後に主催者が外れた場合も拒否する
		updated, err := s.events.UpdateOwned(ctx, event, p.OrganizerID)
		if err != nil {
			return nil, err
		}
		if !updated {
			return nil, model.NewAuthorizationError("only the organizer can update this event")
		}

		// 4. 更新後のイベントを返す
		result, err := s.events.FindByID(ctx, existing.ID)
		if err != nil {
			return nil, fmt.Errorf("更新後のイベントの取得に失敗しました: %w", err)
		}
		if result == nil {
			return nil, model.NewNotFoundError("event", existing.ID)
		}

		s.revalidate(ctx, p.Path)
		s.revalidate(ctx, ProfilePath)
		return result, nil
	})
}

// DeleteEvent はイベントを削除し、削除したイベントを返す。
// 存在しないイベントの削除はエラーとせずnilを返す。実際に削除した場合のみ再検証する。
func (s *Service) DeleteEvent(ctx context.Context, p DeleteEventParams) Result[*model.Event] {
	return execute(ctx, s, "deleteEvent", func(ctx context.Context) (*model.Event, error) {
		existing, err := s.events.FindByID(ctx, p.EventID)
		if err != nil {
			return nil, fmt.Errorf("イベントの取得に失敗しました: %w", err)
		}
		if existing == nil {
			return nil, nil
		}
		if p.OrganizerID != "" && existing.OrganizerID != p.OrganizerID {
			return nil, model.NewAuthorizationError("only the organizer can delete this event")
		}

		deleted, err := s.events.Delete(ctx, existing.ID)
		if err != nil {
			return nil, fmt.Errorf("イベントの削除に失敗しました: %w", err)
		}
		if !deleted {
			return nil, nil
		}

		s.revalidate(ctx, p.Path)
		s.revalidate(ctx, ProfilePath)
		return existing, nil
	})
}

// GetAllEvents はタイトルの部分一致とカテゴリ名で絞り込んだイベントを新しい順に返す。
// カテゴリ名に一致するカテゴリがない場合は空の一覧を返す。
func (s *Service) GetAllEvents(ctx context.Context, p GetAllEventsParams) Result[[]*model.Event] {
	page := model.NewPage(p.Page, p.Limit, DefaultEventsLimit)
	var pages int

	res := execute(ctx, s, "getAllEvents", func(ctx context.Context) ([]*model.Event, error) {
		filter := model.EventFilter{Title: strings.TrimSpace(p.Query)}

		if name := strings.TrimSpace(p.Category); name != "" {
			category, err := s.categories.FindByName(ctx, name)
			if err != nil {
				return nil, fmt.Errorf("カテゴリの取得に失敗しました: %w", err)
			}
			if category == nil {
				return []*model.Event{}, nil
			}
			filter.CategoryID = category.ID
		}

		events, total, err := s.listEvents(ctx, filter, page)
		pages = model.TotalPages(total, page.Limit)
		return events, err
	})
	return res.withPages(pages)
}

// GetEventsByUser は主催者のイベントを新しい順に返す。
func (s *Service) GetEventsByUser(ctx context.Context, p GetEventsByUserParams) Result[[]*model.Event] {
	page := model.NewPage(p.Page, p.Limit, DefaultEventsLimit)
	var pages int

	res := execute(ctx, s, "getEventsByUser", func(ctx context.Context) ([]*model.Event, error) {
		if p.UserID == "" {
			return nil, model.NewValidationError("userId", "required")
		}
		events, total, err := s.listEvents(ctx, model.EventFilter{OrganizerID: p.UserID}, page)
		pages = model.TotalPages(total, page.Limit)
		return events, err
	})
	return res.withPages(pages)
}

// GetRelatedEventsByCategory は同じカテゴリの他のイベントを新しい順に返す。
func (s *Service) GetRelatedEventsByCategory(ctx context.Context, p GetRelatedEventsParams) Result[[]*model.Event] {
	page := model.NewPage(p.Page, p.Limit, DefaultRelatedEventsLimit)
	var pages int

	res := execute(ctx, s, "getRelatedEventsByCategory", func(ctx context.Context) ([]*model.Event, error) {
		if p.CategoryID == "" {
			return nil, model.NewValidationError("categoryId", "required")
		}
		filter := model.EventFilter{CategoryID: p.CategoryID, ExcludeID: p.EventID}
		events, total, err := s.listEvents(ctx, filter, page)
		pages = model.TotalPages(total, page.Limit)
		return events, err
	})
	return res.withPages(pages)
}

func (s *Service) listEvents(ctx context.Context, filter model.EventFilter, page model.Page) ([]*model.Event, int, error) {
	events, total, err := s.events.List(ctx, filter, page)
	if err != nil {
		return nil, 0, fmt.Errorf("イベント一覧の取得に失敗しました: %w", err)
	}
	if events == nil {
		events = []*model.Event{}
	}
	return events, total, nil
}
