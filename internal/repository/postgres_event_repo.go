package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/ticketbox/internal/model"
)

// eventSelect は主催者とカテゴリを結合したイベント取得クエリ。
const eventSelect = `SELECT e.id, e.title, e.description, e.location, e.image_url,
	e.start_date_time, e.end_date_time, e.price, e.is_free, e.url,
	e.category_id, e.organizer_id, e.created_at, e.updated_at,
	c.name, u.clerk_id, u.first_name, u.last_name
FROM events e
LEFT JOIN categories c ON c.id = e.category_id
LEFT JOIN users u ON u.id = e.organizer_id`

// PostgresEventRepo はPostgreSQLを使用したイベントリポジトリ。
type PostgresEventRepo struct {
	conn DBProvider
}

// NewPostgresEventRepo はPostgresEventRepoを生成する。
func NewPostgresEventRepo(conn DBProvider) *PostgresEventRepo {
	return &PostgresEventRepo{conn: conn}
}

// Create はイベントを作成する。
func (r *PostgresEventRepo) Create(ctx context.Context, event *model.Event) error {
	db, err := connect(ctx, r.conn)
	if err != nil {
		return err
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	event.CreatedAt = now
	event.UpdatedAt = now

	_, err = db.ExecContext(ctx,
		`INSERT INTO events (id, title, description, location, image_url, start_date_time,
			end_date_time, price, is_free, url, category_id, organizer_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		event.ID, event.Title, event.Description, event.Location, event.ImageURL,
		event.StartDateTime, event.EndDateTime, nullablePrice(event), event.IsFree, event.URL,
		nullableUUID(event.CategoryID), nullableUUID(event.OrganizerID), event.CreatedAt, event.UpdatedAt,
	)
	if err != nil {
		return translateError(err, "insert event", "event", event.ID)
	}
	return nil
}

// FindByID は主催者とカテゴリを結合したイベントを取得する。見つからない場合はnilを返す。
func (r *PostgresEventRepo) FindByID(ctx context.Context, id string) (*model.Event, error) {
	if !isUUID(id) {
		return nil, nil
	}

	db, err := connect(ctx, r.conn)
	if err != nil {
		return nil, err
	}

	event, err := scanEvent(db.QueryRowContext(ctx, eventSelect+` WHERE e.id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find event by ID: %w", err)
	}
	return event, nil
}

// UpdateOwned は主催者が一致する場合のみイベントを更新する。
// 所有者確認と更新を1文で行うため、確認後に所有者が変わっても他人のイベントは更新されない。
func (r *PostgresEventRepo) UpdateOwned(ctx context.Context, event *model.Event, organizerID string) (bool, error) {
	if !isUUID(event.ID) || !isUUID(organizerID) {
		return false, nil
	}

	db, err := connect(ctx, r.conn)
	if err != nil {
		return false, err
	}

	res, err := db.ExecContext(ctx,
		`UPDATE events SET
			title = $3, description = $4, location = $5, image_url = $6,
			start_date_time = $7, end_date_time = $8, price = $9, is_free = $10,
			url = $11, category_id = $12, updated_at = NOW()
		 WHERE id = $1 AND organizer_id = $2`,
		event.ID, organizerID, event.Title, event.Description, event.Location, event.ImageURL,
		event.StartDateTime, event.EndDateTime, nullablePrice(event), event.IsFree,
		event.URL, nullableUUID(event.CategoryID),
	)
	if err != nil {
		return false, translateError(err, "update event", "event", event.ID)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// Delete はイベントを削除する。存在しない場合はfalseを返す。
func (r *PostgresEventRepo) Delete(ctx context.Context, id string) (bool, error) {
	if !isUUID(id) {
		return false, nil
	}

	db, err := connect(ctx, r.conn)
	if err != nil {
		return false, err
	}

	res, err := db.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// List は条件に一致するイベントと総件数を返す。
func (r *PostgresEventRepo) List(ctx context.Context, filter model.EventFilter, page model.Page) ([]*model.Event, int, error) {
	q := buildEventListQuery(filter, page)
	if q.empty {
		return []*model.Event{}, 0, nil
	}

	db, err := connect(ctx, r.conn)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := db.QueryRowContext(ctx, q.countSQL, q.countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count events: %w", err)
	}

	rows, err := db.QueryContext(ctx, q.listSQL, q.listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := make([]*model.Event, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate events: %w", err)
	}

	return events, total, nil
}

// eventListQuery は一覧取得用に組み立てたSQLと引数。
// emptyは条件が必ず0件になる場合（ID形式不正など）にtrueとなる。
type eventListQuery struct {
	listSQL   string
	listArgs  []any
	countSQL  string
	countArgs []any
	empty     bool
}

// buildEventListQuery は検索条件とページ指定から一覧・件数取得のSQLを組み立てる。
func buildEventListQuery(filter model.EventFilter, page model.Page) eventListQuery {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.Title != "" {
		add(`e.title ILIKE $%d ESCAPE '\'`, containsPattern(filter.Title))
	}
	for _, ref := range []struct {
		cond string
		id   string
	}{
		{`e.category_id = $%d`, filter.CategoryID},
		{`e.organizer_id = $%d`, filter.OrganizerID},
	} {
		if ref.id == "" {
			continue
		}
		if !isUUID(ref.id) {
			return eventListQuery{empty: true}
		}
		add(ref.cond, ref.id)
	}
	if isUUID(filter.ExcludeID) {
		add(`e.id <> $%d`, filter.ExcludeID)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	countArgs := append([]any(nil), args...)
	listArgs := append(args, page.Limit, page.Offset())

	return eventListQuery{
		listSQL: eventSelect + where + fmt.Sprintf(
			" ORDER BY e.created_at DESC, e.id LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2,
		),
		listArgs:  listArgs,
		countSQL:  `SELECT COUNT(*) FROM events e` + where,
		countArgs: countArgs,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*model.Event, error) {
	var (
		event                     model.Event
		price, categoryID, orgID  sql.NullString
		categoryName, clerkID     sql.NullString
		orgFirstName, orgLastName sql.NullString
	)

	err := row.Scan(
		&event.ID, &event.Title, &event.Description, &event.Location, &event.ImageURL,
		&event.StartDateTime, &event.EndDateTime, &price, &event.IsFree, &event.URL,
		&categoryID, &orgID, &event.CreatedAt, &event.UpdatedAt,
		&categoryName, &clerkID, &orgFirstName, &orgLastName,
	)
	if err != nil {
		return nil, err
	}

	event.Price = price.String
	if categoryID.Valid {
		event.CategoryID = categoryID.String
		event.Category = &model.CategoryRef{ID: categoryID.String, Name: categoryName.String}
	}
	if orgID.Valid {
		event.OrganizerID = orgID.String
		event.Organizer = &model.Organizer{
			ID:        orgID.String,
			ClerkID:   clerkID.String,
			FirstName: orgFirstName.String,
			LastName:  orgLastName.String,
		}
	}
	return &event, nil
}

// nullablePrice は無料イベントまたは価格未設定の場合にNULLを返す。
func nullablePrice(event *model.Event) any {
	if event.IsFree || event.Price == "" {
		return nil
	}
	return event.Price
}

// compile-time interface check
var _ EventRepository = (*PostgresEventRepo)(nil)
