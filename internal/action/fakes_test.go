package action

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/ticketbox/internal/model"
)

// --- モック ---

type fakeConn struct {
	err   error
	calls int
}

func (c *fakeConn) Connect(ctx context.Context) (*sql.DB, error) {
	c.calls++
	return nil, c.err
}

// memDB は各リポジトリが共有するインメモリのデータ。
type memDB struct {
	mu         sync.Mutex
	users      map[string]*model.User
	categories map[string]*model.Category
	events     map[string]*model.Event
	orders     map[string]*model.Order
	clock      time.Time
}

func newMemDB() *memDB {
	return &memDB{
		users:      map[string]*model.User{},
		categories: map[string]*model.Category{},
		events:     map[string]*model.Event{},
		orders:     map[string]*model.Order{},
		clock:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// tick は作成日時が単調増加するように時刻を進める。
func (db *memDB) tick() time.Time {
	db.clock = db.clock.Add(time.Second)
	return db.clock
}

type memUsers struct{ db *memDB }

func (r *memUsers) Create(ctx context.Context, user *model.User) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, u := range r.db.users {
		if u.ClerkID == user.ClerkID {
			return model.NewDuplicateKeyError("user", user.ClerkID, nil)
		}
	}
	user.ID = uuid.NewString()
	user.CreatedAt = r.db.tick()
	user.UpdatedAt = user.CreatedAt
	cp := *user
	r.db.users[user.ID] = &cp
	return nil
}

func (r *memUsers) FindByID(ctx context.Context, id string) (*model.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if u, ok := r.db.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (r *memUsers) FindByClerkID(ctx context.Context, clerkID string) (*model.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, u := range r.db.users {
		if u.ClerkID == clerkID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memUsers) UpdateByClerkID(ctx context.Context, clerkID string, update model.UserUpdate) (*model.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, u := range r.db.users {
		if u.ClerkID != clerkID {
			continue
		}
		if update.FirstName != nil {
			u.FirstName = *update.FirstName
		}
		if update.LastName != nil {
			u.LastName = *update.LastName
		}
		if update.Username != nil {
			u.Username = *update.Username
		}
		if update.Photo != nil {
			u.Photo = *update.Photo
		}
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (r *memUsers) DeleteWithDetach(ctx context.Context, userID string) (model.DetachResult, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.users[userID]; !ok {
		return model.DetachResult{}, model.NewNotFoundError("user", userID)
	}
	var res model.DetachResult
	for _, e := range r.db.events {
		if e.OrganizerID == userID {
			e.OrganizerID = ""
			res.EventsDetached++
		}
	}
	for _, o := range r.db.orders {
		if o.BuyerID == userID {
			o.BuyerID = ""
			res.OrdersDetached++
		}
	}
	delete(r.db.users, userID)
	return res, nil
}

type memCategories struct{ db *memDB }

func (r *memCategories) Create(ctx context.Context, c *model.Category) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.categories {
		if strings.EqualFold(existing.Name, c.Name) {
			return model.NewDuplicateKeyError("category", c.Name, nil)
		}
	}
	c.ID = uuid.NewString()
	c.CreatedAt = r.db.tick()
	cp := *c
	r.db.categories[c.ID] = &cp
	return nil
}

func (r *memCategories) List(ctx context.Context) ([]*model.Category, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*model.Category
	for _, c := range r.db.categories {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memCategories) FindByName(ctx context.Context, name string) (*model.Category, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, c := range r.db.categories {
		if strings.Contains(strings.ToLower(c.Name), strings.ToLower(name)) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

type memEvents struct {
	db        *memDB
	lastPage  model.Page
	listCalls int
}

func (r *memEvents) Create(ctx context.Context, e *model.Event) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.categories[e.CategoryID]; !ok {
		return model.NewNotFoundError("category", e.CategoryID)
	}
	e.ID = uuid.NewString()
	e.CreatedAt = r.db.tick()
	e.UpdatedAt = e.CreatedAt
	cp := *e
	r.db.events[e.ID] = &cp
	return nil
}

func (r *memEvents) FindByID(ctx context.Context, id string) (*model.Event, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if e, ok := r.db.events[id]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, nil
}

func (r *memEvents) UpdateOwned(ctx context.Context, e *model.Event, organizerID string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	existing, ok := r.db.events[e.ID]
	if !ok || existing.OrganizerID != organizerID {
		return false, nil
	}
	cp := *e
	cp.CreatedAt = existing.CreatedAt
	cp.UpdatedAt = r.db.tick()
	r.db.events[e.ID] = &cp
	return true, nil
}

func (r *memEvents) Delete(ctx context.Context, id string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.events[id]; !ok {
		return false, nil
	}
	delete(r.db.events, id)
	return true, nil
}

func (r *memEvents) List(ctx context.Context, f model.EventFilter, page model.Page) ([]*model.Event, int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.lastPage = page
	r.listCalls++

	var matched []*model.Event
	for _, e := range r.db.events {
		if f.Title != "" && !strings.Contains(strings.ToLower(e.Title), strings.ToLower(f.Title)) {
			continue
		}
		if f.CategoryID != "" && e.CategoryID != f.CategoryID {
			continue
		}
		if f.OrganizerID != "" && e.OrganizerID != f.OrganizerID {
			continue
		}
		if f.ExcludeID != "" && e.ID == f.ExcludeID {
			continue
		}
		cp := *e
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	start := page.Offset()
	if start > total {
		start = total
	}
	end := start + page.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

type memOrders struct{ db *memDB }

func (r *memOrders) Create(ctx context.Context, o *model.Order) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.orders {
		if existing.StripeID == o.StripeID {
			return model.NewDuplicateKeyError("order", o.StripeID, nil)
		}
	}
	o.ID = uuid.NewString()
	o.CreatedAt = r.db.tick()
	cp := *o
	r.db.orders[o.ID] = &cp
	return nil
}

func (r *memOrders) ListByBuyer(ctx context.Context, buyerID string, page model.Page) ([]*model.OrderWithEvent, int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*model.OrderWithEvent
	for _, o := range r.db.orders {
		if o.BuyerID != buyerID {
			continue
		}
		item := &model.OrderWithEvent{Order: *o}
		if e, ok := r.db.events[o.EventID]; ok {
			item.Event = &model.OrderEvent{ID: e.ID, Title: e.Title}
		}
		out = append(out, item)
	}
	total := len(out)
	if page.Offset() >= total {
		return nil, total, nil
	}
	end := page.Offset() + page.Limit
	if end > total {
		end = total
	}
	return out[page.Offset():end], total, nil
}

func (r *memOrders) ListByEvent(ctx context.Context, eventID, search string) ([]*model.OrderItem, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*model.OrderItem
	for _, o := range r.db.orders {
		if o.EventID != eventID {
			continue
		}
		buyer := ""
		if u, ok := r.db.users[o.BuyerID]; ok {
			buyer = u.FirstName + " " + u.LastName
		}
		if search != "" && !strings.Contains(strings.ToLower(buyer), strings.ToLower(search)) {
			continue
		}
		out = append(out, &model.OrderItem{ID: o.ID, TotalAmount: o.TotalAmount, EventID: o.EventID, Buyer: buyer})
	}
	return out, nil
}

type fakeRevalidator struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (f *fakeRevalidator) Revalidate(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, path)
	return f.err
}

type fakeRecorder struct {
	mu            sync.Mutex
	failures      map[string]string
	ordersCreated int
	revalidations map[string]int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{failures: map[string]string{}, revalidations: map[string]int{}}
}

func (f *fakeRecorder) ObserveAction(string, time.Duration) {}

func (f *fakeRecorder) RecordActionFailure(op, kind string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = kind
}

func (f *fakeRecorder) RecordOrderCreated() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ordersCreated++
}

func (f *fakeRecorder) RecordRevalidation(outcome string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revalidations[outcome]++
}

type scriptStripper struct{}

func (scriptStripper) Sanitize(s string) string { return strings.ReplaceAll(s, "<script>", "") }

type fakeImages struct{ err error }

func (f fakeImages) ValidateImageURL(ctx context.Context, rawURL string) error { return f.err }

// testEnv はテスト用のServiceと依存関係をまとめる。
type testEnv struct {
	svc         *Service
	db          *memDB
	conn        *fakeConn
	events      *memEvents
	revalidator *fakeRevalidator
	recorder    *fakeRecorder
}

func newTestEnv() *testEnv {
	db := newMemDB()
	env := &testEnv{
		db:          db,
		conn:        &fakeConn{},
		events:      &memEvents{db: db},
		revalidator: &fakeRevalidator{},
		recorder:    newFakeRecorder(),
	}
	env.svc = NewService(Deps{
		Conn:        env.conn,
		Users:       &memUsers{db: db},
		Categories:  &memCategories{db: db},
		Events:      env.events,
		Orders:      &memOrders{db: db},
		Revalidator: env.revalidator,
		Sanitizer:   scriptStripper{},
		Images:      fakeImages{},
		Recorder:    env.recorder,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return env
}
