package webhook

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/hitoshi/ticketbox/internal/action"
	"github.com/hitoshi/ticketbox/internal/model"
)

// --- モック ---

type mockUsers struct {
	mu      sync.Mutex
	created []action.CreateUserInput
	updated map[string]model.UserUpdate
	deleted []string

	createErr error
	updateErr error
	deleteErr error
}

func result[T any](data T, err error) action.Result[T] {
	if err != nil {
		return action.Result[T]{StatusCode: 500, Error: err.Error(), Err: err}
	}
	return action.Result[T]{StatusCode: 200, Success: true, Data: data}
}

func (m *mockUsers) CreateUser(ctx context.Context, in action.CreateUserInput) action.Result[*model.User] {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return result[*model.User](nil, m.createErr)
	}
	for _, c := range m.created {
		if c.ClerkID == in.ClerkID {
			return result[*model.User](nil, model.NewDuplicateKeyError("user", in.ClerkID, errors.New("23505")))
		}
	}
	m.created = append(m.created, in)
	return result(&model.User{ID: "6f1c2d3e-0000-4000-8000-000000000001", ClerkID: in.ClerkID, Email: in.Email}, nil)
}

func (m *mockUsers) UpdateUser(ctx context.Context, clerkID string, update model.UserUpdate) action.Result[*model.User] {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return result[*model.User](nil, m.updateErr)
	}
	if m.updated == nil {
		m.updated = map[string]model.UserUpdate{}
	}
	m.updated[clerkID] = update
	return result(&model.User{ClerkID: clerkID}, nil)
}

func (m *mockUsers) DeleteUser(ctx context.Context, clerkID string) action.Result[*model.User] {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return result[*model.User](nil, m.deleteErr)
	}
	m.deleted = append(m.deleted, clerkID)
	return result(&model.User{ClerkID: clerkID}, nil)
}

type mockStamper struct {
	mu    sync.Mutex
	calls [][2]string
	err   error
}

func (m *mockStamper) SetInternalUserID(ctx context.Context, clerkID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, [2]string{clerkID, userID})
	return m.err
}

type mockOrders struct {
	mu      sync.Mutex
	created []action.CreateOrderInput
	err     error
}

func (m *mockOrders) CreateOrder(ctx context.Context, in action.CreateOrderInput) action.Result[*model.Order] {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return result[*model.Order](nil, m.err)
	}
	for _, c := range m.created {
		if c.StripeID == in.StripeID {
			return result[*model.Order](nil, model.NewDuplicateKeyError("order", in.StripeID, errors.New("23505")))
		}
	}
	m.created = append(m.created, in)
	return result(&model.Order{ID: "o1", StripeID: in.StripeID, TotalAmount: in.TotalAmount, EventID: in.EventID, BuyerID: in.BuyerID}, nil)
}

type mockRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (m *mockRecorder) RecordWebhook(provider, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, provider+":"+outcome)
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func httpBody(b []byte) io.ReadCloser {
	return io.NopCloser(bytes.NewReader(b))
}
