package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	svix "github.com/svix/svix-webhooks/go"

	"github.com/hitoshi/ticketbox/internal/action"
	"github.com/hitoshi/ticketbox/internal/model"
)

const (
	providerClerk = "clerk"
	// maxIdentityBody はIdP Webhookのボディ上限。
	maxIdentityBody = 1 << 20
	// stampTimeout はメタデータ書き込みのタイムアウト。
	stampTimeout = 10 * time.Second
)

// svixヘッダ
var svixHeaders = []string{"svix-id", "svix-timestamp", "svix-signature"}

// UserActions はIdP Webhookが呼び出すユーザー操作。action.Serviceが実装する。
type UserActions interface {
	CreateUser(ctx context.Context, in action.CreateUserInput) action.Result[*model.User]
	UpdateUser(ctx context.Context, clerkID string, update model.UserUpdate) action.Result[*model.User]
	DeleteUser(ctx context.Context, clerkID string) action.Result[*model.User]
}

// MetadataStamper は作成した内部ユーザーIDを外部ユーザーに書き込む。clerk.Clientが実装する。
type MetadataStamper interface {
	SetInternalUserID(ctx context.Context, clerkUserID, userID string) error
}

// IdentityHandler はIdP（Clerk）のユーザーライフサイクルWebhookを処理する。
type IdentityHandler struct {
	verifier    *svix.Webhook
	verifierErr error
	users       UserActions
	stamper     MetadataStamper
	recorder    Recorder
	logger      *slog.Logger
}

// NewIdentityHandler はIdentityHandlerを生成する。
// secretが空または不正な場合、リクエスト時にConfigurationErrorとして500を返す。
func NewIdentityHandler(secret string, users UserActions, stamper MetadataStamper, recorder Recorder, logger *slog.Logger) *IdentityHandler {
	h := &IdentityHandler{
		users:    users,
		stamper:  stamper,
		recorder: recorder,
		logger:   logger,
	}
	if h.recorder == nil {
		h.recorder = noopRecorder{}
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}

	if secret == "" {
		h.verifierErr = model.NewConfigurationError("CLERK_WEBHOOK_SECRET")
		return h
	}
	wh, err := svix.NewWebhook(secret)
	if err != nil {
		h.verifierErr = &model.AppError{
			Kind:    model.KindConfiguration,
			Message: fmt.Sprintf("invalid CLERK_WEBHOOK_SECRET: %v", err),
			Field:   "CLERK_WEBHOOK_SECRET",
			Err:     err,
		}
		return h
	}
	h.verifier = wh
	return h
}

// ServeHTTP はPOST /api/webhook/clerk を処理する。
func (h *IdentityHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// 1. 設定確認
	if h.verifierErr != nil {
		h.logger.Error("identity webhook is not configured", slog.String("error", h.verifierErr.Error()))
		h.reject(w, http.StatusInternalServerError, h.verifierErr.Error())
		return
	}

	// 2. 署名ヘッダの確認
	for _, name := range svixHeaders {
		if r.Header.Get(name) == "" {
			h.logger.Warn("identity webhook missing header", slog.String("header", name))
			h.reject(w, http.StatusBadRequest, "missing svix headers")
			return
		}
	}

	// 3. 署名検証
	body, err := io.ReadAll(io.LimitReader(r.Body, maxIdentityBody+1))
	if err != nil {
		h.reject(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(body) > maxIdentityBody {
		h.logger.Error("identity webhook body too large", slog.Int("limit_bytes", maxIdentityBody))
		h.reject(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	if err := h.verifier.Verify(body, r.Header); err != nil {
		verr := model.NewVerificationError(err)
		h.logger.Warn("identity webhook verification failed", slog.String("error", verr.Error()))
		h.reject(w, http.StatusBadRequest, verr.Error())
		return
	}

	// 4. イベントの解釈
	event, err := parseIdentityEvent(body)
	if err != nil {
		h.logger.Warn("identity webhook payload rejected", slog.String("error", err.Error()))
		h.reject(w, http.StatusBadRequest, err.Error())
		return
	}

	// 5. ドメイン操作
	switch e := event.(type) {
	case userCreated:
		h.handleCreated(r.Context(), w, e)
	case userUpdated:
		res := h.users.UpdateUser(r.Context(), e.ClerkID, e.Update)
		h.respond(w, res.Success, res.Err, res.Data)
	case userDeleted:
		res := h.users.DeleteUser(r.Context(), e.ClerkID)
		h.respond(w, res.Success, res.Err, res.Data)
	default:
		h.recorder.RecordWebhook(providerClerk, outcomeIgnored)
		writeJSON(w, http.StatusOK, response{Success: true})
	}
}

func (h *IdentityHandler) handleCreated(ctx context.Context, w http.ResponseWriter, e userCreated) {
	res := h.users.CreateUser(ctx, e.Input)
	if !res.Success {
		// 再送による重複は正常な受領として扱う
		if errors.Is(res.Err, model.ErrDuplicateKey) {
			h.logger.Info("identity webhook replay ignored", slog.String("clerk_id", e.Input.ClerkID))
			h.recorder.RecordWebhook(providerClerk, outcomeDuplicate)
			writeJSON(w, http.StatusOK, response{Success: true})
			return
		}
		h.respond(w, false, res.Err, nil)
		return
	}

	h.stamp(ctx, e.Input.ClerkID, res.Data.ID)
	h.respond(w, true, nil, res.Data)
}

// stamp は内部IDを外部ユーザーのメタデータに書き込む。
// 失敗はログに記録するのみで、作成済みのユーザーと応答には影響しない。
func (h *IdentityHandler) stamp(ctx context.Context, clerkID, userID string) {
	if h.stamper == nil {
		return
	}
	stampCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stampTimeout)
	defer cancel()

	if err := h.stamper.SetInternalUserID(stampCtx, clerkID, userID); err != nil {
		h.logger.Error("failed to stamp user metadata",
			slog.String("clerk_id", clerkID),
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}

func (h *IdentityHandler) respond(w http.ResponseWriter, ok bool, err error, data any) {
	if ok {
		h.recorder.RecordWebhook(providerClerk, outcomeProcessed)
		writeJSON(w, http.StatusOK, response{Success: true, Data: data})
		return
	}
	status := failureStatus(err)
	h.recorder.RecordWebhook(providerClerk, outcomeFor(status))
	writeJSON(w, status, response{Success: false, Error: err.Error()})
}

func (h *IdentityHandler) reject(w http.ResponseWriter, status int, msg string) {
	h.recorder.RecordWebhook(providerClerk, outcomeRejected)
	writeJSON(w, status, response{Success: false, Error: msg})
}

// --- イベントの解釈 ---

// identityEvent はIdP Webhookイベントの閉じた集合。
type identityEvent interface {
	identityEvent()
}

type userCreated struct{ Input action.CreateUserInput }
type userUpdated struct {
	ClerkID string
	Update  model.UserUpdate
}
type userDeleted struct{ ClerkID string }
type unknownEvent struct{ Type string }

func (userCreated) identityEvent()  {}
func (userUpdated) identityEvent()  {}
func (userDeleted) identityEvent()  {}
func (unknownEvent) identityEvent() {}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type clerkEmail struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
}

type clerkUser struct {
	ID                    string       `json:"id"`
	EmailAddresses        []clerkEmail `json:"email_addresses"`
	PrimaryEmailAddressID string       `json:"primary_email_address_id"`
	ImageURL              string       `json:"image_url"`
	FirstName             *string      `json:"first_name"`
	LastName              *string      `json:"last_name"`
	Username              *string      `json:"username"`
}

// primaryEmail は主メールアドレスを返す。主アドレスが指定されていない場合は先頭を使う。
func (u clerkUser) primaryEmail() string {
	for _, e := range u.EmailAddresses {
		if e.ID == u.PrimaryEmailAddressID && e.EmailAddress != "" {
			return e.EmailAddress
		}
	}
	for _, e := range u.EmailAddresses {
		if e.EmailAddress != "" {
			return e.EmailAddress
		}
	}
	return ""
}

type deletedObject struct {
	ID string `json:"id"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// parseIdentityEvent はイベントの type を判別して対応するペイロードに変換する。
// 必須フィールドが欠けている場合はValidationErrorを返す。
func parseIdentityEvent(body []byte) (identityEvent, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, model.NewValidationError("payload", err.Error())
	}
	if env.Type == "" {
		return nil, model.NewValidationError("type", "required")
	}

	switch env.Type {
	case "user.created":
		u, err := decodeUser(env.Data)
		if err != nil {
			return nil, err
		}
		email := u.primaryEmail()
		if email == "" {
			return nil, model.NewValidationError("email_addresses", "no email address")
		}
		return userCreated{Input: action.CreateUserInput{
			ClerkID:   u.ID,
			Email:     email,
			Username:  deref(u.Username),
			FirstName: deref(u.FirstName),
			LastName:  deref(u.LastName),
			Photo:     u.ImageURL,
		}}, nil

	case "user.updated":
		u, err := decodeUser(env.Data)
		if err != nil {
			return nil, err
		}
		// メールアドレスは作成時のみ同期する
		first, last, username, photo := deref(u.FirstName), deref(u.LastName), deref(u.Username), u.ImageURL
		return userUpdated{ClerkID: u.ID, Update: model.UserUpdate{
			FirstName: &first,
			LastName:  &last,
			Username:  &username,
			Photo:     &photo,
		}}, nil

	case "user.deleted":
		var d deletedObject
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, model.NewValidationError("data", err.Error())
		}
		if d.ID == "" {
			return nil, model.NewValidationError("data.id", "required")
		}
		return userDeleted{ClerkID: d.ID}, nil

	default:
		return unknownEvent{Type: env.Type}, nil
	}
}

func decodeUser(raw json.RawMessage) (clerkUser, error) {
	var u clerkUser
	if len(raw) == 0 {
		return u, model.NewValidationError("data", "required")
	}
	if err := json.Unmarshal(raw, &u); err != nil {
		return u, model.NewValidationError("data", err.Error())
	}
	if u.ID == "" {
		return u, model.NewValidationError("data.id", "required")
	}
	return u, nil
}
