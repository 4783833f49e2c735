package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/hitoshi/ticketbox/internal/action"
	"github.com/hitoshi/ticketbox/internal/model"
	"github.com/hitoshi/ticketbox/internal/payment"
)

const (
	providerStripe = "stripe"
	// maxPaymentBody はWebhookボディの上限。超過した配信は413で拒否する。
	maxPaymentBody = 1 << 20
	// stripeSignatureHeader は署名ヘッダ名。
	stripeSignatureHeader = "Stripe-Signature"
)

// OrderActions は決済Webhookが呼び出す注文操作。action.Serviceが実装する。
type OrderActions interface {
	CreateOrder(ctx context.Context, in action.CreateOrderInput) action.Result[*model.Order]
}

// PaymentOptions は決済Webhookの動作設定。
type PaymentOptions struct {
	// StrictMetadata がtrueの場合、eventId・buyerIdが欠けたセッションからは注文を作成しない。
	// falseの場合は参照なしの注文として記録する。
	StrictMetadata bool
}

// PaymentHandler は決済プロバイダ（Stripe）のWebhookを処理する。
type PaymentHandler struct {
	secret   string
	orders   OrderActions
	opts     PaymentOptions
	recorder Recorder
	logger   *slog.Logger
}

// NewPaymentHandler はPaymentHandlerを生成する。
// secretが空の場合、リクエスト時にConfigurationErrorとして500を返す。
func NewPaymentHandler(secret string, orders OrderActions, opts PaymentOptions, recorder Recorder, logger *slog.Logger) *PaymentHandler {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentHandler{
		secret:   secret,
		orders:   orders,
		opts:     opts,
		recorder: recorder,
		logger:   logger,
	}
}

// ServeHTTP はPOST /api/webhook/stripe を処理する。
func (h *PaymentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// 1. 設定確認
	if h.secret == "" {
		err := model.NewConfigurationError("STRIPE_WEBHOOK_SECRET")
		h.logger.Error("payment webhook is not configured", slog.String("error", err.Error()))
		h.reject(w, http.StatusInternalServerError, err.Error())
		return
	}

	// 2. 署名検証
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPaymentBody+1))
	if err != nil {
		h.reject(w, http.StatusBadRequest, "failed to read body")
		return
	}
	// 切り詰めたボディは署名検証に失敗し、400のまま再送され続けるため区別して返す
	if len(body) > maxPaymentBody {
		h.logger.Error("payment webhook body too large",
			slog.Int("limit_bytes", maxPaymentBody),
		)
		h.reject(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	signature := r.Header.Get(stripeSignatureHeader)
	if signature == "" {
		h.logger.Warn("payment webhook missing signature header")
		h.reject(w, http.StatusBadRequest, "missing Stripe-Signature header")
		return
	}
	event, err := webhook.ConstructEventWithOptions(body, signature, h.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		verr := model.NewVerificationError(err)
		h.logger.Warn("payment webhook verification failed", slog.String("error", verr.Error()))
		h.reject(w, http.StatusBadRequest, verr.Error())
		return
	}

	// 3. 対象外のイベントは受領のみ
	if event.Type != stripe.EventTypeCheckoutSessionCompleted {
		h.recorder.RecordWebhook(providerStripe, outcomeIgnored)
		writeJSON(w, http.StatusOK, response{Success: true})
		return
	}

	// 4. セッションの解釈
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil || session.ID == "" {
		msg := "checkout session id is missing"
		if err != nil {
			msg = err.Error()
		}
		h.logger.Warn("payment webhook payload rejected", slog.String("error", msg))
		h.reject(w, http.StatusBadRequest, model.NewValidationError("data.object", msg).Error())
		return
	}

	in, ok := h.orderInput(&session)
	if !ok {
		h.recorder.RecordWebhook(providerStripe, outcomeFailed)
		writeJSON(w, http.StatusOK, response{Success: false, Error: "checkout session metadata is incomplete"})
		return
	}

	// 5. 注文作成
	res := h.orders.CreateOrder(r.Context(), in)
	if !res.Success {
		// 再送による重複は正常な受領として扱う
		if errors.Is(res.Err, model.ErrDuplicateKey) {
			h.logger.Info("payment webhook replay ignored", slog.String("stripe_id", session.ID))
			h.recorder.RecordWebhook(providerStripe, outcomeDuplicate)
			writeJSON(w, http.StatusOK, response{Success: true})
			return
		}
		status := failureStatus(res.Err)
		h.recorder.RecordWebhook(providerStripe, outcomeFor(status))
		writeJSON(w, status, response{Success: false, Error: res.Error})
		return
	}

	h.recorder.RecordWebhook(providerStripe, outcomeProcessed)
	writeJSON(w, http.StatusOK, response{Success: true, Data: res.Data})
}

// orderInput はセッションから注文入力を組み立てる。
// 厳格モードでメタデータが欠けている場合はfalseを返す。
func (h *PaymentHandler) orderInput(session *stripe.CheckoutSession) (action.CreateOrderInput, bool) {
	eventID := normalizeRef(session.Metadata[payment.MetadataEventID])
	buyerID := normalizeRef(session.Metadata[payment.MetadataBuyerID])

	if eventID == "" || buyerID == "" {
		attrs := []any{
			slog.String("stripe_id", session.ID),
			slog.Bool("event_id_missing", eventID == ""),
			slog.Bool("buyer_id_missing", buyerID == ""),
		}
		if h.opts.StrictMetadata {
			h.logger.Warn("checkout session metadata incomplete, order not created", attrs...)
			return action.CreateOrderInput{}, false
		}
		h.logger.Warn("checkout session metadata incomplete, recording order without references", attrs...)
	}

	return action.CreateOrderInput{
		StripeID:     session.ID,
		TotalAmount:  payment.FormatMinorUnits(session.AmountTotal),
		EventID:      eventID,
		BuyerID:      buyerID,
		RequireBuyer: h.opts.StrictMetadata,
	}, true
}

// normalizeRef はUUIDとして解釈できる参照を正規形で返す。解釈できない場合は空文字列。
func normalizeRef(ref string) string {
	if ref == "" {
		return ""
	}
	id, err := uuid.Parse(ref)
	if err != nil {
		return ""
	}
	return id.String()
}

func (h *PaymentHandler) reject(w http.ResponseWriter, status int, msg string) {
	h.recorder.RecordWebhook(providerStripe, outcomeRejected)
	writeJSON(w, status, response{Success: false, Error: msg})
}
