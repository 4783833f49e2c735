package payment

import (
	"context"
	"errors"
	"strings"

	"github.com/hitoshi/ticketbox/internal/model"
)

// メタデータのキー。決済完了Webhookが注文を組み立てる唯一の手がかりとなる。
const (
	MetadataEventID = "eventId"
	MetadataBuyerID = "buyerId"
)

// DefaultCurrency は通貨未指定時の通貨コード。
const DefaultCurrency = "usd"

// CheckoutRequest はチェックアウト開始の入力。
type CheckoutRequest struct {
	EventID    string
	EventTitle string
	Price      string
	IsFree     bool
	BuyerID    string
}

// SessionRequest は決済プロバイダへのセッション作成リクエスト。明細は1行、数量は常に1。
type SessionRequest struct {
	Name       string
	UnitAmount int64
	Currency   string
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

// Session は作成された決済セッション。
type Session struct {
	ID  string
	URL string
}

// SessionCreator は決済プロバイダのセッション作成を抽象化する。
type SessionCreator interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
}

// CheckoutRecorder はチェックアウトの結果を記録する。metrics.Collectorが実装する。
type CheckoutRecorder interface {
	RecordCheckoutSession(outcome string)
}

// CheckoutService はチェックアウトの開始を担当する。
type CheckoutService struct {
	creator  SessionCreator
	baseURL  string
	currency string
	recorder CheckoutRecorder
}

// NewCheckoutService はCheckoutServiceを生成する。recorderはnilでもよい。
func NewCheckoutService(creator SessionCreator, baseURL, currency string, recorder CheckoutRecorder) *CheckoutService {
	if currency == "" {
		currency = DefaultCurrency
	}
	return &CheckoutService{
		creator:  creator,
		baseURL:  strings.TrimRight(baseURL, "/"),
		currency: strings.ToLower(currency),
		recorder: recorder,
	}
}

// InitiateCheckout は決済セッションを作成し、リダイレクト先のURLを返す。
// プロバイダのエラーはそのまま返し、再試行は行わない。
func (s *CheckoutService) InitiateCheckout(ctx context.Context, req CheckoutRequest) (string, error) {
	if req.EventID == "" {
		return "", model.NewValidationError("eventId", "required")
	}

	// 1. 金額の算出
	amount, err := MinorUnits(req.Price, req.IsFree)
	if err != nil {
		return "", model.NewValidationError("price", err.Error())
	}

	// 2. セッション作成
	session, err := s.creator.CreateSession(ctx, SessionRequest{
		Name:       req.EventTitle,
		UnitAmount: amount,
		Currency:   s.currency,
		SuccessURL: s.baseURL + "/profile",
		CancelURL:  s.baseURL + "/",
		Metadata: map[string]string{
			MetadataEventID: req.EventID,
			MetadataBuyerID: req.BuyerID,
		},
	})
	if err != nil {
		s.record("failure")
		return "", err
	}
	if session == nil || session.URL == "" {
		s.record("failure")
		return "", errors.New("checkout session has no redirect url")
	}

	s.record("success")
	return session.URL, nil
}

func (s *CheckoutService) record(outcome string) {
	if s.recorder != nil {
		s.recorder.RecordCheckoutSession(outcome)
	}
}
