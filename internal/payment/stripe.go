package payment

import (
	"context"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"github.com/hitoshi/ticketbox/internal/model"
)

// StripeSessionCreator はStripe Checkoutでセッションを作成するSessionCreator実装。
type StripeSessionCreator struct {
	api *client.API
}

// NewStripeSessionCreator はStripeSessionCreatorを生成する。
// secretKeyが空の場合はセッション作成時にConfigurationErrorを返す。
func NewStripeSessionCreator(secretKey string) *StripeSessionCreator {
	if secretKey == "" {
		return &StripeSessionCreator{}
	}
	return &StripeSessionCreator{api: client.New(secretKey, nil)}
}

var _ SessionCreator = (*StripeSessionCreator)(nil)

// CreateSession は1行の明細を持つ支払いモードのセッションを作成する。
func (c *StripeSessionCreator) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	if c.api == nil {
		return nil, model.NewConfigurationError("STRIPE_SECRET_KEY")
	}

	params := buildSessionParams(req)
	params.Context = ctx

	s, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, err
	}
	return &Session{ID: s.ID, URL: s.URL}, nil
}

func buildSessionParams(req SessionRequest) *stripe.CheckoutSessionParams {
	params := &stripe.CheckoutSessionParams{
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(req.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Name),
					},
					UnitAmount: stripe.Int64(req.UnitAmount),
				},
				Quantity: stripe.Int64(1),
			},
		},
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	return params
}
