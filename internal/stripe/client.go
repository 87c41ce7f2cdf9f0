// Package stripeclient adapts the Stripe Go SDK to the narrow gateway
// interfaces the payment, payout and connect modules consume. Nothing
// outside this package imports the SDK's resource sub-packages.
package stripeclient

import (
	"context"
	"strconv"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/account"
	"github.com/stripe/stripe-go/v82/accountlink"
	"github.com/stripe/stripe-go/v82/loginlink"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/refund"
	"github.com/stripe/stripe-go/v82/transfer"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/modules/connect"
	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/modules/payments"
	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/modules/payouts"
)

type Client struct {
	webhookSecret string
}

// New configures the SDK's global key and returns the adapter.
func New(secretKey, webhookSecret string) *Client {
	stripe.Key = secretKey
	return &Client{webhookSecret: webhookSecret}
}

func (c *Client) CreateIntent(ctx context.Context, req payments.CreateIntentRequest) (payments.CreateIntentResponse, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("payment_id", req.PaymentID)
	params.AddMetadata("event_id", req.EventID)
	params.AddMetadata("user_id", req.UserID)
	params.AddMetadata("quantity", strconv.FormatInt(req.Quantity, 10))
	params.AddMetadata("organizer_has_stripe", strconv.FormatBool(req.OrganizerHasStripe))

	pi, err := paymentintent.New(params)
	if err != nil {
		return payments.CreateIntentResponse{}, err
	}
	return payments.CreateIntentResponse{
		IntentID:     pi.ID,
		ClientSecret: pi.ClientSecret,
	}, nil
}

func (c *Client) RetrieveIntent(ctx context.Context, intentID string) (payments.IntentStatus, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	params.AddExpand("latest_charge")

	pi, err := paymentintent.Get(intentID, params)
	if err != nil {
		return payments.IntentStatus{}, err
	}
	st := payments.IntentStatus{Status: string(pi.Status)}
	if pi.LatestCharge != nil {
		st.LatestChargeID = pi.LatestCharge.ID
	}
	return st, nil
}

func (c *Client) CancelIntent(ctx context.Context, intentID string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	_, err := paymentintent.Cancel(intentID, params)
	return err
}

func (c *Client) RefundIntent(ctx context.Context, req payments.RefundIntentRequest) (payments.RefundIntentResponse, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.PaymentIntentID),
		Amount:        stripe.Int64(req.Amount),
	}
	params.Context = ctx

	r, err := refund.New(params)
	if err != nil {
		return payments.RefundIntentResponse{}, err
	}
	return payments.RefundIntentResponse{RefundID: r.ID, Amount: r.Amount}, nil
}

func (c *Client) CreateTransfer(ctx context.Context, req payouts.TransferRequest) (payouts.TransferResponse, error) {
	params := &stripe.TransferParams{
		Amount:        stripe.Int64(req.Amount),
		Currency:      stripe.String(req.Currency),
		Destination:   stripe.String(req.Destination),
		TransferGroup: stripe.String(req.TransferGroup),
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	params.AddMetadata("payout_id", req.PayoutID)
	params.AddMetadata("event_id", req.EventID)
	params.AddMetadata("payment_id", req.PaymentID)

	t, err := transfer.New(params)
	if err != nil {
		return payouts.TransferResponse{}, err
	}
	return payouts.TransferResponse{TransferID: t.ID}, nil
}

func (c *Client) CreateExpressAccount(ctx context.Context, req connect.CreateAccountRequest) (connect.AccountState, error) {
	params := &stripe.AccountParams{
		Type:    stripe.String(string(stripe.AccountTypeExpress)),
		Email:   stripe.String(req.Email),
		Country: stripe.String(req.Country),
		Capabilities: &stripe.AccountCapabilitiesParams{
			CardPayments: &stripe.AccountCapabilitiesCardPaymentsParams{
				Requested: stripe.Bool(true),
			},
			Transfers: &stripe.AccountCapabilitiesTransfersParams{
				Requested: stripe.Bool(true),
			},
		},
	}
	if req.BusinessName != "" {
		params.BusinessProfile = &stripe.AccountBusinessProfileParams{
			Name: stripe.String(req.BusinessName),
		}
	}
	if req.BusinessType != "" {
		params.BusinessType = stripe.String(req.BusinessType)
	}
	params.Context = ctx
	params.AddMetadata("user_id", req.UserID)

	a, err := account.New(params)
	if err != nil {
		return connect.AccountState{}, err
	}
	return accountState(a), nil
}

func (c *Client) RetrieveAccount(ctx context.Context, accountID string) (connect.AccountState, error) {
	params := &stripe.AccountParams{}
	params.Context = ctx

	a, err := account.GetByID(accountID, params)
	if err != nil {
		return connect.AccountState{}, err
	}
	return accountState(a), nil
}

func (c *Client) CreateOnboardingLink(ctx context.Context, req connect.OnboardingLinkRequest) (string, error) {
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(req.AccountID),
		RefreshURL: stripe.String(req.RefreshURL),
		ReturnURL:  stripe.String(req.ReturnURL),
		Type:       stripe.String("account_onboarding"),
	}
	params.Context = ctx

	link, err := accountlink.New(params)
	if err != nil {
		return "", err
	}
	return link.URL, nil
}

func (c *Client) CreateDashboardLink(ctx context.Context, accountID string) (string, error) {
	params := &stripe.LoginLinkParams{Account: stripe.String(accountID)}
	params.Context = ctx

	link, err := loginlink.New(params)
	if err != nil {
		return "", err
	}
	return link.URL, nil
}

// VerifyEvent checks the webhook signature and parses the payload.
func (c *Client) VerifyEvent(payload []byte, signature string) (stripe.Event, error) {
	return webhook.ConstructEvent(payload, signature, c.webhookSecret)
}

func accountState(a *stripe.Account) connect.AccountState {
	st := connect.AccountState{
		AccountID:        a.ID,
		DetailsSubmitted: a.DetailsSubmitted,
		ChargesEnabled:   a.ChargesEnabled,
		PayoutsEnabled:   a.PayoutsEnabled,
	}
	if a.Requirements != nil {
		st.DisabledReason = string(a.Requirements.DisabledReason)
		st.CurrentlyDueCount = len(a.Requirements.CurrentlyDue)
	}
	return st
}

var (
	_ payments.IntentGateway  = (*Client)(nil)
	_ payouts.TransferGateway = (*Client)(nil)
	_ connect.AccountGateway  = (*Client)(nil)
)
