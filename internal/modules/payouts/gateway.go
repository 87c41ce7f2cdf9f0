package payouts

import "context"

type TransferRequest struct {
	Amount      int64
	Currency    string
	Destination string // connected account reference

	// TransferGroup ties all payouts for one event together on the provider
	// side; IdempotencyKey makes a re-sent request return the same transfer.
	TransferGroup  string
	IdempotencyKey string

	PayoutID  string
	EventID   string
	PaymentID string
}

type TransferResponse struct {
	TransferID string
}

type TransferGateway interface {
	CreateTransfer(ctx context.Context, req TransferRequest) (TransferResponse, error)
}
