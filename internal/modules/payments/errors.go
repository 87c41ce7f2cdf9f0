package payments

import "errors"

var (
	ErrEventNotFound       = errors.New("event not found")
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrTicketNotFound      = errors.New("ticket not found")
	ErrInvalidQuantity     = errors.New("quantity must be at least 1")
	ErrFreeEvent           = errors.New("free event: use the registration flow")
	ErrInsufficientTickets = errors.New("not enough tickets available")
	ErrNotTicketOwner      = errors.New("ticket belongs to another user")
	ErrTicketNotRefundable = errors.New("ticket cannot be refunded")
	ErrEventAlreadyStarted = errors.New("cannot refund after the event has started")
	ErrPaymentNotSucceeded = errors.New("payment has not succeeded")
	ErrProviderUnavailable = errors.New("payment provider unavailable")
)
