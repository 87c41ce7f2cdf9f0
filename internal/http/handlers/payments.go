package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/http/middleware"
	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/http/validation"
	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/modules/payments"
	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/shared/apperr"
)

type PaymentHandler struct {
	Logger   *slog.Logger
	Payments *payments.Service
}

func NewPaymentHandler(logger *slog.Logger, svc *payments.Service) *PaymentHandler {
	return &PaymentHandler{Logger: logger, Payments: svc}
}

// GET /api/payments/calculate
// Public: prices a prospective purchase without touching inventory.
func (h *PaymentHandler) Quote(c *gin.Context) {
	var req struct {
		EventID  string `form:"event_id" binding:"required"`
		Quantity int64  `form:"quantity" binding:"required,min=1"`
	}
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.Fail(c, apperr.InvalidErr("Invalid query parameters.", validation.FromBindError(err, &req)))
		return
	}

	q, err := h.Payments.Quote(c.Request.Context(), req.EventID, req.Quantity)
	if err != nil {
		middleware.Fail(c, mapPaymentErr(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"is_free":        q.IsFree,
		"ticket_price":   q.TicketPrice,
		"quantity":       q.Quantity,
		"subtotal":       q.Subtotal,
		"processing_fee": q.ProcessingFee,
		"total":          q.Total,
	})
}

// POST /api/payments/intent
func (h *PaymentHandler) CreateIntent(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)

	var req struct {
		EventID   string `json:"event_id" binding:"required"`
		Quantity  int64  `json:"quantity" binding:"required,min=1"`
		FirstName string `json:"first_name" binding:"required"`
		LastName  string `json:"last_name" binding:"required"`
		Email     string `json:"email" binding:"required,email"`
		Phone     string `json:"phone"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Fail(c, apperr.InvalidErr("Invalid request body.", validation.FromBindError(err, &req)))
		return
	}

	res, err := h.Payments.CreateIntent(c.Request.Context(), payments.CreateIntentInput{
		UserID:    u.ID,
		EventID:   req.EventID,
		Quantity:  req.Quantity,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
	})
	if err != nil {
		middleware.Fail(c, mapPaymentErr(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"client_secret": res.ClientSecret,
		"payment_id":    res.PaymentID,
		"breakdown": gin.H{
			"subtotal":       res.Breakdown.Subtotal,
			"processing_fee": res.Breakdown.ProcessingFee,
			"total":          res.Breakdown.Total,
		},
		"organizer_has_stripe": res.OrganizerHasStripe,
	})
}

// POST /api/payments/confirm
// Client-driven confirmation after the provider's client SDK reports success.
// The webhook path delivers the same transition; whichever lands first wins.
func (h *PaymentHandler) Confirm(c *gin.Context) {
	var req struct {
		PaymentIntentID string `json:"payment_intent_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Fail(c, apperr.InvalidErr("Invalid request body.", validation.FromBindError(err, &req)))
		return
	}

	tickets, err := h.Payments.ConfirmPayment(c.Request.Context(), req.PaymentIntentID)
	if err != nil {
		middleware.Fail(c, mapPaymentErr(err))
		return
	}

	out := make([]gin.H, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, gin.H{
			"id":          t.ID,
			"ticket_code": t.TicketCode,
			"event_id":    t.EventID,
			"status":      t.Status,
		})
	}
	c.JSON(http.StatusOK, gin.H{"status": "succeeded", "tickets": out})
}

// POST /api/payments/refund/:ticketId
func (h *PaymentHandler) RefundTicket(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)

	res, err := h.Payments.RefundTicket(c.Request.Context(), c.Param("ticketId"), u.ID)
	if err != nil {
		middleware.Fail(c, mapPaymentErr(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"refund_id": res.RefundID,
		"amount":    res.Amount,
	})
}

func mapPaymentErr(err error) error {
	switch {
	case errors.Is(err, payments.ErrEventNotFound):
		return apperr.NotFoundErr("Event not found.")
	case errors.Is(err, payments.ErrPaymentNotFound):
		return apperr.NotFoundErr("Payment not found.")
	case errors.Is(err, payments.ErrTicketNotFound):
		return apperr.NotFoundErr("Ticket not found.")
	case errors.Is(err, payments.ErrInvalidQuantity):
		return apperr.InvalidErr("Quantity must be at least 1.", nil)
	case errors.Is(err, payments.ErrFreeEvent):
		return apperr.InvalidErr("This event is free; no payment is needed.", nil)
	case errors.Is(err, payments.ErrInsufficientTickets):
		return apperr.ConflictErr("Not enough tickets available.")
	case errors.Is(err, payments.ErrNotTicketOwner):
		return apperr.ForbiddenErr("You do not own this ticket.")
	case errors.Is(err, payments.ErrTicketNotRefundable):
		return apperr.ConflictErr("This ticket cannot be refunded.")
	case errors.Is(err, payments.ErrEventAlreadyStarted):
		return apperr.ConflictErr("Refunds close when the event starts.")
	case errors.Is(err, payments.ErrPaymentNotSucceeded):
		return apperr.ConflictErr("Payment has not succeeded yet.")
	case errors.Is(err, payments.ErrProviderUnavailable):
		return apperr.Wrap(err)
	default:
		return apperr.Wrap(err)
	}
}
