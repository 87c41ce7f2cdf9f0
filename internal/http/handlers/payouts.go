package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/http/middleware"
	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/modules/payouts"
	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/shared/apperr"
)

type PayoutHandler struct {
	Logger  *slog.Logger
	Payouts *payouts.Service
}

func NewPayoutHandler(logger *slog.Logger, svc *payouts.Service) *PayoutHandler {
	return &PayoutHandler{Logger: logger, Payouts: svc}
}

// GET /api/payments/earnings
// Organizer-facing earnings view.
func (h *PayoutHandler) Earnings(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)

	e, err := h.Payouts.EarningsSummary(c.Request.Context(), u.ID)
	if err != nil {
		middleware.Fail(c, apperr.Wrap(err))
		return
	}

	history := make([]gin.H, 0, len(e.History))
	for _, p := range e.History {
		history = append(history, payoutJSON(p))
	}
	c.JSON(http.StatusOK, gin.H{
		"total_earnings":    e.TotalEarnings,
		"pending_payouts":   e.PendingPayouts,
		"completed_payouts": e.CompletedPayouts,
		"history":           history,
	})
}

func payoutJSON(p payouts.Payout) gin.H {
	return gin.H{
		"id":            p.ID,
		"event_id":      p.EventID,
		"payment_id":    p.PaymentID,
		"amount":        p.Amount,
		"currency":      p.Currency,
		"status":        p.Status,
		"method":        p.Method,
		"scheduled_for": p.ScheduledFor,
		"processed_at":  p.ProcessedAt,
	}
}
