package admin

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/http/middleware"
	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/modules/audit"
	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/modules/connect"
	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/modules/payouts"
	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/modules/users"
	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/shared/apperr"
)

type PayoutHandler struct {
	Logger  *slog.Logger
	DB      *gorm.DB
	Payouts *payouts.Service
	Connect *connect.Service
	Users   *users.Repo
}

func NewPayoutHandler(logger *slog.Logger, db *gorm.DB, payoutSvc *payouts.Service, connectSvc *connect.Service) *PayoutHandler {
	return &PayoutHandler{
		Logger:  logger,
		DB:      db,
		Payouts: payoutSvc,
		Connect: connectSvc,
		Users:   users.NewRepo(db),
	}
}

// GET /api/admin/payouts
func (h *PayoutHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", "30"))

	res, err := h.Payouts.AdminList(c.Request.Context(), payouts.AdminListParams{
		Status:   c.Query("status"),
		Method:   c.Query("method"),
		EventID:  c.Query("event_id"),
		Page:     page,
		PageSize: size,
	})
	if err != nil {
		middleware.Fail(c, apperr.Wrap(err))
		return
	}

	ids := make([]string, 0, len(res.Items))
	for _, p := range res.Items {
		ids = append(ids, p.UserID)
	}
	emails, err := h.Users.EmailsByIDs(c.Request.Context(), ids)
	if err != nil {
		middleware.Fail(c, apperr.Wrap(err))
		return
	}

	items := make([]gin.H, 0, len(res.Items))
	for _, p := range res.Items {
		items = append(items, gin.H{
			"id":                p.ID,
			"user_id":           p.UserID,
			"organizer_email":   emails[p.UserID],
			"payment_id":        p.PaymentID,
			"event_id":          p.EventID,
			"amount":            p.Amount,
			"currency":          p.Currency,
			"status":            p.Status,
			"method":            p.Method,
			"stripe_account_id": p.StripeAccountID,
			"scheduled_for":     p.ScheduledFor,
			"processed_at":      p.ProcessedAt,
			"failure_reason":    p.FailureReason,
		})
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": res.Total, "page": page})
}

// GET /api/admin/payouts/summary
func (h *PayoutHandler) Summary(c *gin.Context) {
	sum, err := h.Payouts.Summary(c.Request.Context())
	if err != nil {
		middleware.Fail(c, apperr.Wrap(err))
		return
	}

	rows := make([]gin.H, 0, len(sum.Rows))
	for _, r := range sum.Rows {
		rows = append(rows, gin.H{
			"status": r.Status,
			"method": r.Method,
			"count":  r.Count,
			"amount": r.Amount,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"pending_amount": sum.PendingAmount,
		"paid_amount":    sum.PaidAmount,
		"failed_amount":  sum.FailedAmount,
		"rows":           rows,
	})
}

// POST /api/admin/payouts/process
// Executes every due stripe payout across all events.
func (h *PayoutHandler) Process(c *gin.Context) {
	outcomes, err := h.Payouts.ProcessDue(c.Request.Context(), time.Now())
	if err != nil {
		middleware.Fail(c, apperr.Wrap(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"processed": len(outcomes), "outcomes": outcomeJSON(outcomes)})
}

// POST /api/admin/events/:id/payouts/process
// Executes the due stripe payouts for a single event.
func (h *PayoutHandler) ProcessForEvent(c *gin.Context) {
	outcomes, err := h.Payouts.ProcessForEvent(c.Request.Context(), c.Param("id"), time.Now())
	if err != nil {
		middleware.Fail(c, apperr.Wrap(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"processed": len(outcomes), "outcomes": outcomeJSON(outcomes)})
}

func outcomeJSON(outcomes []payouts.ExecuteOutcome) []gin.H {
	out := make([]gin.H, 0, len(outcomes))
	for _, o := range outcomes {
		out = append(out, gin.H{
			"payout_id":   o.PayoutID,
			"status":      o.Status,
			"transfer_id": o.TransferID,
			"error":       o.Error,
		})
	}
	return out
}

// POST /api/admin/organizers/:id/migrate-stripe
// Flips an organizer's pending manual payouts to stripe once their connected
// account is fully enabled. The webhook path does this automatically; this
// endpoint covers accounts enabled before the listener was deployed.
func (h *PayoutHandler) MigrateOrganizer(c *gin.Context) {
	organizerID := c.Param("id")

	ref, err := h.Connect.FullyEnabledAccountRef(c.Request.Context(), organizerID)
	if err != nil {
		middleware.Fail(c, apperr.Wrap(err))
		return
	}
	if ref == nil {
		middleware.Fail(c, apperr.ConflictErr("Organizer has no fully enabled connected account."))
		return
	}

	migrated, err := h.Payouts.MigrateOrganizerToStripe(c.Request.Context(), organizerID, *ref)
	if err != nil {
		middleware.Fail(c, apperr.Wrap(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"migrated": migrated})
}

// POST /api/admin/payouts/:id/retry
func (h *PayoutHandler) Retry(c *gin.Context) {
	out, err := h.Payouts.Retry(c.Request.Context(), c.Param("id"))
	if err != nil {
		middleware.Fail(c, mapPayoutErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"payout_id":   out.PayoutID,
		"status":      out.Status,
		"transfer_id": out.TransferID,
		"error":       out.Error,
	})
}

// POST /api/admin/payouts/:id/mark-paid
// Manual payouts only: records an off-platform settlement.
func (h *PayoutHandler) MarkManualPaid(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)

	var req struct {
		Note string `json:"note"`
	}
	_ = c.ShouldBindJSON(&req)

	if err := h.Payouts.MarkManualPaid(c.Request.Context(), c.Param("id"), u.ID, req.Note); err != nil {
		middleware.Fail(c, mapPayoutErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": payouts.StatusPaid})
}

// GET /api/admin/audit-logs
func (h *PayoutHandler) AuditLogs(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", "30"))

	res, err := audit.List(c.Request.Context(), h.DB, audit.ListParams{
		Action:   c.Query("action"),
		Page:     page,
		PageSize: size,
	})
	if err != nil {
		middleware.Fail(c, apperr.Wrap(err))
		return
	}

	items := make([]gin.H, 0, len(res.Items))
	for _, e := range res.Items {
		items = append(items, gin.H{
			"id":          e.ID,
			"actor_id":    e.ActorUserID,
			"action":      e.Action,
			"target_type": e.TargetType,
			"target_id":   e.TargetID,
			"note":        e.Note,
			"created_at":  e.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": res.Total, "page": page})
}

func mapPayoutErr(err error) error {
	switch {
	case errors.Is(err, payouts.ErrPayoutNotFound):
		return apperr.NotFoundErr("Payout not found.")
	case errors.Is(err, payouts.ErrNotRetryable):
		return apperr.ConflictErr("Only failed stripe payouts can be retried.")
	case errors.Is(err, payouts.ErrNotManualPending):
		return apperr.ConflictErr("Only pending manual payouts can be marked paid.")
	case errors.Is(err, payouts.ErrAlreadyClaimed):
		return apperr.ConflictErr("Payout is already being processed.")
	default:
		return apperr.Wrap(err)
	}
}
