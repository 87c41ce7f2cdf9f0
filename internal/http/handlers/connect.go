package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/http/middleware"
	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/http/validation"
	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/modules/connect"
	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/modules/users"
	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/shared/apperr"
)

type ConnectHandler struct {
	Logger  *slog.Logger
	Connect *connect.Service
	Users   *users.Repo
}

func NewConnectHandler(logger *slog.Logger, svc *connect.Service, usersRepo *users.Repo) *ConnectHandler {
	return &ConnectHandler{Logger: logger, Connect: svc, Users: usersRepo}
}

type startOnboardingRequest struct {
	BusinessName string `json:"business_name"`
	BusinessType string `json:"business_type" binding:"omitempty,oneof=individual company non_profit"`
}

// POST /api/payments/connect
// The express account is created with the user's current email, read fresh
// rather than from the session snapshot. The body is optional; organizers
// may name their business up front or leave it to the hosted flow.
func (h *ConnectHandler) StartOnboarding(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)

	var req startOnboardingRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.Fail(c, apperr.InvalidErr("Invalid request body.", validation.FromBindError(err, &req)))
			return
		}
	}

	usr, err := h.Users.FindByID(c.Request.Context(), u.ID)
	if err != nil {
		middleware.Fail(c, apperr.Wrap(err))
		return
	}

	res, err := h.Connect.StartOnboarding(c.Request.Context(), connect.StartOnboardingInput{
		UserID:       u.ID,
		Email:        usr.Email,
		BusinessName: req.BusinessName,
		BusinessType: req.BusinessType,
	})
	if err != nil {
		if errors.Is(err, connect.ErrAlreadyOnboarded) {
			middleware.Fail(c, apperr.ConflictErr("Account is already fully onboarded."))
			return
		}
		middleware.Fail(c, apperr.Wrap(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"account_id":     res.AccountID,
		"onboarding_url": res.OnboardingURL,
	})
}

// POST /api/payments/connect/refresh-link
func (h *ConnectHandler) RefreshOnboardingLink(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)

	res, err := h.Connect.RefreshOnboardingLink(c.Request.Context(), u.ID)
	if err != nil {
		switch {
		case errors.Is(err, connect.ErrNoAccount):
			middleware.Fail(c, apperr.NotFoundErr("No connected account."))
		case errors.Is(err, connect.ErrAlreadyOnboarded):
			middleware.Fail(c, apperr.ConflictErr("Account is already fully onboarded."))
		default:
			middleware.Fail(c, apperr.Wrap(err))
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"account_id":     res.AccountID,
		"onboarding_url": res.OnboardingURL,
	})
}

// GET /api/payments/connect/status
func (h *ConnectHandler) Status(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)

	st, err := h.Connect.Status(c.Request.Context(), u.ID)
	if err != nil {
		middleware.Fail(c, apperr.Wrap(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"has_account":         st.HasAccount,
		"account_id":          st.AccountID,
		"onboarding_complete": st.OnboardingComplete,
		"charges_enabled":     st.ChargesEnabled,
		"payouts_enabled":     st.PayoutsEnabled,
		"fully_enabled":       st.FullyEnabled,
	})
}

// GET /api/payments/connect/dashboard
func (h *ConnectHandler) DashboardLink(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)

	url, err := h.Connect.DashboardLink(c.Request.Context(), u.ID)
	if err != nil {
		switch {
		case errors.Is(err, connect.ErrNoAccount):
			middleware.Fail(c, apperr.NotFoundErr("No connected account."))
		case errors.Is(err, connect.ErrOnboardingRequired):
			middleware.Fail(c, apperr.ConflictErr("Finish onboarding first."))
		default:
			middleware.Fail(c, apperr.Wrap(err))
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}
