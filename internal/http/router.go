package http

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/http/handlers"
	adminhandlers "github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/http/handlers/admin"
	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/http/middleware"
	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/modules/connect"
	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/modules/payments"
	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/modules/payouts"
	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/modules/users"
	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/modules/webhooks"
)

type Deps struct {
	Logger   *slog.Logger
	DB       *gorm.DB
	Payments *payments.Service
	Payouts  *payouts.Service
	Connect  *connect.Service
	Webhooks *webhooks.Service
	Verifier handlers.EventVerifier

	SessionTTL time.Duration
}

func NewRouter(d Deps) *gin.Engine {
	r := gin.New()

	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(d.Logger))
	r.Use(middleware.Recovery(d.Logger))
	r.Use(middleware.ErrorHandler(d.Logger))

	sessionCfg := middleware.SessionCfg{DB: d.DB, TTL: d.SessionTTL}
	r.Use(middleware.SessionMiddleware(sessionCfg))

	paymentH := handlers.NewPaymentHandler(d.Logger, d.Payments)
	payoutH := handlers.NewPayoutHandler(d.Logger, d.Payouts)
	connectH := handlers.NewConnectHandler(d.Logger, d.Connect, users.NewRepo(d.DB))
	webhookH := handlers.NewWebhookHandler(d.Logger, d.Verifier, d.Webhooks)
	adminH := adminhandlers.NewPayoutHandler(d.Logger, d.DB, d.Payouts, d.Connect)

	// Raw body, signature-verified; stays outside the session middleware's
	// concerns but sharing the chain is harmless.
	r.POST("/webhooks/stripe", webhookH.Handle)

	api := r.Group("/api")
	{
		api.GET("/payments/calculate", paymentH.Quote)

		authed := api.Group("")
		authed.Use(middleware.RequireAuth())
		{
			authed.POST("/payments/intent", paymentH.CreateIntent)
			authed.POST("/payments/confirm", paymentH.Confirm)
			authed.POST("/payments/refund/:ticketId", paymentH.RefundTicket)

			authed.GET("/payments/earnings", payoutH.Earnings)

			authed.POST("/payments/connect", connectH.StartOnboarding)
			authed.GET("/payments/connect/status", connectH.Status)
			authed.POST("/payments/connect/refresh-link", connectH.RefreshOnboardingLink)
			authed.GET("/payments/connect/dashboard", connectH.DashboardLink)
		}

		adm := api.Group("/admin")
		adm.Use(middleware.RequireAdmin())
		{
			adm.GET("/payouts", adminH.List)
			adm.GET("/payouts/summary", adminH.Summary)
			adm.POST("/payouts/process", adminH.Process)
			adm.POST("/payouts/:id/retry", adminH.Retry)
			adm.POST("/payouts/:id/mark-paid", adminH.MarkManualPaid)
			adm.POST("/events/:id/payouts/process", adminH.ProcessForEvent)
			adm.POST("/organizers/:id/migrate-stripe", adminH.MigrateOrganizer)
			adm.GET("/audit-logs", adminH.AuditLogs)
		}
	}

	return r
}
