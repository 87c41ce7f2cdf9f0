package main

import (
	"log"
	"os"
	"time"

	"log/slog"

	"github.com/joho/godotenv"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	apphttp "github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/http"
	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/modules/connect"
	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/modules/payments"
	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/modules/payouts"
	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/modules/webhooks"
	stripeclient "github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/stripe"
)

func main() {
	// Load .env file (ignore error if not found - prod uses real env vars)
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatal("DB_DSN environment variable is required")
	}
	secretKey := os.Getenv("STRIPE_SECRET_KEY")
	if secretKey == "" {
		log.Fatal("STRIPE_SECRET_KEY environment variable is required")
	}
	webhookSecret := os.Getenv("STRIPE_WEBHOOK_SECRET")
	if webhookSecret == "" {
		log.Fatal("STRIPE_WEBHOOK_SECRET environment variable is required")
	}
	frontendURL := os.Getenv("FRONTEND_URL")
	if frontendURL == "" {
		frontendURL = "http://localhost:3000"
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	stripeClient := stripeclient.New(secretKey, webhookSecret)

	connectSvc := connect.NewService(db, stripeClient, frontendURL)
	payoutSvc := payouts.NewService(db, stripeClient)
	paymentSvc := payments.NewService(db, stripeClient, connectSvc, payoutSvc)
	webhookSvc := webhooks.NewService(db, paymentSvc, payoutSvc, connectSvc)

	r := apphttp.NewRouter(apphttp.Deps{
		Logger:     logger,
		DB:         db,
		Payments:   paymentSvc,
		Payouts:    payoutSvc,
		Connect:    connectSvc,
		Webhooks:   webhookSvc,
		Verifier:   stripeClient,
		SessionTTL: 30 * 24 * time.Hour,
	})

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	if err := r.Run(addr); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
