package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"log/slog"

	"github.com/joho/godotenv"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/modules/connect"
	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/modules/payments"
	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/modules/payouts"
	stripeclient "github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/stripe"
)

// Executes due stripe payouts and expires abandoned payment intents, once.
// Run from cron; the web process exposes the payout half at
// POST /api/admin/payouts/process.
func main() {
	eventID := flag.String("event-id", "", "Limit to one event")
	dryRun := flag.Bool("dry-run", false, "List due payouts without executing")
	staleAfter := flag.Duration("stale-after", time.Hour, "Age before a pending intent is expired")
	flag.Parse()

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

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	client := stripeclient.New(secretKey, os.Getenv("STRIPE_WEBHOOK_SECRET"))
	svc := payouts.NewService(db, client)
	svc.SetLogger(logger)
	connectSvc := connect.NewService(db, client, os.Getenv("FRONTEND_URL"))
	paymentSvc := payments.NewService(db, client, connectSvc, svc)
	paymentSvc.SetLogger(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	now := time.Now()

	if *dryRun {
		due, err := svc.DueStripe(ctx, now)
		if err != nil {
			log.Fatalf("listing due payouts: %v", err)
		}
		for _, p := range due {
			fmt.Printf("%s  event=%s  amount=%d  scheduled_for=%s\n",
				p.ID, p.EventID, p.Amount, p.ScheduledFor.Format(time.RFC3339))
		}
		fmt.Printf("%d payout(s) due\n", len(due))
		return
	}

	var outcomes []payouts.ExecuteOutcome
	if *eventID != "" {
		outcomes, err = svc.ProcessForEvent(ctx, *eventID, now)
	} else {
		outcomes, err = svc.ProcessDue(ctx, now)
	}
	if err != nil {
		log.Fatalf("processing payouts: %v", err)
	}

	failed := 0
	for _, o := range outcomes {
		if o.Status != payouts.StatusPaid {
			failed++
			fmt.Printf("FAILED  %s  %s\n", o.PayoutID, o.Error)
			continue
		}
		fmt.Printf("paid    %s  transfer=%s\n", o.PayoutID, o.TransferID)
	}
	fmt.Printf("%d processed, %d failed\n", len(outcomes), failed)

	expired, err := paymentSvc.ExpireStaleIntents(ctx, *staleAfter)
	if err != nil {
		log.Fatalf("expiring stale intents: %v", err)
	}
	fmt.Printf("%d stale intent(s) expired\n", expired)

	if failed > 0 {
		os.Exit(1)
	}
}
