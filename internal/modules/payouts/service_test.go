package payouts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/modules/audit"
	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/modules/payments"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Payout{}, &audit.Entry{}))
	return db
}

type fakeTransfers struct {
	err      error
	failFor  map[string]error // per-destination failures
	requests []TransferRequest
}

func (f *fakeTransfers) CreateTransfer(_ context.Context, req TransferRequest) (TransferResponse, error) {
	if f.err != nil {
		return TransferResponse{}, f.err
	}
	if ferr, ok := f.failFor[req.Destination]; ok {
		return TransferResponse{}, ferr
	}
	f.requests = append(f.requests, req)
	return TransferResponse{TransferID: "tr_" + req.PayoutID[:8]}, nil
}

func schedule(t *testing.T, svc *Service, db *gorm.DB, in payments.SchedulePayoutInput) Payout {
	t.Helper()
	if in.PaymentID == "" {
		in.PaymentID = uuid.NewString()
	}
	if in.OrganizerID == "" {
		in.OrganizerID = uuid.NewString()
	}
	if in.EventID == "" {
		in.EventID = uuid.NewString()
	}
	if in.Amount == 0 {
		in.Amount = 4000
	}
	if in.Currency == "" {
		in.Currency = "usd"
	}
	if in.ScheduledFor.IsZero() {
		in.ScheduledFor = time.Now().Add(-time.Hour)
	}
	require.NoError(t, svc.ScheduleInTx(context.Background(), db, in))

	var p Payout
	require.NoError(t, db.First(&p, "payment_id = ?", in.PaymentID).Error)
	return p
}

func str(s string) *string { return &s }

func TestScheduleInTxMethodRouting(t *testing.T) {
	db := testDB(t)
	svc := NewService(db, &fakeTransfers{})

	manual := schedule(t, svc, db, payments.SchedulePayoutInput{})
	assert.Equal(t, MethodManual, manual.Method)
	assert.Nil(t, manual.StripeAccountID)
	assert.Equal(t, StatusPending, manual.Status)

	stripe := schedule(t, svc, db, payments.SchedulePayoutInput{StripeAccountID: str("acct_1")})
	assert.Equal(t, MethodStripe, stripe.Method)
	require.NotNil(t, stripe.StripeAccountID)
	assert.Equal(t, "acct_1", *stripe.StripeAccountID)
}

func TestScheduleInTxIdempotentPerPayment(t *testing.T) {
	db := testDB(t)
	svc := NewService(db, &fakeTransfers{})

	p := schedule(t, svc, db, payments.SchedulePayoutInput{})
	require.NoError(t, svc.ScheduleInTx(context.Background(), db, payments.SchedulePayoutInput{
		OrganizerID: p.UserID, PaymentID: p.PaymentID, EventID: p.EventID,
		Amount: p.Amount, Currency: "usd", ScheduledFor: p.ScheduledFor,
	}))

	var count int64
	require.NoError(t, db.Model(&Payout{}).Where("payment_id = ?", p.PaymentID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestExecutePaysDueStripePayout(t *testing.T) {
	db := testDB(t)
	gw := &fakeTransfers{}
	svc := NewService(db, gw)

	p := schedule(t, svc, db, payments.SchedulePayoutInput{StripeAccountID: str("acct_1")})

	out, err := svc.Execute(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, out.Status)
	assert.NotEmpty(t, out.TransferID)

	require.Len(t, gw.requests, 1)
	req := gw.requests[0]
	assert.Equal(t, p.Amount, req.Amount)
	assert.Equal(t, "acct_1", req.Destination)
	assert.Equal(t, "event_"+p.EventID, req.TransferGroup)
	assert.Equal(t, "payout-"+p.ID, req.IdempotencyKey)
	assert.Equal(t, p.ID, req.PayoutID)

	var got Payout
	require.NoError(t, db.First(&got, "id = ?", p.ID).Error)
	assert.Equal(t, StatusPaid, got.Status)
	require.NotNil(t, got.StripeTransferID)
	assert.NotNil(t, got.ProcessedAt)

	// A second execution finds nothing to claim.
	_, err = svc.Execute(context.Background(), p.ID)
	require.ErrorIs(t, err, ErrAlreadyClaimed)
	assert.Len(t, gw.requests, 1)
}

func TestExecuteTransferFailureRecordsReason(t *testing.T) {
	db := testDB(t)
	gw := &fakeTransfers{err: errors.New("insufficient platform balance")}
	svc := NewService(db, gw)

	p := schedule(t, svc, db, payments.SchedulePayoutInput{StripeAccountID: str("acct_1")})

	out, err := svc.Execute(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, out.Status)

	var got Payout
	require.NoError(t, db.First(&got, "id = ?", p.ID).Error)
	assert.Equal(t, StatusFailed, got.Status)
	require.NotNil(t, got.FailureReason)
	assert.Contains(t, *got.FailureReason, "insufficient platform balance")
}

func TestExecuteSkipsManualPayouts(t *testing.T) {
	db := testDB(t)
	svc := NewService(db, &fakeTransfers{})

	p := schedule(t, svc, db, payments.SchedulePayoutInput{})
	_, err := svc.Execute(context.Background(), p.ID)
	require.ErrorIs(t, err, ErrAlreadyClaimed)
}

func TestProcessDueRespectsScheduleAndMethod(t *testing.T) {
	db := testDB(t)
	gw := &fakeTransfers{}
	svc := NewService(db, gw)

	due := schedule(t, svc, db, payments.SchedulePayoutInput{StripeAccountID: str("acct_1")})
	schedule(t, svc, db, payments.SchedulePayoutInput{}) // manual, never auto-run
	schedule(t, svc, db, payments.SchedulePayoutInput{
		StripeAccountID: str("acct_2"),
		ScheduledFor:    time.Now().Add(72 * time.Hour), // event not over yet
	})

	outcomes, err := svc.ProcessDue(context.Background(), time.Now())
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, due.ID, outcomes[0].PayoutID)
	assert.Equal(t, StatusPaid, outcomes[0].Status)
}

func TestProcessDueIsolatesFailures(t *testing.T) {
	db := testDB(t)
	gw := &fakeTransfers{failFor: map[string]error{"acct_bad": errors.New("account cannot receive transfers")}}
	svc := NewService(db, gw)

	good1 := schedule(t, svc, db, payments.SchedulePayoutInput{StripeAccountID: str("acct_1")})
	bad := schedule(t, svc, db, payments.SchedulePayoutInput{StripeAccountID: str("acct_bad")})
	good2 := schedule(t, svc, db, payments.SchedulePayoutInput{StripeAccountID: str("acct_2")})

	outcomes, err := svc.ProcessDue(context.Background(), time.Now())
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	// One bad transfer never blocks its siblings from reaching terminal state.
	byID := map[string]string{}
	for _, o := range outcomes {
		byID[o.PayoutID] = o.Status
	}
	assert.Equal(t, StatusPaid, byID[good1.ID])
	assert.Equal(t, StatusPaid, byID[good2.ID])
	assert.Equal(t, StatusFailed, byID[bad.ID])

	var failed Payout
	require.NoError(t, db.First(&failed, "id = ?", bad.ID).Error)
	assert.Equal(t, StatusFailed, failed.Status)
	require.NotNil(t, failed.FailureReason)
	assert.Contains(t, *failed.FailureReason, "cannot receive transfers")

	var paid Payout
	require.NoError(t, db.First(&paid, "id = ?", good1.ID).Error)
	assert.Equal(t, StatusPaid, paid.Status)
	require.NotNil(t, paid.ProcessedAt)
	assert.WithinDuration(t, time.Now(), *paid.ProcessedAt, time.Minute)
}

func TestProcessForEvent(t *testing.T) {
	db := testDB(t)
	gw := &fakeTransfers{}
	svc := NewService(db, gw)

	target := schedule(t, svc, db, payments.SchedulePayoutInput{StripeAccountID: str("acct_1")})
	schedule(t, svc, db, payments.SchedulePayoutInput{StripeAccountID: str("acct_2")})

	outcomes, err := svc.ProcessForEvent(context.Background(), target.EventID, time.Now())
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, target.ID, outcomes[0].PayoutID)
}

func TestRetryRules(t *testing.T) {
	db := testDB(t)
	gw := &fakeTransfers{err: errors.New("balance")}
	svc := NewService(db, gw)

	p := schedule(t, svc, db, payments.SchedulePayoutInput{StripeAccountID: str("acct_1")})
	out, err := svc.Execute(context.Background(), p.ID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, out.Status)

	// Retry succeeds once the provider recovers.
	gw.err = nil
	out, err = svc.Retry(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, out.Status)

	// Paid payouts are not retryable.
	_, err = svc.Retry(context.Background(), p.ID)
	require.ErrorIs(t, err, ErrNotRetryable)

	// Manual payouts are not retryable either.
	m := schedule(t, svc, db, payments.SchedulePayoutInput{})
	_, err = svc.Retry(context.Background(), m.ID)
	require.ErrorIs(t, err, ErrNotRetryable)

	_, err = svc.Retry(context.Background(), uuid.NewString())
	require.ErrorIs(t, err, ErrPayoutNotFound)
}

func TestMarkManualPaid(t *testing.T) {
	db := testDB(t)
	svc := NewService(db, &fakeTransfers{})

	p := schedule(t, svc, db, payments.SchedulePayoutInput{})
	operator := uuid.NewString()

	require.NoError(t, svc.MarkManualPaid(context.Background(), p.ID, operator, "paid via bank transfer"))

	var got Payout
	require.NoError(t, db.First(&got, "id = ?", p.ID).Error)
	assert.Equal(t, StatusPaid, got.Status)
	assert.NotNil(t, got.ProcessedAt)

	var entry audit.Entry
	require.NoError(t, db.First(&entry, "target_id = ?", p.ID).Error)
	assert.Equal(t, operator, entry.ActorUserID)
	assert.Equal(t, "payout.mark_manual_paid", entry.Action)

	// Already paid: rejected.
	err := svc.MarkManualPaid(context.Background(), p.ID, operator, "")
	require.ErrorIs(t, err, ErrNotManualPending)

	// Stripe payouts cannot be marked manually paid.
	s := schedule(t, svc, db, payments.SchedulePayoutInput{StripeAccountID: str("acct_1")})
	err = svc.MarkManualPaid(context.Background(), s.ID, operator, "")
	require.ErrorIs(t, err, ErrNotManualPending)
}

func TestMigrateOrganizerToStripe(t *testing.T) {
	db := testDB(t)
	svc := NewService(db, &fakeTransfers{})

	organizer := uuid.NewString()
	a := schedule(t, svc, db, payments.SchedulePayoutInput{OrganizerID: organizer})
	b := schedule(t, svc, db, payments.SchedulePayoutInput{OrganizerID: organizer})
	paid := schedule(t, svc, db, payments.SchedulePayoutInput{OrganizerID: organizer})
	require.NoError(t, svc.MarkManualPaid(context.Background(), paid.ID, uuid.NewString(), ""))
	other := schedule(t, svc, db, payments.SchedulePayoutInput{})

	n, err := svc.MigrateOrganizerToStripe(context.Background(), organizer, "acct_new")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	for _, id := range []string{a.ID, b.ID} {
		var got Payout
		require.NoError(t, db.First(&got, "id = ?", id).Error)
		assert.Equal(t, MethodStripe, got.Method)
		require.NotNil(t, got.StripeAccountID)
		assert.Equal(t, "acct_new", *got.StripeAccountID)
		assert.Equal(t, StatusPending, got.Status)
	}

	// Paid-manual and other organizers' payouts are untouched.
	var gotPaid, gotOther Payout
	require.NoError(t, db.First(&gotPaid, "id = ?", paid.ID).Error)
	assert.Equal(t, MethodManual, gotPaid.Method)
	require.NoError(t, db.First(&gotOther, "id = ?", other.ID).Error)
	assert.Equal(t, MethodManual, gotOther.Method)
}

func TestMarkTransferPaid(t *testing.T) {
	db := testDB(t)
	svc := NewService(db, &fakeTransfers{})

	p := schedule(t, svc, db, payments.SchedulePayoutInput{StripeAccountID: str("acct_1")})
	require.NoError(t, svc.MarkTransferPaid(context.Background(), p.ID, "tr_hook"))

	var got Payout
	require.NoError(t, db.First(&got, "id = ?", p.ID).Error)
	assert.Equal(t, StatusPaid, got.Status)
	require.NotNil(t, got.StripeTransferID)
	assert.Equal(t, "tr_hook", *got.StripeTransferID)
}

func TestCancelPendingInTx(t *testing.T) {
	db := testDB(t)
	svc := NewService(db, &fakeTransfers{})

	p := schedule(t, svc, db, payments.SchedulePayoutInput{StripeAccountID: str("acct_1")})
	require.NoError(t, svc.CancelPendingInTx(context.Background(), db, p.PaymentID))

	var got Payout
	require.NoError(t, db.First(&got, "id = ?", p.ID).Error)
	assert.Equal(t, StatusCancelled, got.Status)

	// Paid payouts stay paid.
	paid := schedule(t, svc, db, payments.SchedulePayoutInput{StripeAccountID: str("acct_2")})
	_, err := svc.Execute(context.Background(), paid.ID)
	require.NoError(t, err)
	require.NoError(t, svc.CancelPendingInTx(context.Background(), db, paid.PaymentID))
	var gotPaid Payout
	require.NoError(t, db.First(&gotPaid, "id = ?", paid.ID).Error)
	assert.Equal(t, StatusPaid, gotPaid.Status)
}

func TestSummaryAndEarnings(t *testing.T) {
	db := testDB(t)
	svc := NewService(db, &fakeTransfers{})

	organizer := uuid.NewString()
	schedule(t, svc, db, payments.SchedulePayoutInput{OrganizerID: organizer, Amount: 1000})
	paid := schedule(t, svc, db, payments.SchedulePayoutInput{OrganizerID: organizer, Amount: 2000, StripeAccountID: str("acct_1")})
	_, err := svc.Execute(context.Background(), paid.ID)
	require.NoError(t, err)

	sum, err := svc.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1000), sum.PendingAmount)
	assert.Equal(t, int64(2000), sum.PaidAmount)

	e, err := svc.EarningsSummary(context.Background(), organizer)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), e.TotalEarnings)
	assert.Equal(t, int64(1000), e.PendingPayouts)
	assert.Equal(t, int64(2000), e.CompletedPayouts)
	assert.Len(t, e.History, 2)
}
