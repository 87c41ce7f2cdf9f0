package payments

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

	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/modules/events"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&events.Event{}, &Payment{}, &Ticket{}))
	return db
}

type fakeGateway struct {
	createErr   error
	refundErr   error
	refundHook  func()
	cancelled   []string
	refunded    []RefundIntentRequest
	intentCalls int
}

func (f *fakeGateway) CreateIntent(_ context.Context, req CreateIntentRequest) (CreateIntentResponse, error) {
	f.intentCalls++
	if f.createErr != nil {
		return CreateIntentResponse{}, f.createErr
	}
	return CreateIntentResponse{IntentID: "pi_" + req.PaymentID[:8], ClientSecret: "cs_test"}, nil
}

func (f *fakeGateway) RetrieveIntent(_ context.Context, _ string) (IntentStatus, error) {
	return IntentStatus{Status: "succeeded", LatestChargeID: "ch_test"}, nil
}

func (f *fakeGateway) CancelIntent(_ context.Context, intentID string) error {
	f.cancelled = append(f.cancelled, intentID)
	return nil
}

func (f *fakeGateway) RefundIntent(_ context.Context, req RefundIntentRequest) (RefundIntentResponse, error) {
	if f.refundHook != nil {
		f.refundHook()
	}
	if f.refundErr != nil {
		return RefundIntentResponse{}, f.refundErr
	}
	f.refunded = append(f.refunded, req)
	return RefundIntentResponse{RefundID: "re_test", Amount: req.Amount}, nil
}

type fakeScheduler struct {
	scheduled []SchedulePayoutInput
	cancelled []string
}

func (f *fakeScheduler) ScheduleInTx(_ context.Context, _ *gorm.DB, in SchedulePayoutInput) error {
	for _, s := range f.scheduled {
		if s.PaymentID == in.PaymentID {
			return nil
		}
	}
	f.scheduled = append(f.scheduled, in)
	return nil
}

func (f *fakeScheduler) CancelPendingInTx(_ context.Context, _ *gorm.DB, paymentID string) error {
	f.cancelled = append(f.cancelled, paymentID)
	return nil
}

type fakeDirectory struct {
	ref *string
}

func (f *fakeDirectory) FullyEnabledAccountRef(_ context.Context, _ string) (*string, error) {
	return f.ref, nil
}

type fixture struct {
	svc       *Service
	db        *gorm.DB
	gateway   *fakeGateway
	scheduler *fakeScheduler
	directory *fakeDirectory
}

func newFixture(t *testing.T) *fixture {
	db := testDB(t)
	gw := &fakeGateway{}
	sched := &fakeScheduler{}
	dir := &fakeDirectory{}
	return &fixture{
		svc:       NewService(db, gw, dir, sched),
		db:        db,
		gateway:   gw,
		scheduler: sched,
		directory: dir,
	}
}

func seedEvent(t *testing.T, db *gorm.DB, price int64, available *int64) events.Event {
	t.Helper()
	end := time.Now().Add(48 * time.Hour)
	ev := events.Event{
		ID:               uuid.NewString(),
		Title:            "Lagos Night",
		OrganizerID:      uuid.NewString(),
		TicketPrice:      price,
		AvailableTickets: available,
		StartDate:        time.Now().Add(24 * time.Hour),
		EndDate:          &end,
	}
	require.NoError(t, db.Create(&ev).Error)
	return ev
}

func i64(v int64) *int64 { return &v }

func availableOf(t *testing.T, db *gorm.DB, eventID string) int64 {
	t.Helper()
	var ev events.Event
	require.NoError(t, db.First(&ev, "id = ?", eventID).Error)
	require.NotNil(t, ev.AvailableTickets)
	return *ev.AvailableTickets
}

func TestCreateIntentReservesAndCreatesPending(t *testing.T) {
	f := newFixture(t)
	ev := seedEvent(t, f.db, 2500, i64(10))

	res, err := f.svc.CreateIntent(context.Background(), CreateIntentInput{
		UserID: uuid.NewString(), EventID: ev.ID, Quantity: 2,
		FirstName: "Ada", LastName: "Obi", Email: "ada@example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, "cs_test", res.ClientSecret)
	assert.Equal(t, int64(5175), res.Breakdown.Total)
	assert.Equal(t, int64(8), availableOf(t, f.db, ev.ID))

	var p Payment
	require.NoError(t, f.db.First(&p, "id = ?", res.PaymentID).Error)
	assert.Equal(t, StatusPending, p.Status)
	assert.Contains(t, p.StripePaymentIntentID, "pi_")
	assert.Equal(t, int64(4000), p.OrganizerAmount) // 5000 - 2*500
}

func TestCreateIntentProviderFailureReleasesReservation(t *testing.T) {
	f := newFixture(t)
	f.gateway.createErr = errors.New("stripe is down")
	ev := seedEvent(t, f.db, 2500, i64(10))

	_, err := f.svc.CreateIntent(context.Background(), CreateIntentInput{
		UserID: uuid.NewString(), EventID: ev.ID, Quantity: 3,
	})
	require.ErrorIs(t, err, ErrProviderUnavailable)

	assert.Equal(t, int64(10), availableOf(t, f.db, ev.ID))

	var p Payment
	require.NoError(t, f.db.First(&p, "event_id = ?", ev.ID).Error)
	assert.Equal(t, StatusFailed, p.Status)
}

func TestCreateIntentInsufficientTickets(t *testing.T) {
	f := newFixture(t)
	ev := seedEvent(t, f.db, 2500, i64(1))

	_, err := f.svc.CreateIntent(context.Background(), CreateIntentInput{
		UserID: uuid.NewString(), EventID: ev.ID, Quantity: 2,
	})
	require.ErrorIs(t, err, ErrInsufficientTickets)
	assert.Equal(t, int64(1), availableOf(t, f.db, ev.ID))
	assert.Zero(t, f.gateway.intentCalls)
}

func TestCreateIntentFreeEvent(t *testing.T) {
	f := newFixture(t)
	ev := seedEvent(t, f.db, 0, nil)
	require.NoError(t, f.db.Model(&events.Event{}).Where("id = ?", ev.ID).Update("is_free", true).Error)

	_, err := f.svc.CreateIntent(context.Background(), CreateIntentInput{
		UserID: uuid.NewString(), EventID: ev.ID, Quantity: 1,
	})
	require.ErrorIs(t, err, ErrFreeEvent)
}

func TestCreateIntentUnlimitedInventory(t *testing.T) {
	f := newFixture(t)
	ev := seedEvent(t, f.db, 1500, nil)

	_, err := f.svc.CreateIntent(context.Background(), CreateIntentInput{
		UserID: uuid.NewString(), EventID: ev.ID, Quantity: 500,
	})
	require.NoError(t, err)
}

func createSucceededSetup(t *testing.T, f *fixture, qty int64) (events.Event, Payment) {
	t.Helper()
	ev := seedEvent(t, f.db, 2500, i64(10))
	res, err := f.svc.CreateIntent(context.Background(), CreateIntentInput{
		UserID: uuid.NewString(), EventID: ev.ID, Quantity: qty,
		FirstName: "Ada", LastName: "Obi", Email: "ada@example.com",
	})
	require.NoError(t, err)
	var p Payment
	require.NoError(t, f.db.First(&p, "id = ?", res.PaymentID).Error)
	return ev, p
}

func TestReconcileSucceededIssuesTicketsOnce(t *testing.T) {
	f := newFixture(t)
	ev, p := createSucceededSetup(t, f, 3)

	tickets, err := f.svc.ReconcileSucceeded(context.Background(), p.StripePaymentIntentID, "ch_1")
	require.NoError(t, err)
	require.Len(t, tickets, 3)

	var sum int64
	codes := map[string]bool{}
	for _, tk := range tickets {
		sum += tk.TotalPrice
		codes[tk.TicketCode] = true
		assert.Equal(t, TicketConfirmed, tk.Status)
	}
	assert.Equal(t, p.TotalAmount, sum)
	assert.Len(t, codes, 3)

	require.Len(t, f.scheduler.scheduled, 1)
	sched := f.scheduler.scheduled[0]
	assert.Equal(t, p.OrganizerAmount, sched.Amount)
	assert.Equal(t, ev.OrganizerID, sched.OrganizerID)
	assert.Nil(t, sched.StripeAccountID)
	assert.WithinDuration(t, *ev.EndDate, sched.ScheduledFor, time.Second)

	// Replay: same tickets back, nothing scheduled twice.
	again, err := f.svc.ReconcileSucceeded(context.Background(), p.StripePaymentIntentID, "ch_1")
	require.NoError(t, err)
	assert.Len(t, again, 3)
	assert.Len(t, f.scheduler.scheduled, 1)

	var count int64
	require.NoError(t, f.db.Model(&Ticket{}).Where("payment_id = ?", p.ID).Count(&count).Error)
	assert.Equal(t, int64(3), count)
}

func TestReconcileSucceededCapturesStripeRouting(t *testing.T) {
	f := newFixture(t)
	acct := "acct_123"
	f.directory.ref = &acct
	_, p := createSucceededSetup(t, f, 1)

	_, err := f.svc.ReconcileSucceeded(context.Background(), p.StripePaymentIntentID, "ch_1")
	require.NoError(t, err)

	require.Len(t, f.scheduler.scheduled, 1)
	require.NotNil(t, f.scheduler.scheduled[0].StripeAccountID)
	assert.Equal(t, acct, *f.scheduler.scheduled[0].StripeAccountID)
}

func TestReconcileFailedReleasesAndIsSticky(t *testing.T) {
	f := newFixture(t)
	ev, p := createSucceededSetup(t, f, 2)
	assert.Equal(t, int64(8), availableOf(t, f.db, ev.ID))

	require.NoError(t, f.svc.ReconcileFailed(context.Background(), p.StripePaymentIntentID, "card declined"))
	assert.Equal(t, int64(10), availableOf(t, f.db, ev.ID))

	var got Payment
	require.NoError(t, f.db.First(&got, "id = ?", p.ID).Error)
	assert.Equal(t, StatusFailed, got.Status)
	require.NotNil(t, got.FailureReason)
	assert.Equal(t, "card declined", *got.FailureReason)

	// A success after the failure re-reserves and issues tickets.
	tickets, err := f.svc.ReconcileSucceeded(context.Background(), p.StripePaymentIntentID, "ch_1")
	require.NoError(t, err)
	assert.Len(t, tickets, 2)
	assert.Equal(t, int64(8), availableOf(t, f.db, ev.ID))

	// Succeeded is sticky: a late failure changes nothing.
	require.NoError(t, f.svc.ReconcileFailed(context.Background(), p.StripePaymentIntentID, "late failure"))
	require.NoError(t, f.db.First(&got, "id = ?", p.ID).Error)
	assert.Equal(t, StatusSucceeded, got.Status)
	assert.Equal(t, int64(8), availableOf(t, f.db, ev.ID))
}

func TestReconcileSucceededAfterSelloutStaysFailed(t *testing.T) {
	f := newFixture(t)
	ev, p := createSucceededSetup(t, f, 2)
	require.NoError(t, f.svc.ReconcileFailed(context.Background(), p.StripePaymentIntentID, "declined"))

	// Someone else takes the whole inventory.
	require.NoError(t, f.db.Model(&events.Event{}).
		Where("id = ?", ev.ID).Update("available_tickets", 1).Error)

	_, err := f.svc.ReconcileSucceeded(context.Background(), p.StripePaymentIntentID, "ch_1")
	require.ErrorIs(t, err, ErrInsufficientTickets)

	var got Payment
	require.NoError(t, f.db.First(&got, "id = ?", p.ID).Error)
	assert.Equal(t, StatusFailed, got.Status)

	var count int64
	require.NoError(t, f.db.Model(&Ticket{}).Where("payment_id = ?", p.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestReconcileSucceededUnknownIntent(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ReconcileSucceeded(context.Background(), "pi_nope", "ch_1")
	require.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestRefundTicket(t *testing.T) {
	f := newFixture(t)
	ev, p := createSucceededSetup(t, f, 2)
	tickets, err := f.svc.ReconcileSucceeded(context.Background(), p.StripePaymentIntentID, "ch_1")
	require.NoError(t, err)
	tk := tickets[0]

	res, err := f.svc.RefundTicket(context.Background(), tk.ID, tk.UserID)
	require.NoError(t, err)
	assert.Equal(t, "re_test", res.RefundID)

	require.Len(t, f.gateway.refunded, 1)
	assert.Equal(t, tk.TotalPrice, f.gateway.refunded[0].Amount)
	assert.Equal(t, p.StripePaymentIntentID, f.gateway.refunded[0].PaymentIntentID)

	var got Ticket
	require.NoError(t, f.db.First(&got, "id = ?", tk.ID).Error)
	assert.Equal(t, TicketRefunded, got.Status)

	assert.Equal(t, int64(9), availableOf(t, f.db, ev.ID))
	assert.Equal(t, []string{p.ID}, f.scheduler.cancelled)

	// Second refund of the same ticket is rejected.
	_, err = f.svc.RefundTicket(context.Background(), tk.ID, tk.UserID)
	require.ErrorIs(t, err, ErrTicketNotRefundable)
}

func TestRefundTicketClaimsBeforeProviderCall(t *testing.T) {
	f := newFixture(t)
	_, p := createSucceededSetup(t, f, 2)
	tickets, err := f.svc.ReconcileSucceeded(context.Background(), p.StripePaymentIntentID, "ch_1")
	require.NoError(t, err)
	tk := tickets[0]

	// The row must be claimed before the provider is called, so a concurrent
	// request for the same ticket can never reach Stripe a second time.
	var statusDuringCall string
	f.gateway.refundHook = func() {
		var got Ticket
		require.NoError(t, f.db.First(&got, "id = ?", tk.ID).Error)
		statusDuringCall = got.Status
	}

	_, err = f.svc.RefundTicket(context.Background(), tk.ID, tk.UserID)
	require.NoError(t, err)
	assert.Equal(t, TicketRefunded, statusDuringCall)
	require.Len(t, f.gateway.refunded, 1)
}

func TestRefundTicketProviderFailureReleasesClaim(t *testing.T) {
	f := newFixture(t)
	ev, p := createSucceededSetup(t, f, 1)
	tickets, err := f.svc.ReconcileSucceeded(context.Background(), p.StripePaymentIntentID, "ch_1")
	require.NoError(t, err)
	tk := tickets[0]

	f.gateway.refundErr = errors.New("stripe is down")
	_, err = f.svc.RefundTicket(context.Background(), tk.ID, tk.UserID)
	require.ErrorIs(t, err, ErrProviderUnavailable)

	// The claim is rolled back: no money moved, so the ticket stays confirmed
	// and nothing downstream fired.
	var got Ticket
	require.NoError(t, f.db.First(&got, "id = ?", tk.ID).Error)
	assert.Equal(t, TicketConfirmed, got.Status)
	assert.Equal(t, int64(9), availableOf(t, f.db, ev.ID))
	assert.Empty(t, f.scheduler.cancelled)

	// A later attempt goes through.
	f.gateway.refundErr = nil
	_, err = f.svc.RefundTicket(context.Background(), tk.ID, tk.UserID)
	require.NoError(t, err)
}

func TestRefundTicketOwnerAndTimingGates(t *testing.T) {
	f := newFixture(t)
	ev, p := createSucceededSetup(t, f, 1)
	tickets, err := f.svc.ReconcileSucceeded(context.Background(), p.StripePaymentIntentID, "ch_1")
	require.NoError(t, err)
	tk := tickets[0]

	_, err = f.svc.RefundTicket(context.Background(), tk.ID, uuid.NewString())
	require.ErrorIs(t, err, ErrNotTicketOwner)

	// Event already started: refunds closed.
	require.NoError(t, f.db.Model(&events.Event{}).
		Where("id = ?", ev.ID).Update("start_date", time.Now().Add(-time.Hour)).Error)
	_, err = f.svc.RefundTicket(context.Background(), tk.ID, tk.UserID)
	require.ErrorIs(t, err, ErrEventAlreadyStarted)

	assert.Empty(t, f.gateway.refunded)
}

func TestMarkRefunded(t *testing.T) {
	f := newFixture(t)
	_, p := createSucceededSetup(t, f, 1)
	_, err := f.svc.ReconcileSucceeded(context.Background(), p.StripePaymentIntentID, "ch_1")
	require.NoError(t, err)

	require.NoError(t, f.svc.MarkRefunded(context.Background(), p.ID, false))
	var got Payment
	require.NoError(t, f.db.First(&got, "id = ?", p.ID).Error)
	assert.Equal(t, StatusPartiallyRefunded, got.Status)

	require.NoError(t, f.svc.MarkRefunded(context.Background(), p.ID, true))
	require.NoError(t, f.db.First(&got, "id = ?", p.ID).Error)
	assert.Equal(t, StatusRefunded, got.Status)

	// Terminal: cannot refund a refunded payment again.
	require.NoError(t, f.svc.MarkRefunded(context.Background(), p.ID, false))
	require.NoError(t, f.db.First(&got, "id = ?", p.ID).Error)
	assert.Equal(t, StatusRefunded, got.Status)
}

func TestBackfillOrganizerAccount(t *testing.T) {
	f := newFixture(t)
	ev, p := createSucceededSetup(t, f, 1)
	_, err := f.svc.ReconcileSucceeded(context.Background(), p.StripePaymentIntentID, "ch_1")
	require.NoError(t, err)

	n, err := f.svc.BackfillOrganizerAccount(context.Background(), ev.OrganizerID, "acct_new")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var got Payment
	require.NoError(t, f.db.First(&got, "id = ?", p.ID).Error)
	require.NotNil(t, got.OrganizerStripeAccountID)
	assert.Equal(t, "acct_new", *got.OrganizerStripeAccountID)

	// Already-stamped payments are untouched on a second run.
	n, err = f.svc.BackfillOrganizerAccount(context.Background(), ev.OrganizerID, "acct_other")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestExpireStaleIntents(t *testing.T) {
	f := newFixture(t)
	ev, p := createSucceededSetup(t, f, 2)
	assert.Equal(t, int64(8), availableOf(t, f.db, ev.ID))

	require.NoError(t, f.db.Model(&Payment{}).
		Where("id = ?", p.ID).Update("created_at", time.Now().Add(-2*time.Hour)).Error)

	n, err := f.svc.ExpireStaleIntents(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{p.StripePaymentIntentID}, f.gateway.cancelled)
	assert.Equal(t, int64(10), availableOf(t, f.db, ev.ID))

	var got Payment
	require.NoError(t, f.db.First(&got, "id = ?", p.ID).Error)
	assert.Equal(t, StatusFailed, got.Status)
}

func TestQuote(t *testing.T) {
	f := newFixture(t)
	ev := seedEvent(t, f.db, 2500, nil)

	q, err := f.svc.Quote(context.Background(), ev.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), q.Subtotal)
	assert.Equal(t, int64(175), q.ProcessingFee)
	assert.Equal(t, int64(5175), q.Total)

	_, err = f.svc.Quote(context.Background(), uuid.NewString(), 1)
	require.ErrorIs(t, err, ErrEventNotFound)

	_, err = f.svc.Quote(context.Background(), ev.ID, 0)
	require.ErrorIs(t, err, ErrInvalidQuantity)
}
