package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tekwealth/tekwealth/internal/clock"
	commissiondomain "github.com/tekwealth/tekwealth/internal/commission/domain"
	commissionrepo "github.com/tekwealth/tekwealth/internal/commission/repository"
	commissionservice "github.com/tekwealth/tekwealth/internal/commission/service"
	ledgerrepo "github.com/tekwealth/tekwealth/internal/ledger/repository"
	ledgerservice "github.com/tekwealth/tekwealth/internal/ledger/service"
	"github.com/tekwealth/tekwealth/internal/payment/adapters"
	"github.com/tekwealth/tekwealth/internal/payment/adapters/sandbox"
	paymentdomain "github.com/tekwealth/tekwealth/internal/payment/domain"
	"github.com/tekwealth/tekwealth/internal/payment/mocks"
	paymentrepo "github.com/tekwealth/tekwealth/internal/payment/repository"
	plandomain "github.com/tekwealth/tekwealth/internal/plan/domain"
	planrepo "github.com/tekwealth/tekwealth/internal/plan/repository"
	planservice "github.com/tekwealth/tekwealth/internal/plan/service"
	subscriptiondomain "github.com/tekwealth/tekwealth/internal/subscription/domain"
	"github.com/tekwealth/tekwealth/internal/subscription/repository"
	"github.com/tekwealth/tekwealth/internal/testutil"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	svc   *Service
	clock *clock.FakeClock
}

func newFixture(t *testing.T, gateway paymentdomain.Gateway) *fixture {
	t.Helper()
	db := testutil.OpenDB(t)
	node := testutil.NewNode(t)
	clk := clock.NewFakeClock(time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC))
	if gateway == nil {
		var err error
		gateway, err = sandbox.NewFactory(clk).NewGateway(paymentdomain.AdapterConfig{APIKey: "sandbox"})
		require.NoError(t, err)
	}

	ledger := ledgerservice.NewService(ledgerservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  ledgerrepo.Provide(),
		Clock: clk,
	})
	commissions := commissionservice.NewService(commissionservice.Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Repo:   commissionrepo.Provide(),
		Ledger: ledger,
		Clock:  clk,
	})
	plans := planservice.NewService(planservice.Params{
		DB:   db,
		Log:  zap.NewNop(),
		Repo: planrepo.Provide(),
	})

	svc := newService(Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Repo:        repository.Provide(),
		Plans:       plans,
		Gateway:     gateway,
		Webhooks:    paymentrepo.Provide(),
		Commissions: commissions,
		Clock:       clk,
	})
	svc.reconcileInterval = time.Millisecond
	return &fixture{db: db, svc: svc, clock: clk}
}

func (f *fixture) insertEdge(t *testing.T, id int64, referrer, referred string, level int) {
	t.Helper()
	err := f.db.Exec(
		`INSERT INTO user_referrals (id, referrer_id, referred_id, level, commission_rate, total_commission, created_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?)`,
		id, referrer, referred, level, commissiondomain.Rate(level), f.clock.Now(),
	).Error
	require.NoError(t, err)
}

func (f *fixture) insertPending(t *testing.T, userID, planID, paymentID string) *subscriptiondomain.UserSubscription {
	t.Helper()
	now := f.clock.Now()
	sub := subscriptiondomain.UserSubscription{
		ID:                  f.svc.genID.Generate(),
		UserID:              userID,
		PlanID:              planID,
		Status:              subscriptiondomain.StatusPending,
		PaymentMethod:       "BTC",
		CryptoTransactionID: paymentID,
		StartedAt:           now,
		ExpiresAt:           now.AddDate(0, 1, 0),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	require.NoError(t, f.svc.repo.Insert(context.Background(), f.db, &sub))
	return &sub
}

func (f *fixture) commissionFor(t *testing.T, userID string) decimal.Decimal {
	t.Helper()
	var row struct {
		Total decimal.Decimal
	}
	err := f.db.Raw(`SELECT COALESCE(SUM(amount), 0) AS total FROM commission_transactions WHERE user_id = ?`, userID).Scan(&row).Error
	require.NoError(t, err)
	return row.Total
}

func (f *fixture) status(t *testing.T, id string) subscriptiondomain.Status {
	t.Helper()
	sub, err := f.svc.Get(context.Background(), id)
	require.NoError(t, err)
	return sub.Status
}

func event(paymentID string, status paymentdomain.PaymentStatus) paymentdomain.StatusEvent {
	return paymentdomain.StatusEvent{
		Provider:  "sandbox",
		PaymentID: paymentID,
		Status:    status,
		Payload:   []byte(fmt.Sprintf(`{"payment_id":%q,"payment_status":%q}`, paymentID, status)),
	}
}

func TestCreatePendingPersistsIntent(t *testing.T) {
	f := newFixture(t, nil)
	now := f.clock.Now()

	result, err := f.svc.CreatePending(context.Background(), subscriptiondomain.CreatePendingRequest{
		UserID:   "user-1",
		PlanID:   "Pro",
		Currency: "btc",
	})
	require.NoError(t, err)

	assert.Equal(t, fmt.Sprintf("np_%d", now.UnixMilli()), result.Payment.PaymentID)
	assert.Equal(t, paymentdomain.StatusWaiting, result.Payment.PaymentStatus)
	assert.Equal(t, "BTC", result.Payment.PayCurrency)
	assert.Equal(t, fmt.Sprintf("order_%d", now.UnixMilli()), result.Payment.OrderID)
	assert.Equal(t, "Pro Plan Subscription", result.Payment.OrderDescription)
	assert.True(t, result.Payment.PriceAmount.Equal(decimal.NewFromInt(50)))

	sub := result.Subscription
	assert.Equal(t, subscriptiondomain.StatusPending, sub.Status)
	assert.Equal(t, "pro", sub.PlanID)
	assert.Equal(t, "BTC", sub.PaymentMethod)
	assert.Equal(t, result.Payment.PaymentID, sub.CryptoTransactionID)
	assert.True(t, sub.ExpiresAt.Equal(now.AddDate(0, 1, 0)))

	stored, err := f.svc.Get(context.Background(), sub.ID.String())
	require.NoError(t, err)
	assert.Equal(t, sub.CryptoTransactionID, stored.CryptoTransactionID)
	assert.Nil(t, stored.ActivatedAt)
}

func TestCreatePendingRejectsInvalidRequests(t *testing.T) {
	f := newFixture(t, nil)

	cases := []struct {
		name string
		req  subscriptiondomain.CreatePendingRequest
		want error
	}{
		{"missing user", subscriptiondomain.CreatePendingRequest{PlanID: "pro", Currency: "BTC"}, subscriptiondomain.ErrUserRequired},
		{"missing plan", subscriptiondomain.CreatePendingRequest{UserID: "u", Currency: "BTC"}, subscriptiondomain.ErrPlanRequired},
		{"missing currency", subscriptiondomain.CreatePendingRequest{UserID: "u", PlanID: "pro"}, subscriptiondomain.ErrCurrencyRequired},
		{"unsupported currency", subscriptiondomain.CreatePendingRequest{UserID: "u", PlanID: "pro", Currency: "DOGE"}, paymentdomain.ErrUnsupportedCurrency},
		{"unknown plan", subscriptiondomain.CreatePendingRequest{UserID: "u", PlanID: "platinum", Currency: "ETH"}, plandomain.ErrPlanNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreatePending(context.Background(), tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Equal(t, int64(0), testutil.Count(t, f.db, "user_subscriptions", ""))
}

func TestCreatePendingWithoutGatewayCredential(t *testing.T) {
	f := newFixture(t, adapters.NewUnconfigured("nowpayments"))

	_, err := f.svc.CreatePending(context.Background(), subscriptiondomain.CreatePendingRequest{
		UserID: "u", PlanID: "basic", Currency: "USDT",
	})
	assert.ErrorIs(t, err, paymentdomain.ErrGatewayNotConfigured)
	assert.Equal(t, int64(0), testutil.Count(t, f.db, "user_subscriptions", ""))
}

func TestCreatePendingPersistenceFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	gw := mocks.NewMockGateway(ctrl)
	gw.EXPECT().Provider().Return("nowpayments").AnyTimes()
	gw.EXPECT().CreateIntent(gomock.Any(), gomock.Any()).Return(&paymentdomain.PaymentIntent{
		PaymentID:     "np_reused",
		PaymentStatus: paymentdomain.StatusWaiting,
	}, nil).Times(2)

	f := newFixture(t, gw)
	req := subscriptiondomain.CreatePendingRequest{UserID: "u", PlanID: "elite", Currency: "ETH"}

	_, err := f.svc.CreatePending(context.Background(), req)
	require.NoError(t, err)

	_, err = f.svc.CreatePending(context.Background(), req)
	assert.ErrorIs(t, err, subscriptiondomain.ErrCreateFailed)
	assert.Equal(t, int64(1), testutil.Count(t, f.db, "user_subscriptions", ""))
}

func TestFinishedWebhookActivatesAndPaysUpline(t *testing.T) {
	f := newFixture(t, nil)
	// z referred a, a referred b.
	f.insertEdge(t, 1, "z", "a", 1)
	f.insertEdge(t, 2, "a", "b", 1)
	f.insertEdge(t, 3, "z", "b", 2)

	created, err := f.svc.CreatePending(context.Background(), subscriptiondomain.CreatePendingRequest{
		UserID: "b", PlanID: "pro", Currency: "USDC",
	})
	require.NoError(t, err)

	result, err := f.svc.HandlePaymentWebhook(context.Background(), event(created.Payment.PaymentID, paymentdomain.StatusFinished))
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.OutcomeActivated, result.Outcome)
	assert.Equal(t, 2, result.Commissions)
	assert.Equal(t, created.Subscription.ID, result.SubscriptionID)

	sub, err := f.svc.Get(context.Background(), created.Subscription.ID.String())
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StatusActive, sub.Status)
	require.NotNil(t, sub.ActivatedAt)

	assert.True(t, f.commissionFor(t, "a").Equal(decimal.RequireFromString("2.5")))
	assert.True(t, f.commissionFor(t, "z").Equal(decimal.RequireFromString("1.5")))
	assert.Equal(t, int64(1), testutil.Count(t, f.db, "payment_webhook_events", "outcome = ? AND processed_at IS NOT NULL", subscriptiondomain.OutcomeActivated))
}

func TestDuplicateWebhookIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	f.insertEdge(t, 1, "a", "b", 1)
	sub := f.insertPending(t, "b", "basic", "np_100")

	first, err := f.svc.HandlePaymentWebhook(context.Background(), event("np_100", paymentdomain.StatusFinished))
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.OutcomeActivated, first.Outcome)

	second, err := f.svc.HandlePaymentWebhook(context.Background(), event("np_100", "FINISHED"))
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.OutcomeDuplicate, second.Outcome)

	assert.Equal(t, subscriptiondomain.StatusActive, f.status(t, sub.ID.String()))
	assert.Equal(t, int64(1), testutil.Count(t, f.db, "commission_transactions", ""))
	assert.Equal(t, int64(1), testutil.Count(t, f.db, "payment_webhook_events", ""))
	assert.True(t, f.commissionFor(t, "a").Equal(decimal.RequireFromString("1.25")))
}

func TestWebhookForUnknownPaymentIsIgnored(t *testing.T) {
	f := newFixture(t, nil)
	sub := f.insertPending(t, "b", "basic", "np_known")

	result, err := f.svc.HandlePaymentWebhook(context.Background(), event("np_missing", paymentdomain.StatusFinished))
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.OutcomeIgnoredUnknownPayment, result.Outcome)
	assert.Equal(t, subscriptiondomain.StatusPending, f.status(t, sub.ID.String()))
	assert.Equal(t, int64(0), testutil.Count(t, f.db, "commission_transactions", ""))
	assert.Equal(t, int64(0), testutil.Count(t, f.db, "payment_webhook_events", ""))
}

func TestWebhookBeforePendingRowIsRetriedOnRedelivery(t *testing.T) {
	f := newFixture(t, nil)
	f.insertEdge(t, 1, "a", "u", 1)

	early, err := f.svc.HandlePaymentWebhook(context.Background(), event("pay_early", paymentdomain.StatusFinished))
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.OutcomeIgnoredUnknownPayment, early.Outcome)
	assert.Equal(t, int64(0), testutil.Count(t, f.db, "payment_webhook_events", ""))

	sub := f.insertPending(t, "u", "pro", "pay_early")

	redelivered, err := f.svc.HandlePaymentWebhook(context.Background(), event("pay_early", paymentdomain.StatusFinished))
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.OutcomeActivated, redelivered.Outcome)
	assert.Equal(t, subscriptiondomain.StatusActive, f.status(t, sub.ID.String()))
	assert.True(t, f.commissionFor(t, "a").Equal(decimal.RequireFromString("2.5")))
}

func TestFailedWebhookExpiresPending(t *testing.T) {
	f := newFixture(t, nil)
	f.insertEdge(t, 1, "a", "b", 1)
	sub := f.insertPending(t, "b", "pro", "np_200")

	result, err := f.svc.HandlePaymentWebhook(context.Background(), event("np_200", paymentdomain.StatusFailed))
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.OutcomeExpired, result.Outcome)
	assert.Equal(t, subscriptiondomain.StatusExpired, f.status(t, sub.ID.String()))

	late, err := f.svc.HandlePaymentWebhook(context.Background(), event("np_200", paymentdomain.StatusFinished))
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.OutcomeDuplicate, late.Outcome)
	assert.Equal(t, subscriptiondomain.StatusExpired, f.status(t, sub.ID.String()))
	assert.Equal(t, int64(0), testutil.Count(t, f.db, "commission_transactions", ""))
}

func TestIntermediateStatusIsIgnored(t *testing.T) {
	f := newFixture(t, nil)
	sub := f.insertPending(t, "b", "pro", "np_300")

	for _, status := range []paymentdomain.PaymentStatus{paymentdomain.StatusConfirming, paymentdomain.StatusPartiallyPaid} {
		result, err := f.svc.HandlePaymentWebhook(context.Background(), event("np_300", status))
		require.NoError(t, err)
		assert.Equal(t, subscriptiondomain.OutcomeIgnoredStatus, result.Outcome)
	}
	assert.Equal(t, subscriptiondomain.StatusPending, f.status(t, sub.ID.String()))
}

func TestWebhookRequiresPaymentAndStatus(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.HandlePaymentWebhook(context.Background(), event(" ", paymentdomain.StatusFinished))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidPayload)

	_, err = f.svc.HandlePaymentWebhook(context.Background(), event("np_1", ""))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidPayload)
}

func TestReconcileRetriesUnavailableGateway(t *testing.T) {
	ctrl := gomock.NewController(t)
	gw := mocks.NewMockGateway(ctrl)
	gw.EXPECT().Provider().Return("nowpayments").AnyTimes()
	gomock.InOrder(
		gw.EXPECT().GetStatus(gomock.Any(), "np_400").Return(nil, paymentdomain.ErrGatewayUnavailable),
		gw.EXPECT().GetStatus(gomock.Any(), "np_400").Return(nil, paymentdomain.ErrGatewayUnavailable),
		gw.EXPECT().GetStatus(gomock.Any(), "np_400").Return(&paymentdomain.StatusEvent{
			Provider:  "nowpayments",
			PaymentID: "np_400",
			Status:    paymentdomain.StatusFinished,
			Payload:   []byte(`{"payment_id":"np_400","payment_status":"finished"}`),
		}, nil),
	)

	f := newFixture(t, gw)
	sub := f.insertPending(t, "b", "elite", "np_400")

	result, err := f.svc.Reconcile(context.Background(), "np_400")
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.OutcomeActivated, result.Outcome)
	assert.Equal(t, subscriptiondomain.StatusActive, f.status(t, sub.ID.String()))
}

func TestReconcileGivesUpAfterMaxTries(t *testing.T) {
	ctrl := gomock.NewController(t)
	gw := mocks.NewMockGateway(ctrl)
	gw.EXPECT().Provider().Return("nowpayments").AnyTimes()
	gw.EXPECT().GetStatus(gomock.Any(), "np_500").Return(nil, paymentdomain.ErrGatewayUnavailable).Times(reconcileMaxTries)

	f := newFixture(t, gw)
	f.insertPending(t, "b", "elite", "np_500")

	_, err := f.svc.Reconcile(context.Background(), "np_500")
	assert.ErrorIs(t, err, paymentdomain.ErrGatewayUnavailable)
}

func TestReconcileStopsOnPermanentError(t *testing.T) {
	ctrl := gomock.NewController(t)
	gw := mocks.NewMockGateway(ctrl)
	gw.EXPECT().Provider().Return("nowpayments").AnyTimes()
	gw.EXPECT().GetStatus(gomock.Any(), "np_600").Return(nil, paymentdomain.ErrPaymentNotFound).Times(1)

	f := newFixture(t, gw)

	_, err := f.svc.Reconcile(context.Background(), "np_600")
	assert.ErrorIs(t, err, paymentdomain.ErrPaymentNotFound)
}

func TestExpireDueExpiresLapsedActiveSubscriptions(t *testing.T) {
	f := newFixture(t, nil)
	active := f.insertPending(t, "b", "basic", "np_700")
	pending := f.insertPending(t, "c", "basic", "np_701")

	_, err := f.svc.HandlePaymentWebhook(context.Background(), event("np_700", paymentdomain.StatusFinished))
	require.NoError(t, err)

	count, err := f.svc.ExpireDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	f.clock.Advance(32 * 24 * time.Hour)
	count, err = f.svc.ExpireDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	assert.Equal(t, subscriptiondomain.StatusExpired, f.status(t, active.ID.String()))
	assert.Equal(t, subscriptiondomain.StatusPending, f.status(t, pending.ID.String()))
}

func TestCancel(t *testing.T) {
	f := newFixture(t, nil)
	sub := f.insertPending(t, "b", "basic", "np_800")

	cancelled, err := f.svc.Cancel(context.Background(), sub.ID.String())
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	_, err = f.svc.Cancel(context.Background(), sub.ID.String())
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidTransition)

	_, err = f.svc.Cancel(context.Background(), "12345")
	assert.ErrorIs(t, err, subscriptiondomain.ErrSubscriptionNotFound)

	_, err = f.svc.Cancel(context.Background(), "not-an-id")
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidSubscription)

	result, err := f.svc.HandlePaymentWebhook(context.Background(), event("np_800", paymentdomain.StatusFinished))
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.OutcomeDuplicate, result.Outcome)
}

func TestListByUser(t *testing.T) {
	f := newFixture(t, nil)
	f.insertPending(t, "b", "basic", "np_900")
	f.insertPending(t, "b", "pro", "np_901")
	f.insertPending(t, "c", "pro", "np_902")

	items, err := f.svc.ListByUser(context.Background(), "b")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "np_901", items[0].CryptoTransactionID)

	items, err = f.svc.ListByUser(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = f.svc.ListByUser(context.Background(), "")
	assert.ErrorIs(t, err, subscriptiondomain.ErrUserRequired)
}
