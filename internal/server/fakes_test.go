package server

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	commissiondomain "github.com/tekwealth/tekwealth/internal/commission/domain"
	paymentdomain "github.com/tekwealth/tekwealth/internal/payment/domain"
	plandomain "github.com/tekwealth/tekwealth/internal/plan/domain"
	referraldomain "github.com/tekwealth/tekwealth/internal/referral/domain"
	subscriptiondomain "github.com/tekwealth/tekwealth/internal/subscription/domain"
	"gorm.io/gorm"
)

type fakeSubscriptionService struct {
	createReq   subscriptiondomain.CreatePendingRequest
	createErr   error
	events      []paymentdomain.StatusEvent
	webhookErr  error
	reconciled  string
	expireCount int64
	cancelErr   error
	subs        []subscriptiondomain.UserSubscription
}

func (f *fakeSubscriptionService) CreatePending(ctx context.Context, req subscriptiondomain.CreatePendingRequest) (*subscriptiondomain.CreatePendingResult, error) {
	f.createReq = req
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &subscriptiondomain.CreatePendingResult{
		Subscription: subscriptiondomain.UserSubscription{ID: snowflake.ID(10), UserID: req.UserID, PlanID: req.PlanID, Status: subscriptiondomain.StatusPending},
		Payment: paymentdomain.PaymentIntent{
			PaymentID:     "np_1",
			PaymentStatus: paymentdomain.StatusWaiting,
			PayAddress:    "addr",
			PriceAmount:   decimal.RequireFromString("29.99"),
			PriceCurrency: "USD",
			PayAmount:     decimal.RequireFromString("0.00087"),
			PayCurrency:   "BTC",
		},
	}, nil
}

func (f *fakeSubscriptionService) HandlePaymentWebhook(ctx context.Context, event paymentdomain.StatusEvent) (subscriptiondomain.WebhookResult, error) {
	f.events = append(f.events, event)
	if f.webhookErr != nil {
		return subscriptiondomain.WebhookResult{}, f.webhookErr
	}
	return subscriptiondomain.WebhookResult{Outcome: subscriptiondomain.OutcomeActivated}, nil
}

func (f *fakeSubscriptionService) Reconcile(ctx context.Context, paymentID string) (subscriptiondomain.WebhookResult, error) {
	f.reconciled = paymentID
	return subscriptiondomain.WebhookResult{Outcome: subscriptiondomain.OutcomeActivated}, nil
}

func (f *fakeSubscriptionService) ExpireDue(ctx context.Context) (int64, error) {
	return f.expireCount, nil
}

func (f *fakeSubscriptionService) Cancel(ctx context.Context, id string) (*subscriptiondomain.UserSubscription, error) {
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	return &subscriptiondomain.UserSubscription{ID: snowflake.ID(10), Status: subscriptiondomain.StatusCancelled}, nil
}

func (f *fakeSubscriptionService) Get(ctx context.Context, id string) (*subscriptiondomain.UserSubscription, error) {
	for i := range f.subs {
		if f.subs[i].ID.String() == id {
			return &f.subs[i], nil
		}
	}
	return nil, subscriptiondomain.ErrSubscriptionNotFound
}

func (f *fakeSubscriptionService) ListByUser(ctx context.Context, userID string) ([]subscriptiondomain.UserSubscription, error) {
	if userID == "" {
		return nil, subscriptiondomain.ErrUserRequired
	}
	return f.subs, nil
}

type fakeReferralService struct {
	ensured   string
	appliedBy string
	applyErr  error
	stats     *referraldomain.Stats
}

func (f *fakeReferralService) Generate(ctx context.Context, ownerID string) (*referraldomain.Code, error) {
	return &referraldomain.Code{Code: "NEWCODE1", UserID: ownerID, IsActive: true}, nil
}

func (f *fakeReferralService) EnsureCode(ctx context.Context, ownerID string) (*referraldomain.Code, error) {
	if ownerID == "" {
		return nil, referraldomain.ErrUserRequired
	}
	f.ensured = ownerID
	return &referraldomain.Code{Code: "ABCD2345", UserID: ownerID, IsActive: true}, nil
}

func (f *fakeReferralService) Apply(ctx context.Context, code, userID string) (*referraldomain.ApplyResult, error) {
	if code == "" {
		return nil, referraldomain.ErrCodeRequired
	}
	if f.applyErr != nil {
		return nil, f.applyErr
	}
	f.appliedBy = userID
	return &referraldomain.ApplyResult{ReferrerID: "alice", EdgesCreated: 3}, nil
}

func (f *fakeReferralService) Deactivate(ctx context.Context, ownerID string) error {
	return nil
}

func (f *fakeReferralService) Stats(ctx context.Context, userID string) (*referraldomain.Stats, error) {
	if userID == "" {
		return nil, referraldomain.ErrUserRequired
	}
	return f.stats, nil
}

type fakeCommissionService struct {
	distributed []commissiondomain.DistributeRequest
	listReq     commissiondomain.ListRequest
}

func (f *fakeCommissionService) Distribute(ctx context.Context, req commissiondomain.DistributeRequest) (commissiondomain.DistributeResult, error) {
	if !req.Amount.IsPositive() {
		return commissiondomain.DistributeResult{}, commissiondomain.ErrInvalidAmount
	}
	f.distributed = append(f.distributed, req)
	return commissiondomain.DistributeResult{Count: 2, Total: decimal.RequireFromString("4")}, nil
}

func (f *fakeCommissionService) DistributeTx(ctx context.Context, tx *gorm.DB, req commissiondomain.DistributeRequest) (commissiondomain.DistributeResult, error) {
	return f.Distribute(ctx, req)
}

func (f *fakeCommissionService) MarkPaid(ctx context.Context, id string) (*commissiondomain.Transaction, error) {
	if id == "404" {
		return nil, commissiondomain.ErrTransactionNotFound
	}
	return &commissiondomain.Transaction{ID: snowflake.ID(7), PaymentStatus: commissiondomain.PaymentStatusPaid}, nil
}

func (f *fakeCommissionService) ListByBeneficiary(ctx context.Context, req commissiondomain.ListRequest) (commissiondomain.ListResponse, error) {
	f.listReq = req
	return commissiondomain.ListResponse{Transactions: []commissiondomain.Transaction{}}, nil
}

type fakePlanService struct {
	plans []plandomain.Plan
}

func (f *fakePlanService) Get(ctx context.Context, id string) (*plandomain.Plan, error) {
	for i := range f.plans {
		if f.plans[i].ID == id {
			return &f.plans[i], nil
		}
	}
	return nil, plandomain.ErrPlanNotFound
}

func (f *fakePlanService) List(ctx context.Context) ([]plandomain.Plan, error) {
	return f.plans, nil
}
