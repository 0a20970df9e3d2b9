package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v5"
	"github.com/tekwealth/tekwealth/internal/clock"
	commissiondomain "github.com/tekwealth/tekwealth/internal/commission/domain"
	obsmetrics "github.com/tekwealth/tekwealth/internal/observability/metrics"
	paymentdomain "github.com/tekwealth/tekwealth/internal/payment/domain"
	plandomain "github.com/tekwealth/tekwealth/internal/plan/domain"
	subscriptiondomain "github.com/tekwealth/tekwealth/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	reconcileMaxTries        = 3
	defaultReconcileInterval = 500 * time.Millisecond
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Repo        subscriptiondomain.Repository
	Plans       plandomain.Service
	Gateway     paymentdomain.Gateway
	Webhooks    paymentdomain.Repository
	Commissions commissiondomain.Service
	Clock       clock.Clock         `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        subscriptiondomain.Repository
	plans       plandomain.Service
	gateway     paymentdomain.Gateway
	webhooks    paymentdomain.Repository
	commissions commissiondomain.Service
	clock       clock.Clock
	obsMetrics  *obsmetrics.Metrics

	reconcileInterval time.Duration
}

func NewService(p Params) subscriptiondomain.Service {
	return newService(p)
}

func newService(p Params) *Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("subscription.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		plans:       p.Plans,
		gateway:     p.Gateway,
		webhooks:    p.Webhooks,
		commissions: p.Commissions,
		clock:       clk,
		obsMetrics:  p.ObsMetrics,

		reconcileInterval: defaultReconcileInterval,
	}
}

func (s *Service) CreatePending(ctx context.Context, req subscriptiondomain.CreatePendingRequest) (*subscriptiondomain.CreatePendingResult, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, subscriptiondomain.ErrUserRequired
	}
	if strings.TrimSpace(req.PlanID) == "" {
		return nil, subscriptiondomain.ErrPlanRequired
	}
	if strings.TrimSpace(req.Currency) == "" {
		return nil, subscriptiondomain.ErrCurrencyRequired
	}
	currency, err := paymentdomain.NormalizeCurrency(req.Currency)
	if err != nil {
		return nil, err
	}

	plan, err := s.plans.Get(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	provider := s.gateway.Provider()
	intent, err := s.gateway.CreateIntent(ctx, paymentdomain.IntentRequest{
		PriceAmount:      plan.PriceUSD,
		PriceCurrency:    commissiondomain.DefaultCurrency,
		PayCurrency:      currency,
		OrderID:          fmt.Sprintf("order_%d", now.UnixMilli()),
		OrderDescription: plan.Name + " Plan Subscription",
	})
	if err != nil {
		s.obsMetrics.RecordPaymentIntent(ctx, provider, "error")
		s.log.Warn("payment intent failed",
			zap.String("provider", provider),
			zap.String("plan_id", plan.ID),
			zap.Error(err),
		)
		return nil, err
	}

	sub := subscriptiondomain.UserSubscription{
		ID:                  s.genID.Generate(),
		UserID:              userID,
		PlanID:              plan.ID,
		Status:              subscriptiondomain.StatusPending,
		PaymentMethod:       currency,
		CryptoTransactionID: intent.PaymentID,
		StartedAt:           now,
		ExpiresAt:           now.AddDate(0, 1, 0),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.repo.Insert(ctx, s.db, &sub); err != nil {
		s.obsMetrics.RecordPaymentIntent(ctx, provider, "persist_error")
		s.log.Error("persist pending subscription failed",
			zap.String("payment_id", intent.PaymentID),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return nil, subscriptiondomain.ErrCreateFailed
	}

	s.obsMetrics.RecordPaymentIntent(ctx, provider, "created")
	s.log.Info("pending subscription created",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("plan_id", plan.ID),
		zap.String("payment_id", intent.PaymentID),
	)
	return &subscriptiondomain.CreatePendingResult{
		Subscription: sub,
		Payment:      *intent,
	}, nil
}

func (s *Service) HandlePaymentWebhook(ctx context.Context, event paymentdomain.StatusEvent) (subscriptiondomain.WebhookResult, error) {
	paymentID := strings.TrimSpace(event.PaymentID)
	status := paymentdomain.NormalizeStatus(string(event.Status))
	if paymentID == "" || status == "" {
		return subscriptiondomain.WebhookResult{}, paymentdomain.ErrInvalidPayload
	}
	provider := strings.TrimSpace(event.Provider)
	if provider == "" {
		provider = s.gateway.Provider()
	}

	// Unknown payments leave no delivery row so a later redelivery can still activate.
	sub, err := s.repo.FindByPaymentID(ctx, s.db, paymentID)
	if err != nil {
		return subscriptiondomain.WebhookResult{}, err
	}
	if sub == nil {
		s.obsMetrics.RecordWebhook(ctx, provider, string(status), subscriptiondomain.OutcomeIgnoredUnknownPayment)
		s.log.Warn("webhook for unknown payment", zap.String("payment_id", paymentID))
		return subscriptiondomain.WebhookResult{Outcome: subscriptiondomain.OutcomeIgnoredUnknownPayment}, nil
	}

	delivery, duplicate, err := s.recordDelivery(ctx, provider, paymentID, status, event.Payload)
	if err != nil {
		return subscriptiondomain.WebhookResult{}, err
	}
	if duplicate {
		s.obsMetrics.RecordWebhook(ctx, provider, string(status), subscriptiondomain.OutcomeDuplicate)
		s.log.Info("webhook delivery already processed",
			zap.String("payment_id", paymentID),
			zap.String("payment_status", string(status)),
		)
		return subscriptiondomain.WebhookResult{Outcome: subscriptiondomain.OutcomeDuplicate}, nil
	}

	switch status {
	case paymentdomain.StatusFinished:
		return s.activate(ctx, delivery, sub)
	case paymentdomain.StatusFailed:
		return s.failPending(ctx, delivery, sub)
	default:
		s.log.Debug("webhook status ignored",
			zap.String("payment_id", paymentID),
			zap.String("payment_status", string(status)),
		)
		return s.finishDelivery(ctx, s.db, delivery, subscriptiondomain.WebhookResult{
			SubscriptionID: sub.ID,
			Outcome:        subscriptiondomain.OutcomeIgnoredStatus,
		})
	}
}

// recordDelivery logs the delivery once per (provider, payment, status).
// A delivery already marked processed is reported as a duplicate.
func (s *Service) recordDelivery(ctx context.Context, provider, paymentID string, status paymentdomain.PaymentStatus, payload []byte) (*paymentdomain.WebhookEventRecord, bool, error) {
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	record := paymentdomain.WebhookEventRecord{
		ID:            s.genID.Generate(),
		Provider:      provider,
		PaymentID:     paymentID,
		PaymentStatus: string(status),
		Payload:       datatypes.JSON(payload),
		ReceivedAt:    s.clock.Now(),
	}
	inserted, err := s.webhooks.RecordEvent(ctx, s.db, &record)
	if err != nil {
		return nil, false, err
	}
	if inserted {
		return &record, false, nil
	}

	existing, err := s.webhooks.FindEvent(ctx, s.db, provider, paymentID, string(status))
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, paymentdomain.ErrInvalidPayload
	}
	if existing.ProcessedAt != nil {
		return existing, true, nil
	}
	return existing, false, nil
}

func (s *Service) finishDelivery(ctx context.Context, db *gorm.DB, delivery *paymentdomain.WebhookEventRecord, result subscriptiondomain.WebhookResult) (subscriptiondomain.WebhookResult, error) {
	if err := s.webhooks.MarkProcessed(ctx, db, delivery.ID, result.Outcome, s.clock.Now()); err != nil {
		return subscriptiondomain.WebhookResult{}, err
	}
	s.obsMetrics.RecordWebhook(ctx, delivery.Provider, delivery.PaymentStatus, result.Outcome)
	return result, nil
}

func (s *Service) activate(ctx context.Context, delivery *paymentdomain.WebhookEventRecord, sub *subscriptiondomain.UserSubscription) (subscriptiondomain.WebhookResult, error) {
	plan, err := s.plans.Get(ctx, sub.PlanID)
	if err != nil {
		return subscriptiondomain.WebhookResult{}, err
	}

	result := subscriptiondomain.WebhookResult{SubscriptionID: sub.ID}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		affected, err := s.repo.Transition(ctx, tx,
			sub.ID,
			[]subscriptiondomain.Status{subscriptiondomain.StatusPending},
			subscriptiondomain.StatusActive,
			s.clock.Now(),
		)
		if err != nil {
			return err
		}
		if affected == 0 {
			result.Outcome = subscriptiondomain.OutcomeDuplicate
			return s.webhooks.MarkProcessed(ctx, tx, delivery.ID, result.Outcome, s.clock.Now())
		}

		distributed, err := s.commissions.DistributeTx(ctx, tx, commissiondomain.DistributeRequest{
			SourceUserID: sub.UserID,
			Amount:       plan.PriceUSD,
			Currency:     commissiondomain.DefaultCurrency,
			SourceRef:    sub.ID.String(),
		})
		if err != nil {
			return err
		}
		result.Outcome = subscriptiondomain.OutcomeActivated
		result.Commissions = distributed.Count
		return s.webhooks.MarkProcessed(ctx, tx, delivery.ID, result.Outcome, s.clock.Now())
	})
	if err != nil {
		s.log.Error("subscription activation failed",
			zap.String("subscription_id", sub.ID.String()),
			zap.String("payment_id", sub.CryptoTransactionID),
			zap.Error(err),
		)
		return subscriptiondomain.WebhookResult{}, err
	}

	s.obsMetrics.RecordWebhook(ctx, delivery.Provider, delivery.PaymentStatus, result.Outcome)
	s.log.Info("subscription payment processed",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("outcome", result.Outcome),
		zap.Int("commissions", result.Commissions),
	)
	return result, nil
}

func (s *Service) failPending(ctx context.Context, delivery *paymentdomain.WebhookEventRecord, sub *subscriptiondomain.UserSubscription) (subscriptiondomain.WebhookResult, error) {
	result := subscriptiondomain.WebhookResult{SubscriptionID: sub.ID}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		affected, err := s.repo.Transition(ctx, tx,
			sub.ID,
			[]subscriptiondomain.Status{subscriptiondomain.StatusPending},
			subscriptiondomain.StatusExpired,
			s.clock.Now(),
		)
		if err != nil {
			return err
		}
		result.Outcome = subscriptiondomain.OutcomeExpired
		if affected == 0 {
			result.Outcome = subscriptiondomain.OutcomeDuplicate
		}
		return s.webhooks.MarkProcessed(ctx, tx, delivery.ID, result.Outcome, s.clock.Now())
	})
	if err != nil {
		return subscriptiondomain.WebhookResult{}, err
	}

	s.obsMetrics.RecordWebhook(ctx, delivery.Provider, delivery.PaymentStatus, result.Outcome)
	s.log.Info("subscription payment failed",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("outcome", result.Outcome),
	)
	return result, nil
}

// Reconcile polls the gateway for a payment's status and applies it as if it
// had been delivered by webhook.
func (s *Service) Reconcile(ctx context.Context, paymentID string) (subscriptiondomain.WebhookResult, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return subscriptiondomain.WebhookResult{}, paymentdomain.ErrInvalidPayload
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.reconcileInterval

	event, err := backoff.Retry(ctx, func() (*paymentdomain.StatusEvent, error) {
		event, err := s.gateway.GetStatus(ctx, paymentID)
		if err != nil {
			if errors.Is(err, paymentdomain.ErrGatewayUnavailable) {
				s.log.Warn("payment status poll failed; retrying", zap.String("payment_id", paymentID), zap.Error(err))
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return event, nil
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(reconcileMaxTries),
	)
	if err != nil {
		return subscriptiondomain.WebhookResult{}, err
	}

	return s.HandlePaymentWebhook(ctx, *event)
}

func (s *Service) ExpireDue(ctx context.Context) (int64, error) {
	affected, err := s.repo.ExpireDue(ctx, s.db, s.clock.Now())
	if err != nil {
		return 0, err
	}
	if affected > 0 {
		s.log.Info("subscriptions expired", zap.Int64("count", affected))
	}
	return affected, nil
}

func (s *Service) Cancel(ctx context.Context, id string) (*subscriptiondomain.UserSubscription, error) {
	subID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	var sub *subscriptiondomain.UserSubscription
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByID(ctx, tx, subID)
		if err != nil {
			return err
		}
		if current == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}
		if current.Status.Terminal() {
			return subscriptiondomain.ErrInvalidTransition
		}

		affected, err := s.repo.Transition(ctx, tx,
			subID,
			[]subscriptiondomain.Status{subscriptiondomain.StatusPending, subscriptiondomain.StatusActive},
			subscriptiondomain.StatusCancelled,
			s.clock.Now(),
		)
		if err != nil {
			return err
		}
		if affected == 0 {
			return subscriptiondomain.ErrInvalidTransition
		}

		sub, err = s.repo.FindByID(ctx, tx, subID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("subscription cancelled", zap.String("subscription_id", subID.String()))
	return sub, nil
}

func (s *Service) Get(ctx context.Context, id string) (*subscriptiondomain.UserSubscription, error) {
	subID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	sub, err := s.repo.FindByID(ctx, s.db, subID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}
	return sub, nil
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]subscriptiondomain.UserSubscription, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, subscriptiondomain.ErrUserRequired
	}
	items, err := s.repo.ListByUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []subscriptiondomain.UserSubscription{}
	}
	return items, nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, subscriptiondomain.ErrInvalidSubscription
	}
	return id, nil
}
