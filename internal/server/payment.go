package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/tekwealth/tekwealth/internal/observability/logger"
	paymentdomain "github.com/tekwealth/tekwealth/internal/payment/domain"
	"github.com/tekwealth/tekwealth/internal/ratelimit"
	subscriptiondomain "github.com/tekwealth/tekwealth/internal/subscription/domain"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

type createPaymentRequest struct {
	PlanID   string `json:"planId" binding:"required"`
	Currency string `json:"currency" binding:"required"`
	UserID   string `json:"userId" binding:"required"`
}

type paymentView struct {
	PaymentID        string      `json:"payment_id"`
	PaymentStatus    string      `json:"payment_status"`
	PayAddress       string      `json:"pay_address"`
	PriceAmount      json.Number `json:"price_amount"`
	PriceCurrency    string      `json:"price_currency"`
	PayAmount        json.Number `json:"pay_amount"`
	PayCurrency      string      `json:"pay_currency"`
	OrderID          string      `json:"order_id"`
	OrderDescription string      `json:"order_description"`
	PurchaseID       string      `json:"purchase_id"`
	OutcomeAmount    json.Number `json:"outcome_amount"`
	OutcomeCurrency  string      `json:"outcome_currency"`
}

func newPaymentView(intent paymentdomain.PaymentIntent) paymentView {
	return paymentView{
		PaymentID:        intent.PaymentID,
		PaymentStatus:    string(intent.PaymentStatus),
		PayAddress:       intent.PayAddress,
		PriceAmount:      jsonNumber(intent.PriceAmount),
		PriceCurrency:    intent.PriceCurrency,
		PayAmount:        jsonNumber(intent.PayAmount),
		PayCurrency:      intent.PayCurrency,
		OrderID:          intent.OrderID,
		OrderDescription: intent.OrderDescription,
		PurchaseID:       intent.PurchaseID,
		OutcomeAmount:    jsonNumber(intent.OutcomeAmount),
		OutcomeCurrency:  intent.OutcomeCurrency,
	}
}

// jsonNumber renders a decimal as a bare JSON number without float rounding.
func jsonNumber(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

func (s *Server) CreatePayment(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	result, err := s.subscriptionSvc.CreatePending(c.Request.Context(), subscriptiondomain.CreatePendingRequest{
		UserID:   strings.TrimSpace(req.UserID),
		PlanID:   strings.TrimSpace(req.PlanID),
		Currency: strings.TrimSpace(req.Currency),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"payment": newPaymentView(result.Payment),
	})
}

// PaymentWebhook accepts gateway status callbacks. It always answers 200 so
// gateways do not retry deliveries that cannot succeed; failures are logged.
func (s *Server) PaymentWebhook(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.WithContext(ctx, s.log)
	ok := func() { c.JSON(http.StatusOK, gin.H{"success": true}) }

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		log.Warn("payment webhook read failed", zap.Error(err))
		ok()
		return
	}

	if err := s.gateway.Verify(ctx, payload, c.Request.Header); err != nil {
		log.Warn("payment webhook rejected",
			zap.String("provider", s.gateway.Provider()),
			zap.Error(err),
		)
		ok()
		return
	}

	event, err := s.gateway.ParseStatus(ctx, payload)
	if err != nil {
		log.Warn("payment webhook payload invalid", zap.Error(err))
		ok()
		return
	}

	lockKey := event.PaymentID + ":" + string(event.Status)
	err = s.limiter.WithPaymentLock(ctx, lockKey, func() error {
		result, err := s.subscriptionSvc.HandlePaymentWebhook(ctx, *event)
		if err != nil {
			return err
		}
		log.Info("payment webhook handled",
			zap.String("payment_id", event.PaymentID),
			zap.String("payment_status", string(event.Status)),
			zap.String("outcome", result.Outcome),
		)
		return nil
	})
	switch {
	case errors.Is(err, ratelimit.ErrLockHeld):
		log.Info("payment webhook already in flight",
			zap.String("payment_id", event.PaymentID),
			zap.String("payment_status", string(event.Status)),
		)
	case err != nil:
		log.Error("payment webhook processing failed",
			zap.String("payment_id", event.PaymentID),
			zap.String("payment_status", string(event.Status)),
			zap.Error(err),
		)
	}
	ok()
}

type reconcilePaymentRequest struct {
	PaymentID string `json:"payment_id" binding:"required"`
}

func (s *Server) ReconcilePayment(c *gin.Context) {
	var req reconcilePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	result, err := s.subscriptionSvc.Reconcile(c.Request.Context(), strings.TrimSpace(req.PaymentID))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"outcome": result.Outcome,
	})
}
