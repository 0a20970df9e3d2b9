package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	commissiondomain "github.com/tekwealth/tekwealth/internal/commission/domain"
	paymentdomain "github.com/tekwealth/tekwealth/internal/payment/domain"
	plandomain "github.com/tekwealth/tekwealth/internal/plan/domain"
	referraldomain "github.com/tekwealth/tekwealth/internal/referral/domain"
	subscriptiondomain "github.com/tekwealth/tekwealth/internal/subscription/domain"
	"github.com/tekwealth/tekwealth/pkg/db/pagination"
)

type errorResponse struct {
	Error string `json:"error"`
}

var (
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrMissingFields      = errors.New("missing_required_fields")
	ErrInvalidAction      = errors.New("invalid_action")
	ErrNotFound           = errors.New("not_found")
	ErrMethodNotAllowed   = errors.New("method_not_allowed")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// errorMapping pairs a sentinel with the status and the fixed message shown to callers.
type errorMapping struct {
	err     error
	status  int
	kind    string
	message string
}

const (
	kindValidation  = "validation_error"
	kindNotFound    = "not_found"
	kindConflict    = "conflict"
	kindMethod      = "method_not_allowed"
	kindRateLimited = "rate_limited"
	kindUnavailable = "unavailable"
	kindInternal    = "internal"
)

var errorMappings = []errorMapping{
	{ErrInvalidRequest, http.StatusBadRequest, kindValidation, "Invalid request body"},
	{ErrMissingFields, http.StatusBadRequest, kindValidation, "Missing required fields"},
	{ErrInvalidAction, http.StatusBadRequest, kindValidation, "Invalid action"},
	{subscriptiondomain.ErrUserRequired, http.StatusBadRequest, kindValidation, "Missing required fields"},
	{subscriptiondomain.ErrPlanRequired, http.StatusBadRequest, kindValidation, "Missing required fields"},
	{subscriptiondomain.ErrCurrencyRequired, http.StatusBadRequest, kindValidation, "Missing required fields"},
	{subscriptiondomain.ErrInvalidSubscription, http.StatusBadRequest, kindValidation, "Invalid subscription id"},
	{plandomain.ErrInvalidPlan, http.StatusBadRequest, kindValidation, "Missing required fields"},
	{paymentdomain.ErrUnsupportedCurrency, http.StatusBadRequest, kindValidation, "Unsupported currency"},
	{paymentdomain.ErrInvalidPayload, http.StatusBadRequest, kindValidation, "Invalid payment payload"},
	{referraldomain.ErrCodeRequired, http.StatusBadRequest, kindValidation, "Referral code required"},
	{referraldomain.ErrUserRequired, http.StatusBadRequest, kindValidation, "User ID required"},
	{commissiondomain.ErrUserRequired, http.StatusBadRequest, kindValidation, "User ID required"},
	{commissiondomain.ErrSourceUserRequired, http.StatusBadRequest, kindValidation, "User ID required"},
	{commissiondomain.ErrInvalidAmount, http.StatusBadRequest, kindValidation, "Subscription amount required"},
	{commissiondomain.ErrInvalidStatus, http.StatusBadRequest, kindValidation, "Invalid commission status"},
	{commissiondomain.ErrInvalidID, http.StatusBadRequest, kindValidation, "Invalid commission id"},
	{pagination.ErrInvalidPageToken, http.StatusBadRequest, kindValidation, "Invalid page token"},

	{ErrNotFound, http.StatusNotFound, kindNotFound, "Not found"},
	{plandomain.ErrPlanNotFound, http.StatusNotFound, kindNotFound, "Plan not found"},
	{referraldomain.ErrCodeNotFound, http.StatusNotFound, kindNotFound, "Invalid referral code"},
	{subscriptiondomain.ErrSubscriptionNotFound, http.StatusNotFound, kindNotFound, "Subscription not found"},
	{commissiondomain.ErrTransactionNotFound, http.StatusNotFound, kindNotFound, "Commission not found"},
	{paymentdomain.ErrPaymentNotFound, http.StatusNotFound, kindNotFound, "Payment not found"},

	{referraldomain.ErrSelfReferral, http.StatusConflict, kindConflict, "Cannot apply your own referral code"},
	{referraldomain.ErrAlreadyReferred, http.StatusConflict, kindConflict, "Referral code already applied"},
	{referraldomain.ErrReferralCycle, http.StatusConflict, kindConflict, "Referral would create a cycle"},
	{subscriptiondomain.ErrInvalidTransition, http.StatusConflict, kindConflict, "Subscription cannot be changed"},
	{commissiondomain.ErrAlreadyDistributed, http.StatusConflict, kindConflict, "Commissions already calculated"},

	{ErrMethodNotAllowed, http.StatusMethodNotAllowed, kindMethod, "Method not allowed"},
	{ErrRateLimited, http.StatusTooManyRequests, kindRateLimited, "Too many requests"},

	{paymentdomain.ErrGatewayNotConfigured, http.StatusInternalServerError, kindUnavailable, "Payment service not configured"},
	{paymentdomain.ErrGatewayUnavailable, http.StatusInternalServerError, kindUnavailable, "Payment service unavailable"},
	{paymentdomain.ErrIntentRejected, http.StatusInternalServerError, kindUnavailable, "Payment service unavailable"},
	{subscriptiondomain.ErrCreateFailed, http.StatusInternalServerError, kindUnavailable, "Failed to create subscription"},
	{referraldomain.ErrExhaustedRetries, http.StatusInternalServerError, kindUnavailable, "Failed to create referral code"},
	{ErrServiceUnavailable, http.StatusInternalServerError, kindUnavailable, "Service temporarily unavailable"},
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, message := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: message})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

// bindError folds gin binding failures into the two request errors callers see.
func bindError(err error) error {
	var vErrs validator.ValidationErrors
	if errors.As(err, &vErrs) {
		return ErrMissingFields
	}
	return ErrInvalidRequest
}

func lookupError(err error) (errorMapping, bool) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m, true
		}
	}
	return errorMapping{}, false
}

func mapError(err error) (int, string) {
	if m, ok := lookupError(err); ok {
		return m.status, m.message
	}
	return http.StatusInternalServerError, "Internal server error"
}

func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	if m, ok := lookupError(err); ok {
		return m.kind, m.err.Error()
	}
	return kindInternal, "internal_error"
}
