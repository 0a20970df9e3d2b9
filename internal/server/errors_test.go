package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	paymentdomain "github.com/tekwealth/tekwealth/internal/payment/domain"
	referraldomain "github.com/tekwealth/tekwealth/internal/referral/domain"
)

func TestMapErrorUsesFixedMessages(t *testing.T) {
	for _, m := range errorMappings {
		status, message := mapError(fmt.Errorf("wrapped: %w", m.err))
		assert.Equal(t, m.status, status, m.err.Error())
		assert.Equal(t, m.message, message, m.err.Error())
	}
}

func TestMapErrorHidesUnknownErrors(t *testing.T) {
	status, message := mapError(errors.New("pq: relation \"users\" does not exist"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "Internal server error", message)
}

func TestClassifyErrorForLog(t *testing.T) {
	kind, code := classifyErrorForLog(referraldomain.ErrReferralCycle)
	assert.Equal(t, kindConflict, kind)
	assert.Equal(t, "referral_cycle", code)

	kind, code = classifyErrorForLog(paymentdomain.ErrGatewayNotConfigured)
	assert.Equal(t, kindUnavailable, kind)
	assert.Equal(t, "payment_gateway_not_configured", code)

	kind, code = classifyErrorForLog(errors.New("boom"))
	assert.Equal(t, kindInternal, kind)
	assert.Equal(t, "internal_error", code)

	kind, code = classifyErrorForLog(nil)
	assert.Empty(t, kind)
	assert.Empty(t, code)
}

func TestBindError(t *testing.T) {
	assert.ErrorIs(t, bindError(validator.ValidationErrors{}), ErrMissingFields)
	assert.ErrorIs(t, bindError(errors.New("unexpected EOF")), ErrInvalidRequest)
}
