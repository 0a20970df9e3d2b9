package domain

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// WebhookEventRecord is one recorded gateway status delivery.
type WebhookEventRecord struct {
	ID            snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider      string         `json:"provider" gorm:"type:text;not null"`
	PaymentID     string         `json:"payment_id" gorm:"type:text;not null"`
	PaymentStatus string         `json:"payment_status" gorm:"type:text;not null"`
	Payload       datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	Outcome       *string        `json:"outcome,omitempty" gorm:"type:text"`
	ReceivedAt    time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt   *time.Time     `json:"processed_at"`
}

func (WebhookEventRecord) TableName() string { return "payment_webhook_events" }

// PaymentStatus is the gateway's view of a payment.
type PaymentStatus string

const (
	StatusWaiting       PaymentStatus = "waiting"
	StatusConfirming    PaymentStatus = "confirming"
	StatusConfirmed     PaymentStatus = "confirmed"
	StatusSending       PaymentStatus = "sending"
	StatusPartiallyPaid PaymentStatus = "partially_paid"
	StatusFinished      PaymentStatus = "finished"
	StatusFailed        PaymentStatus = "failed"
	StatusRefunded      PaymentStatus = "refunded"
	StatusExpired       PaymentStatus = "expired"
)

// NormalizeStatus lowercases and trims a raw gateway status.
func NormalizeStatus(raw string) PaymentStatus {
	return PaymentStatus(strings.ToLower(strings.TrimSpace(raw)))
}

// SupportedCurrencies lists the pay currencies accepted at checkout.
var SupportedCurrencies = []string{"BTC", "ETH", "USDT", "USDC"}

// NormalizeCurrency upper-cases currency and checks it is supported.
func NormalizeCurrency(currency string) (string, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	for _, c := range SupportedCurrencies {
		if c == currency {
			return currency, nil
		}
	}
	return "", ErrUnsupportedCurrency
}

type IntentRequest struct {
	PriceAmount      decimal.Decimal
	PriceCurrency    string
	PayCurrency      string
	OrderID          string
	OrderDescription string
}

// PaymentIntent is a gateway payment awaiting funds.
type PaymentIntent struct {
	PaymentID        string          `json:"payment_id"`
	PaymentStatus    PaymentStatus   `json:"payment_status"`
	PayAddress       string          `json:"pay_address"`
	PriceAmount      decimal.Decimal `json:"price_amount"`
	PriceCurrency    string          `json:"price_currency"`
	PayAmount        decimal.Decimal `json:"pay_amount"`
	PayCurrency      string          `json:"pay_currency"`
	OrderID          string          `json:"order_id"`
	OrderDescription string          `json:"order_description"`
	PurchaseID       string          `json:"purchase_id"`
	OutcomeAmount    decimal.Decimal `json:"outcome_amount"`
	OutcomeCurrency  string          `json:"outcome_currency"`
}

// StatusEvent is a status change reported by a gateway, by webhook or by polling.
type StatusEvent struct {
	Provider  string
	PaymentID string
	Status    PaymentStatus
	Payload   []byte
}

// FlexString accepts a JSON string or number; gateways are inconsistent about id types.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

type statusPayload struct {
	PaymentID     FlexString `json:"payment_id"`
	PaymentStatus string     `json:"payment_status"`
}

// ParseStatusPayload decodes the {payment_id, payment_status} shape shared by
// IPN callbacks and status polls.
func ParseStatusPayload(provider string, payload []byte) (*StatusEvent, error) {
	var body statusPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, ErrInvalidPayload
	}
	paymentID := strings.TrimSpace(body.PaymentID.String())
	status := NormalizeStatus(body.PaymentStatus)
	if paymentID == "" || status == "" {
		return nil, ErrInvalidPayload
	}
	return &StatusEvent{
		Provider:  provider,
		PaymentID: paymentID,
		Status:    status,
		Payload:   payload,
	}, nil
}
