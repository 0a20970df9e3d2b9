package domain

import (
	"errors"

	"github.com/shopspring/decimal"
)

// MaxLevel is the deepest upline that earns from a payment.
const MaxLevel = 10

// MaxTotalRate caps the combined payout across all levels.
var MaxTotalRate = decimal.RequireFromString("0.20")

var schedule = []decimal.Decimal{
	decimal.RequireFromString("0.05"),
	decimal.RequireFromString("0.03"),
	decimal.RequireFromString("0.02"),
	decimal.RequireFromString("0.0175"),
	decimal.RequireFromString("0.015"),
	decimal.RequireFromString("0.0125"),
	decimal.RequireFromString("0.01"),
	decimal.RequireFromString("0.0075"),
	decimal.RequireFromString("0.005"),
	decimal.RequireFromString("0.0025"),
}

var (
	ErrScheduleLength        = errors.New("commission_schedule_length")
	ErrScheduleNotDecreasing = errors.New("commission_schedule_not_decreasing")
	ErrScheduleExceedsCap    = errors.New("commission_schedule_exceeds_cap")
)

// Rate returns the commission fraction for a referral level, zero outside 1..MaxLevel.
func Rate(level int) decimal.Decimal {
	if level < 1 || level > MaxLevel {
		return decimal.Zero
	}
	return schedule[level-1]
}

// Schedule returns a copy of the per-level rates, index 0 being level 1.
func Schedule() []decimal.Decimal {
	return append([]decimal.Decimal(nil), schedule...)
}

// ValidateSchedule checks that rates are positive, strictly decreasing, and
// sum to at most MaxTotalRate.
func ValidateSchedule(rates []decimal.Decimal) error {
	if len(rates) == 0 || len(rates) > MaxLevel {
		return ErrScheduleLength
	}
	total := decimal.Zero
	for i, rate := range rates {
		if !rate.IsPositive() {
			return ErrScheduleNotDecreasing
		}
		if i > 0 && !rate.LessThan(rates[i-1]) {
			return ErrScheduleNotDecreasing
		}
		total = total.Add(rate)
	}
	if total.GreaterThan(MaxTotalRate) {
		return ErrScheduleExceedsCap
	}
	return nil
}

// Commission computes amount × Rate(level) rounded to 8 decimal places.
func Commission(amount decimal.Decimal, level int) decimal.Decimal {
	return amount.Mul(Rate(level)).Round(8)
}
