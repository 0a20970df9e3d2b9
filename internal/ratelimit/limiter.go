package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/tekwealth/tekwealth/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	keyPaymentClient  = "tekwealth:ratelimit:payment:%s"
	keyReferralClient = "tekwealth:ratelimit:referral:%s"
	keyPaymentLock    = "tekwealth:lock:payment:%s"
)

// Limiter throttles the public endpoints per client and serialises webhook
// processing per payment. A nil or disabled Limiter allows everything.
type Limiter struct {
	enabled bool
	log     *zap.Logger

	bucket *TokenBucket
	locker *Locker

	paymentRate   float64
	paymentBurst  int
	referralRate  float64
	referralBurst int
	lockTTL       time.Duration
}

func NewLimiter(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*Limiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}
	if err := validate(limitCfg); err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:     strings.TrimSpace(limitCfg.RedisAddr),
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				log.Warn("rate limit redis unreachable", zap.Error(err))
			}
			return nil
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})

	return &Limiter{
		enabled:       true,
		log:           log.Named("ratelimit"),
		bucket:        NewTokenBucket(client),
		locker:        NewLocker(client),
		paymentRate:   limitCfg.PaymentRate,
		paymentBurst:  limitCfg.PaymentBurst,
		referralRate:  limitCfg.ReferralRate,
		referralBurst: limitCfg.ReferralBurst,
		lockTTL:       time.Duration(limitCfg.WebhookLockTTLSeconds) * time.Second,
	}, nil
}

func validate(cfg config.RateLimitConfig) error {
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("rate limit redis addr is required")
	}
	if cfg.PaymentRate <= 0 || cfg.PaymentBurst <= 0 {
		return errors.New("payment rate limit must be positive")
	}
	if cfg.ReferralRate <= 0 || cfg.ReferralBurst <= 0 {
		return errors.New("referral rate limit must be positive")
	}
	if cfg.WebhookLockTTLSeconds <= 0 {
		return errors.New("webhook lock ttl must be positive")
	}
	return nil
}

func (l *Limiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *Limiter) AllowPayment(ctx context.Context, clientKey string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyPaymentClient, strings.TrimSpace(clientKey)), l.paymentRate, l.paymentBurst)
}

func (l *Limiter) AllowReferral(ctx context.Context, clientKey string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyReferralClient, strings.TrimSpace(clientKey)), l.referralRate, l.referralBurst)
}

// WithPaymentLock runs fn while no other replica processes the same payment.
// It returns ErrLockHeld without running fn only when another replica holds
// the lock; when Redis cannot be reached fn runs unlocked.
func (l *Limiter) WithPaymentLock(ctx context.Context, paymentID string, fn func() error) error {
	if !l.Enabled() {
		return fn()
	}

	key := fmt.Sprintf(keyPaymentLock, strings.TrimSpace(paymentID))
	token, ok, err := l.locker.TryLock(ctx, key, l.lockTTL)
	if err != nil {
		l.logger().Warn("payment lock unavailable, processing unlocked",
			zap.String("lock_key", key),
			zap.Error(err),
		)
		return fn()
	}
	if !ok {
		return ErrLockHeld
	}
	defer func() {
		if err := l.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			l.logger().Warn("payment lock release failed", zap.String("lock_key", key), zap.Error(err))
		}
	}()
	return fn()
}

func (l *Limiter) logger() *zap.Logger {
	if l.log == nil {
		return zap.NewNop()
	}
	return l.log
}
