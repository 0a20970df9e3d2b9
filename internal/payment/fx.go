package payment

import (
	"fmt"
	"strings"
	"time"

	"github.com/tekwealth/tekwealth/internal/clock"
	"github.com/tekwealth/tekwealth/internal/config"
	"github.com/tekwealth/tekwealth/internal/payment/adapters"
	"github.com/tekwealth/tekwealth/internal/payment/adapters/nowpayments"
	"github.com/tekwealth/tekwealth/internal/payment/adapters/sandbox"
	"github.com/tekwealth/tekwealth/internal/payment/domain"
	"github.com/tekwealth/tekwealth/internal/payment/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(clk clock.Clock) *adapters.Registry {
		return adapters.NewRegistry(
			nowpayments.NewFactory(),
			sandbox.NewFactory(clk),
		)
	}),
	fx.Provide(NewGateway),
)

// NewGateway resolves the configured provider. Without an API key the
// service still starts and intent creation reports the gateway as unconfigured.
func NewGateway(cfg config.Config, registry *adapters.Registry, log *zap.Logger) (domain.Gateway, error) {
	provider := cfg.Payment.Provider
	if !registry.ProviderExists(provider) {
		return nil, fmt.Errorf("%w: %q (registered: %s)", domain.ErrProviderNotFound, provider, strings.Join(registry.Providers(), ", "))
	}
	if !cfg.Payment.Configured() {
		log.Warn("payment gateway not configured", zap.String("provider", provider))
		return adapters.NewUnconfigured(provider), nil
	}

	gw, err := registry.NewGateway(provider, domain.AdapterConfig{
		APIKey:         cfg.Payment.APIKey,
		IPNSecret:      cfg.Payment.IPNSecret,
		BaseURL:        cfg.Payment.BaseURL,
		IPNCallbackURL: cfg.Payment.IPNCallbackURL,
		Timeout:        time.Duration(cfg.Payment.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	if err := checkWebhookSecret(cfg, gw.Provider(), log); err != nil {
		return nil, err
	}
	log.Info("payment gateway ready", zap.String("provider", gw.Provider()))
	return gw, nil
}

// checkWebhookSecret refuses unsigned nowpayments webhooks in production.
// Elsewhere it only warns, since local setups rarely have an IPN secret.
func checkWebhookSecret(cfg config.Config, provider string, log *zap.Logger) error {
	if strings.TrimSpace(cfg.Payment.IPNSecret) != "" || provider != nowpayments.ProviderName {
		return nil
	}
	if cfg.IsProduction() {
		return fmt.Errorf("%w: NOWPAYMENTS_IPN_SECRET is required in production", domain.ErrInvalidConfig)
	}
	log.Warn("payment webhook signatures not verified; IPN secret unset",
		zap.String("provider", provider),
		zap.String("environment", cfg.Environment),
	)
	return nil
}
