package config

import "testing"

func TestValidateReferralConfigDefaults(t *testing.T) {
	if err := ValidateReferralConfig(DefaultReferralConfig()); err != nil {
		t.Fatalf("expected defaults to be valid, got %v", err)
	}
}

func TestValidateReferralConfigRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ReferralConfig)
	}{
		{name: "short code", mutate: func(c *ReferralConfig) { c.CodeLength = 3 }},
		{name: "tiny alphabet", mutate: func(c *ReferralConfig) { c.CodeAlphabet = "ABC" }},
		{name: "repeated alphabet", mutate: func(c *ReferralConfig) { c.CodeAlphabet = "AABCDEFGHJKLMNPQRS" }},
		{name: "zero attempts", mutate: func(c *ReferralConfig) { c.MaxGenerateAttempts = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultReferralConfig()
			tt.mutate(&cfg)
			if err := ValidateReferralConfig(cfg); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestReferralConfigHolderFallsBackToDefaults(t *testing.T) {
	var holder *ReferralConfigHolder
	if got := holder.Get(); got.CodeLength != DefaultReferralConfig().CodeLength {
		t.Fatalf("expected default code length, got %d", got.CodeLength)
	}

	static := NewStaticReferralConfigHolder(ReferralConfig{CodeLength: 10, CodeAlphabet: defaultCodeAlphabet, MaxGenerateAttempts: 3})
	if got := static.Get(); got.CodeLength != 10 || got.MaxGenerateAttempts != 3 {
		t.Fatalf("unexpected config %+v", got)
	}
}

func TestLoadReadsPaymentEnv(t *testing.T) {
	t.Setenv("NOWPAYMENTS_API_KEY", " key_123 ")
	t.Setenv("PAYMENT_PROVIDER", "Sandbox")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg := Load()
	if !cfg.Payment.Configured() {
		t.Fatalf("expected payment to be configured")
	}
	if cfg.Payment.APIKey != "key_123" {
		t.Fatalf("expected trimmed api key, got %q", cfg.Payment.APIKey)
	}
	if cfg.Payment.Provider != "sandbox" {
		t.Fatalf("expected provider sandbox, got %q", cfg.Payment.Provider)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 {
		t.Fatalf("expected 2 origins, got %v", cfg.CORS.AllowedOrigins)
	}
}

func TestReferralConfigShareLink(t *testing.T) {
	cfg := DefaultReferralConfig()
	if got := cfg.ShareLink("ABCD2345"); got != "https://tekwealth.app/signup?ref=ABCD2345" {
		t.Fatalf("unexpected share link %q", got)
	}
	if got := cfg.ShareLink(""); got != "" {
		t.Fatalf("expected no link without a code, got %q", got)
	}
	cfg.ShareBaseURL = "  "
	if got := cfg.ShareLink("ABCD2345"); got != "" {
		t.Fatalf("expected no link without a base url, got %q", got)
	}
}
