package config

import (
	"errors"
	"log"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const defaultCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// ReferralConfig tunes referral code issuance. Commission rates are not
// configurable here; they are fixed program policy.
type ReferralConfig struct {
	CodeLength          int    `mapstructure:"codeLength"`
	CodeAlphabet        string `mapstructure:"codeAlphabet"`
	MaxGenerateAttempts int    `mapstructure:"maxGenerateAttempts"`
	ShareBaseURL        string `mapstructure:"shareBaseURL"`
}

func DefaultReferralConfig() ReferralConfig {
	return ReferralConfig{
		CodeLength:          8,
		CodeAlphabet:        defaultCodeAlphabet,
		MaxGenerateAttempts: 5,
		ShareBaseURL:        "https://tekwealth.app/signup?ref=",
	}
}

// ShareLink is the signup link carrying code, or "" when no base URL is set.
func (c ReferralConfig) ShareLink(code string) string {
	base := strings.TrimSpace(c.ShareBaseURL)
	if base == "" || code == "" {
		return ""
	}
	return base + url.QueryEscape(code)
}

type ReferralConfigHolder struct {
	current atomic.Value // holds ReferralConfig
}

// NewStaticReferralConfigHolder wraps a fixed config, used by tests and tools.
func NewStaticReferralConfigHolder(cfg ReferralConfig) *ReferralConfigHolder {
	holder := &ReferralConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewReferralConfigHolder() (*ReferralConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("referral")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/tekwealth")
	v.AddConfigPath(".")

	v.SetEnvPrefix("TEKWEALTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultReferralConfig()
	v.SetDefault("referral.codeLength", defaults.CodeLength)
	v.SetDefault("referral.codeAlphabet", defaults.CodeAlphabet)
	v.SetDefault("referral.maxGenerateAttempts", defaults.MaxGenerateAttempts)
	v.SetDefault("referral.shareBaseURL", defaults.ShareBaseURL)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	var cfg ReferralConfig
	if err := v.UnmarshalKey("referral", &cfg); err != nil {
		return nil, err
	}
	if err := ValidateReferralConfig(cfg); err != nil {
		return nil, err
	}

	holder := &ReferralConfigHolder{}
	holder.current.Store(cfg)

	if fileFound {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated ReferralConfig
			if err := v.UnmarshalKey("referral", &updated); err != nil {
				log.Printf("[referral-config] reload failed: %v", err)
				return
			}
			if err := ValidateReferralConfig(updated); err != nil {
				log.Printf("[referral-config] invalid config ignored: %v", err)
				return
			}
			holder.current.Store(updated)
			log.Printf("[referral-config] reloaded from %s", e.Name)
		})
	}

	return holder, nil
}

func (h *ReferralConfigHolder) Get() ReferralConfig {
	if h == nil {
		return DefaultReferralConfig()
	}
	cfg, ok := h.current.Load().(ReferralConfig)
	if !ok {
		return DefaultReferralConfig()
	}
	return cfg
}

func ValidateReferralConfig(cfg ReferralConfig) error {
	if cfg.CodeLength < 6 || cfg.CodeLength > 32 {
		return errors.New("referral.codeLength must be between 6 and 32")
	}
	if len(cfg.CodeAlphabet) < 16 {
		return errors.New("referral.codeAlphabet must contain at least 16 characters")
	}
	seen := make(map[rune]struct{}, len(cfg.CodeAlphabet))
	for _, r := range cfg.CodeAlphabet {
		if _, ok := seen[r]; ok {
			return errors.New("referral.codeAlphabet must not repeat characters")
		}
		seen[r] = struct{}{}
	}
	if cfg.MaxGenerateAttempts < 1 || cfg.MaxGenerateAttempts > 20 {
		return errors.New("referral.maxGenerateAttempts must be between 1 and 20")
	}
	return nil
}
