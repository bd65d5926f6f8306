package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/aurum-erp/aurum/internal/platform/httpx"
	"github.com/aurum-erp/aurum/internal/settings"
)

// ErrNotConfigured is returned when no source supplies gateway credentials.
var ErrNotConfigured = fmt.Errorf("payment: gateway not configured: %w", httpx.ErrUnavailable)

// Config holds gateway credentials and endpoints.
type Config struct {
	MerchantID  string `json:"merchant_id"`
	SaltKey     string `json:"salt_key"`
	SaltIndex   string `json:"salt_index"`
	BaseURL     string `json:"base_url"`
	RedirectURL string `json:"redirect_url"`
	CallbackURL string `json:"callback_url"`
}

// overlay returns c with every non-empty field of o applied on top.
func (c Config) overlay(o Config) Config {
	pick := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	pick(&c.MerchantID, o.MerchantID)
	pick(&c.SaltKey, o.SaltKey)
	pick(&c.SaltIndex, o.SaltIndex)
	pick(&c.BaseURL, o.BaseURL)
	pick(&c.RedirectURL, o.RedirectURL)
	pick(&c.CallbackURL, o.CallbackURL)
	return c
}

func (c Config) validate() error {
	var missing []string
	if c.MerchantID == "" {
		missing = append(missing, "merchant_id")
	}
	if c.SaltKey == "" {
		missing = append(missing, "salt_key")
	}
	if c.SaltIndex == "" {
		missing = append(missing, "salt_index")
	}
	if c.BaseURL == "" {
		missing = append(missing, "base_url")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrNotConfigured, strings.Join(missing, ", "))
	}
	return nil
}

// SettingsReader loads persisted settings.
type SettingsReader interface {
	Decode(ctx context.Context, key string, dst any) (bool, error)
}

// ConfigResolver merges the configuration sources with one precedence:
// explicit argument, then the persisted store setting, then the
// environment defaults.
type ConfigResolver struct {
	settings SettingsReader
	env      Config
}

// NewConfigResolver constructs ConfigResolver. settings may be nil.
func NewConfigResolver(settings SettingsReader, env Config) *ConfigResolver {
	return &ConfigResolver{settings: settings, env: env}
}

// Resolve returns the effective configuration.
func (r *ConfigResolver) Resolve(ctx context.Context, explicit *Config) (Config, error) {
	cfg := r.env
	if r.settings != nil {
		var persisted Config
		found, err := r.settings.Decode(ctx, settings.KeyPaymentGateway, &persisted)
		if err != nil {
			return Config{}, fmt.Errorf("payment: load gateway settings: %w", err)
		}
		if found {
			cfg = cfg.overlay(persisted)
		}
	}
	if explicit != nil {
		cfg = cfg.overlay(*explicit)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return cfg, nil
}
