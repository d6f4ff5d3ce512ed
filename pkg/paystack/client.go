package paystack

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"
)

var (
	errSecretRequired     = errors.New("paystack secret key is required")
	errInvalidPaystackEnv = fmt.Errorf("paystack environment must be %q or %q", testEnv, liveEnv)
)

// Client carries the gateway secret and environment. Paystack signs webhook
// deliveries with the account secret key, so the same value verifies them.
type Client struct {
	environment   string
	signingSecret string
}

func NewClient(ctx context.Context, cfg config.PaystackConfig, logg *logger.Logger) (*Client, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	secret := strings.TrimSpace(cfg.SecretKey)
	if secret == "" {
		return nil, errSecretRequired
	}
	if err := validateSecretKey(env, secret); err != nil {
		return nil, err
	}

	if logg != nil {
		logg.Info(ctx, fmt.Sprintf("paystack client initialized (%s)", env))
	}

	return &Client{environment: env, signingSecret: secret}, nil
}

func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// SigningSecret returns the key used to verify webhook signatures.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = testEnv
	}
	switch env {
	case testEnv, liveEnv:
		return env, nil
	default:
		return "", errInvalidPaystackEnv
	}
}

func validateSecretKey(env, key string) error {
	switch env {
	case testEnv:
		if strings.HasPrefix(key, "sk_test_") {
			return nil
		}
		return fmt.Errorf("paystack environment %q requires a test secret key (sk_test_)", testEnv)
	case liveEnv:
		if strings.HasPrefix(key, "sk_live_") {
			return nil
		}
		return fmt.Errorf("paystack environment %q requires a live secret key (sk_live_)", liveEnv)
	default:
		return errInvalidPaystackEnv
	}
}
