// Package camunda wraps the Zeebe client used to activate ranking jobs.
package camunda

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"

	"github.com/EditMuse/EditMuse-sub002/internal/common/config"
	"github.com/EditMuse/EditMuse-sub002/internal/common/logger"
)

// Client wraps the Zeebe gRPC client with connection retry and health checks.
type Client struct {
	client zbc.Client
	config ClientConfig
	logger logger.Logger
}

type ClientConfig struct {
	GatewayAddress         string
	UsePlaintextConnection bool
	ConnectionTimeout      time.Duration
	RequestTimeout         time.Duration
	Retry                  RetryConfig
}

// RetryConfig defines backoff for transient broker failures.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 10,
		BaseDelay:   2 * time.Second,
		MaxDelay:    30 * time.Second,
	}
}

func ConfigFrom(c config.CamundaConfig) ClientConfig {
	return ClientConfig{
		GatewayAddress:         c.BrokerAddress,
		UsePlaintextConnection: true,
		ConnectionTimeout:      10 * time.Second,
		RequestTimeout:         config.GetDuration(c.RequestTimeout),
		Retry:                  DefaultRetryConfig(),
	}
}

// NewClient creates the Zeebe client and waits until the broker answers a
// topology request, retrying transient failures with backoff.
func NewClient(ctx context.Context, cfg ClientConfig, log logger.Logger) (*Client, error) {
	if cfg.GatewayAddress == "" {
		return nil, fmt.Errorf("zeebe gateway address is required")
	}
	if cfg.ConnectionTimeout <= 0 {
		cfg.ConnectionTimeout = 10 * time.Second
	}

	zeebeClient, err := zbc.NewClient(&zbc.ClientConfig{
		GatewayAddress:         cfg.GatewayAddress,
		UsePlaintextConnection: cfg.UsePlaintextConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Zeebe client: %w", err)
	}

	c := &Client{client: zeebeClient, config: cfg, logger: log}
	err = Retry(ctx, cfg.Retry, log, "zeebe topology", c.HealthCheck)
	if err != nil {
		zeebeClient.Close()
		return nil, fmt.Errorf("failed to connect to Zeebe broker at %s: %w", cfg.GatewayAddress, err)
	}

	log.Info("Zeebe client connected", map[string]interface{}{
		"gateway": cfg.GatewayAddress,
	})
	return c, nil
}

func (c *Client) GetClient() zbc.Client {
	return c.client
}

func (c *Client) Close() error {
	return c.client.Close()
}

// HealthCheck sends a topology request bounded by the connection timeout.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.ConnectionTimeout)
	defer cancel()

	if _, err := c.client.NewTopologyCommand().Send(ctx); err != nil {
		return fmt.Errorf("zeebe health check failed: %w", err)
	}
	return nil
}

// Retry runs fn until it succeeds, returns a non-transient error, or the
// attempt budget is spent. The delay doubles from BaseDelay up to MaxDelay.
func Retry(ctx context.Context, rc RetryConfig, log logger.Logger, operation string, fn func(context.Context) error) error {
	attempts := rc.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if !IsRetryable(err) || attempt == attempts-1 {
			break
		}

		delay := Backoff(rc, attempt)
		log.Warn(fmt.Sprintf("%s failed, retrying", operation), map[string]interface{}{
			"error":       err.Error(),
			"attempt":     attempt + 1,
			"maxAttempts": attempts,
			"nextRetryIn": delay.String(),
		})

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s cancelled after %d attempts: %w", operation, attempt+1, ctx.Err())
		}
	}

	return fmt.Errorf("%s failed: %w", operation, err)
}

func Backoff(rc RetryConfig, attempt int) time.Duration {
	delay := rc.BaseDelay
	for i := 0; i < attempt && (rc.MaxDelay <= 0 || delay < rc.MaxDelay); i++ {
		delay *= 2
	}
	if rc.MaxDelay > 0 && delay > rc.MaxDelay {
		return rc.MaxDelay
	}
	return delay
}

// IsRetryable reports whether a broker error is transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, phrase := range []string{
		"connection refused",
		"connection reset",
		"timeout",
		"deadline exceeded",
		"unavailable",
		"unreachable",
		"broken pipe",
		"resource exhausted",
	} {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}
