package timeout

import (
	"context"
	"fmt"
	"time"
)

// TimeoutConfig holds timeout configuration for the indexer's suspension
// points (spec.md §5): event source reads, node RPC calls, HTTP fetches,
// store flushes.
type TimeoutConfig struct {
	Default    time.Duration
	Database   time.Duration
	Redis      time.Duration
	HTTP       time.Duration
	Blockchain time.Duration
}

// DefaultTimeoutConfig returns default timeout configuration
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		Default:    30 * time.Second,
		Database:   5 * time.Second,
		Redis:      2 * time.Second,
		HTTP:       30 * time.Second,
		Blockchain: 60 * time.Second,
	}
}

// WithTimeout creates a context with timeout
func WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

// DatabaseTimeout wraps database operations with timeout
func DatabaseTimeout(ctx context.Context, config *TimeoutConfig, fn func(context.Context) error) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, config.Database)
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- fn(timeoutCtx)
	}()

	select {
	case err := <-errChan:
		return err
	case <-timeoutCtx.Done():
		return fmt.Errorf("database operation timeout after %v", config.Database)
	}
}

// BlockchainTimeout wraps EVM node RPC calls with timeout
func BlockchainTimeout(ctx context.Context, config *TimeoutConfig, fn func(context.Context) error) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, config.Blockchain)
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- fn(timeoutCtx)
	}()

	select {
	case err := <-errChan:
		return err
	case <-timeoutCtx.Done():
		return fmt.Errorf("blockchain operation timeout after %v", config.Blockchain)
	}
}
