package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ruteri/pdo-contract-client/cryptoutils"
	"github.com/ruteri/pdo-contract-client/interfaces"
	"github.com/sethvargo/go-retry"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultPollAttempts = 30
)

// Observer waits for committed states to become visible on a ledger.
type Observer struct {
	ledger   interfaces.LedgerClient
	interval time.Duration
	attempts uint64
	log      *slog.Logger
}

// NewObserver polls ledger with the interval and attempt budget from cfg.
func NewObserver(ledger interfaces.LedgerClient, cfg interfaces.LedgerConfig, log *slog.Logger) (*Observer, error) {
	interval, attempts, err := PollPolicy(cfg)
	if err != nil {
		return nil, err
	}
	return &Observer{
		ledger:   ledger,
		interval: interval,
		attempts: attempts,
		log:      log,
	}, nil
}

// PollPolicy returns the configured polling interval and attempt count,
// applying defaults for unset values.
func PollPolicy(cfg interfaces.LedgerConfig) (time.Duration, uint64, error) {
	interval := DefaultPollInterval
	if cfg.PollInterval != "" {
		d, err := time.ParseDuration(cfg.PollInterval)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid poll interval %q: %w", cfg.PollInterval, err)
		}
		if d <= 0 {
			return 0, 0, fmt.Errorf("poll interval must be positive, got %s", d)
		}
		interval = d
	}

	attempts := uint64(DefaultPollAttempts)
	if cfg.PollAttempts < 0 {
		return 0, 0, fmt.Errorf("poll attempts must not be negative, got %d", cfg.PollAttempts)
	}
	if cfg.PollAttempts > 0 {
		attempts = uint64(cfg.PollAttempts)
	}
	return interval, attempts, nil
}

// AwaitGlobalState polls until the state is recorded for the contract. A
// missing state is retried until the attempt budget or ctx runs out; any other
// ledger error ends the wait.
func (o *Observer) AwaitGlobalState(ctx context.Context, contractID string, encodedStateHash string) error {
	stateHash, err := cryptoutils.DecodeStateHash(encodedStateHash)
	if err != nil {
		return err
	}

	backoff := retry.WithMaxRetries(o.attempts-1, retry.NewConstant(o.interval))

	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		details, err := o.ledger.StateDetails(ctx, contractID, stateHash)
		if errors.Is(err, interfaces.ErrStateNotFound) {
			o.log.Debug("State not yet visible", "contractID", contractID, "stateHash", encodedStateHash, "attempt", attempt)
			return retry.RetryableError(err)
		}
		if err != nil {
			return err
		}
		o.log.Debug("State visible on ledger", "contractID", contractID, "stateHash", encodedStateHash, "tx", details.TransactionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("state %s of contract %s after %d attempts: %w", encodedStateHash, contractID, attempt, err)
	}
	return nil
}
