package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/anastasiarods/moxie-alerts-bot/internal/logger"
)

var (
	ErrTxAlreadyProcessed = errors.New("transaction already processed")
	ErrLockNotAcquired    = errors.New("failed to acquire lock")
)

const (
	// Key prefixes
	prefixTxLock      = "tx:lock:"
	prefixTxProcessed = "tx:processed:"

	// Default TTLs. The processed marker only needs to outlive the
	// duplicate-delivery window around a resubscribe.
	defaultLockTTL      = 30 * time.Second
	defaultProcessedTTL = 10 * time.Minute
)

// Deduplicator suppresses duplicate alerts for a transaction hash across
// distributed bot instances. A resubscribe can redeliver logs the previous
// subscription already saw; the processed marker closes that gap.
type Deduplicator struct {
	client     *Client
	log        logger.Logger
	instanceID string

	lockTTL      time.Duration
	processedTTL time.Duration
}

// DeduplicatorConfig holds configuration for the deduplicator
type DeduplicatorConfig struct {
	LockTTL      time.Duration
	ProcessedTTL time.Duration
}

// NewDeduplicator creates a new transaction deduplicator
func NewDeduplicator(client *Client, log logger.Logger, cfg DeduplicatorConfig) *Deduplicator {
	if cfg.LockTTL == 0 {
		cfg.LockTTL = defaultLockTTL
	}
	if cfg.ProcessedTTL == 0 {
		cfg.ProcessedTTL = defaultProcessedTTL
	}

	return &Deduplicator{
		client:       client,
		log:          log.With(logger.F("component", "deduplicator")),
		instanceID:   uuid.New().String(),
		lockTTL:      cfg.LockTTL,
		processedTTL: cfg.ProcessedTTL,
	}
}

// GetInstanceID returns the unique instance identifier
func (d *Deduplicator) GetInstanceID() string {
	return d.instanceID
}

// txKey normalizes a transaction hash into a stable dedup key
func txKey(txHash string) string {
	return strings.ToLower(txHash)
}

// TryAcquireLock attempts to acquire a distributed lock for a transaction.
// Returns true if the lock was acquired, false if another instance holds it.
func (d *Deduplicator) TryAcquireLock(ctx context.Context, txHash string) (bool, error) {
	lockKey := prefixTxLock + txKey(txHash)

	acquired, err := d.client.SetNX(ctx, lockKey, d.instanceID, d.lockTTL)
	if err != nil {
		d.log.Error("failed to acquire lock",
			logger.F("error", err),
			logger.F("tx_hash", txHash),
		)
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}

	if acquired {
		d.log.Debug("lock acquired",
			logger.F("tx_hash", txHash),
			logger.F("instance_id", d.instanceID),
		)
	} else {
		d.log.Debug("lock already held by another instance",
			logger.F("tx_hash", txHash),
		)
	}

	return acquired, nil
}

// ReleaseLock releases the distributed lock for a transaction
func (d *Deduplicator) ReleaseLock(ctx context.Context, txHash string) error {
	lockKey := prefixTxLock + txKey(txHash)

	// Only release if we own the lock (using Lua script for atomicity)
	script := `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`

	result, err := d.client.rdb.Eval(ctx, script, []string{lockKey}, d.instanceID).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}

	if result == 1 {
		d.log.Debug("lock released", logger.F("tx_hash", txHash))
	}

	return nil
}

// MarkAsProcessed marks a transaction as processed to prevent reprocessing
func (d *Deduplicator) MarkAsProcessed(ctx context.Context, txHash string) error {
	processedKey := prefixTxProcessed + txKey(txHash)

	value := d.instanceID + "@" + time.Now().UTC().Format(time.RFC3339)
	if err := d.client.Set(ctx, processedKey, value, d.processedTTL); err != nil {
		return fmt.Errorf("failed to mark as processed: %w", err)
	}

	d.log.Debug("transaction marked as processed",
		logger.F("tx_hash", txHash),
		logger.F("ttl", d.processedTTL),
	)

	return nil
}

// IsProcessed checks if a transaction has already been processed
func (d *Deduplicator) IsProcessed(ctx context.Context, txHash string) (bool, error) {
	processedKey := prefixTxProcessed + txKey(txHash)

	exists, err := d.client.Exists(ctx, processedKey)
	if err != nil {
		return false, fmt.Errorf("failed to check if processed: %w", err)
	}

	return exists > 0, nil
}

// ShouldProcess combines the processed check with lock acquisition.
// Returns true if this instance should process the transaction.
func (d *Deduplicator) ShouldProcess(ctx context.Context, txHash string) (bool, error) {
	processed, err := d.IsProcessed(ctx, txHash)
	if err != nil {
		return false, err
	}
	if processed {
		d.log.Debug("transaction already processed, skipping",
			logger.F("tx_hash", txHash),
		)
		return false, nil
	}

	acquired, err := d.TryAcquireLock(ctx, txHash)
	if err != nil {
		return false, err
	}
	if !acquired {
		d.log.Debug("another instance is processing this transaction",
			logger.F("tx_hash", txHash),
		)
		return false, nil
	}

	// Double-check in case another instance just finished
	processed, err = d.IsProcessed(ctx, txHash)
	if err != nil {
		_ = d.ReleaseLock(ctx, txHash)
		return false, err
	}
	if processed {
		_ = d.ReleaseLock(ctx, txHash)
		return false, nil
	}

	return true, nil
}

// ProcessWithDedup wraps transaction processing with deduplication logic
func (d *Deduplicator) ProcessWithDedup(ctx context.Context, txHash string, processor func() error) error {
	shouldProcess, err := d.ShouldProcess(ctx, txHash)
	if err != nil {
		return fmt.Errorf("dedup check failed: %w", err)
	}

	if !shouldProcess {
		return ErrTxAlreadyProcessed
	}

	processErr := processor()

	// Mark as processed regardless of success (to prevent spam on errors)
	if markErr := d.MarkAsProcessed(ctx, txHash); markErr != nil {
		d.log.Error("failed to mark transaction as processed",
			logger.F("error", markErr),
		)
	}

	if releaseErr := d.ReleaseLock(ctx, txHash); releaseErr != nil {
		d.log.Error("failed to release lock",
			logger.F("error", releaseErr),
		)
	}

	return processErr
}
