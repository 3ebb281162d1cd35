package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/anastasiarods/moxie-alerts-bot/internal/logger"
)

var ErrReceiptTimeout = errors.New("timed out waiting for transaction receipt")

// ReceiptConfig holds receipt waiter configuration
type ReceiptConfig struct {
	PollInterval time.Duration
	Timeout      time.Duration
}

// ReceiptWaiter polls the HTTP RPC endpoint until a transaction has been
// mined. Logs arrive over the subscription before the decoder can see the
// transaction, so the pipeline waits for the receipt first.
type ReceiptWaiter struct {
	client *ethclient.Client
	config ReceiptConfig
	log    logger.Logger
}

// NewReceiptWaiter dials the HTTP RPC endpoint
func NewReceiptWaiter(rpcURL string, cfg ReceiptConfig, log logger.Logger) (*ReceiptWaiter, error) {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}

	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc endpoint: %w", err)
	}

	return &ReceiptWaiter{
		client: client,
		config: cfg,
		log:    log.With(logger.F("component", "receipts")),
	}, nil
}

// Wait blocks until the transaction is mined and returns its receipt
func (w *ReceiptWaiter) Wait(ctx context.Context, txHash string) (*types.Receipt, error) {
	hash := common.HexToHash(txHash)

	ctx, cancel := context.WithTimeout(ctx, w.config.Timeout)
	defer cancel()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := w.client.TransactionReceipt(ctx, hash)
		if err == nil {
			w.log.Debug("transaction mined",
				logger.F("tx_hash", txHash),
				logger.F("block", receipt.BlockNumber),
				logger.F("status", receipt.Status),
			)
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("failed to fetch receipt for %s: %w", txHash, err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", ErrReceiptTimeout, txHash)
		case <-ticker.C:
		}
	}
}

// Close releases the underlying RPC connection
func (w *ReceiptWaiter) Close() {
	w.client.Close()
}
