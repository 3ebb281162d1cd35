package interp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/anastasiarods/moxie-alerts-bot/internal/logger"
)

var (
	ErrDecodeFailed    = errors.New("failed to decode transaction")
	ErrInterpretFailed = errors.New("failed to interpret transaction")
)

// Decoder turns a transaction hash into a decoded transaction.
// A nil result with a nil error means the decoder does not know the tx.
type Decoder interface {
	Decode(ctx context.Context, chainID int, txHash string) (*DecodedTransaction, error)
}

// Interpreter turns a decoded transaction into a structured interpretation
type Interpreter interface {
	Interpret(ctx context.Context, decoded *DecodedTransaction) (*InterpretedTransaction, error)
}

// Config holds the decoder service configuration
type Config struct {
	Endpoint string
	Timeout  time.Duration
}

// Client is an HTTP client for the hosted decoder/interpreter service.
// It implements both Decoder and Interpreter.
type Client struct {
	config     Config
	httpClient *http.Client
	log        logger.Logger
}

// NewClient creates a new decoder service client
func NewClient(cfg Config, log logger.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		log: log.With(logger.F("component", "decoder")),
	}
}

// Decode fetches the decoded representation of a transaction
func (c *Client) Decode(ctx context.Context, chainID int, txHash string) (*DecodedTransaction, error) {
	url := fmt.Sprintf("%s/v1/decode/%d/%s", c.config.Endpoint, chainID, txHash)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrDecodeFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}

	var decoded DecodedTransaction
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	decoded.Raw = body

	return &decoded, nil
}

// Interpret sends a decoded transaction to the interpreter.
// The decoder payload is forwarded as-is with the (possibly filtered)
// transfers substituted in.
func (c *Client) Interpret(ctx context.Context, decoded *DecodedTransaction) (*InterpretedTransaction, error) {
	payload, err := mergeTransfers(decoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInterpretFailed, err)
	}

	url := c.config.Endpoint + "/v1/interpret"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInterpretFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrInterpretFailed, resp.StatusCode)
	}

	var interpreted InterpretedTransaction
	if err := json.NewDecoder(resp.Body).Decode(&interpreted); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInterpretFailed, err)
	}

	return &interpreted, nil
}

// mergeTransfers rebuilds the raw decoder payload with the current transfer
// slice, preserving every decoder field this package does not model.
func mergeTransfers(decoded *DecodedTransaction) ([]byte, error) {
	if len(decoded.Raw) == 0 {
		return json.Marshal(decoded)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(decoded.Raw, &doc); err != nil {
		return nil, err
	}

	transfers, err := json.Marshal(decoded.Transfers)
	if err != nil {
		return nil, err
	}
	doc["transfers"] = transfers

	return json.Marshal(doc)
}
