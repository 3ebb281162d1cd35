// Package farcaster publishes alert casts through a Farcaster hub.
//
// Cast signing happens inside the hub gateway; this client only holds the
// pre-provisioned signer key and account fid it was configured with and
// passes them along with each submission.
package farcaster

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/anastasiarods/moxie-alerts-bot/internal/logger"
	"github.com/anastasiarods/moxie-alerts-bot/internal/message"
)

var (
	ErrRateLimited   = errors.New("rate limit exceeded")
	ErrPublishFailed = errors.New("failed to publish cast")
	ErrBadMention    = errors.New("mention is not a numeric fid")
)

// Config holds the publisher configuration
type Config struct {
	HubURL           string
	HubAPIKey        string
	SignerPrivateKey string
	AccountFID       string
	RateLimit        int // Casts per minute
	Timeout          time.Duration
	RetryCount       int
}

// embed is a cast embed entry
type embed struct {
	URL string `json:"url"`
}

// castRequest is the submitCast request body
type castRequest struct {
	Text              string   `json:"text"`
	Mentions          []uint64 `json:"mentions"`
	MentionsPositions []int    `json:"mentionsPositions"`
	Embeds            []embed  `json:"embeds,omitempty"`
	ParentURL         string   `json:"parentUrl,omitempty"`
	FID               uint64   `json:"fid"`
}

// castResponse is the submitCast response body
type castResponse struct {
	Hash string `json:"hash"`
}

// Publisher submits casts to the configured hub
type Publisher struct {
	config     Config
	fid        uint64
	httpClient *http.Client
	log        logger.Logger

	mu        sync.Mutex
	castCount int
	lastReset time.Time
}

// NewPublisher creates a new cast publisher
func NewPublisher(cfg Config, log logger.Logger) (*Publisher, error) {
	if cfg.SignerPrivateKey == "" || cfg.AccountFID == "" {
		return nil, fmt.Errorf("signer private key and account fid are required")
	}

	fid, err := strconv.ParseUint(cfg.AccountFID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid account fid %q: %w", cfg.AccountFID, err)
	}

	if cfg.RateLimit == 0 {
		cfg.RateLimit = 30
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Publisher{
		config: cfg,
		fid:    fid,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		log:       log.With(logger.F("component", "farcaster")),
		lastReset: time.Now(),
	}, nil
}

// Publish submits a cast and returns its hash
func (p *Publisher) Publish(ctx context.Context, msg *message.Message) (string, error) {
	if err := p.checkRateLimit(); err != nil {
		return "", err
	}

	mentions := make([]uint64, len(msg.Mentions))
	for i, m := range msg.Mentions {
		fid, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			return "", fmt.Errorf("%w: %q", ErrBadMention, m)
		}
		mentions[i] = fid
	}

	req := castRequest{
		Text:              msg.Text,
		Mentions:          mentions,
		MentionsPositions: msg.MentionsPositions,
		ParentURL:         msg.ParentURL,
		FID:               p.fid,
	}
	if msg.EmbedURL != "" {
		req.Embeds = []embed{{URL: msg.EmbedURL}}
	}

	return p.submitWithRetry(ctx, req)
}

// checkRateLimit checks if we're within rate limits
func (p *Publisher) checkRateLimit() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()

	// Reset counter every minute
	if now.Sub(p.lastReset) >= time.Minute {
		p.castCount = 0
		p.lastReset = now
	}

	if p.castCount >= p.config.RateLimit {
		return ErrRateLimited
	}

	p.castCount++
	return nil
}

// submitWithRetry submits a cast with retry logic
func (p *Publisher) submitWithRetry(ctx context.Context, cast castRequest) (string, error) {
	var lastErr error

	for i := 0; i <= p.config.RetryCount; i++ {
		if i > 0 {
			// Exponential backoff
			backoff := time.Duration(i*i) * time.Second
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		hash, err := p.submit(ctx, cast)
		if err == nil {
			return hash, nil
		}

		lastErr = err
		p.log.Warn("cast submission failed, retrying",
			logger.F("attempt", i+1),
			logger.F("max_retries", p.config.RetryCount),
			logger.F("error", err),
		)
	}

	return "", fmt.Errorf("%w: %v", ErrPublishFailed, lastErr)
}

// submit performs the actual HTTP request to the hub
func (p *Publisher) submit(ctx context.Context, cast castRequest) (string, error) {
	body, err := json.Marshal(cast)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cast: %w", err)
	}

	url := p.config.HubURL + "/v1/submitCast"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-airstack-hubs", p.config.HubAPIKey)
	req.Header.Set("x-farcaster-signer", p.config.SignerPrivateKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("hub returned status %d: %s", resp.StatusCode, respBody)
	}

	var parsed castResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	p.log.Info("new cast published", logger.F("hash", parsed.Hash))
	return parsed.Hash, nil
}
