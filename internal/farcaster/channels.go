package farcaster

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/anastasiarods/moxie-alerts-bot/internal/logger"
)

// defaultChannelAPIURL is the Warpcast channel directory
const defaultChannelAPIURL = "https://api.warpcast.com/v1/channel"

// Channel is a channel directory entry
type Channel struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// channelResponse is the directory response envelope
type channelResponse struct {
	Result struct {
		Channel Channel `json:"channel"`
	} `json:"result"`
}

// ChannelClient looks up channel details for cast threading
type ChannelClient struct {
	apiURL     string
	httpClient *http.Client
	log        logger.Logger
}

// NewChannelClient creates a channel directory client
func NewChannelClient(apiURL string, timeout time.Duration, log logger.Logger) *ChannelClient {
	if apiURL == "" {
		apiURL = defaultChannelAPIURL
	}
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	return &ChannelClient{
		apiURL: apiURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log.With(logger.F("component", "channels")),
	}
}

// GetChannel returns the channel with the given id, or nil if the directory
// does not know it
func (c *ChannelClient) GetChannel(ctx context.Context, channelID string) (*Channel, error) {
	reqURL := c.apiURL + "?channelId=" + url.QueryEscape(channelID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("channel lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("channel lookup returned status %d", resp.StatusCode)
	}

	var parsed channelResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to parse channel response: %w", err)
	}

	return &parsed.Result.Channel, nil
}
