// Package identity resolves Farcaster identities for wallet addresses via an
// Airstack-style GraphQL API, with a bounded TTL cache in front of the
// rate-limited lookup.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anastasiarods/moxie-alerts-bot/internal/logger"
)

var ErrLookupFailed = errors.New("identity lookup failed")

const userInfoQuery = `
query GetFarcasterUserInfoByAddress($address: Address!) {
  Socials(
    input: {filter: {userAssociatedAddresses: {_eq: $address}, dappName: {_eq: farcaster}}, blockchain: ethereum}
  ) {
    Social {
      profileName
      userId
    }
  }
}
`

// Config holds the resolver configuration
type Config struct {
	Endpoint        string
	APIKey          string
	Timeout         time.Duration
	CacheTTL        time.Duration
	CacheMaxEntries int
}

// Resolver resolves addresses to Farcaster identities
type Resolver struct {
	config     Config
	httpClient *http.Client
	cache      *Cache
	log        logger.Logger
}

// NewResolver creates a new identity resolver
func NewResolver(cfg Config, log logger.Logger) *Resolver {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.CacheMaxEntries == 0 {
		cfg.CacheMaxEntries = 50
	}

	return &Resolver{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		cache: NewCache(cfg.CacheTTL, cfg.CacheMaxEntries),
		log:   log.With(logger.F("component", "identity")),
	}
}

// graphqlRequest is the GraphQL POST body
type graphqlRequest struct {
	Query     string            `json:"query"`
	Variables map[string]string `json:"variables"`
}

// socialRecord is one identity record in the response
type socialRecord struct {
	ProfileName string `json:"profileName"`
	UserID      string `json:"userId"`
}

// lookupResponse is the GraphQL response envelope
type lookupResponse struct {
	Data struct {
		Socials struct {
			Social []socialRecord `json:"Social"`
		} `json:"Socials"`
	} `json:"data"`
}

// Resolve returns the Farcaster identity for an address, or nil if the
// address has no known identity. Results, including nil, are cached.
func (r *Resolver) Resolve(ctx context.Context, address string) (*Identity, error) {
	key := strings.ToLower(address)

	if identity, ok := r.cache.Get(key); ok {
		r.log.Debug("identity cache hit",
			logger.F("address", key),
			logger.F("found", identity != nil),
		)
		return identity, nil
	}

	identity, err := r.lookup(ctx, key)
	if err != nil {
		return nil, err
	}

	r.cache.Set(key, identity)
	return identity, nil
}

// lookup performs the GraphQL query
func (r *Resolver) lookup(ctx context.Context, address string) (*Identity, error) {
	body, err := json.Marshal(graphqlRequest{
		Query:     userInfoQuery,
		Variables: map[string]string{"address": address},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", r.config.APIKey)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrLookupFailed, resp.StatusCode)
	}

	var parsed lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}

	// Pick the first record with a non-empty profile name; an address can be
	// associated with several socials and unnamed ones are not mentionable.
	for _, record := range parsed.Data.Socials.Social {
		if record.ProfileName != "" {
			return &Identity{
				HandleID:    record.UserID,
				DisplayName: record.ProfileName,
			}, nil
		}
	}

	return nil, nil
}
