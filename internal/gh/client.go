// Package gh is the remote client for the GitHub GraphQL API: it fetches
// the signed-in user, organizations and teams, readable repositories and
// pull-request detail, normalizes the nested responses into flat records
// and tracks rate-limit telemetry.
package gh

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cli/go-gh/v2/pkg/api"
)

// Client wraps the GitHub GraphQL client. All methods return an error on
// any non-success response; callers treat that as "no data this cycle",
// never as fatal.
type Client struct {
	gql    *api.GraphQLClient
	logger *slog.Logger

	mu   sync.Mutex
	rate RateLimit
}

// RateLimit is the API quota telemetry observed on the most recent call.
// MinRemaining is the historic minimum seen during this process lifetime.
type RateLimit struct {
	Limit        int
	Remaining    int
	ResetAt      time.Time
	MinRemaining int
}

func NewClient(token string, logger *slog.Logger) (*Client, error) {
	gql, err := api.NewGraphQLClient(api.ClientOptions{AuthToken: token})
	if err != nil {
		return nil, fmt.Errorf("create GraphQL client: %w", err)
	}
	return &Client{
		gql:    gql,
		logger: logger,
		rate:   RateLimit{MinRemaining: -1},
	}, nil
}

// RateLimit returns the latest observed quota telemetry.
func (c *Client) RateLimit() RateLimit {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rate
}

// rateLimitQuery is embedded in every query so each call refreshes the
// telemetry.
type rateLimitQuery struct {
	Limit     int
	Cost      int
	Remaining int
	ResetAt   time.Time
}

func (c *Client) observeRateLimit(rl rateLimitQuery) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rate.Limit = rl.Limit
	c.rate.Remaining = rl.Remaining
	c.rate.ResetAt = rl.ResetAt
	if c.rate.MinRemaining < 0 || rl.Remaining < c.rate.MinRemaining {
		c.rate.MinRemaining = rl.Remaining
	}
	c.logger.Debug("rate limit", "remaining", rl.Remaining, "cost", rl.Cost, "reset_at", rl.ResetAt)
}
