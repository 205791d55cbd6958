// Package api provides the high-level typed operations of the client: login
// with lockout protection, portfolio and product resolution, product search,
// price series and order placement.
//
// The package wires the concurrency cores together: all HTTP traffic runs
// through the rate-limited transport, bulk product resolution goes through
// the chunked batch resolver, product search fans out through the parallel
// pagination helper and exchange lookups are memoized.
package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tradeline/degiro-go/pkg/batch"
	"github.com/tradeline/degiro-go/pkg/cache"
	"github.com/tradeline/degiro-go/pkg/logging"
	"github.com/tradeline/degiro-go/pkg/memo"
	"github.com/tradeline/degiro-go/pkg/session"
	"github.com/tradeline/degiro-go/pkg/throttle"
	"github.com/tradeline/degiro-go/pkg/webapi"
)

// Config holds the client configuration.
type Config struct {
	// Throttle configures the shared rate-limited transport.
	Throttle throttle.Config

	// WebAPI overrides platform endpoints, for tests.
	WebAPI webapi.Config

	// ProductCache is an optional Redis-backed product record cache.
	// Nil disables caching.
	ProductCache *cache.Store

	// Lockout guards login against repeated bad-credentials attempts.
	// Nil selects a guard with default settings.
	Lockout *memo.LockoutGuard
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		Throttle: throttle.DefaultConfig(),
		WebAPI:   webapi.DefaultConfig(),
	}
}

// Client is the high-level trading platform client.
type Client struct {
	web      *webapi.Client
	guard    *memo.LockoutGuard
	products *cache.Store
	resolver *batch.Resolver[string, *Product]
	logger   zerolog.Logger

	exchanges *ExchangeDictionary
}

// New creates a client. The underlying transport, session and resolver are
// owned by the client; one client maps to one platform session.
func New(cfg Config) *Client {
	guard := cfg.Lockout
	if guard == nil {
		guard = memo.NewLockoutGuard(0, 0)
	}

	c := &Client{
		web:      webapi.New(cfg.WebAPI, throttle.New(cfg.Throttle), session.New()),
		guard:    guard,
		products: cfg.ProductCache,
		logger:   logging.NewLogger("api"),
	}
	c.resolver = batch.NewResolver(c.resolveChunk, func(id string) string { return id }, batch.DefaultChunkSize)
	return c
}

// Session exposes the underlying session state.
func (c *Client) Session() *session.Session {
	return c.web.Session()
}

// Login authenticates and bootstraps the session: credentials check, endpoint
// configuration, client record and exchange dictionary.
//
// Credentials that recently failed with a bad-credentials error are blocked
// locally with memo.ErrLockedOut until the lockout window lapses, so retry
// loops cannot trip the platform's account lock.
func (c *Client) Login(ctx context.Context, credentials session.Credentials) error {
	fingerprint := credentials.Fingerprint()
	if err := c.guard.Check(fingerprint); err != nil {
		return fmt.Errorf("login blocked: %w", err)
	}

	if err := c.web.Login(ctx, credentials); err != nil {
		if errors.Is(err, webapi.ErrBadCredentials) {
			c.guard.RecordFailure(fingerprint)
		}
		return err
	}

	if err := c.web.GetConfig(ctx); err != nil {
		return fmt.Errorf("bootstrap config: %w", err)
	}
	if err := c.web.GetClientInfo(ctx); err != nil {
		return fmt.Errorf("bootstrap client info: %w", err)
	}

	exchanges, err := c.loadExchangeDictionary(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap exchange dictionary: %w", err)
	}
	c.exchanges = exchanges

	c.logger.Info().Msg("Session bootstrapped")
	return nil
}

// Exchanges returns the exchange dictionary loaded during Login.
func (c *Client) Exchanges() (*ExchangeDictionary, error) {
	if c.exchanges == nil {
		return nil, errors.New("exchange dictionary not loaded: call Login first")
	}
	return c.exchanges, nil
}

// AccountInfo fetches account information such as base currency.
func (c *Client) AccountInfo(ctx context.Context) (map[string]any, error) {
	return c.web.GetAccountInfo(ctx)
}

// CompanyProfile fetches the company profile for an ISIN.
func (c *Client) CompanyProfile(ctx context.Context, isin string) (map[string]any, error) {
	return c.web.GetCompanyProfile(ctx, isin)
}

// NewsByCompany fetches one page of news for an ISIN.
func (c *Client) NewsByCompany(ctx context.Context, isin string, offset, limit int, languages []string) (*webapi.NewsPage, error) {
	return c.web.GetNewsByCompany(ctx, isin, offset, limit, languages)
}
