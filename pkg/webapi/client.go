// Package webapi provides the low-level DEGIRO web API calls: login and
// bootstrap, trading updates, product lookup and order placement.
//
// Every call opens a scoped handle on the shared rate-limited transport and
// releases it on return, so the underlying HTTP client lives exactly as long
// as calls are in flight. Responses are checked with CheckResponse and
// surfaced as typed APIErrors.
package webapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/tradeline/degiro-go/pkg/logging"
	"github.com/tradeline/degiro-go/pkg/session"
	"github.com/tradeline/degiro-go/pkg/throttle"
)

// BaseURL is the platform root for login and config bootstrap calls.
const BaseURL = "https://trader.degiro.nl"

// ChartingURL is the default price data endpoint.
const ChartingURL = "https://charting.vwdservices.com/hchart/v1/deGiro/data.js"

// Prometheus metrics for web API calls.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "degiro_webapi_requests_total",
		Help: "Total web API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "degiro_webapi_request_duration_seconds",
		Help:    "Web API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})
)

// Config holds the web API client configuration.
type Config struct {
	// BaseURL overrides the platform root, for tests.
	BaseURL string

	// ChartingURL overrides the price data endpoint, for tests.
	ChartingURL string
}

// DefaultConfig returns the production endpoints.
func DefaultConfig() Config {
	return Config{
		BaseURL:     BaseURL,
		ChartingURL: ChartingURL,
	}
}

// Client performs the low-level web API calls against one session.
type Client struct {
	cfg       Config
	transport *throttle.Transport
	session   *session.Session
	logger    zerolog.Logger
}

// New creates a web API client on the given transport and session.
func New(cfg Config, tr *throttle.Transport, sess *session.Session) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseURL
	}
	if cfg.ChartingURL == "" {
		cfg.ChartingURL = ChartingURL
	}
	return &Client{
		cfg:       cfg,
		transport: tr,
		session:   sess,
		logger:    logging.NewLogger("webapi"),
	}
}

// Session returns the session this client populates and reads.
func (c *Client) Session() *session.Session {
	return c.session
}

// do performs one rate-limited request and returns the response body after
// CheckResponse. Session cookies are attached; extraCookies come on top (the
// TOTP step forwards the first login response's cookies this way).
func (c *Client) do(ctx context.Context, method, rawURL string, params url.Values, body []byte, extraCookies []*http.Cookie) ([]byte, *http.Response, error) {
	h := c.transport.Acquire()
	defer h.Release()

	endpoint := endpointLabel(rawURL)
	start := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	if params != nil {
		req.URL.RawQuery = params.Encode()
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for _, cookie := range c.session.Cookies() {
		req.AddCookie(cookie)
	}
	for _, cookie := range extraCookies {
		req.AddCookie(cookie)
	}

	c.logger.Debug().
		Str("method", method).
		Str("endpoint", endpoint).
		Msg("Executing web API request")

	resp, err := h.Do(ctx, req)
	if err != nil {
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		requestsTotal.WithLabelValues(endpoint, "read_error").Inc()
		return nil, nil, fmt.Errorf("read response from %s: %w", endpoint, err)
	}
	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if err := CheckResponse(resp, data, endpoint); err != nil {
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Msg("Web API request error")
		return nil, resp, err
	}
	return data, resp, nil
}

// endpointLabel strips the query and the jsessionid matrix parameter so
// metrics are not exploded by per-session values.
func endpointLabel(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	path := u.Path
	if i := strings.IndexByte(path, ';'); i >= 0 {
		path = path[:i]
	}
	return path
}

// loginPayload is the login request body. The TOTP step reuses it with the
// one-time password set.
type loginPayload struct {
	Username           string            `json:"username"`
	Password           string            `json:"password"`
	IsRedirectToMobile bool              `json:"isRedirectToMobile"`
	IsPassCodeReset    string            `json:"isPassCodeReset"`
	QueryParams        map[string]string `json:"queryParams"`
	OneTimePassword    string            `json:"oneTimePassword,omitempty"`
}

// Login authenticates with the platform and stores the session cookie.
//
// If the account has 2FA enabled the platform answers the first request with
// a TOTP-needed status; the second request then carries a one-time password,
// either computed from the credentials' TOTP secret or passed in directly.
// On bad credentials the returned error wraps ErrBadCredentials.
func (c *Client) Login(ctx context.Context, credentials session.Credentials) error {
	payload := loginPayload{
		Username:           credentials.Username,
		Password:           credentials.Password,
		IsRedirectToMobile: false,
		QueryParams:        map[string]string{"reason": "session_expired"},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal login payload: %w", err)
	}

	loginURL := session.JoinURL(c.cfg.BaseURL, "login/secure/login")
	data, resp, err := c.do(ctx, http.MethodPost, loginURL, nil, body, nil)
	if err != nil {
		return err
	}

	if gjson.GetBytes(data, "status").Int() == loginTOTPNeeded {
		otpCode := credentials.OneTimePassword
		if otpCode == "" && credentials.TOTPSecret != "" {
			otpCode, err = totp.GenerateCode(credentials.TOTPSecret, time.Now())
			if err != nil {
				return fmt.Errorf("generate TOTP code: %w", err)
			}
		}
		if otpCode == "" {
			return ErrTOTPNeeded
		}

		payload.OneTimePassword = otpCode
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal TOTP payload: %w", err)
		}

		totpURL := session.JoinURL(c.cfg.BaseURL, "login/secure/login/totp")
		c.logger.Debug().Msg("Account has 2FA enabled, running TOTP login step")
		data, resp, err = c.do(ctx, http.MethodPost, totpURL, nil, body, resp.Cookies())
		if err != nil {
			return err
		}
	}

	c.session.SetCookies(resp.Cookies())
	if _, err := c.session.SessionID(); err != nil {
		return fmt.Errorf("login response carried no %s cookie", session.CookieSessionID)
	}
	c.logger.Info().Msg("Login successful")
	return nil
}

// GetConfig fetches the per-session endpoint configuration and stores it on
// the session. Must be called after Login and before any trading call.
func (c *Client) GetConfig(ctx context.Context) error {
	configURL := session.JoinURL(c.cfg.BaseURL, "login/secure/config")
	data, _, err := c.do(ctx, http.MethodGet, configURL, nil, nil, nil)
	if err != nil {
		return err
	}

	cfg := &session.Config{
		ClientID:         gjson.GetBytes(data, "data.clientId").Int(),
		SessionID:        gjson.GetBytes(data, "data.sessionId").String(),
		TradingURL:       gjson.GetBytes(data, "data.tradingUrl").String(),
		PAURL:            gjson.GetBytes(data, "data.paUrl").String(),
		ProductSearchURL: gjson.GetBytes(data, "data.productSearchUrl").String(),
		DictionaryURL:    gjson.GetBytes(data, "data.dictionaryUrl").String(),
		ReportingURL:     gjson.GetBytes(data, "data.reportingUrl").String(),
		RefinitivNewsURL: gjson.GetBytes(data, "data.refinitivNewsUrl").String(),
		LoginURL:         gjson.GetBytes(data, "data.loginUrl").String(),
	}
	c.session.SetConfig(cfg)
	return nil
}

// clientInfoKnownFields are mapped to typed Client fields; everything else
// lands in Extra.
var clientInfoKnownFields = map[string]bool{
	"id": true, "intAccount": true, "displayName": true, "email": true,
	"culture": true, "displayLanguage": true, "clientRole": true,
	"contractType": true, "bankAccount": true, "flatexBankAccount": true,
}

// GetClientInfo fetches the client account record and stores it on the
// session. The record's intAccount is required by most trading URLs.
func (c *Client) GetClientInfo(ctx context.Context) error {
	infoURL, err := c.session.ClientInfoURL()
	if err != nil {
		return err
	}
	id, err := c.session.SessionID()
	if err != nil {
		return err
	}

	params := url.Values{"sessionId": {id}}
	data, _, err := c.do(ctx, http.MethodGet, infoURL, params, nil, nil)
	if err != nil {
		return err
	}

	record := gjson.GetBytes(data, "data")
	client := &session.Client{
		// The platform returns id as a number; keep it a string.
		ID:                record.Get("id").String(),
		IntAccount:        record.Get("intAccount").Int(),
		DisplayName:       record.Get("displayName").String(),
		Email:             record.Get("email").String(),
		Culture:           record.Get("culture").String(),
		DisplayLanguage:   record.Get("displayLanguage").String(),
		ClientRole:        record.Get("clientRole").String(),
		ContractType:      record.Get("contractType").String(),
		BankAccount:       parseBankAccount(record.Get("bankAccount")),
		FlatexBankAccount: parseBankAccount(record.Get("flatexBankAccount")),
		Extra:             make(map[string]any),
	}
	record.ForEach(func(key, value gjson.Result) bool {
		if !clientInfoKnownFields[key.String()] {
			client.Extra[key.String()] = value.Value()
		}
		return true
	})
	c.session.SetClient(client)
	return nil
}

func parseBankAccount(result gjson.Result) *session.BankAccount {
	if !result.Exists() {
		return nil
	}
	return &session.BankAccount{
		IBAN:   result.Get("iban").String(),
		BIC:    result.Get("bic").String(),
		Status: result.Get("status").String(),
	}
}

// GetAccountInfo fetches account information such as base currency and cash
// fund settings.
func (c *Client) GetAccountInfo(ctx context.Context) (map[string]any, error) {
	infoURL, err := c.session.AccountInfoURL()
	if err != nil {
		return nil, err
	}
	data, _, err := c.do(ctx, http.MethodGet, infoURL, nil, nil, nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode account info: %w", err)
	}
	return out.Data, nil
}

// GetProductDictionary fetches the product dictionary: human-readable names
// for exchanges, countries, ETF fee types and the like. The raw document is
// returned for the caller to index.
func (c *Client) GetProductDictionary(ctx context.Context) ([]byte, error) {
	dictURL, err := c.session.DictionaryURL()
	if err != nil {
		return nil, err
	}
	params, err := c.accountParams()
	if err != nil {
		return nil, err
	}
	data, _, err := c.do(ctx, http.MethodGet, dictURL, params, nil, nil)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// accountParams builds the intAccount/sessionId query pair most product and
// reporting endpoints require.
func (c *Client) accountParams() (url.Values, error) {
	cfg, err := c.session.Config()
	if err != nil {
		return nil, err
	}
	client, err := c.session.Client()
	if err != nil {
		return nil, err
	}
	return url.Values{
		"intAccount": {strconv.FormatInt(client.IntAccount, 10)},
		"sessionId":  {cfg.SessionID},
	}, nil
}
