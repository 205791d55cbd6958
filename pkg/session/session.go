// Package session holds the authentication and bootstrap state shared by all
// web API calls: credentials, the server-supplied endpoint configuration, the
// client account record and the session cookie.
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"sync"
)

// CookieSessionID is the broker's session cookie name.
const CookieSessionID = "JSESSIONID"

// Errors for missing session state. Calls that need bootstrap data return
// these instead of firing half-configured requests.
var (
	// ErrNoSession indicates the session cookie is absent (login not done).
	ErrNoSession = errors.New("session not established: call Login first")

	// ErrNoConfig indicates the endpoint configuration has not been fetched.
	ErrNoConfig = errors.New("session config not set: call GetConfig first")

	// ErrNoClient indicates the client record has not been fetched.
	ErrNoClient = errors.New("session client not set: call GetClientInfo first")
)

// Credentials holds web API credentials.
//
// If 2FA is enabled on the account, either TOTPSecret or OneTimePassword
// must be provided for login to succeed. TOTPSecret is the base32 'Secret'
// field of a 2FA app; OneTimePassword expires quickly, so login must be
// called promptly when using it.
type Credentials struct {
	Username string
	Password string

	TOTPSecret      string
	OneTimePassword string
}

// Fingerprint returns a stable hash of the credentials, suitable as a
// lockout key. The credentials themselves never leave this function.
func (c Credentials) Fingerprint() string {
	h := sha256.New()
	h.Write([]byte(c.Username))
	h.Write([]byte{0})
	h.Write([]byte(c.Password))
	h.Write([]byte{0})
	h.Write([]byte(c.TOTPSecret))
	return hex.EncodeToString(h.Sum(nil))
}

// Config is the per-session endpoint configuration returned by the broker's
// config bootstrap call. URLs here are the roots further calls are built on.
type Config struct {
	ClientID  int64
	SessionID string

	TradingURL       string
	PAURL            string
	ProductSearchURL string
	DictionaryURL    string
	ReportingURL     string
	RefinitivNewsURL string
	LoginURL         string
}

// BankAccount is a bank account summary attached to the client record.
type BankAccount struct {
	IBAN   string
	BIC    string
	Status string
}

// Client is the account record returned by the client-info bootstrap call.
// Fields the mapping does not recognize are preserved in Extra.
type Client struct {
	ID         string
	IntAccount int64

	DisplayName     string
	Email           string
	Culture         string
	DisplayLanguage string
	ClientRole      string
	ContractType    string

	BankAccount       *BankAccount
	FlatexBankAccount *BankAccount

	Extra map[string]any
}

// Session is the mutable connection state: cookie, config and client record.
// It is safe for concurrent use; web API calls both read it (cookies, URLs)
// and populate it (bootstrap calls).
type Session struct {
	mu      sync.RWMutex
	cookies map[string]string
	config  *Config
	client  *Client
}

// New creates an empty session.
func New() *Session {
	return &Session{cookies: make(map[string]string)}
}

// SetCookies stores cookies from a login response, replacing same-name ones.
func (s *Session) SetCookies(cookies []*http.Cookie) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range cookies {
		s.cookies[c.Name] = c.Value
	}
}

// Cookies returns the session cookies for attaching to a request.
func (s *Session) Cookies() []*http.Cookie {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*http.Cookie, 0, len(s.cookies))
	for name, value := range s.cookies {
		out = append(out, &http.Cookie{Name: name, Value: value})
	}
	return out
}

// SessionID returns the JSESSIONID cookie value.
func (s *Session) SessionID() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.cookies[CookieSessionID]
	if !ok || id == "" {
		return "", ErrNoSession
	}
	return id, nil
}

// SetConfig stores the bootstrap configuration.
func (s *Session) SetConfig(cfg *Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = cfg
}

// Config returns the bootstrap configuration.
func (s *Session) Config() (*Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.config == nil {
		return nil, ErrNoConfig
	}
	return s.config, nil
}

// SetClient stores the client account record.
func (s *Session) SetClient(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = c
}

// Client returns the client account record.
func (s *Session) Client() (*Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.client == nil {
		return nil, ErrNoClient
	}
	return s.client, nil
}
