package session

import (
	"errors"
	"net/http"
	"strings"
	"testing"
)

func bootstrappedSession() *Session {
	s := New()
	s.SetCookies([]*http.Cookie{{Name: CookieSessionID, Value: "abc123"}})
	s.SetConfig(&Config{
		ClientID:         456123,
		SessionID:        "abc123",
		TradingURL:       "https://trader.example.com/trading/secure/",
		PAURL:            "https://trader.example.com/pa/secure/",
		ProductSearchURL: "https://trader.example.com/product_search/secure/",
		DictionaryURL:    "https://trader.example.com/product_search/config/dictionary/",
		RefinitivNewsURL: "https://trader.example.com/refinitiv_news/secure/",
	})
	s.SetClient(&Client{ID: "123", IntAccount: 123123})
	return s
}

func TestJoinURL(t *testing.T) {
	tests := []struct {
		name     string
		sections []string
		expected string
	}{
		{
			"base and path",
			[]string{"https://foo.bar", "/rest/of/url"},
			"https://foo.bar/rest/of/url",
		},
		{
			"base with path keeps prefix",
			[]string{"https://foo.bar/product", "/rest/of/url"},
			"https://foo.bar/product/rest/of/url",
		},
		{
			"trailing slash normalized",
			[]string{"https://foo.bar/product/", "/rest/of/url"},
			"https://foo.bar/product/rest/of/url",
		},
		{
			"three sections",
			[]string{"https://foo.bar", "v5/order", "confirm-1"},
			"https://foo.bar/v5/order/confirm-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := JoinURL(tt.sections...); got != tt.expected {
				t.Errorf("JoinURL(%v) = %q, want %q", tt.sections, got, tt.expected)
			}
		})
	}
}

func TestURLBuilders(t *testing.T) {
	s := bootstrappedSession()

	tests := []struct {
		name     string
		build    func() (string, error)
		expected string
	}{
		{
			"portfolio",
			s.PortfolioURL,
			"https://trader.example.com/trading/secure/v5/update/123123;jsessionid=abc123",
		},
		{
			"check order",
			s.CheckOrderURL,
			"https://trader.example.com/trading/secure/v5/checkOrder;jsessionid=abc123",
		},
		{
			"confirm order",
			func() (string, error) { return s.ConfirmOrderURL("conf-9") },
			"https://trader.example.com/trading/secure/v5/order/conf-9;jsessionid=abc123",
		},
		{
			"account info",
			s.AccountInfoURL,
			"https://trader.example.com/trading/secure/v5/account/info/123123;jsessionid=abc123",
		},
		{
			"product search",
			s.ProductSearchURL,
			"https://trader.example.com/product_search/secure/v5/products/lookup",
		},
		{
			"products info",
			s.ProductsInfoURL,
			"https://trader.example.com/product_search/secure/v5/products/info",
		},
		{
			"client info",
			s.ClientInfoURL,
			"https://trader.example.com/pa/secure/client",
		},
		{
			"company news",
			s.NewsURL,
			"https://trader.example.com/refinitiv_news/secure/news-by-company",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.build()
			if err != nil {
				t.Fatalf("builder error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("url = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestURLBuilders_MissingState(t *testing.T) {
	t.Run("no config", func(t *testing.T) {
		s := New()
		s.SetCookies([]*http.Cookie{{Name: CookieSessionID, Value: "x"}})
		if _, err := s.PortfolioURL(); !errors.Is(err, ErrNoConfig) {
			t.Errorf("PortfolioURL() error = %v, want ErrNoConfig", err)
		}
	})

	t.Run("no client", func(t *testing.T) {
		s := New()
		s.SetCookies([]*http.Cookie{{Name: CookieSessionID, Value: "x"}})
		s.SetConfig(&Config{TradingURL: "https://x"})
		if _, err := s.PortfolioURL(); !errors.Is(err, ErrNoClient) {
			t.Errorf("PortfolioURL() error = %v, want ErrNoClient", err)
		}
	})

	t.Run("no news service root", func(t *testing.T) {
		s := New()
		s.SetConfig(&Config{TradingURL: "https://x"})
		if _, err := s.NewsURL(); !errors.Is(err, ErrNoConfig) {
			t.Errorf("NewsURL() error = %v, want ErrNoConfig", err)
		}
	})

	t.Run("no session cookie", func(t *testing.T) {
		s := New()
		s.SetConfig(&Config{TradingURL: "https://x"})
		s.SetClient(&Client{IntAccount: 1})
		if _, err := s.PortfolioURL(); !errors.Is(err, ErrNoSession) {
			t.Errorf("PortfolioURL() error = %v, want ErrNoSession", err)
		}
	})
}

func TestCredentials_Fingerprint(t *testing.T) {
	a := Credentials{Username: "alice", Password: "secret"}
	b := Credentials{Username: "alice", Password: "secret"}
	c := Credentials{Username: "alice", Password: "other"}

	if a.Fingerprint() != b.Fingerprint() {
		t.Error("identical credentials must share a fingerprint")
	}
	if a.Fingerprint() == c.Fingerprint() {
		t.Error("different credentials must not share a fingerprint")
	}
	if strings.Contains(a.Fingerprint(), "alice") || strings.Contains(a.Fingerprint(), "secret") {
		t.Error("fingerprint must not leak the credentials")
	}

	// Separator prevents boundary ambiguity between fields.
	d := Credentials{Username: "alicese", Password: "cret"}
	if a.Fingerprint() == d.Fingerprint() {
		t.Error("field boundaries must contribute to the fingerprint")
	}
}

func TestSession_Cookies(t *testing.T) {
	s := New()

	if _, err := s.SessionID(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("SessionID() on fresh session = %v, want ErrNoSession", err)
	}

	s.SetCookies([]*http.Cookie{
		{Name: CookieSessionID, Value: "first"},
		{Name: "other", Value: "1"},
	})
	s.SetCookies([]*http.Cookie{{Name: CookieSessionID, Value: "second"}})

	id, err := s.SessionID()
	if err != nil {
		t.Fatalf("SessionID() error: %v", err)
	}
	if id != "second" {
		t.Errorf("SessionID() = %q, want %q (later cookie wins)", id, "second")
	}
	if got := len(s.Cookies()); got != 2 {
		t.Errorf("Cookies() returned %d cookies, want 2", got)
	}
}
