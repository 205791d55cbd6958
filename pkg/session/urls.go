package session

import (
	"fmt"
	"strings"
)

// JoinURL joins url sections with single slashes. Unlike url.JoinPath-style
// resolution, a leading slash in a later section never discards the path of
// an earlier one.
func JoinURL(sections ...string) string {
	parts := make([]string, 0, len(sections))
	for _, s := range sections {
		parts = append(parts, strings.Trim(s, "/"))
	}
	return strings.Join(parts, "/")
}

// PortfolioURL builds the trading-update url used for portfolio and orders.
func (s *Session) PortfolioURL() (string, error) {
	cfg, err := s.Config()
	if err != nil {
		return "", err
	}
	client, err := s.Client()
	if err != nil {
		return "", err
	}
	id, err := s.SessionID()
	if err != nil {
		return "", err
	}
	return JoinURL(cfg.TradingURL, fmt.Sprintf("v5/update/%d", client.IntAccount)) +
		";jsessionid=" + id, nil
}

// CheckOrderURL builds the order-check url.
func (s *Session) CheckOrderURL() (string, error) {
	cfg, err := s.Config()
	if err != nil {
		return "", err
	}
	id, err := s.SessionID()
	if err != nil {
		return "", err
	}
	return JoinURL(cfg.TradingURL, "v5/checkOrder") + ";jsessionid=" + id, nil
}

// ConfirmOrderURL builds the order-confirmation url for a confirmation id
// obtained from a preceding order check.
func (s *Session) ConfirmOrderURL(confirmationID string) (string, error) {
	cfg, err := s.Config()
	if err != nil {
		return "", err
	}
	id, err := s.SessionID()
	if err != nil {
		return "", err
	}
	return JoinURL(cfg.TradingURL, "v5/order", confirmationID) +
		";jsessionid=" + id, nil
}

// AccountInfoURL builds the account-info url.
func (s *Session) AccountInfoURL() (string, error) {
	cfg, err := s.Config()
	if err != nil {
		return "", err
	}
	client, err := s.Client()
	if err != nil {
		return "", err
	}
	id, err := s.SessionID()
	if err != nil {
		return "", err
	}
	return JoinURL(cfg.TradingURL, fmt.Sprintf("v5/account/info/%d", client.IntAccount)) +
		";jsessionid=" + id, nil
}

// ProductSearchURL builds the product lookup url.
func (s *Session) ProductSearchURL() (string, error) {
	cfg, err := s.Config()
	if err != nil {
		return "", err
	}
	return JoinURL(cfg.ProductSearchURL, "v5/products/lookup"), nil
}

// ProductsInfoURL builds the bulk products-info url.
func (s *Session) ProductsInfoURL() (string, error) {
	cfg, err := s.Config()
	if err != nil {
		return "", err
	}
	return JoinURL(cfg.ProductSearchURL, "v5/products/info"), nil
}

// DictionaryURL returns the product dictionary url.
func (s *Session) DictionaryURL() (string, error) {
	cfg, err := s.Config()
	if err != nil {
		return "", err
	}
	if cfg.DictionaryURL == "" {
		return "", ErrNoConfig
	}
	return cfg.DictionaryURL, nil
}

// NewsURL builds the company-news url. The news service root is optional in
// the platform's config; ErrNoConfig is returned when it is absent.
func (s *Session) NewsURL() (string, error) {
	cfg, err := s.Config()
	if err != nil {
		return "", err
	}
	if cfg.RefinitivNewsURL == "" {
		return "", ErrNoConfig
	}
	return JoinURL(cfg.RefinitivNewsURL, "news-by-company"), nil
}

// ClientInfoURL builds the client-info url.
func (s *Session) ClientInfoURL() (string, error) {
	cfg, err := s.Config()
	if err != nil {
		return "", err
	}
	return JoinURL(cfg.PAURL, "client"), nil
}
