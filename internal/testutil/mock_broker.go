// Package testutil provides testing utilities for the trading platform
// client.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// SessionID is the session cookie value the mock broker hands out.
const SessionID = "mock-session-1"

// IntAccount is the account number of the mock broker's client record.
const IntAccount = 123123

// ClientID is the client id of the mock broker's config.
const ClientID = 456123

// MockResponse defines the behavior of a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockBroker is a configurable mock trading platform server for testing.
//
// Fresh instances answer the login and bootstrap endpoints with canned
// success responses wired back to the mock's own URL, so a client can run
// the full login, config and client-info sequence against it. Trading and
// product endpoints are registered per test with SetHandler or SetResponse.
type MockBroker struct {
	server *httptest.Server

	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount int
	PathCounts   map[string]int
}

// NewMockBroker creates a new mock broker with default login and bootstrap
// handlers installed.
func NewMockBroker() *MockBroker {
	mock := &MockBroker{
		handlers:   make(map[string]func(w http.ResponseWriter, r *http.Request)),
		PathCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := normalizePath(r.URL.Path)

		mock.mu.Lock()
		mock.RequestCount++
		mock.PathCounts[path]++
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		http.NotFound(w, r)
	}))

	mock.installDefaults()
	return mock
}

// URL returns the mock server URL.
func (m *MockBroker) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockBroker) Close() {
	m.server.Close()
}

// SetHandler sets a custom handler for a path. The jsessionid matrix
// parameter is stripped before matching, so paths are registered without it.
func (m *MockBroker) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockBroker) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockBroker) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetPathCount returns the number of requests made to one path.
func (m *MockBroker) GetPathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.PathCounts[path]
}

// installDefaults registers the canned login and bootstrap handlers.
func (m *MockBroker) installDefaults() {
	m.SetHandler("/login/secure/login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: SessionID, Path: "/"})
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status": 0, "statusText": "success", "sessionId": %q}`, SessionID)
	})

	m.SetHandler("/login/secure/login/totp", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: SessionID, Path: "/"})
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status": 0, "statusText": "success", "sessionId": %q}`, SessionID)
	})

	m.SetHandler("/login/secure/config", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, m.ConfigBody())
	})

	m.SetHandler("/product_search/config/dictionary/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, DictionaryBody())
	})

	m.SetHandler("/pa/secure/client", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{
			"data": {
				"id": 999,
				"intAccount": %d,
				"displayName": "Mock Trader",
				"email": "mock@example.com",
				"culture": "fr-FR",
				"displayLanguage": "en",
				"clientRole": "trader",
				"contractType": "BASIC",
				"bankAccount": {"iban": "FR7612345987650123456789014", "bic": "AGRIFRPP", "status": "VERIFIED"},
				"memberCode": "mock-member"
			}
		}`, IntAccount)
	})
}

// ConfigBody returns the config bootstrap response body, with all endpoint
// roots pointing back at the mock server.
func (m *MockBroker) ConfigBody() string {
	base := m.server.URL
	return fmt.Sprintf(`{
		"data": {
			"clientId": %d,
			"sessionId": %q,
			"tradingUrl": %q,
			"paUrl": %q,
			"productSearchUrl": %q,
			"dictionaryUrl": %q,
			"reportingUrl": %q,
			"refinitivNewsUrl": %q,
			"loginUrl": %q
		}
	}`,
		ClientID, SessionID,
		base+"/trading/secure/",
		base+"/pa/secure/",
		base+"/product_search/secure/",
		base+"/product_search/config/dictionary/",
		base+"/reporting/secure/",
		base+"/refinitiv_news/secure/",
		base+"/login/secure/")
}

// DictionaryBody returns a small product dictionary with two exchanges.
func DictionaryBody() string {
	return `{
		"regions": [
			{"id": 1, "name": "Europe"}
		],
		"countries": [
			{"id": 886, "name": "FR", "region": 1},
			{"id": 905, "name": "NL", "region": 1}
		],
		"exchanges": [
			{"id": 710, "name": "Euronext Paris", "city": "Paris", "code": "XPAR", "country": "FR", "hiqAbbr": "EPA", "micCode": "XPAR"},
			{"id": 200, "name": "Euronext Amsterdam", "city": "Amsterdam", "code": "XAMS", "country": "NL", "hiqAbbr": "EAM", "micCode": "XAMS"}
		]
	}`
}

// NewBadCredentialsResponse creates the platform's bad-credentials login
// answer.
func NewBadCredentialsResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusBadRequest,
		Body:       `{"status": 3, "statusText": "badCredentials"}`,
	}
}

// NewTOTPNeededResponse creates the login answer for accounts with 2FA
// enabled.
func NewTOTPNeededResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"status": 6, "statusText": "totpNeeded"}`,
	}
}

// PositionRowJSON renders one portfolio position row in the platform's
// attribute-list encoding.
func PositionRowJSON(productID, positionType string, size, price, value float64) string {
	return fmt.Sprintf(`{
		"id": %q,
		"name": "positionrow",
		"value": [
			{"isAdded": true, "name": "id", "value": %q},
			{"isAdded": true, "name": "positionType", "value": %q},
			{"isAdded": true, "name": "size", "value": %g},
			{"isAdded": true, "name": "price", "value": %g},
			{"isAdded": true, "name": "value", "value": %g},
			{"isAdded": true, "name": "accruedInterest"},
			{"isAdded": true, "name": "plBase", "value": {"EUR": -100.5}},
			{"isAdded": true, "name": "breakEvenPrice", "value": %g},
			{"isAdded": true, "name": "averageFxRate", "value": 1}
		]
	}`, productID, productID, positionType, size, price, value, price)
}

// PortfolioBody wraps position rows into a portfolio update response.
func PortfolioBody(rows ...string) string {
	return fmt.Sprintf(`{
		"portfolio": {
			"isAdded": true,
			"lastUpdated": 1088,
			"name": "portfolio",
			"value": [%s]
		}
	}`, strings.Join(rows, ","))
}

// ProductJSON renders one product record for lookup and products-info
// responses.
func ProductJSON(id, name, isin, symbol string, productTypeID int) string {
	return fmt.Sprintf(`{
		"id": %q,
		"name": %q,
		"isin": %q,
		"symbol": %q,
		"currency": "EUR",
		"exchangeId": "710",
		"productType": "STOCK",
		"productTypeId": %d,
		"tradable": true,
		"active": true,
		"closePrice": 113.3,
		"closePriceDate": "2022-02-02",
		"vwdId": "360114899",
		"vwdIdentifierType": "issueid"
	}`, id, name, isin, symbol, productTypeID)
}

// ProductsInfoBody wraps product records into a products-info response,
// keyed by product id.
func ProductsInfoBody(records map[string]string) string {
	entries := make([]string, 0, len(records))
	for id, record := range records {
		entries = append(entries, fmt.Sprintf("%q: %s", id, record))
	}
	return fmt.Sprintf(`{"data": {%s}}`, strings.Join(entries, ","))
}

// SearchBody wraps product records into one product search page.
func SearchBody(total int, records ...string) string {
	return fmt.Sprintf(`{"offset": 0, "total": %d, "products": [%s]}`,
		total, strings.Join(records, ","))
}

// normalizePath strips the jsessionid matrix parameter from a request path.
func normalizePath(path string) string {
	if i := strings.IndexByte(path, ';'); i >= 0 {
		return path[:i]
	}
	return path
}
