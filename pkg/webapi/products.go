package webapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// ProductInfo is the platform's product record from lookup and bulk info
// calls.
type ProductInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ISIN     string `json:"isin"`
	Symbol   string `json:"symbol"`
	Currency string `json:"currency"`

	ProductType   string        `json:"productType"`
	ProductTypeID ProductTypeID `json:"productTypeId"`
	ExchangeID    string        `json:"exchangeId"`

	Tradable bool `json:"tradable"`
	Active   bool `json:"active"`

	ClosePrice     decimal.Decimal `json:"closePrice"`
	ClosePriceDate string          `json:"closePriceDate"`

	VwdID             string `json:"vwdId"`
	VwdIdentifierType string `json:"vwdIdentifierType"`
}

// SearchPage is one page of product search results. Total is the platform's
// overall match count for the query.
type SearchPage struct {
	Products []ProductInfo
	Total    int
	Offset   int
}

// GetProductsInfo fetches product records for the given ids in one call.
// Duplicate ids are collapsed before the request; the result is keyed by id,
// so callers resolving duplicates share one record.
func (c *Client) GetProductsInfo(ctx context.Context, productIDs []string) (map[string]ProductInfo, error) {
	infoURL, err := c.session.ProductsInfoURL()
	if err != nil {
		return nil, err
	}
	params, err := c.accountParams()
	if err != nil {
		return nil, err
	}

	unique := make([]string, 0, len(productIDs))
	seen := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	body, err := json.Marshal(unique)
	if err != nil {
		return nil, fmt.Errorf("marshal product ids: %w", err)
	}
	data, _, err := c.do(ctx, http.MethodPost, infoURL, params, body, nil)
	if err != nil {
		return nil, err
	}

	out := make(map[string]ProductInfo, len(unique))
	gjson.GetBytes(data, "data").ForEach(func(id, record gjson.Result) bool {
		out[id.String()] = parseProductInfo(record)
		return true
	})
	c.logger.Debug().
		Int("requested", len(unique)).
		Int("resolved", len(out)).
		Msg("Products info fetched")
	return out, nil
}

// SearchProducts fetches one page of product search results. searchText may
// be free text, an ISIN or a symbol; productTypeID of 0 searches all types.
func (c *Client) SearchProducts(ctx context.Context, searchText string, productTypeID ProductTypeID, offset, limit int) (*SearchPage, error) {
	searchURL, err := c.session.ProductSearchURL()
	if err != nil {
		return nil, err
	}
	params, err := c.accountParams()
	if err != nil {
		return nil, err
	}
	params.Set("searchText", searchText)
	params.Set("offset", strconv.Itoa(offset))
	params.Set("limit", strconv.Itoa(limit))
	params.Set("requireTotal", "true")
	if productTypeID != 0 {
		params.Set("productTypeId", strconv.Itoa(int(productTypeID)))
	}

	data, _, err := c.do(ctx, http.MethodGet, searchURL, params, nil, nil)
	if err != nil {
		return nil, err
	}

	page := &SearchPage{
		Total:  int(gjson.GetBytes(data, "total").Int()),
		Offset: offset,
	}
	gjson.GetBytes(data, "products").ForEach(func(_, record gjson.Result) bool {
		page.Products = append(page.Products, parseProductInfo(record))
		return true
	})
	// Without requireTotal support the platform omits total; fall back to
	// the page size so single-page queries still terminate.
	if page.Total == 0 {
		page.Total = len(page.Products)
	}
	return page, nil
}

func parseProductInfo(record gjson.Result) ProductInfo {
	return ProductInfo{
		ID:                record.Get("id").String(),
		Name:              record.Get("name").String(),
		ISIN:              record.Get("isin").String(),
		Symbol:            record.Get("symbol").String(),
		Currency:          record.Get("currency").String(),
		ProductType:       record.Get("productType").String(),
		ProductTypeID:     ProductTypeID(record.Get("productTypeId").Int()),
		ExchangeID:        record.Get("exchangeId").String(),
		Tradable:          record.Get("tradable").Bool(),
		Active:            record.Get("active").Bool(),
		ClosePrice:        resultDecimal(record.Get("closePrice")),
		ClosePriceDate:    record.Get("closePriceDate").String(),
		VwdID:             record.Get("vwdId").String(),
		VwdIdentifierType: record.Get("vwdIdentifierType").String(),
	}
}

func resultDecimal(result gjson.Result) decimal.Decimal {
	if !result.Exists() {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(result.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}

// PriceSeries is one series of a price data response. Object series carry
// product metadata in Data; time series carry [offset, price] pairs.
type PriceSeries struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Times   string          `json:"times"`
	Expires string          `json:"expires"`
	Data    json.RawMessage `json:"data"`
}

// PriceData is the raw price data response.
type PriceData struct {
	RequestID  string        `json:"requestid"`
	Start      string        `json:"start"`
	End        string        `json:"end"`
	Resolution string        `json:"resolution"`
	Series     []PriceSeries `json:"series"`
}

// GetPriceData fetches a price series for a product's vwd identifier.
// vwdIdentifierType must be "issueid" or "vwdkey", both found on the product
// record.
func (c *Client) GetPriceData(ctx context.Context, vwdID, vwdIdentifierType string, resolution PriceResolution, period PricePeriod) (*PriceData, error) {
	if vwdIdentifierType != "issueid" && vwdIdentifierType != "vwdkey" {
		return nil, fmt.Errorf("vwdIdentifierType must be 'issueid' or 'vwdkey', got %q", vwdIdentifierType)
	}
	cfg, err := c.session.Config()
	if err != nil {
		return nil, err
	}

	params := url.Values{
		"requestid":  {"1"},
		"resolution": {string(resolution)},
		"culture":    {"fr-FR"},
		"period":     {string(period)},
		"series":     {fmt.Sprintf("price:%s:%s", vwdIdentifierType, vwdID)},
		"format":     {"json"},
		"userToken":  {strconv.FormatInt(cfg.ClientID, 10)},
	}
	data, _, err := c.do(ctx, http.MethodGet, c.cfg.ChartingURL, params, nil, nil)
	if err != nil {
		return nil, err
	}

	var out PriceData
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode price data: %w", err)
	}
	return &out, nil
}
