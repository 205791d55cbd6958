package webapi

import (
	"context"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// Position is one row of the portfolio update.
//
// A row is either a product position (PositionType "PRODUCT", ProductID set)
// or a cash balance (PositionType "CASH", ProductID holding the currency).
type Position struct {
	ProductID    string
	PositionType string

	Size           decimal.Decimal
	Price          decimal.Decimal
	Value          decimal.Decimal
	BreakEvenPrice decimal.Decimal
	AverageFxRate  decimal.Decimal

	// PLBase and TodayPLBase are profit/loss amounts keyed by currency.
	PLBase      map[string]decimal.Decimal
	TodayPLBase map[string]decimal.Decimal

	// Extra holds attributes the mapping does not recognize.
	Extra map[string]any
}

// TotalPortfolio is the aggregate portfolio summary.
type TotalPortfolio struct {
	DegiroCash             decimal.Decimal
	FlatexCash             decimal.Decimal
	TotalCash              decimal.Decimal
	TotalDepositWithdrawal decimal.Decimal
	TodayDepositWithdrawal decimal.Decimal

	FreeSpaceNew map[string]decimal.Decimal

	ReportPortfolioValue decimal.Decimal
	ReportCashBalance    decimal.Decimal
	ReportNetLiquidity   decimal.Decimal
	ReportCreationTime   string

	Extra map[string]any
}

// GetTradingUpdate performs the shared trading-update call. Known params:
// portfolio, totalPortfolio, orders, historicalOrders, transactions, each
// with a last-update sequence number (0 for a full snapshot). The raw
// response body is returned.
func (c *Client) GetTradingUpdate(ctx context.Context, params url.Values) ([]byte, error) {
	updateURL, err := c.session.PortfolioURL()
	if err != nil {
		return nil, err
	}
	data, _, err := c.do(ctx, http.MethodGet, updateURL, params, nil, nil)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// GetPortfolio fetches the current portfolio positions.
func (c *Client) GetPortfolio(ctx context.Context) ([]Position, error) {
	data, err := c.GetTradingUpdate(ctx, url.Values{"portfolio": {"0"}})
	if err != nil {
		return nil, err
	}

	var positions []Position
	gjson.GetBytes(data, "portfolio.value").ForEach(func(_, row gjson.Result) bool {
		positions = append(positions, parsePosition(row))
		return true
	})
	c.logger.Debug().Int("positions", len(positions)).Msg("Portfolio fetched")
	return positions, nil
}

// GetPortfolioTotal fetches the aggregate portfolio summary.
func (c *Client) GetPortfolioTotal(ctx context.Context) (*TotalPortfolio, error) {
	data, err := c.GetTradingUpdate(ctx, url.Values{"totalPortfolio": {"0"}})
	if err != nil {
		return nil, err
	}

	attrs := attrMap(gjson.GetBytes(data, "totalPortfolio.value"))
	total := &TotalPortfolio{
		DegiroCash:             attrDecimal(attrs, "degiroCash"),
		FlatexCash:             attrDecimal(attrs, "flatexCash"),
		TotalCash:              attrDecimal(attrs, "totalCash"),
		TotalDepositWithdrawal: attrDecimal(attrs, "totalDepositWithdrawal"),
		TodayDepositWithdrawal: attrDecimal(attrs, "todayDepositWithdrawal"),
		FreeSpaceNew:           attrCurrencyMap(attrs, "freeSpaceNew"),
		ReportPortfolioValue:   attrDecimal(attrs, "reportPortfValue"),
		ReportCashBalance:      attrDecimal(attrs, "reportCashBal"),
		ReportNetLiquidity:     attrDecimal(attrs, "reportNetliq"),
		ReportCreationTime:     attrs["reportCreationTime"].String(),
		Extra:                  make(map[string]any),
	}
	for name, value := range attrs {
		if !totalPortfolioKnownFields[name] {
			total.Extra[name] = value.Value()
		}
	}
	return total, nil
}

var totalPortfolioKnownFields = map[string]bool{
	"degiroCash": true, "flatexCash": true, "totalCash": true,
	"totalDepositWithdrawal": true, "todayDepositWithdrawal": true,
	"freeSpaceNew": true, "reportPortfValue": true, "reportCashBal": true,
	"reportNetliq": true, "reportCreationTime": true,
}

var positionKnownFields = map[string]bool{
	"id": true, "positionType": true, "size": true, "price": true,
	"value": true, "breakEvenPrice": true, "averageFxRate": true,
	"plBase": true, "todayPlBase": true,
}

func parsePosition(row gjson.Result) Position {
	attrs := attrMap(row.Get("value"))
	p := Position{
		ProductID:      attrs["id"].String(),
		PositionType:   attrs["positionType"].String(),
		Size:           attrDecimal(attrs, "size"),
		Price:          attrDecimal(attrs, "price"),
		Value:          attrDecimal(attrs, "value"),
		BreakEvenPrice: attrDecimal(attrs, "breakEvenPrice"),
		AverageFxRate:  attrDecimal(attrs, "averageFxRate"),
		PLBase:         attrCurrencyMap(attrs, "plBase"),
		TodayPLBase:    attrCurrencyMap(attrs, "todayPlBase"),
		Extra:          make(map[string]any),
	}
	if p.ProductID == "" {
		p.ProductID = row.Get("id").String()
	}
	for name, value := range attrs {
		if !positionKnownFields[name] {
			p.Extra[name] = value.Value()
		}
	}
	return p
}

// attrMap flattens the platform's attribute-list encoding, an array of
// {"name": ..., "value": ...} objects, into a name-to-value map. Entries
// without a value (platform sends bare {"name": ...}) map to a missing
// result.
func attrMap(list gjson.Result) map[string]gjson.Result {
	attrs := make(map[string]gjson.Result)
	list.ForEach(func(_, entry gjson.Result) bool {
		name := entry.Get("name").String()
		if name != "" {
			attrs[name] = entry.Get("value")
		}
		return true
	})
	return attrs
}

func attrDecimal(attrs map[string]gjson.Result, name string) decimal.Decimal {
	value, ok := attrs[name]
	if !ok || !value.Exists() {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(value.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}

func attrCurrencyMap(attrs map[string]gjson.Result, name string) map[string]decimal.Decimal {
	value, ok := attrs[name]
	if !ok || !value.Exists() {
		return nil
	}
	out := make(map[string]decimal.Decimal)
	value.ForEach(func(currency, amount gjson.Result) bool {
		d, err := decimal.NewFromString(amount.String())
		if err == nil {
			out[currency.String()] = d
		}
		return true
	})
	return out
}
