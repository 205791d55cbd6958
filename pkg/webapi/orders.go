package webapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// OrderRequest describes an order for the check and confirm calls.
type OrderRequest struct {
	ProductID string
	BuySell   OrderAction
	OrderType OrderType
	TimeType  OrderTime
	Size      decimal.Decimal

	// Price is required for limit and stop-limit orders.
	Price decimal.Decimal
}

// orderPayload is the wire form shared by checkOrder and order confirmation.
type orderPayload struct {
	BuySell   OrderAction     `json:"buySell"`
	OrderType OrderType       `json:"orderType"`
	ProductID string          `json:"productId"`
	TimeType  OrderTime       `json:"timeType"`
	Size      decimal.Decimal `json:"size"`
	Price     decimal.Decimal `json:"price"`
}

// CheckOrderResult is the platform's answer to an order check: the
// confirmation id needed to place the order plus cost estimates.
type CheckOrderResult struct {
	ConfirmationID string

	TransactionFee decimal.Decimal
	FreeSpaceNew   decimal.Decimal

	ShowExAnteReportLink bool

	Extra map[string]any
}

// OrderRow is one order of the trading update.
type OrderRow struct {
	ID        string
	ProductID string
	BuySell   string

	Size  decimal.Decimal
	Price decimal.Decimal

	OrderTypeID     OrderType
	OrderTimeTypeID OrderTime

	CurrencyValue decimal.Decimal
	Date          string
	IsDeletable   bool
	IsModifiable  bool

	Extra map[string]any
}

// CheckOrder submits an order for validation. The platform answers with a
// confirmation id and the estimated costs; the order is not placed until
// ConfirmOrder is called with that id.
func (c *Client) CheckOrder(ctx context.Context, order OrderRequest) (*CheckOrderResult, error) {
	checkURL, err := c.session.CheckOrderURL()
	if err != nil {
		return nil, err
	}
	params, err := c.accountParams()
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(toOrderPayload(order))
	if err != nil {
		return nil, fmt.Errorf("marshal order: %w", err)
	}
	data, _, err := c.do(ctx, http.MethodPost, checkURL, params, body, nil)
	if err != nil {
		return nil, err
	}

	result := gjson.GetBytes(data, "data")
	out := &CheckOrderResult{
		ConfirmationID:       result.Get("confirmationId").String(),
		TransactionFee:       resultDecimal(result.Get("transactionFee")),
		FreeSpaceNew:         resultDecimal(result.Get("freeSpaceNew")),
		ShowExAnteReportLink: result.Get("showExAnteReportLink").Bool(),
		Extra:                make(map[string]any),
	}
	if out.ConfirmationID == "" {
		return nil, &APIError{
			StatusCode: http.StatusOK,
			Endpoint:   endpointLabel(checkURL),
			Body:       string(data),
			Err:        fmt.Errorf("order check returned no confirmation id"),
		}
	}
	result.ForEach(func(key, value gjson.Result) bool {
		switch key.String() {
		case "confirmationId", "transactionFee", "freeSpaceNew", "showExAnteReportLink":
		default:
			out.Extra[key.String()] = value.Value()
		}
		return true
	})
	return out, nil
}

// ConfirmOrder places an order previously validated by CheckOrder. The same
// order must be passed again with the confirmation id the check returned.
// The platform's order id is returned.
func (c *Client) ConfirmOrder(ctx context.Context, order OrderRequest, confirmationID string) (string, error) {
	confirmURL, err := c.session.ConfirmOrderURL(confirmationID)
	if err != nil {
		return "", err
	}
	params, err := c.accountParams()
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(toOrderPayload(order))
	if err != nil {
		return "", fmt.Errorf("marshal order: %w", err)
	}
	data, _, err := c.do(ctx, http.MethodPost, confirmURL, params, body, nil)
	if err != nil {
		return "", err
	}

	orderID := gjson.GetBytes(data, "data.orderId").String()
	c.logger.Info().
		Str("order_id", orderID).
		Str("product_id", order.ProductID).
		Str("buy_sell", string(order.BuySell)).
		Msg("Order placed")
	return orderID, nil
}

// GetOrders fetches current and historical orders plus executed
// transactions.
func (c *Client) GetOrders(ctx context.Context) ([]OrderRow, error) {
	data, err := c.GetTradingUpdate(ctx, url.Values{
		"orders":           {"0"},
		"historicalOrders": {"0"},
		"transactions":     {"0"},
	})
	if err != nil {
		return nil, err
	}

	var orders []OrderRow
	gjson.GetBytes(data, "orders.value").ForEach(func(_, row gjson.Result) bool {
		orders = append(orders, parseOrderRow(row))
		return true
	})
	return orders, nil
}

var orderRowKnownFields = map[string]bool{
	"id": true, "productId": true, "buysell": true, "size": true,
	"price": true, "orderTypeId": true, "orderTimeTypeId": true,
	"currentTradedSize": true, "totalTradedSize": true, "currencyValue": true,
	"date": true, "isDeletable": true, "isModifiable": true,
}

func parseOrderRow(row gjson.Result) OrderRow {
	attrs := attrMap(row.Get("value"))
	o := OrderRow{
		ID:              attrs["id"].String(),
		ProductID:       attrs["productId"].String(),
		BuySell:         attrs["buysell"].String(),
		Size:            attrDecimal(attrs, "size"),
		Price:           attrDecimal(attrs, "price"),
		OrderTypeID:     OrderType(attrs["orderTypeId"].Int()),
		OrderTimeTypeID: OrderTime(attrs["orderTimeTypeId"].Int()),
		CurrencyValue:   attrDecimal(attrs, "currencyValue"),
		Date:            attrs["date"].String(),
		IsDeletable:     attrs["isDeletable"].Bool(),
		IsModifiable:    attrs["isModifiable"].Bool(),
		Extra:           make(map[string]any),
	}
	if o.ID == "" {
		o.ID = row.Get("id").String()
	}
	for name, value := range attrs {
		if !orderRowKnownFields[name] {
			o.Extra[name] = value.Value()
		}
	}
	return o
}

func toOrderPayload(order OrderRequest) orderPayload {
	return orderPayload{
		BuySell:   order.BuySell,
		OrderType: order.OrderType,
		ProductID: order.ProductID,
		TimeType:  order.TimeType,
		Size:      order.Size,
		Price:     order.Price,
	}
}
