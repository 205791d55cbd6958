package api

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tradeline/degiro-go/pkg/webapi"
)

// Order describes an order against a resolved product.
type Order struct {
	Product *Product
	Action  webapi.OrderAction
	Type    webapi.OrderType
	Time    webapi.OrderTime
	Size    decimal.Decimal

	// Price is required for limit and stop-limit orders.
	Price decimal.Decimal
}

func (o Order) request() (webapi.OrderRequest, error) {
	if o.Product == nil {
		return webapi.OrderRequest{}, fmt.Errorf("order has no product")
	}
	if o.Size.LessThanOrEqual(decimal.Zero) {
		return webapi.OrderRequest{}, fmt.Errorf("order size must be positive, got %s", o.Size)
	}
	switch o.Type {
	case webapi.OrderTypeLimited, webapi.OrderTypeStopLimited:
		if o.Price.LessThanOrEqual(decimal.Zero) {
			return webapi.OrderRequest{}, fmt.Errorf("order type %d requires a positive price", o.Type)
		}
	}
	return webapi.OrderRequest{
		ProductID: o.Product.ID,
		BuySell:   o.Action,
		OrderType: o.Type,
		TimeType:  o.Time,
		Size:      o.Size,
		Price:     o.Price,
	}, nil
}

// CheckOrder validates an order without placing it and returns the
// platform's cost estimate with the confirmation id.
func (c *Client) CheckOrder(ctx context.Context, order Order) (*webapi.CheckOrderResult, error) {
	req, err := order.request()
	if err != nil {
		return nil, err
	}
	return c.web.CheckOrder(ctx, req)
}

// PlaceOrder runs the two-step order placement: a check for the confirmation
// id, then the confirmation. The platform's order id is returned. Neither
// step is retried; a failed confirmation must be re-checked by the caller.
func (c *Client) PlaceOrder(ctx context.Context, order Order) (string, error) {
	req, err := order.request()
	if err != nil {
		return "", err
	}

	check, err := c.web.CheckOrder(ctx, req)
	if err != nil {
		return "", fmt.Errorf("check order: %w", err)
	}
	orderID, err := c.web.ConfirmOrder(ctx, req, check.ConfirmationID)
	if err != nil {
		return "", fmt.Errorf("confirm order %s: %w", check.ConfirmationID, err)
	}
	return orderID, nil
}

// Orders fetches current and historical orders.
func (c *Client) Orders(ctx context.Context) ([]webapi.OrderRow, error) {
	return c.web.GetOrders(ctx)
}
