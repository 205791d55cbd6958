package api

import (
	"context"
	"fmt"

	"github.com/tradeline/degiro-go/pkg/webapi"
)

// ProductKind is the product specialization selected from the platform's
// product type id.
type ProductKind string

const (
	KindStock    ProductKind = "stock"
	KindCurrency ProductKind = "currency"
	KindETF      ProductKind = "etf"

	// KindGeneric is the fallback for type ids without a specialization.
	KindGeneric ProductKind = "generic"
)

// productKinds is the closed dispatch table from type id to specialization.
// Unknown type ids degrade to KindGeneric, never to an error: the platform
// adds product types without notice.
var productKinds = map[webapi.ProductTypeID]ProductKind{
	webapi.ProductTypeStock:    KindStock,
	webapi.ProductTypeCurrency: KindCurrency,
	webapi.ProductTypeETFs:     KindETF,
}

// KindOf returns the specialization for a product type id.
func KindOf(typeID webapi.ProductTypeID) ProductKind {
	if kind, ok := productKinds[typeID]; ok {
		return kind
	}
	return KindGeneric
}

// Product is a resolved product: the platform record plus its
// specialization.
type Product struct {
	ID   string
	Kind ProductKind
	Info webapi.ProductInfo
}

// newProduct builds a Product from a resolved platform record.
func newProduct(info webapi.ProductInfo) *Product {
	return &Product{
		ID:   info.ID,
		Kind: KindOf(info.ProductTypeID),
		Info: info,
	}
}

// Products resolves product records for the given ids. Duplicate ids share
// one Product instance and large inputs are resolved in concurrent chunks.
func (c *Client) Products(ctx context.Context, productIDs []string) ([]*Product, error) {
	return c.resolver.All(ctx, productIDs)
}

// resolveChunk resolves one deduplicated chunk of product ids: cached
// records are served from the product cache, the remainder is fetched in one
// bulk call and cached on the way out.
func (c *Client) resolveChunk(ctx context.Context, ids []string) (map[string]*Product, error) {
	out := make(map[string]*Product, len(ids))

	cached := c.products.GetMany(ctx, ids)
	missing := make([]string, 0, len(ids))
	for _, id := range ids {
		if info, ok := cached[id]; ok {
			out[id] = newProduct(info)
			continue
		}
		missing = append(missing, id)
	}

	if len(missing) > 0 {
		fetched, err := c.web.GetProductsInfo(ctx, missing)
		if err != nil {
			return nil, err
		}
		for id, info := range fetched {
			out[id] = newProduct(info)
			if err := c.products.Set(ctx, info); err != nil {
				c.logger.Warn().Err(err).Str("product_id", id).Msg("Failed to cache product")
			}
		}
	}

	if len(cached) > 0 {
		c.logger.Debug().
			Int("cached", len(cached)).
			Int("fetched", len(missing)).
			Msg("Product chunk resolved")
	}
	return out, nil
}

// Position is one portfolio row with its resolved product. Product is nil
// for cash rows.
type Position struct {
	webapi.Position

	Product *Product
}

// Portfolio fetches the portfolio and resolves the product rows in
// concurrent chunks. Cash rows are passed through with a nil Product.
func (c *Client) Portfolio(ctx context.Context) ([]Position, error) {
	rows, err := c.web.GetPortfolio(ctx)
	if err != nil {
		return nil, err
	}

	var productIDs []string
	for _, row := range rows {
		if row.PositionType == "PRODUCT" {
			productIDs = append(productIDs, row.ProductID)
		}
	}
	products, err := c.Products(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve portfolio products: %w", err)
	}

	out := make([]Position, 0, len(rows))
	next := 0
	for _, row := range rows {
		position := Position{Position: row}
		if row.PositionType == "PRODUCT" {
			position.Product = products[next]
			next++
		}
		out = append(out, position)
	}
	return out, nil
}

// PortfolioTotal fetches the aggregate portfolio summary.
func (c *Client) PortfolioTotal(ctx context.Context) (*webapi.TotalPortfolio, error) {
	return c.web.GetPortfolioTotal(ctx)
}

// InvalidateProduct drops a product from the cache, forcing the next
// resolution to refetch it.
func (c *Client) InvalidateProduct(ctx context.Context, productID string) error {
	return c.products.Delete(ctx, productID)
}
