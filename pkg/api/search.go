package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/tradeline/degiro-go/pkg/pagination"
	"github.com/tradeline/degiro-go/pkg/webapi"
)

// DefaultSearchLimit is the page size of product search queries.
const DefaultSearchLimit = 100

// ErrBadSearchCriteria is returned when the criteria do not select exactly
// one of text, ISIN or symbol.
var ErrBadSearchCriteria = errors.New("exactly one of Text, ISIN, Symbol must be set")

// SearchCriteria selects products. Exactly one of Text, ISIN and Symbol must
// be set: the platform's search endpoint does not combine them reliably.
// Exchange and ProductType narrow the results further.
type SearchCriteria struct {
	Text   string
	ISIN   string
	Symbol string

	// Exchange restricts results to one venue, looked up by hiqAbbr
	// (e.g. EPA for Paris).
	Exchange string

	// ProductType restricts results to one product type; 0 searches all.
	ProductType webapi.ProductTypeID
}

func (sc SearchCriteria) searchText() (string, error) {
	set := 0
	text := ""
	for _, candidate := range []string{sc.Text, sc.ISIN, sc.Symbol} {
		if candidate != "" {
			set++
			text = candidate
		}
	}
	if set != 1 {
		return "", ErrBadSearchCriteria
	}
	return text, nil
}

// matches rechecks a search record against the criteria. The platform
// already filters server side but is not strict about it.
func (sc SearchCriteria) matches(info webapi.ProductInfo, exchangeID string) bool {
	if sc.ProductType != 0 && info.ProductTypeID != sc.ProductType {
		return false
	}
	if sc.ISIN != "" && info.ISIN != sc.ISIN {
		return false
	}
	if sc.Symbol != "" && info.Symbol != sc.Symbol {
		return false
	}
	if exchangeID != "" && info.ExchangeID != exchangeID {
		return false
	}
	return true
}

// SearchProducts searches the product catalog. The first page is probed for
// the total match count, remaining pages are fetched concurrently, and the
// merged results are deduplicated by product id, rechecked against the
// criteria and resolved to full product records in chunks.
func (c *Client) SearchProducts(ctx context.Context, criteria SearchCriteria) ([]*Product, error) {
	text, err := criteria.searchText()
	if err != nil {
		return nil, err
	}

	exchangeID := ""
	if criteria.Exchange != "" {
		exchanges, err := c.Exchanges()
		if err != nil {
			return nil, err
		}
		exchange, err := exchanges.ExchangeBy(ExchangeQuery{HiqAbbr: criteria.Exchange})
		if err != nil {
			return nil, fmt.Errorf("resolve exchange %q: %w", criteria.Exchange, err)
		}
		exchangeID = exchange.ID
	}

	fetch := func(ctx context.Context, offset, limit int) (pagination.Page[webapi.ProductInfo], error) {
		page, err := c.web.SearchProducts(ctx, text, criteria.ProductType, offset, limit)
		if err != nil {
			return pagination.Page[webapi.ProductInfo]{}, err
		}
		return pagination.Page[webapi.ProductInfo]{
			Items: page.Products,
			Total: page.Total,
		}, nil
	}

	records, err := pagination.FetchAll(ctx, fetch, DefaultSearchLimit,
		func(info webapi.ProductInfo) string { return info.ID })
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, record := range records {
		if criteria.matches(record, exchangeID) {
			ids = append(ids, record.ID)
		}
	}
	c.logger.Debug().
		Int("matched", len(ids)).
		Int("fetched", len(records)).
		Msg("Product search complete")

	return c.Products(ctx, ids)
}
