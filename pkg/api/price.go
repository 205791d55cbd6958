package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/tradeline/degiro-go/pkg/webapi"
)

// PricePoint is one measure of a price series.
type PricePoint struct {
	Date  time.Time
	Price decimal.Decimal
}

// PriceSeries is a converted time series: the platform's minute offsets
// resolved to absolute timestamps.
type PriceSeries struct {
	Start      time.Time
	Resolution webapi.PriceResolution
	Expires    string
	Points     []PricePoint
}

// PriceSeries fetches and converts the price series of a stock. Only stock
// products carry the vwd identifiers the chart endpoint needs.
func (c *Client) PriceSeries(ctx context.Context, product *Product, resolution webapi.PriceResolution, period webapi.PricePeriod) (*PriceSeries, error) {
	if product.Kind != KindStock {
		return nil, fmt.Errorf("price series requires a stock product, got %s", product.Kind)
	}
	if product.Info.VwdID == "" {
		return nil, fmt.Errorf("product %s has no vwd identifier (not tradable?)", product.ID)
	}

	identifierType := product.Info.VwdIdentifierType
	if identifierType == "" {
		identifierType = "issueid"
	}

	data, err := c.web.GetPriceData(ctx, product.Info.VwdID, identifierType, resolution, period)
	if err != nil {
		return nil, err
	}

	for _, series := range data.Series {
		if series.Type == "time" {
			return convertTimeSeries(series, resolution)
		}
	}
	return nil, fmt.Errorf("no time series in price data for product %s", product.ID)
}

// PriceSeriesBatch fetches and converts the price series of several stocks,
// one concurrent chart call per product. Results come back in input order.
// The first fetch error cancels the remaining fetches and is returned.
func (c *Client) PriceSeriesBatch(ctx context.Context, products []*Product, resolution webapi.PriceResolution, period webapi.PricePeriod) ([]*PriceSeries, error) {
	out := make([]*PriceSeries, len(products))
	g, gctx := errgroup.WithContext(ctx)
	for i, product := range products {
		g.Go(func() error {
			series, err := c.PriceSeries(gctx, product, resolution, period)
			if err != nil {
				return fmt.Errorf("price series for product %s: %w", product.ID, err)
			}
			out[i] = series
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// convertTimeSeries resolves a raw time series' offset/price pairs into
// dated points. The series' times field is "<start>/<resolution>"; each data
// entry is [offset, price] with the offset counted in resolution steps from
// the start.
func convertTimeSeries(series webapi.PriceSeries, resolution webapi.PriceResolution) (*PriceSeries, error) {
	startText, resolutionText, found := strings.Cut(series.Times, "/")
	if !found {
		return nil, fmt.Errorf("malformed series times %q", series.Times)
	}
	if resolutionText != string(resolution) {
		return nil, fmt.Errorf("series resolution %q does not match requested %q",
			resolutionText, resolution)
	}

	step, err := resolutionStep(resolution)
	if err != nil {
		return nil, err
	}
	start, err := time.Parse("2006-01-02T15:04:05", startText)
	if err != nil {
		return nil, fmt.Errorf("parse series start %q: %w", startText, err)
	}

	var pairs [][]float64
	if err := json.Unmarshal(series.Data, &pairs); err != nil {
		return nil, fmt.Errorf("decode series data: %w", err)
	}

	out := &PriceSeries{
		Start:      start,
		Resolution: resolution,
		Expires:    series.Expires,
		Points:     make([]PricePoint, 0, len(pairs)),
	}
	for _, pair := range pairs {
		if len(pair) != 2 {
			return nil, fmt.Errorf("malformed series entry %v", pair)
		}
		out.Points = append(out.Points, PricePoint{
			Date:  start.Add(time.Duration(pair[0]) * step),
			Price: decimal.NewFromFloat(pair[1]),
		})
	}
	return out, nil
}

func resolutionStep(resolution webapi.PriceResolution) (time.Duration, error) {
	switch resolution {
	case webapi.PriceResolutionMinute:
		return time.Minute, nil
	case webapi.PriceResolutionDay:
		return 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unsupported price resolution %q", resolution)
	}
}
