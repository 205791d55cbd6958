package api

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/tradeline/degiro-go/pkg/memo"
)

// Region is a world region of the product dictionary.
type Region struct {
	ID   int64
	Name string
}

// Country is a country of the product dictionary.
type Country struct {
	ID     string
	Name   string // 2-letter country code
	Region *Region
}

// Exchange is a trading venue of the product dictionary.
type Exchange struct {
	ID          string
	Name        string
	City        string
	Code        string
	CountryName string
	HiqAbbr     string
	MicCode     string
}

// ExchangeQuery selects an exchange by exactly one alternate key.
type ExchangeQuery struct {
	ID      string
	Name    string
	HiqAbbr string
	MicCode string
}

// ExchangeDictionary indexes the product dictionary's regions, countries and
// exchanges. Lookups by alternate key are memoized.
type ExchangeDictionary struct {
	regions   map[int64]*Region
	countries map[string]*Country
	exchanges map[string]*Exchange

	lookups *memo.Cache[ExchangeQuery, *Exchange]
}

// loadExchangeDictionary fetches and indexes the product dictionary.
func (c *Client) loadExchangeDictionary(ctx context.Context) (*ExchangeDictionary, error) {
	data, err := c.web.GetProductDictionary(ctx)
	if err != nil {
		return nil, err
	}

	d := &ExchangeDictionary{
		regions:   make(map[int64]*Region),
		countries: make(map[string]*Country),
		exchanges: make(map[string]*Exchange),
		// The dictionary is static for the session; a zero window caches
		// lookups for its whole lifetime.
		lookups: memo.New[ExchangeQuery, *Exchange](32, 0),
	}

	gjson.GetBytes(data, "regions").ForEach(func(_, region gjson.Result) bool {
		r := &Region{
			ID:   region.Get("id").Int(),
			Name: region.Get("name").String(),
		}
		d.regions[r.ID] = r
		return true
	})

	gjson.GetBytes(data, "countries").ForEach(func(_, country gjson.Result) bool {
		c := &Country{
			// Ids arrive as numbers on some calls and strings on others;
			// normalize to string.
			ID:     country.Get("id").String(),
			Name:   country.Get("name").String(),
			Region: d.regions[country.Get("region").Int()],
		}
		d.countries[c.Name] = c
		return true
	})

	gjson.GetBytes(data, "exchanges").ForEach(func(_, exchange gjson.Result) bool {
		e := &Exchange{
			ID:          exchange.Get("id").String(),
			Name:        exchange.Get("name").String(),
			City:        exchange.Get("city").String(),
			Code:        exchange.Get("code").String(),
			CountryName: exchange.Get("country").String(),
			HiqAbbr:     exchange.Get("hiqAbbr").String(),
			MicCode:     exchange.Get("micCode").String(),
		}
		d.exchanges[e.ID] = e
		return true
	})

	c.logger.Debug().
		Int("regions", len(d.regions)).
		Int("countries", len(d.countries)).
		Int("exchanges", len(d.exchanges)).
		Msg("Exchange dictionary loaded")
	return d, nil
}

// Exchanges returns all exchanges.
func (d *ExchangeDictionary) Exchanges() []*Exchange {
	out := make([]*Exchange, 0, len(d.exchanges))
	for _, e := range d.exchanges {
		out = append(out, e)
	}
	return out
}

// CountryByName returns the country with the given 2-letter code.
func (d *ExchangeDictionary) CountryByName(name string) (*Country, error) {
	country, ok := d.countries[name]
	if !ok {
		return nil, fmt.Errorf("no country named %q", name)
	}
	return country, nil
}

// ExchangeBy looks up an exchange by exactly one of the query's alternate
// keys: id, name, hiqAbbr (e.g. EPA) or micCode (e.g. XPAR).
func (d *ExchangeDictionary) ExchangeBy(query ExchangeQuery) (*Exchange, error) {
	set := 0
	for _, key := range []string{query.ID, query.Name, query.HiqAbbr, query.MicCode} {
		if key != "" {
			set++
		}
	}
	if set != 1 {
		return nil, fmt.Errorf("exactly one of id, name, hiqAbbr, micCode must be set, got %d", set)
	}

	return d.lookups.Do(context.Background(), query, func(context.Context) (*Exchange, error) {
		if query.ID != "" {
			if e, ok := d.exchanges[query.ID]; ok {
				return e, nil
			}
		}
		for _, e := range d.exchanges {
			switch {
			case query.Name != "" && e.Name == query.Name:
				return e, nil
			case query.HiqAbbr != "" && e.HiqAbbr == query.HiqAbbr:
				return e, nil
			case query.MicCode != "" && e.MicCode == query.MicCode:
				return e, nil
			}
		}
		return nil, fmt.Errorf("no exchange matches %+v", query)
	})
}
