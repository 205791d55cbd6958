package webapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/tradeline/degiro-go/pkg/session"
)

// companyProfilePath is the company profile service below the platform root.
// The profile service root is not part of the config bootstrap.
const companyProfilePath = "dgtbxdsservice/company-profile/v2"

// GetCompanyProfile fetches the company profile for an ISIN: business
// summary, sector, management and contact data. The document shape varies by
// company, so the raw record is returned.
func (c *Client) GetCompanyProfile(ctx context.Context, isin string) (map[string]any, error) {
	if isin == "" {
		return nil, fmt.Errorf("company profile requires an ISIN")
	}
	params, err := c.accountParams()
	if err != nil {
		return nil, err
	}

	profileURL := session.JoinURL(c.cfg.BaseURL, companyProfilePath, isin)
	data, _, err := c.do(ctx, http.MethodGet, profileURL, params, nil, nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode company profile: %w", err)
	}
	return out.Data, nil
}

// NewsItem is one company news entry.
type NewsItem struct {
	ID       string
	Date     string
	Title    string
	Content  string
	Category string
	ISINs    []string

	// Extra holds fields the mapping does not recognize.
	Extra map[string]any
}

// NewsPage is one page of company news.
type NewsPage struct {
	Items  []NewsItem
	Offset int
	Total  int
}

var newsItemKnownFields = map[string]bool{
	"id": true, "date": true, "title": true, "content": true,
	"category": true, "isins": true,
}

// GetNewsByCompany fetches one page of news for an ISIN. languages filters
// by article language (e.g. "en", "fr"); nil applies no filter.
func (c *Client) GetNewsByCompany(ctx context.Context, isin string, offset, limit int, languages []string) (*NewsPage, error) {
	newsURL, err := c.session.NewsURL()
	if err != nil {
		return nil, err
	}
	params, err := c.accountParams()
	if err != nil {
		return nil, err
	}
	params.Set("isin", isin)
	params.Set("offset", strconv.Itoa(offset))
	params.Set("limit", strconv.Itoa(limit))
	for _, lang := range languages {
		params.Add("languages", lang)
	}

	data, _, err := c.do(ctx, http.MethodGet, newsURL, params, nil, nil)
	if err != nil {
		return nil, err
	}

	page := &NewsPage{
		Offset: int(gjson.GetBytes(data, "data.offset").Int()),
		Total:  int(gjson.GetBytes(data, "data.total").Int()),
	}
	gjson.GetBytes(data, "data.items").ForEach(func(_, record gjson.Result) bool {
		page.Items = append(page.Items, parseNewsItem(record))
		return true
	})
	c.logger.Debug().
		Str("isin", isin).
		Int("items", len(page.Items)).
		Msg("Company news fetched")
	return page, nil
}

func parseNewsItem(record gjson.Result) NewsItem {
	item := NewsItem{
		ID:       record.Get("id").String(),
		Date:     record.Get("date").String(),
		Title:    record.Get("title").String(),
		Content:  record.Get("content").String(),
		Category: record.Get("category").String(),
		Extra:    make(map[string]any),
	}
	record.Get("isins").ForEach(func(_, isin gjson.Result) bool {
		item.ISINs = append(item.ISINs, isin.String())
		return true
	})
	record.ForEach(func(key, value gjson.Result) bool {
		if !newsItemKnownFields[key.String()] {
			item.Extra[key.String()] = value.Value()
		}
		return true
	})
	return item
}
