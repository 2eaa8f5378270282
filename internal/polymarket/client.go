package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Fetcher is the subset of fetch.Client the Gamma client needs
type Fetcher interface {
	GetJSON(ctx context.Context, rawURL string, query url.Values, header http.Header, out any) error
}

// Client provides access to the Polymarket Gamma API
type Client struct {
	apiBaseURL string
	fetcher    Fetcher
}

// PolymarketEvent represents an event from the Gamma API
type PolymarketEvent struct {
	ID      string             `json:"id"`
	Slug    string             `json:"slug"`
	Title   string             `json:"title"`
	Active  bool               `json:"active"`
	Closed  bool               `json:"closed"`
	Markets []PolymarketMarket `json:"markets"`
}

// PolymarketMarket represents a market within an event.
// outcomePrices arrives as a JSON string such as "[\"0.75\", \"0.25\"]"; some
// responses carry a plain array instead, so it is kept raw and parsed on demand.
type PolymarketMarket struct {
	ID            string          `json:"id"`
	Question      string          `json:"question"`
	OutcomePrices json.RawMessage `json:"outcomePrices"`
}

// NewClient creates a new Polymarket client
func NewClient(apiBaseURL string, fetcher Fetcher) *Client {
	return &Client{
		apiBaseURL: strings.TrimRight(apiBaseURL, "/"),
		fetcher:    fetcher,
	}
}

// FetchEventsBySlugs retrieves open events matching any of slugs
func (c *Client) FetchEventsBySlugs(ctx context.Context, slugs []string) ([]PolymarketEvent, error) {
	query := url.Values{}
	for _, slug := range slugs {
		query.Add("slug", slug)
	}
	query.Set("closed", "false")

	var events []PolymarketEvent
	if err := c.fetcher.GetJSON(ctx, c.apiBaseURL+"/events", query, nil, &events); err != nil {
		return nil, fmt.Errorf("failed to fetch events: %w", err)
	}
	return events, nil
}

// YesPrice returns the first outcome price, or false when it cannot be read
func (m PolymarketMarket) YesPrice() (float64, bool) {
	raw := m.OutcomePrices
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}

	// Unwrap the JSON-string form first
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		if encoded == "" {
			return 0, false
		}
		raw = json.RawMessage(encoded)
	}

	var prices []json.RawMessage
	if err := json.Unmarshal(raw, &prices); err != nil || len(prices) == 0 {
		return 0, false
	}
	return parsePrice(prices[0])
}

func parsePrice(raw json.RawMessage) (float64, bool) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// BestMarket picks the market to report for event.
// Preferred labels are tried in order as case-insensitive substrings of the question;
// otherwise the first market with a positive price wins. Returns nil when none has one.
func BestMarket(event PolymarketEvent, preferred []string) *PolymarketMarket {
	for _, label := range preferred {
		label = strings.ToLower(label)
		for i := range event.Markets {
			m := &event.Markets[i]
			if !strings.Contains(strings.ToLower(m.Question), label) {
				continue
			}
			if price, ok := m.YesPrice(); ok && price > 0 {
				return m
			}
		}
	}

	for i := range event.Markets {
		m := &event.Markets[i]
		if price, ok := m.YesPrice(); ok && price > 0 {
			return m
		}
	}
	return nil
}
