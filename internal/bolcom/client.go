// Package bolcom is the product-search collaborator client used for
// affiliate enrichment of review, listicle and comparison content.
// Enrichment is best effort: callers treat every failure as "no products".
package bolcom

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const requestTimeout = 15 * time.Second

// Product is one candidate product for a content box.
type Product struct {
	Title  string  `json:"title"`
	Price  float64 `json:"price"`
	Rating float64 `json:"rating"`
	URL    string  `json:"url"`
}

// ProductSearcher is the contract consumed by the generation job. An
// empty result is valid.
type ProductSearcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]Product, error)
}

// Client implements ProductSearcher against the bol.com catalog API.
type Client struct {
	client *resty.Client
	apiKey string
}

var _ ProductSearcher = (*Client)(nil)

type searchResponse struct {
	Products []struct {
		Title string `json:"title"`
		Offer struct {
			Price float64 `json:"price"`
		} `json:"offerData"`
		Rating float64 `json:"rating"`
		URL    string  `json:"url"`
	} `json:"products"`
}

// NewClient builds a client for the given API key and base URL.
func NewClient(apiKey, baseURL string) *Client {
	return &Client{
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(requestTimeout),
		apiKey: apiKey,
	}
}

// Search returns up to maxResults products matching the query.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]Product, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("bolcom client misconfigured: missing API key")
	}

	var resp searchResponse
	httpResp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetQueryParams(map[string]string{
			"q":      query,
			"limit":  fmt.Sprintf("%d", maxResults),
			"apikey": c.apiKey,
		}).
		SetResult(&resp).
		Get("/catalog/v4/search")
	if err != nil {
		return nil, fmt.Errorf("product search failed: %w", err)
	}
	if httpResp.IsError() {
		return nil, fmt.Errorf("product search returned status %d", httpResp.StatusCode())
	}

	products := make([]Product, 0, len(resp.Products))
	for _, p := range resp.Products {
		products = append(products, Product{
			Title:  p.Title,
			Price:  p.Offer.Price,
			Rating: p.Rating,
			URL:    p.URL,
		})
		if len(products) >= maxResults {
			break
		}
	}
	return products, nil
}
