// Package publisher submits generated content to a site's WordPress
// install over the REST API. Publishing is never allowed to fail a
// generation job; the caller records the error and moves on.
package publisher

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const requestTimeout = 30 * time.Second

// Post is the payload for a new CMS post.
type Post struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Excerpt string `json:"excerpt"`
	Status  string `json:"status"`
}

// PostRef identifies a created post.
type PostRef struct {
	ID  int64  `json:"id"`
	URL string `json:"url"`
}

// PostPublisher is the contract consumed by the generation job.
type PostPublisher interface {
	CreatePost(ctx context.Context, post Post) (PostRef, error)
}

// Credentials configure one site's WordPress connection (application
// password auth).
type Credentials struct {
	BaseURL     string
	Username    string
	AppPassword string
}

// WordPressClient implements PostPublisher against the WP REST API.
type WordPressClient struct {
	client *resty.Client
	creds  Credentials
}

var _ PostPublisher = (*WordPressClient)(nil)

type wpPostResponse struct {
	ID   int64  `json:"id"`
	Link string `json:"link"`
}

type wpErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewWordPressClient builds a client for one site's credentials.
func NewWordPressClient(creds Credentials) *WordPressClient {
	return &WordPressClient{
		client: resty.New().
			SetBaseURL(creds.BaseURL).
			SetTimeout(requestTimeout).
			SetBasicAuth(creds.Username, creds.AppPassword),
		creds: creds,
	}
}

// CreatePost creates a post and returns its canonical URL.
func (c *WordPressClient) CreatePost(ctx context.Context, post Post) (PostRef, error) {
	if c.creds.BaseURL == "" {
		return PostRef{}, fmt.Errorf("wordpress client misconfigured: missing base URL")
	}

	var resp wpPostResponse
	var wpErr wpErrorResponse
	httpResp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(post).
		SetResult(&resp).
		SetError(&wpErr).
		Post("/wp-json/wp/v2/posts")
	if err != nil {
		return PostRef{}, fmt.Errorf("create post failed: %w", err)
	}
	if httpResp.IsError() {
		if wpErr.Message != "" {
			return PostRef{}, fmt.Errorf("wordpress error %s: %s", wpErr.Code, wpErr.Message)
		}
		return PostRef{}, fmt.Errorf("wordpress returned status %d", httpResp.StatusCode())
	}
	if resp.ID == 0 {
		return PostRef{}, fmt.Errorf("wordpress returned no post id")
	}

	return PostRef{ID: resp.ID, URL: resp.Link}, nil
}
