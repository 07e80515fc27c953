package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/d1nch8g/voiceorder/router"
)

// ErrNotFound is returned when the backend answers 404.
var ErrNotFound = errors.New("api: not found")

// Order represents an order as stored by the backend
type Order struct {
	ID        router.Value  `json:"id"`
	Status    string        `json:"status"`
	Channel   string        `json:"channel"`
	Total     router.Amount `json:"total"`
	CreatedAt string        `json:"created_at"`
}

// Client is a client for the café REST API
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a new API client rooted at baseURL, e.g.
// "http://localhost:8000/api".
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Menu fetches the full menu
func (c *Client) Menu(ctx context.Context) ([]router.MenuItem, error) {
	var items []router.MenuItem
	if err := c.get(ctx, "/menu", &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []router.MenuItem{}
	}
	return items, nil
}

// Order fetches a single order by id
func (c *Client) Order(ctx context.Context, id string) (*Order, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("order id is empty")
	}
	var order Order
	if err := c.get(ctx, "/orders/"+url.PathEscape(id), &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("GET %s: %w", path, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
