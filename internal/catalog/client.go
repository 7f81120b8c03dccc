package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

var ErrRecordNotFound = errors.New("record not found")

// Client is the listing service that owns protected records.
type Client interface {
	TokenCost(ctx context.Context, recordID string) (int64, error)
	ProtectedFields(ctx context.Context, recordID string) (map[string]any, error)
}

type HTTPClient struct {
	baseURL string
	http    *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) TokenCost(ctx context.Context, recordID string) (int64, error) {
	var resp struct {
		TokenCost *int64 `json:"tokenCost"`
	}
	if err := c.get(ctx, recordID, "cost", &resp); err != nil {
		return 0, err
	}
	if resp.TokenCost == nil {
		return 0, fmt.Errorf("catalog: record %s has no token cost", recordID)
	}
	return *resp.TokenCost, nil
}

func (c *HTTPClient) ProtectedFields(ctx context.Context, recordID string) (map[string]any, error) {
	var resp struct {
		Fields map[string]any `json:"fields"`
	}
	if err := c.get(ctx, recordID, "protected", &resp); err != nil {
		return nil, err
	}
	return resp.Fields, nil
}

func (c *HTTPClient) get(ctx context.Context, recordID, resource string, out any) error {
	endpoint := fmt.Sprintf("%s/records/%s/%s", c.baseURL, url.PathEscape(recordID), resource)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrRecordNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("catalog: unexpected status %d for %s", resp.StatusCode, recordID)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("catalog: decode %s: %w", resource, err)
	}
	return nil
}
