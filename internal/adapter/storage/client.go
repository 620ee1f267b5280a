package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Client talks to the durable object-storage service. The service owns
// key layout and replication; this client only does per-call puts and
// surfaces failures to the caller.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Put uploads data under suggestedKey and returns the durable reference
// assigned by the service.
func (c *Client) Put(ctx context.Context, data []byte, suggestedKey string) (string, error) {
	endpoint := fmt.Sprintf("%s/v1/objects?key=%s", c.baseURL, url.QueryEscape(suggestedKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("object storage error: %d", resp.StatusCode)
	}

	var result struct {
		Ref string `json:"ref"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if result.Ref == "" {
		return "", fmt.Errorf("object storage returned empty ref")
	}
	return result.Ref, nil
}
