package qc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Decision is the quality gate's verdict for one item.
type Decision struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

// Client asks the remote quality-control service to approve or reject an
// item. When the service is unreachable it falls back to the deterministic
// local rules, so the pipeline never stalls on the gate. The variant is
// chosen by availability at call time, not by configuration.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) Decide(ctx context.Context, itemID, name, description, imageRef string) (Decision, error) {
	if c.baseURL == "" {
		return localDecide(name, imageRef), nil
	}

	d, err := c.remoteDecide(ctx, itemID, name, description, imageRef)
	if err != nil {
		slog.WarnContext(ctx, "quality gate unreachable, using local rules", "item_id", itemID, "error", err)
		return localDecide(name, imageRef), nil
	}
	return d, nil
}

func (c *Client) remoteDecide(ctx context.Context, itemID, name, description, imageRef string) (Decision, error) {
	reqBody := map[string]string{
		"item_id":     itemID,
		"name":        name,
		"description": description,
		"image_ref":   imageRef,
	}
	jsonBody, _ := json.Marshal(reqBody)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/decide", bytes.NewBuffer(jsonBody))
	if err != nil {
		return Decision{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Decision{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Decision{}, fmt.Errorf("quality gate error: %d", resp.StatusCode)
	}

	var d Decision
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return Decision{}, err
	}
	return d, nil
}

// localDecide is the deterministic fallback: same input, same verdict. The
// rules catch only the obviously unusable listings; everything else passes.
func localDecide(name, imageRef string) Decision {
	if strings.TrimSpace(name) == "" {
		return Decision{Approved: false, Reason: "missing name"}
	}
	if strings.TrimSpace(imageRef) == "" {
		return Decision{Approved: false, Reason: "missing image"}
	}
	if len(name) > 200 {
		return Decision{Approved: false, Reason: "name too long"}
	}
	return Decision{Approved: true}
}
