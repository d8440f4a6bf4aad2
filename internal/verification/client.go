package verification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Result is the oracle's answer for one topic.
type Result struct {
	Verified bool            `json:"verified"`
	Raw      json.RawMessage `json:"raw"`
}

// Client calls an external oracle that confirms whether a high-scoring
// topic holds up against independent data.
type Client struct {
	baseURL string
	apiKey  string
	client  *resty.Client
}

// NewClient creates a verification client. An empty baseURL yields a
// client whose IsEnabled reports false.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  resty.New().SetTimeout(15 * time.Second),
	}
}

func (c *Client) IsEnabled() bool {
	return c.baseURL != ""
}

type verifyRequest struct {
	Topic    string   `json:"topic"`
	Keywords []string `json:"keywords"`
}

type verifyResponse struct {
	Verified bool `json:"verified"`
}

// Verify asks the oracle about one topic and returns the verdict together
// with the raw payload for auditing.
func (c *Client) Verify(ctx context.Context, topic string, keywords []string) (*Result, error) {
	if !c.IsEnabled() {
		return nil, fmt.Errorf("verification oracle is not configured")
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+c.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(verifyRequest{Topic: topic, Keywords: keywords}).
		Post(c.baseURL + "/verify")

	if err != nil {
		return nil, fmt.Errorf("verification call failed: %w", err)
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("verification oracle returned status %d", resp.StatusCode())
	}

	var verdict verifyResponse
	if err := json.Unmarshal(resp.Body(), &verdict); err != nil {
		return nil, fmt.Errorf("failed to parse verification response: %w", err)
	}

	return &Result{
		Verified: verdict.Verified,
		Raw:      json.RawMessage(resp.Body()),
	}, nil
}
