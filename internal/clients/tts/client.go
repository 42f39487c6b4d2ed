// Package tts is a client for an HTTP text-to-speech service returning
// OGG/Opus audio.
package tts

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

type Client struct {
	client *resty.Client
	apiKey string
}

func NewClient(baseURL, apiKey string) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "audio/ogg").
		SetTimeout(30 * time.Second)
	return &Client{client: c, apiKey: apiKey}
}

type synthesizeRequest struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Rate     float64 `json:"rate"`
	Volume   float64 `json:"volume"`
}

// Synthesize returns the spoken text as audio.
func (c *Client) Synthesize(ctx context.Context, text, language string, rate, volume float64) ([]byte, error) {
	if text == "" {
		return nil, fmt.Errorf("empty text")
	}
	req := c.client.R().
		SetContext(ctx).
		SetBody(&synthesizeRequest{Text: text, Language: language, Rate: rate, Volume: volume})
	if c.apiKey != "" {
		req.SetAuthToken(c.apiKey)
	}

	resp, err := req.Post("/synthesize")
	if err != nil {
		return nil, fmt.Errorf("tts request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("tts status %d: %s", resp.StatusCode(), resp.String())
	}
	if len(resp.Body()) == 0 {
		return nil, fmt.Errorf("tts returned no audio")
	}
	return resp.Body(), nil
}
