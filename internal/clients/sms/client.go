// Package sms sends text messages through an HTTP SMS gateway.
package sms

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

type Client struct {
	client *resty.Client
	url    string
}

func NewClient(url, apiKey string) *Client {
	c := resty.New().
		SetHeader("Content-Type", "application/json").
		SetTimeout(15 * time.Second)
	if apiKey != "" {
		c.SetAuthToken(apiKey)
	}
	return &Client{client: c, url: url}
}

type sendRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

type sendResponse struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// Send delivers text to phone.
func (c *Client) Send(ctx context.Context, phone, text string) error {
	var out sendResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(&sendRequest{To: phone, Message: text}).
		SetResult(&out).
		SetError(&out).
		Post(c.url)
	if err != nil {
		return fmt.Errorf("sms request: %w", err)
	}
	if resp.IsError() {
		if out.Error != "" {
			return fmt.Errorf("sms status %d: %s", resp.StatusCode(), out.Error)
		}
		return fmt.Errorf("sms status %d", resp.StatusCode())
	}
	return nil
}
