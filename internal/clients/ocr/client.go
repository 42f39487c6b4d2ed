// Package ocr is a client for OCR.space compatible text recognition APIs.
package ocr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const DefaultURL = "https://api.ocr.space/parse/image"

type Client struct {
	client   *resty.Client
	url      string
	apiKey   string
	language string
}

// NewClient creates a client. language is the OCR.space language code,
// "eng" when empty.
func NewClient(url, apiKey, language string) *Client {
	if url == "" {
		url = DefaultURL
	}
	if language == "" {
		language = "eng"
	}
	return &Client{
		client:   resty.New().SetTimeout(60 * time.Second),
		url:      url,
		apiKey:   apiKey,
		language: language,
	}
}

func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

type parseResponse struct {
	ParsedResults []struct {
		ParsedText string `json:"ParsedText"`
	} `json:"ParsedResults"`
	OCRExitCode           int             `json:"OCRExitCode"`
	IsErroredOnProcessing bool            `json:"IsErroredOnProcessing"`
	ErrorMessage          json.RawMessage `json:"ErrorMessage"`
}

// Recognize uploads an image and returns the recognised text.
func (c *Client) Recognize(ctx context.Context, image []byte) (string, error) {
	mime := http.DetectContentType(image)
	payload := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(image)

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("apikey", c.apiKey).
		SetFormData(map[string]string{
			"base64Image":       payload,
			"language":          c.language,
			"isOverlayRequired": "false",
			"scale":             "true",
		}).
		Post(c.url)
	if err != nil {
		return "", fmt.Errorf("ocr request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("ocr status %d: %s", resp.StatusCode(), resp.String())
	}

	var pr parseResponse
	if err := json.Unmarshal(resp.Body(), &pr); err != nil {
		return "", fmt.Errorf("decode ocr response: %w", err)
	}
	if pr.IsErroredOnProcessing {
		return "", fmt.Errorf("ocr failed: %s", errorText(pr.ErrorMessage))
	}
	if len(pr.ParsedResults) == 0 {
		return "", fmt.Errorf("ocr returned no results")
	}

	parts := make([]string, 0, len(pr.ParsedResults))
	for _, r := range pr.ParsedResults {
		parts = append(parts, r.ParsedText)
	}
	return strings.Join(parts, "\n"), nil
}

// errorText flattens ErrorMessage, which the API sends as a string or a
// list of strings.
func errorText(raw json.RawMessage) string {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, "; ")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
