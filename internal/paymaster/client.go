// Package paymaster talks to the sponsorship service: pending nonce keys,
// per-operation sponsor signatures and aggregate subscription submission.
package paymaster

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/0xPexy/sentra-checkout/internal/apperr"
)

const (
	nonceKeysPath   = "/api/nonce-keys"
	signPath        = "/api/sign/v2"
	aggregatePath   = "/api/merkle/subscription"
	defaultTimeout  = 15 * time.Second
	maxErrorBodyLen = 512
)

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *log.Logger
}

type Options struct {
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

func NewClient(baseURL string, opts Options, logger *log.Logger) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  opts.APIKey,
		http:    hc,
		logger:  logger,
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// do performs one JSON round trip. Non-2xx responses are reported with
// rejectKind; undecodable bodies are MalformedResponse.
func (c *Client) do(ctx context.Context, step, method, path string, query url.Values, in, out any, rejectKind apperr.Kind) error {
	if c.baseURL == "" {
		return apperr.New(apperr.UpstreamFailure, step, "paymaster URL not configured")
	}
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return apperr.Wrap(apperr.InvalidInput, step, err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return apperr.Wrap(apperr.UpstreamFailure, step, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Upstream(step, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.Upstream(step, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logf("%s %s -> %d", method, path, resp.StatusCode)
		return apperr.Newf(rejectKind, step, "status %d: %s", resp.StatusCode, errorMessage(raw))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperr.Wrap(apperr.MalformedResponse, step, err)
	}
	return nil
}

func errorMessage(raw []byte) string {
	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err == nil {
		if eb.Error != "" {
			return eb.Error
		}
		if eb.Message != "" {
			return eb.Message
		}
	}
	msg := strings.TrimSpace(string(raw))
	if len(msg) > maxErrorBodyLen {
		msg = msg[:maxErrorBodyLen]
	}
	if msg == "" {
		return "empty body"
	}
	return msg
}

func (c *Client) logf(format string, args ...any) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}
