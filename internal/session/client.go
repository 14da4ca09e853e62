package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/0xPexy/sentra-checkout/internal/apperr"
	"github.com/ethereum/go-ethereum/common"
)

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *log.Logger
}

func NewClient(baseURL, apiKey string, timeout time.Duration, logger *log.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type sessionResponse struct {
	Data *Session `json:"data"`
}

func (c *Client) Get(ctx context.Context, sessionID string) (*Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, apperr.New(apperr.InvalidInput, "checkout session", "session id required")
	}
	var resp sessionResponse
	q := url.Values{"sessionId": {sessionID}}
	if err := c.do(ctx, "checkout session", http.MethodGet, "/checkout-session", q, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, apperr.New(apperr.MalformedResponse, "checkout session", "missing data")
	}
	s := resp.Data
	if s.ID == "" {
		s.ID = sessionID
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

type createSessionRequest struct {
	PaymentID string `json:"paymentId"`
}

type createSessionResponse struct {
	SessionID string `json:"sessionId"`
}

// CreateSession opens a checkout session for a payment link and returns its id.
func (c *Client) CreateSession(ctx context.Context, paymentID string) (string, error) {
	const step = "create checkout session"
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return "", apperr.New(apperr.InvalidInput, step, "payment id required")
	}
	var resp createSessionResponse
	if err := c.do(ctx, step, http.MethodPost, "/createcheckoutsession", nil, createSessionRequest{PaymentID: paymentID}, &resp); err != nil {
		return "", err
	}
	id := strings.TrimSpace(resp.SessionID)
	if id == "" {
		return "", apperr.New(apperr.MalformedResponse, step, "missing sessionId")
	}
	return id, nil
}

type statusResponse struct {
	Status *bool `json:"status"`
}

// SubscriptionStatus reports whether owner already holds subscriptionID.
func (c *Client) SubscriptionStatus(ctx context.Context, owner common.Address, subscriptionID string) (bool, error) {
	var resp statusResponse
	q := url.Values{"address": {owner.Hex()}, "subscriptionId": {subscriptionID}}
	if err := c.do(ctx, "subscription status", http.MethodGet, "/subscriptionstatus", q, nil, &resp); err != nil {
		return false, err
	}
	if resp.Status == nil {
		return false, apperr.New(apperr.MalformedResponse, "subscription status", "missing status")
	}
	return *resp.Status, nil
}

type paymentMethodRequest struct {
	Method    string         `json:"method"`
	Data      map[string]any `json:"data"`
	SessionID string         `json:"sessionId"`
}

// RecordNetwork stores the payer's chain on the session.
func (c *Client) RecordNetwork(ctx context.Context, sessionID string, chainID uint64) error {
	body := paymentMethodRequest{
		Method:    "network",
		Data:      map[string]any{"network": chainID},
		SessionID: sessionID,
	}
	return c.do(ctx, "record network", http.MethodPost, "/paymentmethod", nil, body, nil)
}

func (c *Client) do(ctx context.Context, step, method, path string, query url.Values, in, out any) error {
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
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Upstream(step, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logf("%s %s -> %d", method, path, resp.StatusCode)
		return apperr.Wrap(apperr.UpstreamFailure, step, fmt.Errorf("status %d", resp.StatusCode))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Wrap(apperr.MalformedResponse, step, err)
	}
	return nil
}

func (c *Client) logf(format string, args ...any) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}
