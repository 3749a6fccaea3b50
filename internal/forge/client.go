// Package forge is a typed wrapper over the external code-hosting platform's
// HTTP+JSON API.
//
// Every mutating call is gated by the rate limiter: check first, perform the
// HTTP request, feed the platform's rate-limit headers back, then record the
// operation. Reads pass through the limiter too (for burst accounting) but
// are exempt from cooldowns and are retried on transient failures.
package forge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"github.com/m0nk111/agent-forge-sub002/internal/ratelimit"
	"github.com/m0nk111/agent-forge-sub002/internal/retry"
)

// maxPages bounds pagination so a misbehaving forge cannot trap a poll loop.
const maxPages = 20

// perPage is the page size requested from list endpoints.
const perPage = 100

// ClientConfig configures the forge client.
type ClientConfig struct {
	// BaseURL is the API root, e.g. "https://api.github.com".
	BaseURL string

	// Token is the bearer token. Empty sends unauthenticated requests.
	Token string

	// Timeout bounds each HTTP call. Zero means 30 seconds.
	Timeout time.Duration
}

// Client is a typed forge API client. It is safe for concurrent use; the
// underlying http.Client is shared.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *ratelimit.Limiter
	retry   retry.Policy
	logger  *log.Logger
}

// NewClient creates a forge client gated by the given limiter.
// logger may be nil.
func NewClient(cfg ClientConfig, limiter *ratelimit.Limiter, logger *log.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
		limiter: limiter,
		retry:   retry.DefaultPolicy(),
		logger:  logger,
	}
}

// mutate runs one rate-limited mutating call: limiter check, HTTP request,
// header observation, history record. A limiter denial is returned as a
// *RateLimitedError and recorded as a failed attempt so that duplicate
// suppression sees retries of the same content.
func (c *Client) mutate(ctx context.Context, op ratelimit.Operation, target, content, method, path string, body, out any) error {
	if d := c.limiter.Check(op, target, content); !d.Allowed {
		c.limiter.Record(op, target, content, false)
		if c.logger != nil {
			c.logger.Warn("mutation denied by rate limiter", "op", op, "target", target, "reason", d.Reason)
		}
		return &RateLimitedError{Op: string(op), Reason: d.Reason, RetryAfter: d.RetryAfter}
	}

	err := c.do(ctx, method, path, body, out)
	c.limiter.Record(op, target, content, err == nil)
	return err
}

// read runs one rate-limited read call with transient-failure retry.
func (c *Client) read(ctx context.Context, target, path string, out any) error {
	if d := c.limiter.Check(ratelimit.OpAPIRead, target, ""); !d.Allowed {
		return &RateLimitedError{Op: string(ratelimit.OpAPIRead), Reason: d.Reason}
	}

	err := retry.Do(ctx, withTransientOnly(c.retry), func(ctx context.Context) error {
		return c.do(ctx, http.MethodGet, path, nil, out)
	})
	c.limiter.Record(ratelimit.OpAPIRead, target, "", err == nil)
	return err
}

// withTransientOnly narrows a retry policy to transient forge failures.
func withTransientOnly(p retry.Policy) retry.Policy {
	p.RetryOn = IsTransient
	return p
}

// do performs a single HTTP round trip: encode body, send, observe rate-limit
// headers, classify the status, decode out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	u := c.baseURL + path

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("forge: encoding %s %s: %w", method, path, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("forge: building request %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("forge: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	c.observeHeaders(resp.Header)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("forge: reading response %s %s: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    apiMessage(data),
			URL:        u,
		}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("forge: decoding response %s %s: %w", method, path, err)
		}
	}
	return nil
}

// observeHeaders feeds platform rate-limit telemetry to the limiter.
// Unparseable headers are ignored; this is best-effort telemetry.
func (c *Client) observeHeaders(h http.Header) {
	remainingStr := h.Get("X-RateLimit-Remaining")
	if remainingStr == "" {
		return
	}
	remaining, err := strconv.Atoi(remainingStr)
	if err != nil {
		return
	}

	var resetAt time.Time
	if resetStr := h.Get("X-RateLimit-Reset"); resetStr != "" {
		if unix, err := strconv.ParseInt(resetStr, 10, 64); err == nil {
			resetAt = time.Unix(unix, 0)
		}
	}
	c.limiter.ObservePlatformLimits(remaining, resetAt)
}

// apiMessage extracts the "message" field from a forge error body, falling
// back to the raw body truncated to a reasonable length.
func apiMessage(data []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	s := string(data)
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

// listQuery builds the query string for issue listing.
func listQuery(filter IssueFilter, page int) string {
	q := url.Values{}
	state := filter.State
	if state == "" {
		state = "open"
	}
	q.Set("state", state)
	if filter.Assignee != "" {
		q.Set("assignee", filter.Assignee)
	}
	if len(filter.Labels) > 0 {
		labels := ""
		for i, l := range filter.Labels {
			if i > 0 {
				labels += ","
			}
			labels += l
		}
		q.Set("labels", labels)
	}
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("page", strconv.Itoa(page))
	return q.Encode()
}
