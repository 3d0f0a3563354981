// Package transport is the authenticated HTTP wrapper used by the api
// data provider. It speaks JSON both ways and folds upstream failures
// into the typed errors of internal/errs.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dealscope/internal/errs"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Client wraps upstream API access. Safe for concurrent use.
type Client struct {
	baseURL    string
	pingPath   string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// New builds a Client for the given base URL. rps caps outgoing request
// rate; the limiter blocks rather than rejecting.
func New(baseURL, pingPath string, rps int) *Client {
	if rps <= 0 {
		rps = 10
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		pingPath:   pingPath,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(rps), rps),
	}
}

// SetToken sets the bearer token attached to subsequent requests. An
// empty token sends unauthenticated requests.
func (c *Client) SetToken(token string) {
	c.token = token
}

// detailError is the upstream error body: detail is either a plain string
// or a list of {msg, type} validation items.
type detailError struct {
	Detail json.RawMessage `json:"detail"`
}

type detailItem struct {
	Msg  string `json:"msg"`
	Type string `json:"type"`
}

// Get issues a GET with query params and decodes the JSON body into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

// Post issues a POST with a JSON body and decodes the response into out.
// out may be nil when the caller only cares about success.
func (c *Client) Post(ctx context.Context, path string, body interface{}, out interface{}) error {
	return c.do(ctx, http.MethodPost, path, nil, body, out)
}

// Patch issues a PATCH with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body interface{}, out interface{}) error {
	return c.do(ctx, http.MethodPatch, path, nil, body, out)
}

// Delete issues a DELETE.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// Ping hits the configured health endpoint. A nil return means the
// upstream answered 2xx.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, c.pingPath, nil, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errs.WrapTransport(err)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"method": method,
			"path":   path,
		}).Error("Upstream request failed")
		return errs.WrapTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.decodeError(resp, path)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errs.NewTransport(resp.StatusCode, "malformed response body")
	}
	return nil
}

// decodeError maps a non-2xx response to the error taxonomy. Bodies with
// a JSON `detail` field keep their message; anything else degrades to a
// bare status error.
func (c *Client) decodeError(resp *http.Response, path string) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	detail := parseDetail(resp.Header.Get("Content-Type"), raw)

	logrus.WithFields(logrus.Fields{
		"status": resp.StatusCode,
		"path":   path,
		"detail": detail,
	}).Warn("Upstream returned error status")

	switch resp.StatusCode {
	case http.StatusNotFound:
		return errs.NewNotFound("resource", path)
	case http.StatusPaymentRequired:
		var body struct {
			Required int `json:"required"`
			Current  int `json:"current"`
		}
		if json.Unmarshal(raw, &body) == nil && body.Required > 0 {
			return errs.NewInsufficientCredits(body.Required, body.Current)
		}
	}
	return errs.NewTransport(resp.StatusCode, detail)
}

func parseDetail(contentType string, raw []byte) string {
	if !strings.Contains(contentType, "application/json") {
		return ""
	}
	var de detailError
	if err := json.Unmarshal(raw, &de); err != nil || len(de.Detail) == 0 {
		return ""
	}

	var s string
	if json.Unmarshal(de.Detail, &s) == nil {
		return s
	}

	var items []detailItem
	if json.Unmarshal(de.Detail, &items) == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			msgs = append(msgs, it.Msg)
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}
