// Package google contains thin REST clients for the Gmail, Calendar and
// Drive v3 APIs. They speak plain HTTP with bearer tokens; OAuth token
// acquisition and refresh live upstream.
package google

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/mohammad-safakhou/workmate/config"
)

// TokenSource yields a bearer token for one workspace owner.
type TokenSource interface {
	Token(ctx context.Context, owner string) (string, error)
}

// StaticTokenSource returns the same token for every owner. Development
// and single-tenant deployments only.
type StaticTokenSource string

func (s StaticTokenSource) Token(ctx context.Context, owner string) (string, error) {
	if s == "" {
		return "", errors.New("no static token configured")
	}
	return string(s), nil
}

// Client is a retrying JSON HTTP client shared by the three API wrappers.
type Client struct {
	http    *http.Client
	tokens  TokenSource
	retries int
	backoff time.Duration
}

// NewClient builds a Client from backend config.
func NewClient(cfg config.GoogleConfig, tokens TokenSource) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	if tokens == nil {
		tokens = StaticTokenSource(cfg.StaticToken)
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
		retries: retries,
		backoff: 300 * time.Millisecond,
	}
}

// doJSON performs one authenticated JSON request with retry and backoff.
// Non-2xx responses become errors carrying the status and a body excerpt.
func (c *Client) doJSON(ctx context.Context, owner, method, rawURL string, query url.Values, body any, out any) error {
	token, err := c.tokens.Token(ctx, owner)
	if err != nil {
		return fmt.Errorf("resolve token for %s: %w", owner, err)
	}
	if len(query) > 0 {
		rawURL = rawURL + "?" + query.Encode()
	}

	var bodyBytes []byte
	if body != nil {
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}

	var lastErr error
	tries := c.retries + 1
	for attempt := 0; attempt < tries; attempt++ {
		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, rawURL, bodyReader)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
		} else {
			func() {
				defer resp.Body.Close()
				if resp.StatusCode >= 200 && resp.StatusCode < 300 {
					if out == nil {
						lastErr = nil
						_, _ = io.Copy(io.Discard, resp.Body)
						return
					}
					lastErr = json.NewDecoder(resp.Body).Decode(out)
					return
				}
				b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
				lastErr = errors.New(resp.Status + ": " + string(b))
			}()
			if lastErr == nil {
				return nil
			}
			// Client errors will not improve with retries.
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return lastErr
			}
		}

		if attempt < tries-1 {
			select {
			case <-time.After(c.backoff * time.Duration(1<<attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}
