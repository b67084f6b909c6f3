// Package generator submits digest generation jobs and opens their event streams
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/umputun/newsdigest/pkg/config"
	"github.com/umputun/newsdigest/pkg/domain"
)

// Client talks to the digest generation service
type Client struct {
	endpoint string
	token    string
	client   *http.Client
}

// NewClient makes a generation client. The http client has no overall timeout,
// the stream lives as long as the job; only response headers are bounded.
func NewClient(cfg config.GeneratorConfig) *Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ResponseHeaderTimeout: cfg.HeaderTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          10,
	}
	return &Client{
		endpoint: cfg.Endpoint,
		token:    cfg.Token,
		client:   &http.Client{Transport: transport},
	}
}

// Submit posts the job request and returns the response body carrying the event stream.
// The caller owns the body and must close it.
func (c *Client) Submit(ctx context.Context, req domain.JobRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal job request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson, text/event-stream")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("submit job: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		_ = resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	log.Printf("[DEBUG] generation job submitted, category %q, %d sources", req.Category, len(req.SourceIDs))
	return resp.Body, nil
}

// StatusError is returned when the generation service rejects a job
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("generation service returned status %d", e.Code)
	}
	return fmt.Sprintf("generation service returned status %d: %s", e.Code, e.Message)
}
