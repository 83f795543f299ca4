// Package httputil provides the HTTP abstractions shared by the API client
// and the signed-URL asset fetchers, plus a replayable client for tests.
package httputil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// Doer abstracts HTTP execution for testability. *http.Client satisfies it
// in production; ReplayClient satisfies it in tests.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// GetBytes issues a GET for url and returns the full response body.
// Non-2xx statuses are reported as errors carrying the status code and a
// truncated body excerpt. The caller controls deadlines via ctx.
func GetBytes(ctx context.Context, client Doer, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %q: %w", url, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("get %q: status %d: %s", url, resp.StatusCode, excerpt)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body of %q: %w", url, err)
	}
	return body, nil
}

// ReplayClient is a Doer that answers requests from a queue of canned
// responses, recording every request it sees. Responses are consumed in
// FIFO order; once the queue is empty an empty 200 is returned.
type ReplayClient struct {
	mu        sync.Mutex
	responses []*CannedResponse
	next      int

	// DoFunc, when set, overrides the queue entirely.
	DoFunc func(req *http.Request) (*http.Response, error)

	Requests []*http.Request
}

// CannedResponse is one queued reply for a ReplayClient.
type CannedResponse struct {
	StatusCode int
	Body       []byte
	Header     http.Header
	Err        error
}

// NewReplayClient creates an empty ReplayClient.
func NewReplayClient() *ReplayClient {
	return &ReplayClient{}
}

// Enqueue appends a response with the given status and body.
func (c *ReplayClient) Enqueue(statusCode int, body []byte) *ReplayClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = append(c.responses, &CannedResponse{
		StatusCode: statusCode,
		Body:       body,
		Header:     make(http.Header),
	})
	return c
}

// EnqueueError appends a transport-level failure.
func (c *ReplayClient) EnqueueError(err error) *ReplayClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = append(c.responses, &CannedResponse{Err: err})
	return c
}

// Do records the request and replays the next queued response.
func (c *ReplayClient) Do(req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Requests = append(c.Requests, req)

	if c.DoFunc != nil {
		return c.DoFunc(req)
	}

	if c.next < len(c.responses) {
		canned := c.responses[c.next]
		c.next++
		if canned.Err != nil {
			return nil, canned.Err
		}
		return &http.Response{
			StatusCode: canned.StatusCode,
			Body:       io.NopCloser(bytes.NewReader(canned.Body)),
			Header:     canned.Header,
			Request:    req,
		}, nil
	}

	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewReader(nil)),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

// RequestCount returns how many requests were recorded.
func (c *ReplayClient) RequestCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Requests)
}

// Request returns the nth recorded request, or nil when out of range.
func (c *ReplayClient) Request(n int) *http.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n < 0 || n >= len(c.Requests) {
		return nil
	}
	return c.Requests[n]
}
