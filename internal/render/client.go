package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sony/gobreaker"
)

// Request describes what to render. It travels inside the queue message
// and is POSTed verbatim to the render service.
type Request struct {
	DocID    string            `json:"doc_id"`
	Title    string            `json:"title"`
	Sections []string          `json:"sections"`
	Meta     map[string]string `json:"meta,omitempty"`
}

// Error is a classified render failure. Retryable controls whether the
// worker backs off and retries or fails the job outright.
type Error struct {
	Code      string
	Message   string
	Retryable bool
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

var formatMIME = map[string]string{
	"pdf": "application/pdf",
}

// ValidOutput checks the body against the binary signature of the target
// format. A 2xx response with the wrong magic bytes is still a failure.
func ValidOutput(format string, body []byte) bool {
	want, ok := formatMIME[format]
	if !ok {
		return false
	}
	return mimetype.Detect(body).Is(want)
}

// Client calls the external HTML-to-PDF render service.
type Client struct {
	url     string
	format  string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

func NewClient(url string, timeout time.Duration) *Client {
	return &Client{
		url:    url,
		format: "pdf",
		http:   &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "render",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

type response struct {
	status int
	body   []byte
}

// Render POSTs the request and returns the raw document bytes.
// Failures come back as *Error with a retryable classification:
// transport errors, 5xx and invalid output retry; 4xx does not.
func (c *Client) Render(ctx context.Context, req Request) ([]byte, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, &Error{Code: "render_bad_request", Message: err.Error()}
	}

	// The breaker only sees transport-level failures; HTTP status is
	// classified after the fact.
	out, err := c.breaker.Execute(func() (any, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/render", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(httpReq)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		return &response{status: resp.StatusCode, body: body}, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &Error{Code: "render_unavailable", Message: err.Error(), Retryable: true}
		}
		return nil, &Error{Code: "render_request_failed", Message: err.Error(), Retryable: true}
	}

	resp := out.(*response)
	if resp.status < 200 || resp.status > 299 {
		return nil, &Error{
			Code:      fmt.Sprintf("render_http_%d", resp.status),
			Message:   fmt.Sprintf("render service returned %d", resp.status),
			Retryable: resp.status < 400 || resp.status > 499,
		}
	}
	if !ValidOutput(c.format, resp.body) {
		return nil, &Error{Code: "render_invalid_output", Message: "body does not look like " + c.format, Retryable: true}
	}
	return resp.body, nil
}
