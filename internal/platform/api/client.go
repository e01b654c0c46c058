// Package api is the HTTP client for the remote Sehetyar REST API. Every
// call classifies its failure as either a connectivity problem (the server
// could not be reached, retry later) or a server rejection (the server
// answered and said no, never retry). The sync layer is built entirely on
// that distinction.
package api

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

	"github.com/rs/zerolog"

	"github.com/sehetyar/sync-agent/pkg/pagination"
)

// DefaultTimeout bounds each remote call.
const DefaultTimeout = 15 * time.Second

// Response is the remote API envelope.
type Response struct {
	Success    bool             `json:"success"`
	Data       json.RawMessage  `json:"data"`
	Error      string           `json:"error,omitempty"`
	Pagination *pagination.Meta `json:"pagination,omitempty"`
}

// Documents decodes the data payload as a list of documents. A single-object
// payload decodes to a one-element list.
func (r *Response) Documents() ([]map[string]interface{}, error) {
	if len(r.Data) == 0 {
		return nil, nil
	}
	trimmed := bytes.TrimSpace(r.Data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		doc, err := r.Document()
		if err != nil {
			return nil, err
		}
		return []map[string]interface{}{doc}, nil
	}
	var docs []map[string]interface{}
	if err := json.Unmarshal(r.Data, &docs); err != nil {
		return nil, fmt.Errorf("decode document list: %w", err)
	}
	return docs, nil
}

// Document decodes the data payload as a single document.
func (r *Response) Document() (map[string]interface{}, error) {
	if len(r.Data) == 0 {
		return nil, nil
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(r.Data, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// Client talks to the remote API. Safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     zerolog.Logger
}

// New builds a client for the given base URL. An empty timeout falls back to
// DefaultTimeout.
func New(baseURL, token string, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "api").Logger(),
	}
}

// SetToken replaces the bearer token used on subsequent requests.
func (c *Client) SetToken(token string) { c.token = token }

// Get performs a GET against endpoint with the given query string.
func (c *Client) Get(ctx context.Context, endpoint string, query url.Values) (*Response, error) {
	target := endpoint
	if len(query) > 0 {
		target = endpoint + "?" + query.Encode()
	}
	return c.do(ctx, http.MethodGet, target, nil)
}

// Post sends body as JSON to endpoint.
func (c *Client) Post(ctx context.Context, endpoint string, body interface{}) (*Response, error) {
	return c.do(ctx, http.MethodPost, endpoint, body)
}

// Put sends body as JSON to endpoint.
func (c *Client) Put(ctx context.Context, endpoint string, body interface{}) (*Response, error) {
	return c.do(ctx, http.MethodPut, endpoint, body)
}

// Delete performs a DELETE against endpoint.
func (c *Client) Delete(ctx context.Context, endpoint string) (*Response, error) {
	return c.do(ctx, http.MethodDelete, endpoint, nil)
}

// Do performs an arbitrary method with a raw JSON payload. Used when
// replaying queued write descriptors verbatim.
func (c *Client) Do(ctx context.Context, method, endpoint string, payload json.RawMessage) (*Response, error) {
	var body interface{}
	if len(payload) > 0 {
		body = payload
	}
	return c.do(ctx, method, endpoint, body)
}

// Health probes the remote health endpoint. A nil return means the server
// is reachable.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/api/health", nil)
	return err
}

// GetRaw fetches endpoint without envelope decoding and returns the raw
// body. Used by the cache warmer, which stores whole page responses.
func (c *Client) GetRaw(ctx context.Context, endpoint string) ([]byte, string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, "", &ServerError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: read body: %v", ErrUnreachable, err)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body interface{}) (*Response, error) {
	req, err := c.newRequest(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Transport never produced a response; the server may be fine.
		c.log.Debug().Str("method", method).Str("endpoint", endpoint).Err(err).Msg("request failed")
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnreachable, err)
	}

	var envelope Response
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &envelope); err != nil && resp.StatusCode < 400 {
			return nil, fmt.Errorf("decode response envelope: %w", err)
		}
	}

	if resp.StatusCode >= 400 || (len(raw) > 0 && !envelope.Success && envelope.Error != "") {
		msg := envelope.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &ServerError{Status: resp.StatusCode, Message: msg}
	}
	return &envelope, nil
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body interface{}) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}
