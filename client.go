package gridline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/gridline-ai/gridline-go/api"
	"github.com/gridline-ai/gridline-go/internal/httputil"
	"github.com/gridline-ai/gridline-go/internal/version"
	"github.com/gridline-ai/gridline-go/label"
	"github.com/gridline-ai/gridline-go/ontology"
	"github.com/gridline-ai/gridline-go/scene"
)

// DefaultRequestTimeout bounds an API request when the profile does not
// set its own timeout.
const DefaultRequestTimeout = 30 * time.Second

// APIError is a non-2xx response from the platform. The body is
// truncated to an excerpt.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Transport is the verb-level REST surface the endpoint wrappers are
// built on. Client implements it; code layered on the wrappers can fake
// it in tests.
type Transport interface {
	Get(ctx context.Context, path string, params url.Values, out any) error
	Post(ctx context.Context, path string, payload, out any) error
	Patch(ctx context.Context, path string, payload, out any) error
	Delete(ctx context.Context, path string) error
}

// Client talks to the platform REST API for one profile. It is safe for
// concurrent use.
type Client struct {
	endpoint    *url.URL
	apiKey      string
	httpClient  httputil.Doer
	timeout     time.Duration
	concurrency int
	logger      zerolog.Logger
}

var _ Transport = (*Client)(nil)

// ClientOption adjusts a Client at construction time.
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client used for every request.
func WithHTTPClient(d httputil.Doer) ClientOption {
	return func(c *Client) { c.httpClient = d }
}

// WithLogger installs a logger for per-request debug events. The client
// is silent without one.
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient builds a client from a validated profile.
func NewClient(p *Profile, opts ...ClientOption) (*Client, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	endpoint, err := url.Parse(p.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: endpoint %q: %v", ErrConfigInvalid, p.Endpoint, err)
	}

	timeout := p.RequestTimeout()
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	c := &Client{
		endpoint:    endpoint,
		apiKey:      p.APIKey,
		httpClient:  http.DefaultClient,
		timeout:     timeout,
		concurrency: p.DownloadConcurrency,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get issues a GET and decodes the response into out when out is non-nil.
func (c *Client) Get(ctx context.Context, path string, params url.Values, out any) error {
	data, err := c.do(ctx, http.MethodGet, path, params, nil)
	if err != nil {
		return err
	}
	return decodeInto(path, data, out)
}

// Post issues a POST with a JSON payload and decodes the response into
// out when out is non-nil.
func (c *Client) Post(ctx context.Context, path string, payload, out any) error {
	data, err := c.do(ctx, http.MethodPost, path, nil, payload)
	if err != nil {
		return err
	}
	return decodeInto(path, data, out)
}

// Patch issues a PATCH with a JSON payload and decodes the response into
// out when out is non-nil.
func (c *Client) Patch(ctx context.Context, path string, payload, out any) error {
	data, err := c.do(ctx, http.MethodPatch, path, nil, payload)
	if err != nil {
		return err
	}
	return decodeInto(path, data, out)
}

// Delete issues a DELETE and discards any response body.
func (c *Client) Delete(ctx context.Context, path string) error {
	_, err := c.do(ctx, http.MethodDelete, path, nil, nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, payload any) ([]byte, error) {
	u := c.endpoint.JoinPath(path)
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}

	var body io.Reader
	switch p := payload.(type) {
	case nil:
	case json.RawMessage:
		// Already-encoded payloads go out verbatim.
		body = bytes.NewReader(p)
	case []byte:
		body = bytes.NewReader(p)
	default:
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s payload: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s %s response: %w", method, path, err)
	}

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("api request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt := data
		if len(excerpt) > 512 {
			excerpt = excerpt[:512]
		}
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Method:     method,
			Path:       path,
			Body:       string(excerpt),
		}
	}
	return data, nil
}

func decodeInto(path string, data []byte, out any) error {
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// ListLabelRows fetches one page of label-row metadata.
func (c *Client) ListLabelRows(ctx context.Context, params api.ListLabelRowsParams) (*api.LabelRowPage, error) {
	var page api.LabelRowPage
	if err := c.Get(ctx, "v1/label-rows", params.Query(), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetLabelRow fetches a label row's annotation payload and decodes it
// against the given ontology.
func (c *Client) GetLabelRow(ctx context.Context, labelHash string, structure *ontology.Structure) (*label.LabelRow, error) {
	if labelHash == "" {
		return nil, fmt.Errorf("label hash is empty")
	}
	data, err := c.do(ctx, http.MethodGet, "v1/label-rows/"+labelHash, nil, nil)
	if err != nil {
		return nil, err
	}
	return label.DecodeRow(data, structure)
}

// SaveLabelRow uploads a row's annotation payload.
func (c *Client) SaveLabelRow(ctx context.Context, row *label.LabelRow) (*api.SaveLabelRowResult, error) {
	encoded, err := row.Encode()
	if err != nil {
		return nil, err
	}
	var result api.SaveLabelRowResult
	if err := c.Post(ctx, "v1/label-rows/"+row.LabelHash(), json.RawMessage(encoded), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetSceneDocument fetches and parses the scene document of a data unit.
func (c *Client) GetSceneDocument(ctx context.Context, dataHash string) (*scene.Scene, error) {
	if dataHash == "" {
		return nil, fmt.Errorf("data hash is empty")
	}
	data, err := c.do(ctx, http.MethodGet, "v1/scenes/"+dataHash, nil, nil)
	if err != nil {
		return nil, err
	}
	return scene.Parse(data)
}

// SceneLoader builds a point-cloud loader for a scene using the client's
// HTTP client, timeout, download concurrency and logger.
func (c *Client) SceneLoader(s *scene.Scene) *scene.Loader {
	return scene.NewLoader(s, scene.LoaderConfig{
		Client:         c.httpClient,
		Concurrency:    c.concurrency,
		RequestTimeout: c.timeout,
		Logger:         &c.logger,
	})
}
