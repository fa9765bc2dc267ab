// Package checkout hands a finished gang sheet to the storefront.
//
// The storefront exposes a "create gang sheet" endpoint that accepts the
// final image with a product name, description, and price as multipart
// form data, creates a one-off product, and answers with a checkout URL.
// [Client] builds that request, retries transient failures, and extracts
// the URL from either response shape the storefront uses:
//
//	{"checkout_url": "..."}
//	{"cart": {"checkout_url": "..."}}
package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/gangsheet/pkg/buildinfo"
	"github.com/matzehuels/gangsheet/pkg/errors"
	"github.com/matzehuels/gangsheet/pkg/httputil"
	"github.com/matzehuels/gangsheet/pkg/observability"
	"github.com/matzehuels/gangsheet/pkg/pipeline"
)

// Defaults for [Client].
const (
	DefaultTimeout  = 60 * time.Second
	DefaultAttempts = 3
	DefaultDelay    = time.Second

	// maxResponse bounds the JSON response read from the storefront.
	maxResponse = 1 << 20
)

// Request is one checkout hand-off.
type Request struct {
	Name        string
	Description string
	Price       float64
	Image       []byte
	Filename    string
	ContentType string
}

// NewRequest builds the hand-off for an export. The file is named
// gang_sheet_<unix ms>.<ext> using at as the timestamp.
func NewRequest(res *pipeline.Result, at time.Time) Request {
	return Request{
		Name:        res.Name,
		Description: res.Description,
		Price:       res.Price,
		Image:       res.Artifact.Data,
		Filename:    fmt.Sprintf("gang_sheet_%d%s", at.UnixMilli(), res.Artifact.Format.Ext()),
		ContentType: res.Artifact.Format.MIME(),
	}
}

func (r Request) validate() error {
	if r.Name == "" {
		return errors.New(errors.ErrCodeInvalidInput, "checkout name is required")
	}
	if len(r.Image) == 0 {
		return errors.New(errors.ErrCodeEmptyLayout, "checkout image is empty")
	}
	if r.Price < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "checkout price cannot be negative")
	}
	return errors.ValidateFilename(r.Filename)
}

// Response is the storefront's answer.
type Response struct {
	CheckoutURL string         `json:"checkout_url"`
	Raw         map[string]any `json:"-"`
}

// Client posts hand-offs to the storefront.
type Client struct {
	endpoint string
	http     *http.Client
	attempts int
	delay    time.Duration
	logger   *log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option { return func(cl *Client) { cl.http = c } }

// WithRetry sets the attempt count and initial backoff delay.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(cl *Client) { cl.attempts, cl.delay = attempts, delay }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option { return func(cl *Client) { cl.logger = l } }

// New creates a client for the given endpoint URL.
func New(endpoint string, opts ...Option) (*Client, error) {
	if err := errors.ValidateURL(endpoint); err != nil {
		return nil, err
	}
	c := &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: DefaultTimeout},
		attempts: DefaultAttempts,
		delay:    DefaultDelay,
		logger:   log.NewWithOptions(io.Discard, log.Options{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Endpoint returns the configured endpoint.
func (c *Client) Endpoint() string { return c.endpoint }

// Submit posts the request and returns the checkout URL. A response
// without a checkout URL is an error, since the buyer has nowhere to go.
func (c *Client) Submit(ctx context.Context, r Request) (Response, error) {
	if err := r.validate(); err != nil {
		return Response{}, err
	}
	body, contentType, err := encodeForm(r)
	if err != nil {
		return Response{}, errors.Wrap(errors.ErrCodeInternal, err, "encode checkout form")
	}

	u, _ := url.Parse(c.endpoint)
	hooks := observability.HTTP()

	var out Response
	attempt := 0
	err = httputil.Retry(ctx, c.attempts, c.delay, func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", buildinfo.UserAgent())

		hooks.OnRequest(ctx, req.Method, u.Host, u.Path)
		start := time.Now()
		resp, err := c.http.Do(req)
		if err != nil {
			hooks.OnError(ctx, req.Method, u.Host, u.Path, err)
			c.logger.Debug("checkout request failed", "attempt", attempt, "err", err)
			if ctx.Err() != nil {
				return err
			}
			return &httputil.RetryableError{Err: err}
		}
		defer resp.Body.Close()
		hooks.OnResponse(ctx, req.Method, u.Host, u.Path, resp.StatusCode, time.Since(start))

		if err := httputil.CheckResponse(resp); err != nil {
			c.logger.Debug("checkout rejected", "attempt", attempt, "status", resp.StatusCode)
			return err
		}
		out, err = decodeResponse(resp.Body)
		return err
	})
	if err != nil {
		return Response{}, classify(err)
	}

	c.logger.Info("checkout created", "url", out.CheckoutURL, "attempts", attempt)
	return out, nil
}

func encodeForm(r Request) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := []struct{ k, v string }{
		{"name", r.Name},
		{"description", r.Description},
		{"price", strconv.FormatFloat(r.Price, 'f', -1, 64)},
	}
	for _, f := range fields {
		if err := w.WriteField(f.k, f.v); err != nil {
			return nil, "", err
		}
	}

	ct := r.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, r.Filename))
	h.Set("Content-Type", ct)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(r.Image); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func decodeResponse(body io.Reader) (Response, error) {
	var raw map[string]any
	if err := json.NewDecoder(io.LimitReader(body, maxResponse)).Decode(&raw); err != nil {
		return Response{}, errors.Wrap(errors.ErrCodeNetwork, err, "decode checkout response")
	}
	out := Response{Raw: raw}
	if cart, ok := raw["cart"].(map[string]any); ok {
		out.CheckoutURL, _ = cart["checkout_url"].(string)
	}
	if out.CheckoutURL == "" {
		out.CheckoutURL, _ = raw["checkout_url"].(string)
	}
	if out.CheckoutURL == "" {
		return out, errors.New(errors.ErrCodeNetwork, "product created but no checkout link returned")
	}
	return out, nil
}

// classify maps transport failures onto error codes.
func classify(err error) error {
	if errors.GetCode(err) != "" {
		return err
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(errors.ErrCodeTimeout, err, "checkout timed out")
	}
	if stderrors.Is(err, context.Canceled) {
		return err
	}
	return errors.Wrap(errors.ErrCodeNetwork, err, "checkout failed")
}
