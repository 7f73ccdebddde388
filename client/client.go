// Package client talks to the leeplate backend: translation, speech
// synthesis and the list of languages the speech engine supports.
//
// Endpoints:
//
//	POST /translate          {text, source_language, target_language} -> {text, src, dest, origin}
//	GET  /speak?text=&lang=  raw audio bytes
//	GET  /spoken-languages   {languages: {code: name}}
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/minios-linux/leeplate/translation"
)

// ErrTransient marks failures of a single call that a later retry may
// not hit: transport errors and non-2xx responses.
var ErrTransient = errors.New("transient network error")

// Error describes a non-2xx backend response.
type Error struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: backend returned status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: backend returned status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Unwrap makes every backend Error match ErrTransient.
func (e *Error) Unwrap() error {
	return ErrTransient
}

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

// Options configures a Client.
type Options struct {
	// BaseURL is the backend root, e.g. "http://127.0.0.1:8000".
	BaseURL string
	// Proxy is an optional HTTP/HTTPS proxy URL. Empty uses the environment.
	Proxy string
	// Timeout bounds every request. Default: 30s.
	Timeout time.Duration
	// MaxRetries is the number of retries on transport errors and 5xx. Default: 0.
	MaxRetries int
	// RetryBackoff is the first retry delay, doubled on every attempt. Default: 1s.
	RetryBackoff time.Duration
	// UserAgent is sent with every request. Default: "leeplate".
	UserAgent string
	// Logger receives debug output. Default: no-op.
	Logger *zap.Logger
	// HTTPClient overrides the transport entirely (tests).
	HTTPClient *http.Client
}

func (o *Options) effectiveTimeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return 30 * time.Second
}

func (o *Options) effectiveBackoff() time.Duration {
	if o.RetryBackoff > 0 {
		return o.RetryBackoff
	}
	return time.Second
}

func (o *Options) effectiveUserAgent() string {
	if o.UserAgent != "" {
		return o.UserAgent
	}
	return "leeplate"
}

// Client is a backend client. It is safe for concurrent use.
type Client struct {
	base       *url.URL
	opts       Options
	httpClient *http.Client
	log        *zap.Logger
}

// New validates opts and returns a Client.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing backend URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("backend URL %q: scheme must be http or https", opts.BaseURL)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("backend URL %q: missing host", opts.BaseURL)
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = makeHTTPClient(opts.Proxy, opts.effectiveTimeout())
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Client{
		base:       base,
		opts:       opts,
		httpClient: hc,
		log:        log.Named("client"),
	}, nil
}

// BaseURL returns the backend root URL.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// makeHTTPClient builds a client honoring an explicit proxy or the
// HTTP_PROXY/HTTPS_PROXY environment.
func makeHTTPClient(proxyURL string, timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err == nil {
			transport.Proxy = http.ProxyURL(parsed)
		}
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// ---------------------------------------------------------------------------
// Endpoints
// ---------------------------------------------------------------------------

type translateResponse struct {
	Text   string `json:"text"`
	Src    string `json:"src"`
	Dest   string `json:"dest"`
	Origin string `json:"origin"`
}

// Translate calls POST /translate.
func (c *Client) Translate(ctx context.Context, req translation.Request) (translation.Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return translation.Result{}, fmt.Errorf("marshaling request: %w", err)
	}

	respBody, _, err := c.do(ctx, "translate", http.MethodPost, c.endpoint("/translate", nil), body)
	if err != nil {
		return translation.Result{}, err
	}

	var tr translateResponse
	if err := json.Unmarshal(respBody, &tr); err != nil {
		return translation.Result{}, fmt.Errorf("translate: parsing response: %w", err)
	}

	res := translation.Result{
		Origin: tr.Origin,
		Text:   tr.Text,
		Source: tr.Src,
		Target: tr.Dest,
	}
	if res.Origin == "" {
		res.Origin = req.Text
	}
	if res.Target == "" {
		res.Target = req.Target
	}
	if res.Source == "" && !req.IsAutoDetect() {
		res.Source = req.Source
	}
	return res, nil
}

// Speak calls GET /speak and returns the synthesized audio.
func (c *Client) Speak(ctx context.Context, text, lang string) ([]byte, error) {
	q := url.Values{}
	q.Set("text", text)
	q.Set("lang", lang)

	audio, _, err := c.do(ctx, "speak", http.MethodGet, c.endpoint("/speak", q), nil)
	if err != nil {
		return nil, err
	}
	return audio, nil
}

type spokenLanguagesResponse struct {
	Languages map[string]json.RawMessage `json:"languages"`
}

// SpokenLanguages calls GET /spoken-languages and returns code -> name.
// Non-string values are kept with an empty name; only the keys matter
// for support checks.
func (c *Client) SpokenLanguages(ctx context.Context) (map[string]string, error) {
	respBody, _, err := c.do(ctx, "spoken-languages", http.MethodGet, c.endpoint("/spoken-languages", nil), nil)
	if err != nil {
		return nil, err
	}

	var sl spokenLanguagesResponse
	if err := json.Unmarshal(respBody, &sl); err != nil {
		return nil, fmt.Errorf("spoken-languages: parsing response: %w", err)
	}
	if sl.Languages == nil {
		return nil, fmt.Errorf("spoken-languages: response has no languages object")
	}

	langs := make(map[string]string, len(sl.Languages))
	for code, raw := range sl.Languages {
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			name = ""
		}
		langs[code] = name
	}
	return langs, nil
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

func (c *Client) endpoint(path string, q url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if q != nil {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// do performs the request with retries on transport errors and 5xx.
// Everything else is returned to the caller on the first attempt.
func (c *Client) do(ctx context.Context, op, method, endpoint string, body []byte) ([]byte, http.Header, error) {
	maxRetries := c.opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	reqID := uuid.NewString()

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(math.Pow(2, float64(attempt-1))) * c.opts.effectiveBackoff()
			c.log.Debug("retrying request",
				zap.String("op", op),
				zap.Int("attempt", attempt+1),
				zap.Duration("wait", wait),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: creating request: %w", op, err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("User-Agent", c.opts.effectiveUserAgent())
		req.Header.Set("X-Request-ID", reqID)

		c.log.Debug("request",
			zap.String("op", op),
			zap.String("method", method),
			zap.String("url", endpoint),
			zap.String("request_id", reqID),
			zap.Int("attempt", attempt+1))

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			lastErr = fmt.Errorf("%s: %w: %v", op, ErrTransient, err)
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("%s: %w: reading response: %v", op, ErrTransient, readErr)
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			apiErr := &Error{Op: op, StatusCode: resp.StatusCode, Body: truncate(strings.TrimSpace(string(respBody)), 500)}
			if resp.StatusCode >= 500 {
				lastErr = apiErr
				continue
			}
			return nil, nil, apiErr
		}

		return respBody, resp.Header, nil
	}

	return nil, nil, lastErr
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
