// Package gist implements storage.Provider on top of the GitHub Gist API.
package gist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/starford/gistblog/internal/apperr"
	"github.com/starford/gistblog/internal/storage"
)

const (
	// DefaultBaseURL is the public GitHub REST endpoint.
	DefaultBaseURL = "https://api.github.com"
	apiVersion     = "2022-11-28"
	acceptJSON     = "application/vnd.github+json"
	maxErrorBody   = 64 << 10
)

// Client talks to a single gist. Reads of raw file locators are always
// anonymous; API calls carry the credential when one was supplied.
type Client struct {
	id      string
	baseURL string
	token   string
	base    *http.Client
	api     *http.Client
	raw     *http.Client
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the credential used for API calls. Without it the client can
// only read.
func WithToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

// WithBaseURL overrides the API endpoint (GitHub Enterprise, tests).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets the underlying HTTP client. Its transport and timeout
// are reused for both anonymous and credentialed requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.base = hc }
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client for the gist with the given ID.
func NewClient(id string, opts ...Option) *Client {
	c := &Client{
		id:      id,
		baseURL: DefaultBaseURL,
		base:    &http.Client{Timeout: 30 * time.Second},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.raw = c.base
	c.api = c.base
	if c.token != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: c.token, TokenType: "Bearer"})
		c.api = &http.Client{
			Transport: &oauth2.Transport{Source: src, Base: c.base.Transport},
			Timeout:   c.base.Timeout,
		}
	}
	return c
}

// HasCredential reports whether writes can be attempted.
func (c *Client) HasCredential() bool {
	return c.token != ""
}

type apiFile struct {
	Filename string `json:"filename"`
	RawURL   string `json:"raw_url"`
	Size     int64  `json:"size"`
}

type apiGist struct {
	ID          string              `json:"id"`
	Description string              `json:"description"`
	UpdatedAt   time.Time           `json:"updated_at"`
	Files       map[string]*apiFile `json:"files"`
	History     []struct {
		Version string `json:"version"`
	} `json:"history"`
}

type patchFile struct {
	Content string `json:"content"`
}

type patchBody struct {
	Description string                `json:"description,omitempty"`
	Files       map[string]*patchFile `json:"files"`
}

// FetchBucket implements storage.Provider.
func (c *Client) FetchBucket(ctx context.Context) (*storage.Snapshot, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.gistURL(), nil)
	if err != nil {
		return nil, err
	}
	var g apiGist
	etag, err := c.doJSON(c.api, req, false, &g)
	if err != nil {
		return nil, err
	}
	return toSnapshot(&g, etag), nil
}

// ReadFile implements storage.Provider.
func (c *Client) ReadFile(ctx context.Context, locator string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return "", apperr.Invalid("bad locator %q: %v", locator, err)
	}
	resp, err := c.send(c.raw, req, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &apperr.TransportError{Op: "read " + locator, Err: err}
	}
	return string(data), nil
}

// WriteBatch implements storage.Provider.
func (c *Client) WriteBatch(ctx context.Context, b storage.Batch) (*storage.Snapshot, error) {
	if len(b.Files) == 0 {
		return nil, apperr.Invalid("empty mutation set")
	}
	if c.token == "" {
		return nil, &apperr.AuthError{Message: "a token with gist scope is required to write"}
	}

	body := patchBody{Description: b.Description, Files: make(map[string]*patchFile, len(b.Files))}
	for name, ch := range b.Files {
		if ch.Delete {
			body.Files[name] = nil
			continue
		}
		body.Files[name] = &patchFile{Content: ch.Content}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("gist: encode patch: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPatch, c.gistURL(), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if b.IfMatch != "" {
		req.Header.Set("If-Match", b.IfMatch)
	}

	var g apiGist
	etag, err := c.doJSON(c.api, req, true, &g)
	if err != nil {
		return nil, err
	}
	return toSnapshot(&g, etag), nil
}

func (c *Client) gistURL() string {
	return c.baseURL + "/gists/" + c.id
}

func (c *Client) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("gist: build request: %w", err)
	}
	req.Header.Set("Accept", acceptJSON)
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	return req, nil
}

func (c *Client) doJSON(hc *http.Client, req *http.Request, write bool, out any) (string, error) {
	resp, err := c.send(hc, req, write)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return "", &apperr.TransportError{Op: req.Method + " " + req.URL.Path, Err: fmt.Errorf("decode response: %w", err)}
	}
	return resp.Header.Get("ETag"), nil
}

// send performs the request and turns every failure into the error taxonomy.
// On success the caller owns the response body.
func (c *Client) send(hc *http.Client, req *http.Request, write bool) (*http.Response, error) {
	start := time.Now()
	op := req.Method + " " + req.URL.Path
	resp, err := hc.Do(req)
	if err != nil {
		c.logger.Debug("gist: request failed", slog.String("op", op), slog.String("error", err.Error()))
		return nil, &apperr.TransportError{Op: op, Err: err}
	}
	c.logger.Debug("gist: request",
		slog.String("op", op),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return nil, statusError(resp.StatusCode, remoteMessage(data, resp.StatusCode), write)
}

func statusError(status int, msg string, write bool) error {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden && write:
		return &apperr.AuthError{Status: status, Message: msg}
	case status == http.StatusPreconditionFailed:
		return apperr.Conflict("bucket changed since it was read: %s", msg)
	default:
		return &apperr.RemoteError{Status: status, Message: msg}
	}
}

// remoteMessage extracts the server-provided message: the "message" field of
// a JSON body, the compact JSON body, the plain text body, or the status text.
func remoteMessage(body []byte, status int) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return http.StatusText(status)
	}
	var obj map[string]any
	if err := json.Unmarshal(trimmed, &obj); err == nil {
		if m, ok := obj["message"].(string); ok && m != "" {
			return m
		}
		var buf bytes.Buffer
		if json.Compact(&buf, trimmed) == nil {
			return buf.String()
		}
	}
	return string(trimmed)
}

// snapshotVersion picks the value later sent as If-Match. A strong ETag is
// used as is. If-Match compares strongly, so a weak ETag gives way to the
// newest history revision; without history its W/ prefix is stripped, which
// is best effort.
func snapshotVersion(g *apiGist, etag string) string {
	weak, isWeak := strings.CutPrefix(etag, "W/")
	if etag != "" && !isWeak {
		return etag
	}
	if len(g.History) > 0 && g.History[0].Version != "" {
		return g.History[0].Version
	}
	return weak
}

func toSnapshot(g *apiGist, etag string) *storage.Snapshot {
	s := &storage.Snapshot{
		Description: g.Description,
		Version:     snapshotVersion(g, etag),
		UpdatedAt:   g.UpdatedAt,
		Files:       make(map[string]storage.File, len(g.Files)),
	}
	for name, f := range g.Files {
		if f == nil {
			continue
		}
		s.Files[name] = storage.File{Name: name, RawURL: f.RawURL, Size: f.Size}
	}
	return s
}

var _ storage.Provider = (*Client)(nil)
