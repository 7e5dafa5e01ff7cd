// Package apiclient talks to the kapeview backend over its JSON HTTP API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/kapeview/kapeview/internal/model"
)

const (
	pathOverview  = "/api/dashboard/overview"
	pathPreflight = "/api/api/preflight/"
	pathUpload    = "/api/upload-evidence/"
	pathExtract   = "/api/start-extract/"
	pathParse     = "/api/start-parse/"

	// CSRFCookie is the cookie the backend stores the forgery token in.
	CSRFCookie = "csrftoken"
	// CSRFHeader carries the token on state-changing requests.
	CSRFHeader = "X-CSRFToken"

	maxResponseBytes = 32 << 20
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("apiclient: status %d", e.Code)
	}
	return fmt.Sprintf("apiclient: status %d: %s", e.Code, e.Body)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// Client implements model.Backend over HTTP. It keeps a cookie jar so the
// forgery-protection token set by the backend is echoed on POSTs.
type Client struct {
	base   *url.URL
	http   *http.Client
	upload *http.Client
}

var _ model.Backend = (*Client)(nil)

// New creates a client for the backend at rawURL. timeout is the
// transport-level timeout of each request; zero disables it.
func New(rawURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(rawURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("apiclient: parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("apiclient: unsupported url scheme %q", u.Scheme)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("apiclient: cookie jar: %w", err)
	}
	return &Client{
		base:   u,
		http:   &http.Client{Jar: jar, Timeout: timeout},
		upload: &http.Client{Jar: jar},
	}, nil
}

// BaseURL returns the backend root.
func (c *Client) BaseURL() string { return c.base.String() }

// ResolveURL turns a backend locator (e.g. /media/parsed/1/mft.csv) into an
// absolute URL.
func (c *Client) ResolveURL(locator string) string {
	if locator == "" {
		return ""
	}
	ref, err := url.Parse(locator)
	if err != nil {
		return locator
	}
	return c.base.ResolveReference(ref).String()
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + path
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	} else {
		u.RawQuery = ""
	}
	return u.String()
}

func evidencePath(id string) string {
	return "/api/evidence/" + url.PathEscape(id) + "/"
}

// Overview fetches the dashboard totals and recent cases.
func (c *Client) Overview(ctx context.Context) (*model.Overview, error) {
	var out model.Overview
	if err := c.get(ctx, pathOverview, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Preflight fetches the backend health checks.
func (c *Client) Preflight(ctx context.Context) (*model.Preflight, error) {
	var out model.Preflight
	if err := c.get(ctx, pathPreflight, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Evidence fetches one evidence and its summary.
func (c *Client) Evidence(ctx context.Context, id string) (*model.EvidenceDetail, error) {
	var out model.EvidenceDetail
	if err := c.get(ctx, evidencePath(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Page fetches one page of a dataset.
func (c *Client) Page(ctx context.Context, evidenceID string, ds model.Dataset, params url.Values) (*model.PageResult, error) {
	var out model.PageResult
	if err := c.get(ctx, evidencePath(evidenceID)+string(ds)+"/", params, &out); err != nil {
		return nil, err
	}
	if out.Rows == nil {
		out.Rows = []model.Record{}
	}
	return &out, nil
}

// StartExtract asks the backend to unpack the evidence archive. A decodable
// error body is returned alongside the StatusError.
func (c *Client) StartExtract(ctx context.Context, id string) (*model.ExtractResult, error) {
	var out model.ExtractResult
	err := c.postForm(ctx, pathExtract, url.Values{"id": {id}}, &out)
	if err != nil && !decodedBody(err) {
		return nil, err
	}
	return &out, err
}

// StartParse asks the backend to run the artifact parsers. A decodable
// error body is returned alongside the StatusError.
func (c *Client) StartParse(ctx context.Context, id string) (*model.ParseResult, error) {
	var out model.ParseResult
	err := c.postForm(ctx, pathParse, url.Values{"id": {id}}, &out)
	if err != nil && !decodedBody(err) {
		return nil, err
	}
	return &out, err
}

func (c *Client) get(ctx context.Context, path string, q url.Values, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, q), nil)
	if err != nil {
		return fmt.Errorf("apiclient: build request: %w", err)
	}
	return c.do(req, dest)
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path, nil), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("apiclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if err := c.protect(ctx, req); err != nil {
		return err
	}
	return c.do(req, dest)
}

// protect attaches the forgery-protection token, priming the cookie jar
// with a GET when the backend has not set one yet.
func (c *Client) protect(ctx context.Context, req *http.Request) error {
	token := c.csrfToken()
	if token == "" {
		if err := c.get(ctx, pathOverview, nil, nil); err != nil {
			return fmt.Errorf("apiclient: fetch csrf token: %w", err)
		}
		token = c.csrfToken()
	}
	if token != "" {
		req.Header.Set(CSRFHeader, token)
	}
	req.Header.Set("Referer", c.base.String()+"/")
	return nil
}

func (c *Client) csrfToken() string {
	for _, ck := range c.http.Jar.Cookies(c.base) {
		if ck.Name == CSRFCookie {
			return ck.Value
		}
	}
	return ""
}

// bodyDecodedError marks a StatusError whose body was also decoded into
// the destination.
type bodyDecodedError struct{ *StatusError }

func (e bodyDecodedError) Unwrap() error { return e.StatusError }

func decodedBody(err error) bool {
	var d bodyDecodedError
	return errors.As(err, &d)
}

func (c *Client) do(req *http.Request, dest any) error {
	return c.doWith(c.http, req, dest)
}

func (c *Client) doWith(hc *http.Client, req *http.Request, dest any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("apiclient: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("apiclient: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{Code: resp.StatusCode, Body: errorText(body)}
		if dest != nil && isJSON(resp) && decode(body, dest) == nil {
			return bodyDecodedError{se}
		}
		return se
	}
	if dest == nil {
		return nil
	}
	if err := decode(body, dest); err != nil {
		return fmt.Errorf("apiclient: decode %s: %w", req.URL.Path, err)
	}
	return nil
}

func decode(body []byte, dest any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	return dec.Decode(dest)
}

func isJSON(resp *http.Response) bool {
	return strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json")
}

// errorText extracts a short message from an error body: the "error" field
// of a JSON object, or the trimmed text itself.
func errorText(body []byte) string {
	var obj struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &obj) == nil && obj.Error != "" {
		return obj.Error
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
