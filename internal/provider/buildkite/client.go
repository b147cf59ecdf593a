package buildkite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultBaseURL is the Buildkite REST API root.
const DefaultBaseURL = "https://api.buildkite.com/v2"

// Options configure a Client.
type Options struct {
	BaseURL     string
	Org         string
	Token       string
	HTTPClient  *http.Client
	Logger      *slog.Logger
	MaxAttempts int
	Backoff     time.Duration
}

// Client fetches build pages from the Buildkite REST API.
type Client struct {
	opts Options
	http *http.Client
}

// Query selects the builds to list.
type Query struct {
	// Pipeline is the pipeline slug. Empty lists builds of all pipelines.
	Pipeline       string
	Branch         string
	States         []string
	PerPage        int
	IncludeRetries bool
	// MaxFetches bounds the number of pages requested. Zero means no limit.
	MaxFetches int
}

// NewClient creates a client. The token is sent as a bearer token on every request.
func NewClient(ctx context.Context, opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 4
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}

	httpClient := opts.HTTPClient
	if opts.Token != "" {
		if httpClient != nil {
			ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
		}
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token}))
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{opts: opts, http: httpClient}
}

// Path returns the request path for q relative to the API root.
func (c *Client) Path(q Query) string {
	org := url.PathEscape(c.opts.Org)
	if q.Pipeline == "" {
		return fmt.Sprintf("/organizations/%s/builds", org)
	}
	return fmt.Sprintf("/organizations/%s/pipelines/%s/builds", org, url.PathEscape(q.Pipeline))
}

// Params returns the query string parameters for q.
func Params(q Query) url.Values {
	perPage := q.PerPage
	if perPage <= 0 {
		perPage = 100
	}
	params := url.Values{}
	params.Set("include_retried_jobs", strconv.FormatBool(q.IncludeRetries))
	params.Set("per_page", strconv.Itoa(perPage))
	if q.Branch != "" {
		params.Set("branch", q.Branch)
	}
	for _, state := range q.States {
		params.Add("state[]", state)
	}
	return params
}

// ListBuilds fetches pages of builds following the Link header, returning each
// page body unparsed.
func (c *Client) ListBuilds(ctx context.Context, q Query) ([][]byte, error) {
	next := c.opts.BaseURL + c.Path(q) + "?" + Params(q).Encode()

	var pages [][]byte
	for next != "" {
		if q.MaxFetches > 0 && len(pages) >= q.MaxFetches {
			break
		}
		body, link, err := c.fetchPage(ctx, next)
		if err != nil {
			return nil, err
		}
		pages = append(pages, body)
		c.opts.Logger.DebugContext(ctx, "fetched builds page", "page", len(pages), "bytes", len(body))
		next = nextLink(link)
	}
	return pages, nil
}

func (c *Client) fetchPage(ctx context.Context, pageURL string) ([]byte, string, error) {
	var lastErr error
	for attempt := 0; attempt < c.opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			wait := c.opts.Backoff << (attempt - 1)
			c.opts.Logger.WarnContext(ctx, "retrying builds request", "attempt", attempt+1, "wait", wait, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, "", ctx.Err()
			case <-time.After(wait):
			}
		}

		body, link, err := c.get(ctx, pageURL)
		if err == nil {
			return body, link, nil
		}
		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Temporary() {
			return nil, "", err
		}
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		lastErr = err
	}
	return nil, "", fmt.Errorf("fetch %q: giving up after %d attempts: %w", pageURL, c.opts.MaxAttempts, lastErr)
}

func (c *Client) get(ctx context.Context, pageURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("get %q: %w", pageURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read %q: %w", pageURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", &StatusError{URL: pageURL, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, resp.Header.Get("Link"), nil
}

// StatusError is returned for non-200 API responses.
type StatusError struct {
	URL  string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("get %q: status %d", e.URL, e.Code)
	}
	return fmt.Sprintf("get %q: status %d: %s", e.URL, e.Code, e.Body)
}

// Temporary reports whether the request may succeed when retried.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// nextLink extracts the rel="next" target from an RFC 8288 Link header.
func nextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		segments := strings.Split(part, ";")
		if len(segments) < 2 {
			continue
		}
		target := strings.TrimSpace(segments[0])
		if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
			continue
		}
		for _, param := range segments[1:] {
			param = strings.TrimSpace(param)
			if param == `rel="next"` || param == "rel=next" {
				return target[1 : len(target)-1]
			}
		}
	}
	return ""
}
