package atlassian

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ylchen07/ticketq/internal/auth"
	"github.com/ylchen07/ticketq/internal/config"
)

// DefaultTimeout bounds a single REST call, and therefore a single page of a refresh.
const DefaultTimeout = 30 * time.Second

// HTTPClient is a small JSON client for the Jira REST API. Authentication is
// applied by an auth.Transport, so either basic auth (email + API token) or
// an OAuth bearer token works.
type HTTPClient struct {
	BaseURL    string
	HTTPClient *http.Client

	creds     config.ServiceCredentials
	userAgent string
	base      http.RoundTripper
}

// NewHTTPClient creates an HTTP client for the Jira site. The baseURL may
// include a context path (e.g. https://domain.com/jira).
func NewHTTPClient(baseURL string, creds config.ServiceCredentials) (*HTTPClient, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("atlassian: base URL is required")
	}

	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "https://" + baseURL
	}

	hasOAuth := strings.TrimSpace(creds.OAuthToken) != ""
	hasBasicAuth := strings.TrimSpace(creds.Email) != "" && strings.TrimSpace(creds.APIToken) != ""
	if !hasOAuth && !hasBasicAuth {
		return nil, fmt.Errorf("atlassian: credentials required (either oauth_token or email+api_token)")
	}

	c := &HTTPClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
		creds:      creds,
		userAgent:  auth.DefaultUserAgent,
	}
	c.HTTPClient.Transport = c.authTransport()
	return c, nil
}

// SetTransport overrides the transport beneath authentication. Useful for
// testing; requests still carry the auth headers.
func (c *HTTPClient) SetTransport(rt http.RoundTripper) {
	if rt == nil {
		return
	}
	c.base = rt
	c.HTTPClient.Transport = c.authTransport()
}

// SetUserAgent overrides the User-Agent sent with every request.
func (c *HTTPClient) SetUserAgent(agent string) {
	if strings.TrimSpace(agent) == "" {
		return
	}
	c.userAgent = agent
	c.HTTPClient.Transport = c.authTransport()
}

func (c *HTTPClient) authTransport() http.RoundTripper {
	return auth.NewTransport(c.base, c.creds).WithUserAgent(c.userAgent)
}

// Do executes an HTTP request against BaseURL+path with an optional JSON body.
func (c *HTTPClient) Do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("atlassian: marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("atlassian: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.HTTPClient.Do(req)
}

// Get is a helper for GET requests.
func (c *HTTPClient) Get(ctx context.Context, path string, result any) error {
	return c.call(ctx, http.MethodGet, path, nil, result)
}

// Post is a helper for POST requests.
func (c *HTTPClient) Post(ctx context.Context, path string, body, result any) error {
	return c.call(ctx, http.MethodPost, path, body, result)
}

func (c *HTTPClient) call(ctx context.Context, method, path string, body, result any) error {
	resp, err := c.Do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseError(resp)
	}

	if result == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("atlassian: decode response: %w", err)
	}
	return nil
}
