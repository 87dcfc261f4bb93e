package jira

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	jiraapi "github.com/ctreminiom/go-atlassian/v2/jira/v2"

	"github.com/ylchen07/ticketq/internal/atlassian"
	"github.com/ylchen07/ticketq/internal/auth"
	"github.com/ylchen07/ticketq/internal/config"
)

// ClientOption customises construction of the go-atlassian Jira client.
type ClientOption func(*jiraapi.Client)

// WithUserAgent sets a custom user agent on the Jira client.
func WithUserAgent(agent string) ClientOption {
	return func(client *jiraapi.Client) {
		if strings.TrimSpace(agent) != "" {
			client.Auth.SetUserAgent(agent)
		}
	}
}

// WithHTTPClient overrides the HTTP client used by the Jira SDK.
// The SDK keeps the pointer, so configure transport and timeouts first.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(client *jiraapi.Client) {
		if httpClient != nil {
			client.HTTP = httpClient
		}
	}
}

// NewClient creates a go-atlassian REST v2 client for site, which may be the
// bare site or an API base ending in /rest/api/2 or /rest/api/3. OAuth bearer
// tokens take precedence over basic auth.
func NewClient(site string, creds config.ServiceCredentials, opts ...ClientOption) (*jiraapi.Client, error) {
	base, err := normalizeSite(site)
	if err != nil {
		return nil, err
	}

	client, err := jiraapi.New(&http.Client{Timeout: atlassian.DefaultTimeout}, base)
	if err != nil {
		return nil, fmt.Errorf("jira: initialise client: %w", err)
	}

	client.Auth.SetUserAgent(auth.DefaultUserAgent)

	for _, opt := range opts {
		opt(client)
	}

	switch {
	case strings.TrimSpace(creds.OAuthToken) != "":
		client.Auth.SetBearerToken(creds.OAuthToken)
	case strings.TrimSpace(creds.Email) != "" && strings.TrimSpace(creds.APIToken) != "":
		client.Auth.SetBasicAuth(creds.Email, creds.APIToken)
	default:
		return nil, fmt.Errorf("jira: insufficient credentials for client")
	}

	return client, nil
}

func normalizeSite(site string) (string, error) {
	trimmed := strings.TrimSpace(site)
	if trimmed == "" {
		return "", fmt.Errorf("jira: site is required to construct client")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("jira: parse site: %w", err)
	}

	parsed.Path = strings.TrimRight(parsed.Path, "/")
	for _, suffix := range []string{"/rest/api/3", "/rest/api/2"} {
		if strings.HasSuffix(parsed.Path, suffix) {
			parsed.Path = strings.TrimRight(strings.TrimSuffix(parsed.Path, suffix), "/")
			break
		}
	}

	if parsed.Path != "" {
		parsed.Path += "/"
	}

	return parsed.String(), nil
}
