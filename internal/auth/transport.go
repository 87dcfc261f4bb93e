package auth

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/ylchen07/ticketq/internal/config"
)

// DefaultUserAgent identifies ticketq to the Jira site.
const DefaultUserAgent = "ticketq"

// Transport injects Jira authentication headers into outbound requests.
type Transport struct {
	base       http.RoundTripper
	creds      config.ServiceCredentials
	userAgent  string
	authHeader string
	once       sync.Once
	initErr    error
}

// NewTransport creates a new auth transport wrapping the provided RoundTripper.
func NewTransport(base http.RoundTripper, creds config.ServiceCredentials) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{base: base, creds: creds, userAgent: DefaultUserAgent}
}

// WithUserAgent overrides the User-Agent header sent with every request.
func (t *Transport) WithUserAgent(agent string) *Transport {
	if strings.TrimSpace(agent) != "" {
		t.userAgent = agent
	}
	return t
}

// RoundTrip implements http.RoundTripper. The caller's request is cloned,
// never mutated.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.initialize(); err != nil {
		return nil, err
	}

	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", t.authHeader)
	clone.Header.Set("Accept", "application/json")
	clone.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(clone)
}

// initialize prefers OAuth bearer tokens and falls back to basic auth.
func (t *Transport) initialize() error {
	t.once.Do(func() {
		switch {
		case strings.TrimSpace(t.creds.OAuthToken) != "":
			t.authHeader = "Bearer " + t.creds.OAuthToken
		case t.creds.Email != "" && t.creds.APIToken != "":
			token := base64.StdEncoding.EncodeToString([]byte(t.creds.Email + ":" + t.creds.APIToken))
			t.authHeader = "Basic " + token
		default:
			t.initErr = fmt.Errorf("auth: insufficient credentials")
		}
	})
	return t.initErr
}
