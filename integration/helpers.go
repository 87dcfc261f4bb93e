//go:build integration

package integration

import (
	"os"
	"strings"
	"testing"

	"github.com/ylchen07/ticketq/internal/atlassian"
	"github.com/ylchen07/ticketq/internal/config"
	"github.com/ylchen07/ticketq/internal/jira"
)

// requireIntegration skips the test if TICKETQ_INTEGRATION is not set.
func requireIntegration(t *testing.T) {
	t.Helper()
	if os.Getenv("TICKETQ_INTEGRATION") == "" {
		t.Skip("TICKETQ_INTEGRATION not set; skipping integration tests")
	}
}

// ensureHTTPS adds https:// prefix to URLs if not already present.
func ensureHTTPS(site string) string {
	trimmed := strings.TrimSpace(site)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		return strings.TrimRight(trimmed, "/")
	}
	return "https://" + strings.TrimRight(trimmed, "/")
}

// resolveEnv returns the first non-empty environment variable value from the provided keys.
func resolveEnv(keys ...string) string {
	for _, key := range keys {
		if val := os.Getenv(key); strings.TrimSpace(val) != "" {
			return val
		}
	}
	return ""
}

// credsValid checks if credentials are valid (either OAuth token or email+API token).
func credsValid(creds config.ServiceCredentials) bool {
	if creds.OAuthToken != "" {
		return true
	}
	return creds.Email != "" && creds.APIToken != ""
}

// jiraEnv reads the site and credentials, skipping when either is missing.
func jiraEnv(t *testing.T) (string, config.ServiceCredentials) {
	t.Helper()

	site := ensureHTTPS(resolveEnv("TICKETQ_JIRA_SITE", "ATLASSIAN_JIRA_SITE"))
	if site == "" {
		t.Skip("TICKETQ_JIRA_SITE not set")
	}

	creds := config.ServiceCredentials{
		Email:      resolveEnv("TICKETQ_JIRA_EMAIL", "ATLASSIAN_JIRA_EMAIL"),
		APIToken:   resolveEnv("TICKETQ_JIRA_API_TOKEN", "ATLASSIAN_JIRA_API_TOKEN"),
		OAuthToken: resolveEnv("TICKETQ_JIRA_OAUTH_TOKEN", "ATLASSIAN_JIRA_OAUTH_TOKEN"),
	}
	if !credsValid(creds) {
		t.Skip("Jira credentials not provided")
	}
	return site, creds
}

// searchJQL is the query used by live tests.
func searchJQL() string {
	if jql := os.Getenv("TICKETQ_JIRA_JQL"); strings.TrimSpace(jql) != "" {
		return jql
	}
	return "created >= -30d ORDER BY created DESC"
}

// setupJiraService creates the REST fetcher from environment variables.
func setupJiraService(t *testing.T) (*jira.Service, string) {
	t.Helper()

	site, creds := jiraEnv(t)
	httpClient, err := atlassian.NewHTTPClient(site, creds)
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}
	return jira.NewService(httpClient), site
}

// setupSDKSearcher creates the go-atlassian fetcher from environment variables.
func setupSDKSearcher(t *testing.T) (*jira.SDKSearcher, string) {
	t.Helper()

	site, creds := jiraEnv(t)
	client, err := jira.NewClient(site, creds)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return jira.NewSDKSearcher(client), site
}
