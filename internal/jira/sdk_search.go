package jira

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	jiraapi "github.com/ctreminiom/go-atlassian/v2/jira/v2"

	"github.com/ylchen07/ticketq/internal/ticket"
)

// SDKSearcher runs searches through the go-atlassian client, decoding into
// the same narrow issue shape as the REST service.
type SDKSearcher struct {
	client *jiraapi.Client
}

// NewSDKSearcher wraps a configured go-atlassian Jira client.
func NewSDKSearcher(client *jiraapi.Client) *SDKSearcher {
	return &SDKSearcher{client: client}
}

// Search implements ticket.Fetcher.
func (s *SDKSearcher) Search(ctx context.Context, req ticket.SearchRequest) (*ticket.Page, error) {
	if strings.TrimSpace(req.JQL) == "" {
		return nil, fmt.Errorf("jira: jql required")
	}

	params := url.Values{}
	params.Set("jql", req.JQL)
	params.Set("startAt", strconv.Itoa(req.StartAt))
	if req.MaxResults > 0 {
		params.Set("maxResults", strconv.Itoa(req.MaxResults))
	}
	if len(req.Fields) > 0 {
		params.Set("fields", strings.Join(req.Fields, ","))
	}

	endpoint := strings.TrimPrefix(apiPath("search"), "/") + "?" + params.Encode()

	request, err := s.client.NewRequest(ctx, http.MethodGet, endpoint, "", nil)
	if err != nil {
		return nil, fmt.Errorf("jira: build search request: %w", err)
	}

	var result SearchResult
	if _, err := s.client.Call(request, &result); err != nil {
		return nil, fmt.Errorf("jira: search at %d: %w", req.StartAt, err)
	}

	return result.Page(), nil
}
