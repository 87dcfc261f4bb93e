package jira

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/ylchen07/ticketq/internal/config"
	"github.com/ylchen07/ticketq/internal/ticket"
)

func TestSDKSearcherSearch(t *testing.T) {
	t.Parallel()

	httpClient := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodGet {
			t.Fatalf("expected GET, got %s", r.Method)
		}
		if r.URL.Path != "/rest/api/2/search" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("jql") != "project = CS" || q.Get("startAt") != "0" || q.Get("maxResults") != "50" {
			t.Fatalf("unexpected query %s", r.URL.RawQuery)
		}
		if q.Get("fields") != strings.Join(ticket.DefaultFields, ",") {
			t.Fatalf("unexpected fields %s", q.Get("fields"))
		}
		if r.Header.Get("Authorization") == "" {
			t.Fatalf("expected auth header")
		}
		return jsonResponse(t, r, http.StatusOK, searchPayload()), nil
	})}

	client, err := NewClient("https://example.atlassian.net", config.ServiceCredentials{Email: "user", APIToken: "token"}, WithHTTPClient(httpClient))
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}

	page, err := NewSDKSearcher(client).Search(context.Background(), ticket.SearchRequest{
		JQL:        "project = CS",
		MaxResults: 50,
		Fields:     ticket.DefaultFields,
	})
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if page.Total != 2 || len(page.Records) != 2 || page.Records[0].Priority != "Critical" {
		t.Fatalf("unexpected page %#v", page)
	}
}

func TestSDKSearcherErrorStatus(t *testing.T) {
	t.Parallel()

	httpClient := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(t, r, http.StatusUnauthorized, map[string]any{"errorMessages": []string{"nope"}}), nil
	})}

	client, err := NewClient("https://example.atlassian.net", config.ServiceCredentials{OAuthToken: "token"}, WithHTTPClient(httpClient))
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}

	if _, err := NewSDKSearcher(client).Search(context.Background(), ticket.SearchRequest{JQL: "project = CS"}); err == nil {
		t.Fatalf("expected error for 401 response")
	}
}
