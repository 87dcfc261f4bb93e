package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/ylchen07/ticketq/internal/atlassian"
	"github.com/ylchen07/ticketq/internal/config"
	"github.com/ylchen07/ticketq/internal/ticket"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestService(t *testing.T, fn roundTripFunc) *Service {
	t.Helper()
	client, err := atlassian.NewHTTPClient("https://example.atlassian.net", config.ServiceCredentials{Email: "user", APIToken: "token"})
	if err != nil {
		t.Fatalf("NewHTTPClient error: %v", err)
	}
	client.SetTransport(fn)
	return NewService(client)
}

func jsonResponse(t *testing.T, req *http.Request, status int, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader(data)),
		Header:     make(http.Header),
		Request:    req,
	}
}

func searchPayload() map[string]any {
	return map[string]any{
		"total":      2,
		"startAt":    100,
		"maxResults": 100,
		"issues": []map[string]any{
			{
				"id":  "10001",
				"key": "CS-2",
				"fields": map[string]any{
					"summary":   "Refund stuck",
					"status":    map[string]any{"name": "Ready to Deploy"},
					"priority":  map[string]any{"name": "Critical"},
					"issuetype": map[string]any{"name": "Bug"},
					"reporter":  map[string]any{"displayName": "Fox Mulder"},
					"created":   "2024-03-10T09:00:00.000+0000",
				},
			},
			{
				"id":  "10000",
				"key": "CS-1",
				"fields": map[string]any{
					"summary": "No optional fields",
				},
			},
		},
	}
}

func TestServiceSearch(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/rest/api/2/search" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got == "" {
			t.Fatalf("expected auth header")
		}
		var body searchBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.JQL != "project = CS" || body.StartAt != 100 || body.MaxResults != 100 {
			t.Fatalf("unexpected body %#v", body)
		}
		if len(body.Fields) != len(ticket.DefaultFields) {
			t.Fatalf("expected default fields, got %v", body.Fields)
		}
		return jsonResponse(t, r, http.StatusOK, searchPayload()), nil
	})

	page, err := svc.Search(context.Background(), ticket.SearchRequest{
		JQL:        "project = CS",
		StartAt:    100,
		MaxResults: 100,
		Fields:     ticket.DefaultFields,
	})
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}

	if page.Total != 2 || page.StartAt != 100 || len(page.Records) != 2 {
		t.Fatalf("unexpected page %#v", page)
	}

	want := ticket.RawRecord{
		Key:       "CS-2",
		Summary:   "Refund stuck",
		Status:    "Ready to Deploy",
		Priority:  "Critical",
		Reporter:  "Fox Mulder",
		IssueType: "Bug",
		Created:   "2024-03-10T09:00:00.000+0000",
	}
	if page.Records[0] != want {
		t.Fatalf("record = %+v, want %+v", page.Records[0], want)
	}
	if page.Records[1] != (ticket.RawRecord{Key: "CS-1", Summary: "No optional fields"}) {
		t.Fatalf("absent fields must stay empty, got %+v", page.Records[1])
	}
}

func TestServiceSearchRequiresJQL(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, func(*http.Request) (*http.Response, error) {
		t.Fatalf("no request expected")
		return nil, nil
	})
	if _, err := svc.Search(context.Background(), ticket.SearchRequest{JQL: "  "}); err == nil {
		t.Fatalf("expected jql validation error")
	}
}

func TestServiceSearchPropagatesAPIError(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(t, r, http.StatusBadRequest, map[string]any{"errorMessages": []string{"bad jql"}}), nil
	})

	_, err := svc.Search(context.Background(), ticket.SearchRequest{JQL: "project = ??"})
	var apiErr *atlassian.Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected wrapped *atlassian.Error, got %v", err)
	}
}

func TestAPIPath(t *testing.T) {
	t.Parallel()

	if got := apiPath("/search/"); got != "/rest/api/2/search" {
		t.Fatalf("unexpected path %s", got)
	}
	if got := apiPath("issue", "", "CS-1"); got != "/rest/api/2/issue/CS-1" {
		t.Fatalf("unexpected path %s", got)
	}
}
