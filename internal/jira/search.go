package jira

import (
	"context"
	"fmt"
	"strings"

	"github.com/ylchen07/ticketq/internal/ticket"
)

// SearchIssues executes one page of a JQL search.
func (s *Service) SearchIssues(ctx context.Context, req ticket.SearchRequest) (*SearchResult, error) {
	if strings.TrimSpace(req.JQL) == "" {
		return nil, fmt.Errorf("jira: jql required")
	}

	body := searchBody{
		JQL:        req.JQL,
		StartAt:    req.StartAt,
		MaxResults: req.MaxResults,
		Fields:     req.Fields,
	}

	var result SearchResult
	if err := s.client.Post(ctx, apiPath("search"), body, &result); err != nil {
		return nil, fmt.Errorf("jira: search at %d: %w", req.StartAt, err)
	}

	return &result, nil
}

// Search implements ticket.Fetcher.
func (s *Service) Search(ctx context.Context, req ticket.SearchRequest) (*ticket.Page, error) {
	result, err := s.SearchIssues(ctx, req)
	if err != nil {
		return nil, err
	}
	return result.Page(), nil
}
