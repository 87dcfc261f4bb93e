package jira

import "github.com/ylchen07/ticketq/internal/ticket"

// named is the {"name": ...} shape Jira uses for status, priority and issue type.
type named struct {
	Name string `json:"name"`
}

// user is the subset of a Jira user object we read.
type user struct {
	DisplayName string `json:"displayName"`
	AccountID   string `json:"accountId"`
}

// Issue is the narrow issue payload requested by searches. Optional objects
// are pointers so absent fields stay distinguishable from empty names.
type Issue struct {
	ID     string      `json:"id"`
	Key    string      `json:"key"`
	Fields IssueFields `json:"fields"`
}

// IssueFields reflect the subset of issue fields we surface.
type IssueFields struct {
	Summary   string `json:"summary"`
	Status    *named `json:"status"`
	Priority  *named `json:"priority"`
	IssueType *named `json:"issuetype"`
	Reporter  *user  `json:"reporter"`
	Created   string `json:"created"`
}

// SearchResult represents the Jira search response.
type SearchResult struct {
	Total      int     `json:"total"`
	Issues     []Issue `json:"issues"`
	StartAt    int     `json:"startAt"`
	MaxResults int     `json:"maxResults"`
}

// searchBody is the POST /search request payload.
type searchBody struct {
	JQL        string   `json:"jql"`
	StartAt    int      `json:"startAt"`
	MaxResults int      `json:"maxResults,omitempty"`
	Fields     []string `json:"fields,omitempty"`
}

// Raw flattens the issue into the record the normalizer reads.
func (i Issue) Raw() ticket.RawRecord {
	raw := ticket.RawRecord{
		Key:     i.Key,
		Summary: i.Fields.Summary,
		Created: i.Fields.Created,
	}
	if i.Fields.Status != nil {
		raw.Status = i.Fields.Status.Name
	}
	if i.Fields.Priority != nil {
		raw.Priority = i.Fields.Priority.Name
	}
	if i.Fields.IssueType != nil {
		raw.IssueType = i.Fields.IssueType.Name
	}
	if i.Fields.Reporter != nil {
		raw.Reporter = i.Fields.Reporter.DisplayName
	}
	return raw
}

// Page converts the search response into a ticket page.
func (r *SearchResult) Page() *ticket.Page {
	page := &ticket.Page{
		Records:    make([]ticket.RawRecord, 0, len(r.Issues)),
		StartAt:    r.StartAt,
		MaxResults: r.MaxResults,
		Total:      r.Total,
	}
	for _, issue := range r.Issues {
		page.Records = append(page.Records, issue.Raw())
	}
	return page
}
