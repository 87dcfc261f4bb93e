// Package ticket defines the normalized ticket entity and the aggregation of
// paged search results into a single collection.
package ticket

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Category is a coarse issue classification used only for iconography.
type Category string

const (
	CategoryBug   Category = "bug"
	CategoryTask  Category = "task"
	CategoryStory Category = "story"
	CategoryEpic  Category = "epic"
	CategoryOther Category = "other"
)

// Sentinels for optional fields missing from a raw record.
const (
	PriorityUnknown = "Unknown"
	StatusUnknown   = "Status N/A"
	ReporterUnknown = "unknown reporter"
)

// Ticket is the canonical normalized issue.
type Ticket struct {
	ID        string    `json:"id" cbor:"1,keyasint"`
	Title     string    `json:"title" cbor:"2,keyasint"`
	Subtitle  string    `json:"subtitle" cbor:"3,keyasint"`
	Status    string    `json:"status" cbor:"4,keyasint"`
	Priority  string    `json:"priority" cbor:"5,keyasint"`
	Reporter  string    `json:"reporter" cbor:"6,keyasint"`
	CreatedAt time.Time `json:"createdAt" cbor:"7,keyasint"`
	URL       string    `json:"url" cbor:"8,keyasint"`
	Category  Category  `json:"category" cbor:"9,keyasint"`
}

// HasCreatedAt reports whether the ticket carries a creation timestamp.
func (t Ticket) HasCreatedAt() bool {
	return !t.CreatedAt.IsZero()
}

// RawRecord holds the issue fields the normalizer reads, flattened from the
// tracker's search response.
type RawRecord struct {
	Key       string
	Summary   string
	Status    string
	Priority  string
	Reporter  string
	IssueType string
	Created   string
}

// SearchRequest is one page window of a search.
type SearchRequest struct {
	JQL        string
	StartAt    int
	MaxResults int
	Fields     []string
}

// Page is one page of raw records plus the remote's paging metadata.
type Page struct {
	Records    []RawRecord
	StartAt    int
	MaxResults int
	Total      int
}

// Fetcher issues one paged search against the tracker.
type Fetcher interface {
	Search(ctx context.Context, req SearchRequest) (*Page, error)
}

// DefaultFields are requested for every search.
var DefaultFields = []string{"summary", "status", "issuetype", "priority", "reporter", "created"}

// URLBuilder derives tracker links from keys and free text.
type URLBuilder struct {
	Site string
}

// NewURLBuilder trims trailing slashes from the site URL.
func NewURLBuilder(site string) URLBuilder {
	return URLBuilder{Site: strings.TrimRight(site, "/")}
}

// IssueURL links to the issue page for key. It is also used for literal
// lookups of keys that may not exist.
func (b URLBuilder) IssueURL(key string) string {
	return fmt.Sprintf("%s/browse/%s", b.Site, url.PathEscape(strings.TrimSpace(key)))
}

// SearchURL links to the tracker's own text search for text.
func (b URLBuilder) SearchURL(text string) string {
	jql := fmt.Sprintf("text ~ %q", strings.TrimSpace(text))
	return fmt.Sprintf("%s/issues/?jql=%s", b.Site, url.QueryEscape(jql))
}
