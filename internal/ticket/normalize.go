package ticket

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Jira renders timestamps without a colon in the zone offset.
var createdLayouts = []string{
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
	time.RFC3339Nano,
	time.RFC3339,
}

// Normalizer maps raw records to Tickets.
type Normalizer struct {
	URLs URLBuilder
	Now  func() time.Time
}

// Normalize never fails: missing optional fields degrade to sentinels and an
// unparseable creation time becomes the zero time.
func (n Normalizer) Normalize(raw RawRecord) Ticket {
	key := strings.TrimSpace(raw.Key)
	summary := strings.TrimSpace(raw.Summary)

	title := key
	if summary != "" {
		title = fmt.Sprintf("%s - %s", key, summary)
	}

	t := Ticket{
		ID:        key,
		Title:     title,
		Status:    orDefault(raw.Status, StatusUnknown),
		Priority:  orDefault(raw.Priority, PriorityUnknown),
		Reporter:  orDefault(raw.Reporter, ReporterUnknown),
		CreatedAt: parseCreated(raw.Created),
		URL:       n.URLs.IssueURL(key),
		Category:  categorize(raw.IssueType),
	}
	t.Subtitle = n.subtitle(t)
	return t
}

func (n Normalizer) subtitle(t Ticket) string {
	line := fmt.Sprintf("%s 🔹 %s by %s", t.Status, t.Priority, t.Reporter)
	if !t.HasCreatedAt() {
		return line
	}
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	return line + " · " + humanize.RelTime(t.CreatedAt, now(), "ago", "from now")
}

func parseCreated(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range createdLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts
		}
	}
	return time.Time{}
}

func categorize(issueType string) Category {
	name := strings.ToLower(issueType)
	switch {
	case strings.Contains(name, "bug"), strings.Contains(name, "defect"), strings.Contains(name, "incident"):
		return CategoryBug
	case strings.Contains(name, "story"), strings.Contains(name, "improvement"), strings.Contains(name, "feature"):
		return CategoryStory
	case strings.Contains(name, "epic"):
		return CategoryEpic
	case strings.Contains(name, "task"):
		return CategoryTask
	}
	return CategoryOther
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
