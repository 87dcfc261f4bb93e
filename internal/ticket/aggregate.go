package ticket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// DefaultPageSize is the page window requested from the tracker.
const DefaultPageSize = 100

// Aggregator drives a Fetcher across successive pages and normalizes every
// record into one ordered collection.
type Aggregator struct {
	Fetcher    Fetcher
	Normalizer Normalizer
	PageSize   int
	Fields     []string
	Logger     *slog.Logger
}

// FetchAll collects the result set of jql. After each page it continues while
// offset+pageSize is below the reported total and the page's own offset is
// below limit, so the collection can overshoot limit by up to one page. Any page error aborts
// the whole aggregation; no partial collection is returned.
func (a *Aggregator) FetchAll(ctx context.Context, jql string, limit int) ([]Ticket, error) {
	if a.Fetcher == nil {
		return nil, errors.New("ticket: fetcher is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("ticket: limit must be positive, got %d", limit)
	}

	pageSize := a.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	fields := a.Fields
	if len(fields) == 0 {
		fields = DefaultFields
	}
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var (
		tickets []Ticket
		seen    = make(map[string]struct{})
	)

	for offset := 0; ; offset += pageSize {
		page, err := a.Fetcher.Search(ctx, SearchRequest{
			JQL:        jql,
			StartAt:    offset,
			MaxResults: pageSize,
			Fields:     fields,
		})
		if err != nil {
			return nil, fmt.Errorf("ticket: fetch page at offset %d: %w", offset, err)
		}

		for _, raw := range page.Records {
			t := a.Normalizer.Normalize(raw)
			if t.ID == "" {
				logger.Warn("skipping record without key", slog.Int("offset", offset))
				continue
			}
			if _, dup := seen[t.ID]; dup {
				logger.Warn("duplicate ticket across pages", slog.String("key", t.ID), slog.Int("offset", offset))
				continue
			}
			seen[t.ID] = struct{}{}
			tickets = append(tickets, t)
		}

		logger.Debug("fetched page",
			slog.Int("offset", offset),
			slog.Int("records", len(page.Records)),
			slog.Int("total", page.Total),
		)

		if len(page.Records) == 0 || offset+pageSize >= page.Total || offset >= limit {
			break
		}
	}

	return tickets, nil
}
