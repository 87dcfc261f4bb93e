// Package query classifies free-text input into a directive and turns the
// cached ticket collection into display items.
package query

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ylchen07/ticketq/internal/alfred"
	"github.com/ylchen07/ticketq/internal/ticket"
)

// DefaultInput is used when the input is blank.
const DefaultInput = "/hours 24"

// DefaultNew is the count for a bare /new.
const DefaultNew = 10

// Kind names a directive.
type Kind string

const (
	KindNew      Kind = "new"
	KindHours    Kind = "hours"
	KindCritical Kind = "critical"
	KindRTD      Kind = "rtd"
	KindSearch   Kind = "search"
)

var (
	newPattern      = regexp.MustCompile(`(?i)^/new(?:\s+(\d{1,3}))?$`)
	hoursPattern    = regexp.MustCompile(`(?i)^/hours\s+(\d{1,4})$`)
	criticalPattern = regexp.MustCompile(`(?i)^/critical$`)
	rtdPattern      = regexp.MustCompile(`(?i)^/rtd$`)
)

// Query is classified input. N carries the directive argument for new and
// hours.
type Query struct {
	Kind  Kind
	Input string
	N     int
}

// Classify maps input to the first matching directive. Anything that is not a
// directive is a search.
func Classify(input string, newDefault int) Query {
	input = strings.TrimSpace(input)
	if input == "" {
		input = DefaultInput
	}
	if newDefault <= 0 {
		newDefault = DefaultNew
	}

	if m := newPattern.FindStringSubmatch(input); m != nil {
		n := newDefault
		if m[1] != "" {
			n, _ = strconv.Atoi(m[1])
		}
		return Query{Kind: KindNew, Input: input, N: n}
	}
	if m := hoursPattern.FindStringSubmatch(input); m != nil {
		n, _ := strconv.Atoi(m[1])
		return Query{Kind: KindHours, Input: input, N: n}
	}
	if criticalPattern.MatchString(input) {
		return Query{Kind: KindCritical, Input: input}
	}
	if rtdPattern.MatchString(input) {
		return Query{Kind: KindRTD, Input: input}
	}
	return Query{Kind: KindSearch, Input: input}
}

// Dispatcher routes input to a filter or the fuzzy ranker.
type Dispatcher struct {
	URLs       ticket.URLBuilder
	Ranker     Ranker
	NewDefault int
	Now        func() time.Time
}

// NewDispatcher returns a Dispatcher with a default Ranker.
func NewDispatcher(urls ticket.URLBuilder) *Dispatcher {
	return &Dispatcher{
		URLs:       urls,
		Ranker:     NewRanker(urls),
		NewDefault: DefaultNew,
		Now:        time.Now,
	}
}

// Dispatch returns display items for input. An empty result from any
// directive becomes a single item linking to the tracker's own search.
func (d *Dispatcher) Dispatch(input string, tickets []ticket.Ticket) []alfred.Item {
	q := Classify(input, d.NewDefault)

	if q.Kind == KindSearch {
		items := d.Ranker.Search(q.Input, tickets)
		if len(items) == 0 {
			return []alfred.Item{d.notFound(q.Input)}
		}
		return items
	}

	filtered := d.Filter(q, tickets)
	if len(filtered) == 0 {
		return []alfred.Item{d.notFound(q.Input)}
	}
	return alfred.FromTickets(filtered)
}

// Filter applies a non-search directive. Cache order is preserved.
func (d *Dispatcher) Filter(q Query, tickets []ticket.Ticket) []ticket.Ticket {
	switch q.Kind {
	case KindNew:
		n := q.N
		if n > len(tickets) {
			n = len(tickets)
		}
		return append([]ticket.Ticket(nil), tickets[:n]...)
	case KindHours:
		cutoff := d.now().Add(-time.Duration(q.N) * time.Hour)
		return keep(tickets, func(t ticket.Ticket) bool {
			return t.HasCreatedAt() && t.CreatedAt.After(cutoff)
		})
	case KindCritical:
		return keep(tickets, func(t ticket.Ticket) bool {
			return strings.Contains(strings.ToLower(t.Priority), "critical")
		})
	case KindRTD:
		return keep(tickets, func(t ticket.Ticket) bool {
			sub := strings.ToLower(t.Subtitle)
			return strings.Contains(sub, "ready to") || strings.Contains(sub, "done")
		})
	default:
		return nil
	}
}

func (d *Dispatcher) notFound(input string) alfred.Item {
	return alfred.Link(
		fmt.Sprintf("No tickets found for '%s'", input),
		fmt.Sprintf("Search for %s", input),
		d.URLs.SearchURL(input),
	)
}

func (d *Dispatcher) now() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}

func keep(tickets []ticket.Ticket, pred func(ticket.Ticket) bool) []ticket.Ticket {
	var out []ticket.Ticket
	for _, t := range tickets {
		if pred(t) {
			out = append(out, t)
		}
	}
	return out
}
