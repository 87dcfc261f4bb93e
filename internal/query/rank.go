package query

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/junegunn/fzf/src/algo"
	"github.com/junegunn/fzf/src/util"

	"github.com/ylchen07/ticketq/internal/alfred"
	"github.com/ylchen07/ticketq/internal/ticket"
)

// Ranker defaults.
const (
	DefaultMinLength   = 4
	DefaultMaxDistance = 0.6
	DefaultMaxResults  = 5
)

const (
	slab16Size = 100 * 1024
	slab32Size = 2048
)

func init() {
	algo.Init("default")
}

// Match is a ticket with its normalized distance to the input; 0 is a
// perfect match and 1 no similarity.
type Match struct {
	Ticket   ticket.Ticket
	Distance float64
}

// Ranker scores tickets against free text with fzf's subsequence matcher.
type Ranker struct {
	URLs        ticket.URLBuilder
	MinLength   int
	MaxDistance float64
	MaxResults  int
}

// NewRanker returns a Ranker with default thresholds.
func NewRanker(urls ticket.URLBuilder) Ranker {
	return Ranker{
		URLs:        urls,
		MinLength:   DefaultMinLength,
		MaxDistance: DefaultMaxDistance,
		MaxResults:  DefaultMaxResults,
	}
}

// Rank scores every ticket on its ID and Title, keeping the better of the
// two. Inputs shorter than MinLength produce no matches. Results are sorted by
// ascending distance, ties in input order, and truncated to MaxResults.
func (r Ranker) Rank(input string, tickets []ticket.Ticket) []Match {
	input = strings.TrimSpace(input)
	if utf8.RuneCountInString(input) < r.minLength() {
		return nil
	}

	pattern := []rune(strings.ToLower(input))
	slab := util.MakeSlab(slab16Size, slab32Size)
	maxDistance := r.maxDistance()

	var matches []Match
	for _, t := range tickets {
		best, found := math.Inf(1), false
		for _, field := range [...]string{t.ID, t.Title} {
			if d, ok := distance(field, pattern, slab); ok && d < best {
				best, found = d, true
			}
		}
		if !found || best > maxDistance {
			continue
		}
		matches = append(matches, Match{Ticket: t, Distance: best})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})
	if limit := r.maxResults(); len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// Search renders ranked matches with their scores. Unless a match's ID equals
// the input, an item opening the input as a literal key is put first; the
// list never exceeds MaxResults. No matches yield no items.
func (r Ranker) Search(input string, tickets []ticket.Ticket) []alfred.Item {
	matches := r.Rank(input, tickets)
	if len(matches) == 0 {
		return nil
	}
	return r.render(input, matches)
}

func (r Ranker) render(input string, matches []Match) []alfred.Item {
	input = strings.TrimSpace(input)

	items := make([]alfred.Item, 0, len(matches)+1)
	exact := false
	for _, m := range matches {
		if m.Ticket.ID == input {
			exact = true
		}
		item := alfred.FromTicket(m.Ticket)
		item.Subtitle = fmt.Sprintf("%s Score: %.2f", item.Subtitle, m.Distance)
		items = append(items, item)
	}

	if !exact {
		open := alfred.Link(
			fmt.Sprintf("Open '%s' in browser", input),
			"Look up the key directly",
			r.URLs.IssueURL(input),
		)
		items = append([]alfred.Item{open}, items...)
	}

	if limit := r.maxResults(); len(items) > limit {
		items = items[:limit]
	}
	return items
}

// distance maps an fzf match of pattern in text onto [0,1]. Tightness is how
// little of the matched span is filler; coverage is how much of the text the
// pattern accounts for. pattern must be lowercase.
func distance(text string, pattern []rune, slab *util.Slab) (float64, bool) {
	if text == "" || len(pattern) == 0 {
		return 0, false
	}
	if strings.EqualFold(text, string(pattern)) {
		return 0, true
	}

	chars := util.ToChars([]byte(text))
	res, _ := algo.FuzzyMatchV2(false, false, true, &chars, pattern, false, slab)
	if res.Start < 0 {
		return 0, false
	}
	span := res.End - res.Start
	if span <= 0 {
		return 0, false
	}

	m := float64(len(pattern))
	tightness := m / float64(span)
	coverage := m / float64(chars.Length())
	d := 1 - (0.8*tightness + 0.2*coverage)
	return math.Min(1, math.Max(0, d)), true
}

func (r Ranker) minLength() int {
	if r.MinLength <= 0 {
		return DefaultMinLength
	}
	return r.MinLength
}

func (r Ranker) maxDistance() float64 {
	if r.MaxDistance <= 0 {
		return DefaultMaxDistance
	}
	return r.MaxDistance
}

func (r Ranker) maxResults() int {
	if r.MaxResults <= 0 {
		return DefaultMaxResults
	}
	return r.MaxResults
}
