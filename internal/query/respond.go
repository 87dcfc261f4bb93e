package query

import (
	"github.com/ylchen07/ticketq/internal/alfred"
	"github.com/ylchen07/ticketq/internal/refresh"
)

// Respond renders the outcome of a cache lookup: a single status row when the
// coordinator has nothing to serve, otherwise the dispatched tickets.
func (d *Dispatcher) Respond(input string, res refresh.Result) []alfred.Item {
	if title, subtitle, ok := res.Notice(input); ok {
		return []alfred.Item{alfred.Status(title, subtitle)}
	}
	return d.Dispatch(input, res.Tickets)
}
