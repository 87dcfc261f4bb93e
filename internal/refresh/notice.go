package refresh

import "fmt"

// Notice returns the status line for results that carry no tickets to
// display. ok is false for cache hits, which are rendered by the dispatcher.
func (r Result) Notice(input string) (title, subtitle string, ok bool) {
	switch r.Status {
	case StatusInProgress:
		return "Caching in progress", fmt.Sprintf("Try '%s' again in a few", input), true
	case StatusStarted:
		return "Caching started", fmt.Sprintf("Try '%s' again in a few", input), true
	case StatusRefreshed:
		return "Caching data complete", fmt.Sprintf("Found %d results", len(r.Tickets)), true
	default:
		return "", "", false
	}
}
