// Package alfred renders tickets and status lines as script-filter items.
package alfred

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/ylchen07/ticketq/internal/ticket"
)

// Item is one row of script-filter output.
type Item struct {
	UID      string         `json:"uid,omitempty" yaml:"uid,omitempty"`
	Title    string         `json:"title" yaml:"title"`
	Subtitle string         `json:"subtitle" yaml:"subtitle"`
	Arg      string         `json:"arg,omitempty" yaml:"arg,omitempty"`
	Valid    *bool          `json:"valid,omitempty" yaml:"valid,omitempty"`
	Icon     *Icon          `json:"icon,omitempty" yaml:"icon,omitempty"`
	Text     *Text          `json:"text,omitempty" yaml:"text,omitempty"`
	Mods     map[string]Mod `json:"mods,omitempty" yaml:"mods,omitempty"`
}

// Icon points at an image relative to the workflow directory.
type Icon struct {
	Path string `json:"path" yaml:"path"`
}

// Text overrides what is copied and shown in large type.
type Text struct {
	Copy      string `json:"copy,omitempty" yaml:"copy,omitempty"`
	LargeType string `json:"largetype,omitempty" yaml:"largetype,omitempty"`
}

// Mod replaces subtitle and arg while a modifier key is held.
type Mod struct {
	Subtitle string `json:"subtitle,omitempty" yaml:"subtitle,omitempty"`
	Arg      string `json:"arg,omitempty" yaml:"arg,omitempty"`
	Valid    *bool  `json:"valid,omitempty" yaml:"valid,omitempty"`
}

// Modifier keys.
const (
	ModCmd = "cmd"
	ModAlt = "alt"
)

// Output is the document written to stdout.
type Output struct {
	Items []Item `json:"items"`
}

func boolPtr(v bool) *bool { return &v }

// IconPath returns the icon file for a ticket category.
func IconPath(c ticket.Category) string {
	if c == "" {
		c = ticket.CategoryOther
	}
	return fmt.Sprintf("icons/%s.png", c)
}

// FromTicket renders t. The primary action opens the ticket; cmd copies the
// key and alt shows the priority.
func FromTicket(t ticket.Ticket) Item {
	return Item{
		UID:      t.ID,
		Title:    t.Title,
		Subtitle: t.Subtitle,
		Arg:      t.URL,
		Icon:     &Icon{Path: IconPath(t.Category)},
		Text:     &Text{Copy: t.URL, LargeType: t.Title},
		Mods: map[string]Mod{
			ModCmd: {Subtitle: "Copy " + t.ID, Arg: t.ID},
			ModAlt: {Subtitle: fmt.Sprintf("Priority: %s · %s", t.Priority, t.Status), Arg: t.URL},
		},
	}
}

// FromTickets renders tickets in order.
func FromTickets(tickets []ticket.Ticket) []Item {
	items := make([]Item, 0, len(tickets))
	for _, t := range tickets {
		items = append(items, FromTicket(t))
	}
	return items
}

// Status is an informational row with no action.
func Status(title, subtitle string) Item {
	return Item{Title: title, Subtitle: subtitle, Valid: boolPtr(false)}
}

// Link is an actionable row that opens arg.
func Link(title, subtitle, arg string) Item {
	return Item{Title: title, Subtitle: subtitle, Arg: arg}
}

// Write encodes items as {"items": [...]}.
func Write(w io.Writer, items []Item) error {
	if items == nil {
		items = []Item{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(Output{Items: items}); err != nil {
		return fmt.Errorf("alfred: encode items: %w", err)
	}
	return nil
}
