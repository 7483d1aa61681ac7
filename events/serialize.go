package events

import (
	"sort"
	"strings"
	"sync"
)

// Collector accumulates delivered events in order. It is safe for
// concurrent use so one collector can back several extractors.
type Collector struct {
	mu     sync.Mutex
	events []Event
}

// Accept records an event.
func (c *Collector) Accept(e Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

// Events returns a snapshot of the collected events.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Len returns the number of collected events.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

// Stats summarizes a batch of events.
type Stats struct {
	Total    int            `json:"total" msgpack:"total"`
	Errors   int            `json:"errors" msgpack:"errors"`
	Warnings int            `json:"warnings" msgpack:"warnings"`
	Infos    int            `json:"infos" msgpack:"infos"`
	Files    int            `json:"files" msgpack:"files"`
	ByGroup  map[string]int `json:"byGroup,omitempty" msgpack:"byGroup,omitempty"`
}

// Summarize computes stats for evs.
func Summarize(evs []Event) Stats {
	s := Stats{Total: len(evs), ByGroup: make(map[string]int)}
	files := make(map[string]struct{})
	for _, e := range evs {
		switch e.Kind {
		case KindError:
			s.Errors++
		case KindWarning:
			s.Warnings++
		default:
			s.Infos++
		}
		if e.Group != "" {
			s.ByGroup[e.Group]++
		}
		if f := e.File(); f != "" {
			files[f] = struct{}{}
		}
	}
	s.Files = len(files)
	return s
}

// HasErrors reports whether any event is an ERROR.
func HasErrors(evs []Event) bool {
	for _, e := range evs {
		if e.Kind == KindError {
			return true
		}
	}
	return false
}

// CompactEvent is a lightweight view without descriptions or quick fixes,
// suited to prompts and summaries.
type CompactEvent struct {
	Kind     Kind   `json:"kind"`
	Group    string `json:"group,omitempty"`
	Headline string `json:"headline"`
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
	Task     string `json:"task,omitempty"`
}

// CompactView is the lightweight structure returned by Compact.
type CompactView struct {
	Events []CompactEvent `json:"events"`
	Stats  Stats          `json:"stats"`
}

// Compact returns a compact view of evs. Lines are reported 1-based.
func Compact(evs []Event) *CompactView {
	out := make([]CompactEvent, 0, len(evs))
	for _, e := range evs {
		c := CompactEvent{
			Kind:     e.Kind,
			Group:    e.Group,
			Headline: e.Headline,
			Task:     e.Task,
		}
		if e.Position != nil {
			c.File = e.Position.Path
			c.Line = e.Position.StartLine + 1
		}
		out = append(out, c)
	}
	return &CompactView{Events: out, Stats: Summarize(evs)}
}

// ByFile groups events by path. Events without a position are keyed by "".
// Paths are returned sorted.
func ByFile(evs []Event) (map[string][]Event, []string) {
	grouped := make(map[string][]Event)
	for _, e := range evs {
		grouped[e.File()] = append(grouped[e.File()], e)
	}
	keys := make([]string, 0, len(grouped))
	for k := range grouped {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return grouped, keys
}

// Filter returns the events matching keep.
func Filter(evs []Event, keep func(Event) bool) []Event {
	result := make([]Event, 0)
	for _, e := range evs {
		if keep(e) {
			result = append(result, e)
		}
	}
	return result
}

// FilterByKind returns a filter for events at least as severe as k.
func FilterByKind(k Kind) func(Event) bool {
	return func(e Event) bool {
		return e.Kind.AtLeast(k)
	}
}

// FilterByGroup returns a filter for events whose group starts with prefix.
func FilterByGroup(prefix string) func(Event) bool {
	return func(e Event) bool {
		return strings.HasPrefix(e.Group, prefix)
	}
}

// FilterByFile returns a filter for events in files matching the prefix.
func FilterByFile(prefix string) func(Event) bool {
	return func(e Event) bool {
		return e.Position != nil && strings.HasPrefix(e.Position.Path, prefix)
	}
}
