package checklist

import (
	"strings"
	"sync"

	"github.com/fieldvoice/reporter/pkg/connector"
)

// Tracker folds the live dialogue event stream into per-topic completion
// state. Completion is monotonic: once a topic is marked covered it stays
// covered for the rest of the session, so ambiguous later matches can
// never un-check a topic
type Tracker struct {
	mu        sync.RWMutex
	def       *Definition
	completed []bool
}

// ItemProgress pairs a checklist item with its completion state
type ItemProgress struct {
	Item      Item `json:"item"`
	Completed bool `json:"completed"`
}

// Progress is a point-in-time snapshot of checklist completion
type Progress struct {
	Items []ItemProgress `json:"items"`

	RequiredDone  int `json:"required_done"`
	RequiredTotal int `json:"required_total"`
	OptionalDone  int `json:"optional_done"`
	OptionalTotal int `json:"optional_total"`
}

// RequiredFraction returns the fraction of required topics covered.
// Returns 1 when the checklist has no required topics
func (p Progress) RequiredFraction() float64 {
	if p.RequiredTotal == 0 {
		return 1
	}
	return float64(p.RequiredDone) / float64(p.RequiredTotal)
}

// OptionalFraction returns the fraction of optional topics covered.
// Returns 1 when the checklist has no optional topics
func (p Progress) OptionalFraction() float64 {
	if p.OptionalTotal == 0 {
		return 1
	}
	return float64(p.OptionalDone) / float64(p.OptionalTotal)
}

// NewTracker creates a tracker over the given checklist definition
func NewTracker(def *Definition) *Tracker {
	return &Tracker{
		def:       def,
		completed: make([]bool, len(def.Items)),
	}
}

// Observe folds one dialogue event into the completion state and returns
// the indices of items newly completed by this event. Multiple items may
// complete on the same event; evaluation order does not affect the final
// state
func (t *Tracker) Observe(ev connector.DialogueEvent) []int {
	text := ev.Text()
	if text == "" {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var newlyCompleted []int
	for i, item := range t.def.Items {
		if t.completed[i] {
			continue
		}

		for _, keyword := range item.Keywords {
			if keyword == "" {
				continue
			}
			if strings.Contains(text, strings.ToLower(keyword)) {
				t.completed[i] = true
				newlyCompleted = append(newlyCompleted, i)
				break
			}
		}
	}

	return newlyCompleted
}

// Snapshot returns the current completion state
func (t *Tracker) Snapshot() Progress {
	t.mu.RLock()
	defer t.mu.RUnlock()

	progress := Progress{
		Items: make([]ItemProgress, len(t.def.Items)),
	}

	for i, item := range t.def.Items {
		progress.Items[i] = ItemProgress{Item: item, Completed: t.completed[i]}

		if item.Required {
			progress.RequiredTotal++
			if t.completed[i] {
				progress.RequiredDone++
			}
		} else {
			progress.OptionalTotal++
			if t.completed[i] {
				progress.OptionalDone++
			}
		}
	}

	return progress
}
