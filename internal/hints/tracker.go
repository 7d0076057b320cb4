package hints

import (
	"fmt"
	"sync"
)

// GenericHint is shown for problems that carry no hints
const GenericHint = "Read the problem statement carefully. Make sure your program defines main() and reads its input with input()."

// Kind tells the presentation layer how to render a Reveal
type Kind string

const (
	KindHint      Kind = "hint"
	KindGeneric   Kind = "generic"
	KindExhausted Kind = "exhausted"
)

// Reveal is the outcome of one ShowHint call
type Reveal struct {
	Kind    Kind   `json:"kind"`
	Text    string `json:"text"`
	Number  int    `json:"number,omitempty"`
	Total   int    `json:"total,omitempty"`
	Last    bool   `json:"last,omitempty"`
	Message string `json:"message"`
}

// Tracker gates progressive hint disclosure for the active problem
type Tracker struct {
	mu        sync.Mutex
	problemID string
	level     int
}

// NewTracker creates a tracker at level 0
func NewTracker() *Tracker {
	return &Tracker{}
}

// SetProblem resets the level when the active problem changes
func (t *Tracker) SetProblem(problemID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if problemID != t.problemID {
		t.problemID = problemID
		t.level = 0
	}
}

// Reset returns the level to 0
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.level = 0
}

// Level returns how many hints have been revealed
func (t *Tracker) Level() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.level
}

// ShowHint reveals the next hint. The level never exceeds len(hints).
func (t *Tracker) ShowHint(hints []string) Reveal {
	t.mu.Lock()
	defer t.mu.Unlock()

	total := len(hints)
	if total == 0 {
		return Reveal{Kind: KindGeneric, Text: GenericHint, Message: "Hint: " + GenericHint}
	}

	if t.level >= total {
		return Reveal{
			Kind:    KindExhausted,
			Number:  total,
			Total:   total,
			Message: fmt.Sprintf("You have seen every available hint (%d/%d). Try to solve the problem with what you have.", total, total),
		}
	}

	r := Reveal{
		Kind:   KindHint,
		Text:   hints[t.level],
		Number: t.level + 1,
		Total:  total,
		Last:   t.level == total-1,
	}
	r.Message = fmt.Sprintf("Hint %d of %d: %s", r.Number, r.Total, r.Text)
	if r.Last {
		r.Message += " (this is the last hint)"
	}

	t.level++
	return r
}
