package models

import "encoding/json"

// Subject represents the root of the exercise hierarchy (e.g., "programacion-1")
type Subject struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Unit represents a thematic unit within a subject
type Unit struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Order       int    `json:"order,omitempty"`
}

// ProblemMetadata holds presentation data attached to a problem
type ProblemMetadata struct {
	Title      string   `json:"title"`
	Hints      []string `json:"hints,omitempty"`
	Difficulty string   `json:"difficulty,omitempty"`
	SubjectID  string   `json:"subject_id,omitempty"`
	UnitID     string   `json:"unit_id,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

// Problem represents a single exercise scoped to a subject and unit
type Problem struct {
	ID          string          `json:"id"`
	Prompt      string          `json:"prompt"`
	StarterCode string          `json:"starter"`
	Metadata    ProblemMetadata `json:"metadata"`
}

// Title returns the display title, falling back to the problem id
func (p *Problem) Title() string {
	if p == nil {
		return ""
	}
	if p.Metadata.Title != "" {
		return p.Metadata.Title
	}
	return p.ID
}

// ProblemSet is an ordered collection of problems.
// Order is the server's document order and drives auto-selection.
type ProblemSet struct {
	order []string
	byID  map[string]*Problem
}

// NewProblemSet builds a set preserving the order of the given problems.
// Later duplicates replace earlier entries but keep the first position.
func NewProblemSet(problems ...*Problem) *ProblemSet {
	ps := &ProblemSet{byID: make(map[string]*Problem, len(problems))}
	for _, p := range problems {
		ps.Add(p)
	}
	return ps
}

// Add appends a problem to the set
func (ps *ProblemSet) Add(p *Problem) {
	if p == nil || p.ID == "" {
		return
	}
	if ps.byID == nil {
		ps.byID = make(map[string]*Problem)
	}
	if _, exists := ps.byID[p.ID]; !exists {
		ps.order = append(ps.order, p.ID)
	}
	ps.byID[p.ID] = p
}

// Get returns a problem by id
func (ps *ProblemSet) Get(id string) *Problem {
	if ps == nil {
		return nil
	}
	return ps.byID[id]
}

// First returns the first problem in server order, or nil when empty
func (ps *ProblemSet) First() *Problem {
	if ps == nil || len(ps.order) == 0 {
		return nil
	}
	return ps.byID[ps.order[0]]
}

// IDs returns problem ids in server order
func (ps *ProblemSet) IDs() []string {
	if ps == nil {
		return nil
	}
	return append([]string(nil), ps.order...)
}

// List returns problems in server order
func (ps *ProblemSet) List() []*Problem {
	if ps == nil {
		return nil
	}
	result := make([]*Problem, 0, len(ps.order))
	for _, id := range ps.order {
		result = append(result, ps.byID[id])
	}
	return result
}

// Len returns the number of problems
func (ps *ProblemSet) Len() int {
	if ps == nil {
		return 0
	}
	return len(ps.order)
}

// MarshalJSON encodes the set as an ordered array
func (ps *ProblemSet) MarshalJSON() ([]byte, error) {
	list := ps.List()
	if list == nil {
		list = []*Problem{}
	}
	return json.Marshal(list)
}

// UnmarshalJSON decodes an ordered array produced by MarshalJSON
func (ps *ProblemSet) UnmarshalJSON(data []byte) error {
	var list []*Problem
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*ps = ProblemSet{byID: make(map[string]*Problem, len(list))}
	for _, p := range list {
		ps.Add(p)
	}
	return nil
}
