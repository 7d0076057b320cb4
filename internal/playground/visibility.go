package playground

import "time"

// VisibilityObserver receives page-visibility changes from the presentation
// layer. It only records them; input is never blocked.
type VisibilityObserver interface {
	VisibilityChanged(hidden bool, at time.Time)
}

// VisibilityState summarizes the visibility events seen in this session
type VisibilityState struct {
	Hidden       bool      `json:"hidden"`
	HiddenCount  int       `json:"hidden_count"`
	LastHiddenAt time.Time `json:"last_hidden_at,omitempty"`
	HiddenFor    string    `json:"hidden_for,omitempty"`

	hiddenTotal time.Duration
	hiddenSince time.Time
}

var _ VisibilityObserver = (*Session)(nil)

// VisibilityChanged records that the page was hidden or shown again
func (s *Session) VisibilityChanged(hidden bool, at time.Time) {
	s.mu.Lock()
	v := &s.visibility
	switch {
	case hidden && !v.Hidden:
		v.Hidden = true
		v.HiddenCount++
		v.LastHiddenAt = at
		v.hiddenSince = at
	case !hidden && v.Hidden:
		v.Hidden = false
		if at.After(v.hiddenSince) {
			v.hiddenTotal += at.Sub(v.hiddenSince)
		}
		v.HiddenFor = v.hiddenTotal.Round(time.Second).String()
	}
	problemID := s.problemID
	s.mu.Unlock()

	s.logger.Info("visibility changed", "hidden", hidden, "problem_id", problemID)
	s.broadcast()
}
