package playground

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/cortezalberto/coderunner1/internal/drafts"
	"github.com/cortezalberto/coderunner1/internal/hierarchy"
	"github.com/cortezalberto/coderunner1/internal/hints"
	"github.com/cortezalberto/coderunner1/internal/models"
	"github.com/cortezalberto/coderunner1/internal/storage"
	"github.com/cortezalberto/coderunner1/internal/submission"
)

// ErrNoProblem is returned by operations that need a selected problem
var ErrNoProblem = errors.New("no problem selected")

// Snapshot is everything a presentation layer renders
type Snapshot struct {
	Hierarchy     hierarchy.State   `json:"hierarchy"`
	Problem       *models.Problem   `json:"problem,omitempty"`
	Code          string            `json:"code"`
	DraftDegraded bool              `json:"draft_degraded"`
	Submission    submission.Status `json:"submission"`
	HintLevel     int               `json:"hint_level"`
	Visibility    VisibilityState   `json:"visibility"`
}

// Config holds the collaborators and tunables of a Session
type Config struct {
	Source    hierarchy.Source
	Client    submission.Client
	Store     storage.Store
	StudentID string

	Backoff     submission.Backoff
	MaxAttempts int
	Sleeper     submission.Sleeper
	Logger      *slog.Logger
}

// Session wires the hierarchy loader, draft store, submission orchestrator
// and hint tracker into one playground. A problem change resets the
// orchestrator and hints and loads the draft for the new problem.
type Session struct {
	ctx       context.Context
	logger    *slog.Logger
	studentID string

	hierarchy *hierarchy.Loader
	drafts    *drafts.Store
	orch      *submission.Orchestrator
	hints     *hints.Tracker

	// serializes problem-change handling
	selMu sync.Mutex

	mu         sync.Mutex
	problemID  string
	code       string
	visibility VisibilityState

	subsMu      sync.Mutex
	subscribers map[string]chan Snapshot
}

// New creates a session. Call Init to start loading subjects.
func New(ctx context.Context, cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		ctx:         ctx,
		logger:      logger,
		studentID:   cfg.StudentID,
		hints:       hints.NewTracker(),
		subscribers: make(map[string]chan Snapshot),
	}

	s.drafts = drafts.New(cfg.Store, logger.With("component", "drafts"))

	orchOpts := []submission.Option{
		submission.WithLogger(logger.With("component", "submission")),
		submission.WithOnChange(s.broadcast),
		submission.WithMaxAttempts(cfg.MaxAttempts),
	}
	if cfg.Backoff.Base > 0 {
		orchOpts = append(orchOpts, submission.WithBackoff(cfg.Backoff))
	}
	if cfg.Sleeper != nil {
		orchOpts = append(orchOpts, submission.WithSleeper(cfg.Sleeper))
	}
	s.orch = submission.New(ctx, cfg.Client, orchOpts...)

	s.hierarchy = hierarchy.New(ctx, cfg.Source,
		hierarchy.WithLogger(logger.With("component", "hierarchy")),
		hierarchy.WithOnChange(s.onHierarchyChange),
	)

	return s
}

// Init starts the one-time subject load
func (s *Session) Init() {
	s.hierarchy.Init()
}

// ReloadSubjects retries the subject load
func (s *Session) ReloadSubjects() {
	s.hierarchy.ReloadSubjects()
}

func (s *Session) SelectSubject(id string) error { return s.hierarchy.SelectSubject(id) }
func (s *Session) SelectUnit(id string) error    { return s.hierarchy.SelectUnit(id) }
func (s *Session) SelectProblem(id string) error { return s.hierarchy.SelectProblem(id) }

func (s *Session) onHierarchyChange() {
	s.selMu.Lock()
	defer s.selMu.Unlock()

	p := s.hierarchy.Problem()
	id := ""
	if p != nil {
		id = p.ID
	}

	s.mu.Lock()
	changed := id != s.problemID
	s.mu.Unlock()

	if changed {
		s.orch.Reset()
		s.hints.SetProblem(id)

		code := ""
		if p != nil {
			code = s.drafts.GetDraft(s.ctx, id, p.StarterCode)
			s.logger.Info("problem selected", "problem_id", id)
		}

		s.mu.Lock()
		s.problemID = id
		s.code = code
		s.mu.Unlock()
	}

	s.broadcast()
}

// Code returns the editor content for the selected problem
func (s *Session) Code() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code
}

// SetCode records an edit and persists it immediately
func (s *Session) SetCode(code string) error {
	s.mu.Lock()
	id := s.problemID
	if id == "" {
		s.mu.Unlock()
		return ErrNoProblem
	}
	s.code = code
	s.mu.Unlock()

	s.drafts.SetDraft(s.ctx, id, code)
	s.broadcast()
	return nil
}

// ResetCode restores the starter code of the selected problem
func (s *Session) ResetCode() (string, error) {
	p := s.hierarchy.Problem()
	if p == nil {
		return "", ErrNoProblem
	}

	code := s.drafts.ResetDraft(s.ctx, p.ID, p.StarterCode)

	s.mu.Lock()
	if s.problemID == p.ID {
		s.code = code
	}
	s.mu.Unlock()

	s.broadcast()
	return code, nil
}

// Submit sends the current code of the selected problem for grading
func (s *Session) Submit() error {
	// a problem change must not slip in between reading the code and
	// starting the submission
	s.selMu.Lock()
	defer s.selMu.Unlock()

	s.mu.Lock()
	id, code := s.problemID, s.code
	s.mu.Unlock()

	return s.orch.Submit(id, code, s.studentID)
}

// Cancel abandons the live submission, if any
func (s *Session) Cancel() {
	s.orch.Cancel()
}

// ShowHint reveals the next hint of the selected problem
func (s *Session) ShowHint() (hints.Reveal, error) {
	p := s.hierarchy.Problem()
	if p == nil {
		return hints.Reveal{}, ErrNoProblem
	}
	r := s.hints.ShowHint(p.Metadata.Hints)
	s.broadcast()
	return r, nil
}

// Snapshot returns the full visible state
func (s *Session) Snapshot() Snapshot {
	h := s.hierarchy.State()

	s.mu.Lock()
	problemID := s.problemID
	code := s.code
	vis := s.visibility
	s.mu.Unlock()

	// Problem follows the loaded draft, which can trail the hierarchy
	// selection while a change is being applied
	var problem *models.Problem
	if problemID != "" {
		problem = h.Problems.Get(problemID)
	}

	return Snapshot{
		Hierarchy:     h,
		Problem:       problem,
		Code:          code,
		DraftDegraded: s.drafts.Degraded(),
		Submission:    s.orch.Status(),
		HintLevel:     s.hints.Level(),
		Visibility:    vis,
	}
}

// Subscribe returns a channel receiving the latest snapshot after each
// change. Slow readers only see the most recent snapshot.
func (s *Session) Subscribe() (string, <-chan Snapshot, func()) {
	id := uuid.New().String()
	ch := make(chan Snapshot, 1)

	s.subsMu.Lock()
	s.subscribers[id] = ch
	s.subsMu.Unlock()

	return id, ch, func() { s.unsubscribe(id) }
}

func (s *Session) unsubscribe(id string) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		delete(s.subscribers, id)
		close(ch)
	}
}

func (s *Session) broadcast() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	if len(s.subscribers) == 0 {
		return
	}

	snap := s.Snapshot()
	for _, ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			// replace the stale snapshot
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// Wait blocks until pending fetches and polling have finished
func (s *Session) Wait() {
	s.hierarchy.Wait()
	s.orch.Wait()
}

// Close stops background work and closes every subscription
func (s *Session) Close() {
	s.orch.Close()
	s.hierarchy.Close()

	s.subsMu.Lock()
	for id, ch := range s.subscribers {
		delete(s.subscribers, id)
		close(ch)
	}
	s.subsMu.Unlock()

	s.logger.Debug("session closed")
}
