package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cortezalberto/coderunner1/internal/models"
)

var (
	ErrNoSubject      = errors.New("no subject selected")
	ErrNoUnit         = errors.New("no unit selected")
	ErrUnknownSubject = errors.New("subject is not in the current list")
	ErrUnknownUnit    = errors.New("unit is not in the current list")
	ErrUnknownProblem = errors.New("problem is not in the current set")
)

// Source lists the exercise hierarchy. Implemented by the grading API
// client and by the offline catalog.
type Source interface {
	ListSubjects(ctx context.Context) ([]models.Subject, error)
	ListUnits(ctx context.Context, subjectID string) ([]models.Unit, error)
	ListProblems(ctx context.Context, subjectID, unitID string) (*models.ProblemSet, error)
}

// State is a point-in-time copy of the loader's visible state
type State struct {
	Subjects        []models.Subject   `json:"subjects"`
	SubjectsLoading bool               `json:"subjects_loading"`
	SubjectsError   string             `json:"subjects_error,omitempty"`
	SelectedSubject string             `json:"selected_subject"`
	Units           []models.Unit      `json:"units"`
	UnitsLoading    bool               `json:"units_loading"`
	UnitsError      string             `json:"units_error,omitempty"`
	SelectedUnit    string             `json:"selected_unit"`
	Problems        *models.ProblemSet `json:"problems"`
	ProblemsLoading bool               `json:"problems_loading"`
	ProblemsError   string             `json:"problems_error,omitempty"`
	SelectedProblem string             `json:"selected_problem"`
}

// Option configures a Loader
type Option func(*Loader)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

// WithOnChange registers a callback invoked after every state change.
// The callback runs outside the loader lock and may call State().
func WithOnChange(fn func()) Option {
	return func(l *Loader) { l.onChange = fn }
}

// Loader owns the subject → unit → problem cascade. Selecting a level clears
// everything below it and fetches the next level; responses that arrive for
// a selection that is no longer current are dropped.
type Loader struct {
	src      Source
	logger   *slog.Logger
	onChange func()

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	state State

	subjectsStarted bool
	subjectsGen     uint64
	unitsGen        uint64
	problemsGen     uint64
	unitsCancel     context.CancelFunc
	problemsCancel  context.CancelFunc
}

// New creates a loader. Fetches run under ctx until Close is called.
func New(ctx context.Context, src Source, opts ...Option) *Loader {
	ctx, cancel := context.WithCancel(ctx)
	l := &Loader{
		src:    src,
		logger: slog.Default(),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.state.Problems = models.NewProblemSet()
	return l
}

// Init starts the one-time subject load. Later calls do nothing.
func (l *Loader) Init() {
	l.mu.Lock()
	if l.subjectsStarted {
		l.mu.Unlock()
		return
	}
	l.subjectsStarted = true
	l.startSubjectsLocked()
	l.mu.Unlock()

	l.notify()
}

// ReloadSubjects fetches the subject list again. Subjects are never
// retried automatically; this is the explicit retry.
func (l *Loader) ReloadSubjects() {
	l.mu.Lock()
	l.subjectsStarted = true
	l.startSubjectsLocked()
	l.mu.Unlock()

	l.notify()
}

func (l *Loader) startSubjectsLocked() {
	l.subjectsGen++
	gen := l.subjectsGen
	l.state.SubjectsLoading = true
	l.state.SubjectsError = ""

	l.wg.Add(1)
	go l.fetchSubjects(gen)
}

func (l *Loader) fetchSubjects(gen uint64) {
	defer l.wg.Done()

	subjects, err := l.src.ListSubjects(l.ctx)

	l.mu.Lock()
	if gen != l.subjectsGen || l.ctx.Err() != nil {
		l.mu.Unlock()
		return
	}

	l.state.SubjectsLoading = false
	if err != nil {
		l.logger.Error("failed to load subjects", "error", err)
		l.state.Subjects = nil
		l.state.SubjectsError = fmt.Sprintf("failed to load subjects: %v", err)
		l.mu.Unlock()
		l.notify()
		return
	}

	l.state.Subjects = subjects
	l.logger.Info("subjects loaded", "count", len(subjects))
	// a reload keeps the current subject while it is still offered
	switch {
	case l.state.SelectedSubject != "" && containsSubject(subjects, l.state.SelectedSubject):
	case len(subjects) > 0:
		l.selectSubjectLocked(subjects[0].ID)
	case l.state.SelectedSubject != "":
		l.selectSubjectLocked("")
	}
	l.mu.Unlock()

	l.notify()
}

// SelectSubject changes the selected subject. An empty id clears the
// selection and everything below it without fetching.
func (l *Loader) SelectSubject(id string) error {
	l.mu.Lock()
	if id != "" && !containsSubject(l.state.Subjects, id) {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownSubject, id)
	}
	if id == l.state.SelectedSubject {
		l.mu.Unlock()
		return nil
	}
	l.selectSubjectLocked(id)
	l.mu.Unlock()

	l.notify()
	return nil
}

func (l *Loader) selectSubjectLocked(id string) {
	l.state.SelectedSubject = id

	l.clearUnitsLocked()
	l.clearProblemsLocked()

	if id == "" {
		return
	}

	ctx, cancel := context.WithCancel(l.ctx)
	l.unitsCancel = cancel
	gen := l.unitsGen
	l.state.UnitsLoading = true

	l.wg.Add(1)
	go l.fetchUnits(ctx, gen, id)
}

func (l *Loader) clearUnitsLocked() {
	if l.unitsCancel != nil {
		l.unitsCancel()
		l.unitsCancel = nil
	}
	l.unitsGen++
	l.state.Units = nil
	l.state.SelectedUnit = ""
	l.state.UnitsLoading = false
	l.state.UnitsError = ""
}

func (l *Loader) fetchUnits(ctx context.Context, gen uint64, subjectID string) {
	defer l.wg.Done()

	units, err := l.src.ListUnits(ctx, subjectID)

	l.mu.Lock()
	if gen != l.unitsGen || l.state.SelectedSubject != subjectID {
		l.mu.Unlock()
		l.dropStale(ctx, "units", subjectID)
		return
	}

	l.state.UnitsLoading = false
	if err != nil {
		l.logger.Error("failed to load units", "subject_id", subjectID, "error", err)
		l.state.UnitsError = fmt.Sprintf("failed to load units: %v", err)
		l.mu.Unlock()
		l.notify()
		return
	}

	l.state.Units = units
	l.logger.Debug("units loaded", "subject_id", subjectID, "count", len(units))
	if len(units) > 0 {
		l.selectUnitLocked(units[0].ID)
	}
	l.mu.Unlock()

	l.notify()
}

// SelectUnit changes the selected unit of the current subject. An empty id
// clears the unit and its problems.
func (l *Loader) SelectUnit(id string) error {
	l.mu.Lock()
	if id != "" {
		if l.state.SelectedSubject == "" {
			l.mu.Unlock()
			return ErrNoSubject
		}
		if !containsUnit(l.state.Units, id) {
			l.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrUnknownUnit, id)
		}
	}
	if id == l.state.SelectedUnit {
		l.mu.Unlock()
		return nil
	}
	l.selectUnitLocked(id)
	l.mu.Unlock()

	l.notify()
	return nil
}

func (l *Loader) selectUnitLocked(id string) {
	l.state.SelectedUnit = id

	l.clearProblemsLocked()

	if id == "" {
		return
	}

	ctx, cancel := context.WithCancel(l.ctx)
	l.problemsCancel = cancel
	gen := l.problemsGen
	subjectID := l.state.SelectedSubject
	l.state.ProblemsLoading = true

	l.wg.Add(1)
	go l.fetchProblems(ctx, gen, subjectID, id)
}

func (l *Loader) clearProblemsLocked() {
	if l.problemsCancel != nil {
		l.problemsCancel()
		l.problemsCancel = nil
	}
	l.problemsGen++
	l.state.Problems = models.NewProblemSet()
	l.state.SelectedProblem = ""
	l.state.ProblemsLoading = false
	l.state.ProblemsError = ""
}

func (l *Loader) fetchProblems(ctx context.Context, gen uint64, subjectID, unitID string) {
	defer l.wg.Done()

	problems, err := l.src.ListProblems(ctx, subjectID, unitID)

	l.mu.Lock()
	if gen != l.problemsGen || l.state.SelectedSubject != subjectID || l.state.SelectedUnit != unitID {
		l.mu.Unlock()
		l.dropStale(ctx, "problems", subjectID+"/"+unitID)
		return
	}

	l.state.ProblemsLoading = false
	if err != nil {
		l.logger.Error("failed to load problems", "subject_id", subjectID, "unit_id", unitID, "error", err)
		l.state.ProblemsError = fmt.Sprintf("failed to load problems: %v", err)
		l.mu.Unlock()
		l.notify()
		return
	}

	if problems == nil {
		problems = models.NewProblemSet()
	}
	l.state.Problems = problems
	l.logger.Debug("problems loaded", "subject_id", subjectID, "unit_id", unitID, "count", problems.Len())
	if first := problems.First(); first != nil {
		l.state.SelectedProblem = first.ID
	}
	l.mu.Unlock()

	l.notify()
}

// SelectProblem changes the selected problem within the loaded set
func (l *Loader) SelectProblem(id string) error {
	l.mu.Lock()
	if id != "" {
		if l.state.SelectedUnit == "" {
			l.mu.Unlock()
			return ErrNoUnit
		}
		if l.state.Problems.Get(id) == nil {
			l.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrUnknownProblem, id)
		}
	}
	if id == l.state.SelectedProblem {
		l.mu.Unlock()
		return nil
	}
	l.state.SelectedProblem = id
	l.mu.Unlock()

	l.notify()
	return nil
}

// State returns a copy of the current state
func (l *Loader) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.state
	s.Subjects = append([]models.Subject(nil), l.state.Subjects...)
	s.Units = append([]models.Unit(nil), l.state.Units...)
	return s
}

// Problem returns the selected problem, or nil
func (l *Loader) Problem() *models.Problem {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state.SelectedProblem == "" {
		return nil
	}
	return l.state.Problems.Get(l.state.SelectedProblem)
}

// Wait blocks until every started fetch has finished
func (l *Loader) Wait() {
	l.wg.Wait()
}

// Close cancels outstanding fetches and waits for them to return
func (l *Loader) Close() {
	l.cancel()
	l.wg.Wait()
}

func (l *Loader) dropStale(ctx context.Context, level, key string) {
	if ctx.Err() != nil {
		l.logger.Debug("discarded cancelled fetch", "level", level, "key", key)
		return
	}
	l.logger.Warn("discarded stale response", "level", level, "key", key)
}

func (l *Loader) notify() {
	if l.onChange != nil {
		l.onChange()
	}
}

func containsSubject(list []models.Subject, id string) bool {
	for _, s := range list {
		if s.ID == id {
			return true
		}
	}
	return false
}

func containsUnit(list []models.Unit, id string) bool {
	for _, u := range list {
		if u.ID == id {
			return true
		}
	}
	return false
}
