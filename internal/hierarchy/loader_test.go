package hierarchy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cortezalberto/coderunner1/internal/models"
)

// fakeSource serves canned lists. Calls for a gated key block until the
// gate is released, so tests can control resolution order.
type fakeSource struct {
	mu          sync.Mutex
	subjects    []models.Subject
	subjectsErr error
	units       map[string][]models.Unit
	problems    map[string]*models.ProblemSet
	gates       map[string]chan struct{}
	calls       []string
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		units:    make(map[string][]models.Unit),
		problems: make(map[string]*models.ProblemSet),
		gates:    make(map[string]chan struct{}),
	}
}

func (f *fakeSource) gate(key string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[key] = ch
	return ch
}

func (f *fakeSource) wait(key string) {
	f.mu.Lock()
	f.calls = append(f.calls, key)
	ch := f.gates[key]
	f.mu.Unlock()
	if ch != nil {
		<-ch
	}
}

func (f *fakeSource) ListSubjects(ctx context.Context) ([]models.Subject, error) {
	f.wait("subjects")
	return f.subjects, f.subjectsErr
}

func (f *fakeSource) ListUnits(ctx context.Context, subjectID string) ([]models.Unit, error) {
	f.wait("units:" + subjectID)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.units[subjectID], nil
}

func (f *fakeSource) ListProblems(ctx context.Context, subjectID, unitID string) (*models.ProblemSet, error) {
	key := subjectID + "/" + unitID
	f.wait("problems:" + key)
	f.mu.Lock()
	defer f.mu.Unlock()
	ps, ok := f.problems[key]
	if !ok {
		return nil, errors.New("boom")
	}
	return ps, nil
}

func (f *fakeSource) callCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == key {
			n++
		}
	}
	return n
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleSource() *fakeSource {
	src := newFakeSource()
	src.subjects = []models.Subject{{ID: "A", Name: "Subject A"}, {ID: "B", Name: "Subject B"}}
	src.units["A"] = []models.Unit{{ID: "U1"}, {ID: "U2"}}
	src.units["B"] = []models.Unit{{ID: "U3"}}
	src.problems["A/U1"] = models.NewProblemSet(
		&models.Problem{ID: "zeta", Prompt: "z"},
		&models.Problem{ID: "alpha", Prompt: "a"},
	)
	src.problems["A/U2"] = models.NewProblemSet(&models.Problem{ID: "p2"})
	src.problems["B/U3"] = models.NewProblemSet(&models.Problem{ID: "p3"})
	return src
}

func TestInitAutoSelectsFirstEntries(t *testing.T) {
	l := New(context.Background(), sampleSource(), WithLogger(quietLogger()))
	defer l.Close()

	l.Init()
	l.Wait()

	s := l.State()
	if s.SelectedSubject != "A" || s.SelectedUnit != "U1" {
		t.Fatalf("selection = %s/%s, want A/U1", s.SelectedSubject, s.SelectedUnit)
	}
	// first in server order, not alphabetical
	if s.SelectedProblem != "zeta" {
		t.Fatalf("SelectedProblem = %q, want zeta", s.SelectedProblem)
	}
	if s.SubjectsLoading || s.UnitsLoading || s.ProblemsLoading {
		t.Fatalf("loading flags still set: %+v", s)
	}
	if p := l.Problem(); p == nil || p.ID != "zeta" {
		t.Fatalf("Problem() = %+v", p)
	}
}

func TestInitRunsOnce(t *testing.T) {
	src := sampleSource()
	l := New(context.Background(), src, WithLogger(quietLogger()))
	defer l.Close()

	l.Init()
	l.Init()
	l.Wait()

	if n := src.callCount("subjects"); n != 1 {
		t.Fatalf("subjects fetched %d times, want 1", n)
	}
}

func TestSubjectsErrorIsNotRetried(t *testing.T) {
	src := sampleSource()
	src.subjectsErr = errors.New("connection refused")

	l := New(context.Background(), src, WithLogger(quietLogger()))
	defer l.Close()
	l.Init()
	l.Wait()

	s := l.State()
	if s.SubjectsError == "" {
		t.Fatal("expected subjects error")
	}
	if len(s.Subjects) != 0 || s.SelectedSubject != "" {
		t.Fatalf("expected empty subjects, got %+v", s.Subjects)
	}
	if n := src.callCount("subjects"); n != 1 {
		t.Fatalf("subjects fetched %d times, want 1", n)
	}

	src.subjectsErr = nil
	l.ReloadSubjects()
	l.Wait()
	if s := l.State(); s.SubjectsError != "" || s.SelectedSubject != "A" {
		t.Fatalf("after reload: %+v", s)
	}
}

func TestReloadKeepsCurrentSubject(t *testing.T) {
	src := sampleSource()
	l := New(context.Background(), src, WithLogger(quietLogger()))
	defer l.Close()
	l.Init()
	l.Wait()

	if err := l.SelectSubject("B"); err != nil {
		t.Fatalf("SelectSubject: %v", err)
	}
	l.Wait()

	l.ReloadSubjects()
	l.Wait()

	s := l.State()
	if s.SelectedSubject != "B" || s.SelectedUnit != "U3" || s.SelectedProblem != "p3" {
		t.Fatalf("selection after reload = %s/%s/%s, want B/U3/p3", s.SelectedSubject, s.SelectedUnit, s.SelectedProblem)
	}
	if n := src.callCount("units:B"); n != 1 {
		t.Fatalf("units of B fetched %d times, want 1", n)
	}

	// a subject that disappeared falls back to the first one
	src.subjects = []models.Subject{{ID: "A", Name: "Subject A"}}
	l.ReloadSubjects()
	l.Wait()
	if s := l.State(); s.SelectedSubject != "A" || s.SelectedUnit != "U1" {
		t.Fatalf("selection after B vanished = %s/%s, want A/U1", s.SelectedSubject, s.SelectedUnit)
	}

	src.subjects = nil
	l.ReloadSubjects()
	l.Wait()
	if s := l.State(); s.SelectedSubject != "" || s.SelectedProblem != "" {
		t.Fatalf("selection with no subjects = %+v", s)
	}
}

func TestSelectSubjectClearsDescendants(t *testing.T) {
	src := sampleSource()
	l := New(context.Background(), src, WithLogger(quietLogger()))
	defer l.Close()
	l.Init()
	l.Wait()

	gate := src.gate("units:B")
	if err := l.SelectSubject("B"); err != nil {
		t.Fatalf("SelectSubject: %v", err)
	}

	s := l.State()
	if len(s.Units) != 0 || s.SelectedUnit != "" || s.Problems.Len() != 0 || s.SelectedProblem != "" {
		t.Fatalf("descendants not cleared: %+v", s)
	}
	if !s.UnitsLoading {
		t.Fatal("UnitsLoading = false while fetch pending")
	}

	close(gate)
	l.Wait()

	s = l.State()
	if s.SelectedUnit != "U3" || s.SelectedProblem != "p3" {
		t.Fatalf("selection = %s/%s, want U3/p3", s.SelectedUnit, s.SelectedProblem)
	}
}

func TestStaleUnitsResponseIsDiscarded(t *testing.T) {
	src := sampleSource()
	gateA := src.gate("units:A")

	l := New(context.Background(), src, WithLogger(quietLogger()))
	defer l.Close()
	l.Init()

	// subjects resolved and the A units fetch is in flight
	waitForCall(t, src, "units:A")

	if err := l.SelectSubject("B"); err != nil {
		t.Fatalf("SelectSubject(B): %v", err)
	}
	waitForCall(t, src, "units:B")
	waitForCall(t, src, "problems:B/U3")

	// A's units arrive after B's
	close(gateA)
	l.Wait()

	s := l.State()
	if s.SelectedSubject != "B" {
		t.Fatalf("SelectedSubject = %q, want B", s.SelectedSubject)
	}
	if len(s.Units) != 1 || s.Units[0].ID != "U3" {
		t.Fatalf("Units = %+v, want [U3]", s.Units)
	}
	if s.SelectedProblem != "p3" {
		t.Fatalf("SelectedProblem = %q, want p3", s.SelectedProblem)
	}
	if n := src.callCount("problems:A/U1"); n != 0 {
		t.Fatalf("stale units triggered %d problem fetches", n)
	}
}

func TestStaleProblemsResponseIsDiscarded(t *testing.T) {
	src := sampleSource()
	gateU1 := src.gate("problems:A/U1")

	l := New(context.Background(), src, WithLogger(quietLogger()))
	defer l.Close()
	l.Init()
	waitForCall(t, src, "problems:A/U1")

	if err := l.SelectUnit("U2"); err != nil {
		t.Fatalf("SelectUnit(U2): %v", err)
	}
	waitForCall(t, src, "problems:A/U2")

	close(gateU1)
	l.Wait()

	s := l.State()
	if s.SelectedUnit != "U2" || s.SelectedProblem != "p2" {
		t.Fatalf("selection = %s/%s, want U2/p2", s.SelectedUnit, s.SelectedProblem)
	}
	if s.Problems.Get("zeta") != nil {
		t.Fatal("stale problem set applied")
	}
}

func TestProblemsErrorKeepsSelection(t *testing.T) {
	src := sampleSource()
	delete(src.problems, "A/U2")

	l := New(context.Background(), src, WithLogger(quietLogger()))
	defer l.Close()
	l.Init()
	l.Wait()

	if err := l.SelectUnit("U2"); err != nil {
		t.Fatalf("SelectUnit: %v", err)
	}
	l.Wait()

	s := l.State()
	if s.ProblemsError == "" {
		t.Fatal("expected problems error")
	}
	if s.UnitsError != "" || s.SubjectsError != "" {
		t.Fatal("error leaked to other levels")
	}
	if s.SelectedUnit != "U2" || s.SelectedProblem != "" {
		t.Fatalf("selection = %s/%s", s.SelectedUnit, s.SelectedProblem)
	}
}

func TestClearSubjectSelection(t *testing.T) {
	src := sampleSource()
	l := New(context.Background(), src, WithLogger(quietLogger()))
	defer l.Close()
	l.Init()
	l.Wait()

	before := src.callCount("units:A")
	if err := l.SelectSubject(""); err != nil {
		t.Fatalf("SelectSubject(\"\"): %v", err)
	}
	l.Wait()

	s := l.State()
	if s.SelectedSubject != "" || len(s.Units) != 0 || s.Problems.Len() != 0 || s.UnitsLoading {
		t.Fatalf("state not cleared: %+v", s)
	}
	if src.callCount("units:A") != before {
		t.Fatal("clearing the subject issued a fetch")
	}
}

func TestSelectValidation(t *testing.T) {
	l := New(context.Background(), sampleSource(), WithLogger(quietLogger()))
	defer l.Close()

	if err := l.SelectUnit("U1"); !errors.Is(err, ErrNoSubject) {
		t.Errorf("SelectUnit without subject: %v", err)
	}
	if err := l.SelectProblem("p1"); !errors.Is(err, ErrNoUnit) {
		t.Errorf("SelectProblem without unit: %v", err)
	}

	l.Init()
	l.Wait()

	if err := l.SelectSubject("Z"); !errors.Is(err, ErrUnknownSubject) {
		t.Errorf("SelectSubject(Z): %v", err)
	}
	if err := l.SelectUnit("U9"); !errors.Is(err, ErrUnknownUnit) {
		t.Errorf("SelectUnit(U9): %v", err)
	}
	if err := l.SelectProblem("nope"); !errors.Is(err, ErrUnknownProblem) {
		t.Errorf("SelectProblem(nope): %v", err)
	}
	if err := l.SelectProblem("alpha"); err != nil {
		t.Fatalf("SelectProblem(alpha): %v", err)
	}
	if p := l.Problem(); p == nil || p.ID != "alpha" {
		t.Fatalf("Problem() = %+v", p)
	}
}

func TestOnChangeIsCalled(t *testing.T) {
	var mu sync.Mutex
	calls := 0

	l := New(context.Background(), sampleSource(),
		WithLogger(quietLogger()),
		WithOnChange(func() {
			mu.Lock()
			calls++
			mu.Unlock()
		}),
	)
	defer l.Close()
	l.Init()
	l.Wait()

	mu.Lock()
	defer mu.Unlock()
	// init, subjects, units, problems
	if calls < 4 {
		t.Fatalf("onChange called %d times, want at least 4", calls)
	}
}

// waitForCall spins until the source has seen key
func waitForCall(t *testing.T, src *fakeSource, key string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if src.callCount(key) > 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("source never called with %s", key)
}
