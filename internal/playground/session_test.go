package playground

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cortezalberto/coderunner1/internal/drafts"
	"github.com/cortezalberto/coderunner1/internal/hints"
	"github.com/cortezalberto/coderunner1/internal/models"
	"github.com/cortezalberto/coderunner1/internal/storage"
	"github.com/cortezalberto/coderunner1/internal/submission"
)

type staticSource struct{}

func (staticSource) ListSubjects(context.Context) ([]models.Subject, error) {
	return []models.Subject{{ID: "prog1", Name: "Programación 1"}}, nil
}

func (staticSource) ListUnits(_ context.Context, subjectID string) ([]models.Unit, error) {
	return []models.Unit{{ID: "secuenciales"}}, nil
}

func (staticSource) ListProblems(_ context.Context, subjectID, unitID string) (*models.ProblemSet, error) {
	return models.NewProblemSet(
		&models.Problem{
			ID:          "sumatoria",
			Prompt:      "Sumá los números",
			StarterCode: "def main():\n    pass",
			Metadata:    models.ProblemMetadata{Title: "Sumatoria", Hints: []string{"usá un for", "acumulá"}},
		},
		&models.Problem{
			ID:          "saludo",
			Prompt:      "Saludá",
			StarterCode: "def saludo():\n    pass",
		},
	), nil
}

type scriptedClient struct {
	mu      sync.Mutex
	submits []models.SubmitRequest
	status  models.JobStatus
	block   chan struct{}
}

func (c *scriptedClient) Submit(_ context.Context, req models.SubmitRequest) (*models.SubmitResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submits = append(c.submits, req)
	return &models.SubmitResponse{JobID: "j1"}, nil
}

func (c *scriptedClient) GetResult(ctx context.Context, jobID string) (*models.SubmissionResult, error) {
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	status := c.status
	if status == "" {
		status = models.JobCompleted
	}
	return &models.SubmissionResult{JobID: jobID, Status: status, OK: true, ScoreTotal: 10, ScoreMax: 10}, nil
}

func (c *scriptedClient) lastSubmit() models.SubmitRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submits[len(c.submits)-1]
}

func newSession(t *testing.T, kv storage.Store, c submission.Client) *Session {
	t.Helper()
	s := New(context.Background(), Config{
		Source:    staticSource{},
		Client:    c,
		Store:     kv,
		StudentID: "demo-student",
		Sleeper:   func(ctx context.Context, _ time.Duration) error { return ctx.Err() },
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	t.Cleanup(s.Close)
	s.Init()
	s.Wait()
	return s
}

func TestInitLoadsStarterForFirstProblem(t *testing.T) {
	s := newSession(t, storage.NewMemoryStore(), &scriptedClient{})

	snap := s.Snapshot()
	if snap.Problem == nil || snap.Problem.ID != "sumatoria" {
		t.Fatalf("Problem = %+v, want sumatoria", snap.Problem)
	}
	if snap.Code != "def main():\n    pass" {
		t.Fatalf("Code = %q, want starter", snap.Code)
	}
	if snap.Submission.State != submission.StateIdle {
		t.Fatalf("Submission.State = %s", snap.Submission.State)
	}
}

func TestEditsSurviveSessions(t *testing.T) {
	kv := storage.NewMemoryStore()

	first := newSession(t, kv, &scriptedClient{})
	if err := first.SetCode("def main():\n    print(sum(range(10)))"); err != nil {
		t.Fatalf("SetCode: %v", err)
	}

	second := newSession(t, kv, &scriptedClient{})
	if got := second.Code(); got != "def main():\n    print(sum(range(10)))" {
		t.Fatalf("restored code = %q", got)
	}

	stored, err := kv.Get(context.Background(), drafts.CodeKey("sumatoria"))
	if err != nil || stored == "" {
		t.Fatalf("persisted draft = %q, %v", stored, err)
	}
}

func TestSubmitUsesCurrentCode(t *testing.T) {
	c := &scriptedClient{}
	s := newSession(t, storage.NewMemoryStore(), c)

	_ = s.SetCode("print(45)")
	if err := s.Submit(); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	s.Wait()

	req := c.lastSubmit()
	if req.ProblemID != "sumatoria" || req.Code != "print(45)" || req.StudentID != "demo-student" {
		t.Fatalf("submit request = %+v", req)
	}
	if st := s.Snapshot().Submission; st.State != submission.StateCompleted {
		t.Fatalf("State = %s, want completed", st.State)
	}
}

func TestProblemChangeResetsSubmissionAndHints(t *testing.T) {
	c := &scriptedClient{block: make(chan struct{})}
	s := newSession(t, storage.NewMemoryStore(), c)

	if _, err := s.ShowHint(); err != nil {
		t.Fatalf("ShowHint: %v", err)
	}
	if err := s.Submit(); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if st := s.Snapshot().Submission.State; st != submission.StatePolling {
		t.Fatalf("State = %s, want polling", st)
	}

	if err := s.SelectProblem("saludo"); err != nil {
		t.Fatalf("SelectProblem: %v", err)
	}
	s.Wait()

	snap := s.Snapshot()
	if snap.Submission.State != submission.StateIdle || snap.Submission.Result != nil {
		t.Fatalf("submission not reset: %+v", snap.Submission)
	}
	if snap.HintLevel != 0 {
		t.Fatalf("HintLevel = %d, want 0", snap.HintLevel)
	}
	if snap.Code != "def saludo():\n    pass" {
		t.Fatalf("Code = %q, want saludo starter", snap.Code)
	}
}

func TestSubmitRacingProblemChange(t *testing.T) {
	for i := 0; i < 20; i++ {
		s := newSession(t, storage.NewMemoryStore(), &scriptedClient{})

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = s.Submit()
		}()
		go func() {
			defer wg.Done()
			_ = s.SelectProblem("saludo")
		}()
		wg.Wait()
		s.Wait()

		snap := s.Snapshot()
		if snap.Problem == nil || snap.Problem.ID != "saludo" {
			t.Fatalf("Problem = %+v, want saludo", snap.Problem)
		}
		if st := snap.Submission; st.State != submission.StateIdle && st.ProblemID != "saludo" {
			t.Fatalf("run %d: submission for %q outlived the problem change: %+v", i, st.ProblemID, st)
		}
	}
}

func TestHintsFollowSelectedProblem(t *testing.T) {
	s := newSession(t, storage.NewMemoryStore(), &scriptedClient{})

	r, _ := s.ShowHint()
	if r.Kind != hints.KindHint || r.Text != "usá un for" {
		t.Fatalf("first hint = %+v", r)
	}

	_ = s.SelectProblem("saludo")
	r, _ = s.ShowHint()
	if r.Kind != hints.KindGeneric {
		t.Fatalf("hint for problem without hints = %+v", r)
	}
}

func TestResetCode(t *testing.T) {
	s := newSession(t, storage.NewMemoryStore(), &scriptedClient{})

	_ = s.SetCode("garbage")
	code, err := s.ResetCode()
	if err != nil {
		t.Fatalf("ResetCode: %v", err)
	}
	if code != "def main():\n    pass" || s.Code() != code {
		t.Fatalf("code after reset = %q / %q", code, s.Code())
	}
}

func TestOperationsWithoutProblem(t *testing.T) {
	s := New(context.Background(), Config{
		Source: staticSource{},
		Client: &scriptedClient{},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	defer s.Close()

	if err := s.SetCode("x"); !errors.Is(err, ErrNoProblem) {
		t.Errorf("SetCode: %v", err)
	}
	if _, err := s.ShowHint(); !errors.Is(err, ErrNoProblem) {
		t.Errorf("ShowHint: %v", err)
	}
	if err := s.Submit(); !submission.IsKind(err, submission.KindValidation) {
		t.Errorf("Submit: %v, want validation error", err)
	}
}

func TestSubscribeReceivesLatestSnapshot(t *testing.T) {
	s := newSession(t, storage.NewMemoryStore(), &scriptedClient{})

	_, ch, unsubscribe := s.Subscribe()
	_ = s.SetCode("a")
	_ = s.SetCode("b")

	select {
	case snap := <-ch:
		if snap.Code != "b" {
			t.Fatalf("snapshot code = %q, want latest edit", snap.Code)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}

	unsubscribe()
	if _, ok := <-ch; ok {
		t.Fatal("channel still open after unsubscribe")
	}
	unsubscribe()
}

func TestVisibilityIsRecorded(t *testing.T) {
	s := newSession(t, storage.NewMemoryStore(), &scriptedClient{})

	var obs VisibilityObserver = s
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	obs.VisibilityChanged(true, start)
	obs.VisibilityChanged(true, start.Add(time.Second))
	obs.VisibilityChanged(false, start.Add(30*time.Second))

	v := s.Snapshot().Visibility
	if v.Hidden || v.HiddenCount != 1 || !v.LastHiddenAt.Equal(start) {
		t.Fatalf("visibility = %+v", v)
	}
	if v.HiddenFor != "30s" {
		t.Fatalf("HiddenFor = %q, want 30s", v.HiddenFor)
	}
	// editing is never blocked by visibility
	if err := s.SetCode("still editable"); err != nil {
		t.Fatalf("SetCode: %v", err)
	}
}
