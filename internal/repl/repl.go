package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/google/shlex"

	"github.com/cortezalberto/coderunner1/internal/hints"
	"github.com/cortezalberto/coderunner1/internal/playground"
	"github.com/cortezalberto/coderunner1/internal/submission"
)

// Playground is the session surface the shell drives
type Playground interface {
	Snapshot() playground.Snapshot
	ReloadSubjects()
	SelectSubject(id string) error
	SelectUnit(id string) error
	SelectProblem(id string) error
	SetCode(code string) error
	ResetCode() (string, error)
	Submit() error
	Cancel()
	ShowHint() (hints.Reveal, error)
	Subscribe() (string, <-chan playground.Snapshot, func())
}

// LineReader yields one input line per call. *readline.Instance satisfies it.
type LineReader interface {
	Readline() (string, error)
}

// Shell is the terminal front-end of a playground session
type Shell struct {
	session      Playground
	outputWriter *bufio.Writer
	readFile     func(string) ([]byte, error)
	loadTimeout  time.Duration
}

// New creates a shell writing to out
func New(session Playground, out io.Writer) *Shell {
	return &Shell{
		session:      session,
		outputWriter: bufio.NewWriter(out),
		readFile:     os.ReadFile,
		loadTimeout:  30 * time.Second,
	}
}

// Run reads commands until quit, EOF or ctx is done
func (s *Shell) Run(ctx context.Context, in LineReader) error {
	s.printLine("type 'help' for commands")
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := in.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			// Ctrl-C cancels a live submission, otherwise quits on an empty line
			if s.session.Snapshot().Submission.State.Active() {
				s.session.Cancel()
				s.printLine("submission cancelled")
				continue
			}
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}

		if quit := s.Execute(ctx, line); quit {
			return nil
		}
	}
}

// Execute runs a single command line and reports whether the shell should exit
func (s *Shell) Execute(ctx context.Context, line string) bool {
	tokens, err := shlex.Split(line)
	if err != nil {
		s.printLine("error: failed to parse command: %v", err)
		return false
	}
	if len(tokens) == 0 {
		return false
	}

	cmd, args := tokens[0], tokens[1:]
	switch cmd {
	case "quit", "exit":
		s.printLine("bye")
		return true
	case "help":
		s.printHelp()
	case "subjects":
		s.listSubjects(ctx)
	case "units":
		s.listUnits(ctx)
	case "problems":
		s.listProblems(ctx)
	case "reload":
		s.session.ReloadSubjects()
		s.listSubjects(ctx)
	case "select":
		s.handleSelect(ctx, args)
	case "show":
		s.show()
	case "code":
		s.handleCode(args)
	case "edit":
		s.handleEdit(args)
	case "reset":
		s.handleReset()
	case "submit":
		s.handleSubmit()
	case "cancel":
		s.session.Cancel()
		s.printLine("state: %s", s.session.Snapshot().Submission.State)
	case "hint":
		s.handleHint()
	case "wait":
		s.handleWait(ctx)
	default:
		s.printLine("unknown command: %s (try 'help')", cmd)
	}
	return false
}

func (s *Shell) handleSelect(ctx context.Context, args []string) {
	if len(args) != 2 {
		s.printLine("usage: select subject|unit|problem <id>")
		return
	}

	var err error
	switch args[0] {
	case "subject":
		err = s.session.SelectSubject(args[1])
	case "unit":
		err = s.session.SelectUnit(args[1])
	case "problem":
		err = s.session.SelectProblem(args[1])
	default:
		s.printLine("usage: select subject|unit|problem <id>")
		return
	}
	if err != nil {
		s.printLine("error: %v", err)
		return
	}

	s.waitForHierarchy(ctx)
	snap := s.session.Snapshot()
	h := snap.Hierarchy
	s.printLine("subject=%s unit=%s problem=%s", orNone(h.SelectedSubject), orNone(h.SelectedUnit), orNone(h.SelectedProblem))
}

func (s *Shell) handleCode(args []string) {
	if len(args) != 1 {
		s.printLine("usage: code <file>")
		return
	}
	data, err := s.readFile(args[0])
	if err != nil {
		s.printLine("error: failed to read %s: %v", args[0], err)
		return
	}
	if err := s.session.SetCode(string(data)); err != nil {
		s.printLine("error: %v", err)
		return
	}
	s.printLine("loaded %d bytes from %s", len(data), args[0])
}

func (s *Shell) handleEdit(args []string) {
	if len(args) == 0 {
		s.printLine("usage: edit <text>")
		return
	}
	// "\n" escapes let single-line input carry multi-line code
	code := strings.ReplaceAll(strings.Join(args, " "), `\n`, "\n")
	if err := s.session.SetCode(code); err != nil {
		s.printLine("error: %v", err)
		return
	}
	s.printLine("draft saved")
}

func (s *Shell) handleReset() {
	code, err := s.session.ResetCode()
	if err != nil {
		s.printLine("error: %v", err)
		return
	}
	s.printLine("code restored to the starter:")
	s.printBlock(code)
}

func (s *Shell) handleSubmit() {
	if err := s.session.Submit(); err != nil {
		s.printLine("error: %v", err)
		return
	}
	st := s.session.Snapshot().Submission
	s.printLine("submitted, job %s (%s). Use 'wait' to follow it.", st.JobID, st.State)
}

func (s *Shell) handleHint() {
	r, err := s.session.ShowHint()
	if err != nil {
		s.printLine("error: %v", err)
		return
	}
	s.printLine("%s", r.Message)
}

func (s *Shell) handleWait(ctx context.Context) {
	snap := s.waitFor(ctx, 0, func(snap playground.Snapshot) bool {
		return !snap.Submission.State.Active()
	})
	s.printSubmission(snap.Submission)
}

func (s *Shell) listSubjects(ctx context.Context) {
	s.waitForHierarchy(ctx)
	h := s.session.Snapshot().Hierarchy
	if h.SubjectsError != "" {
		s.printLine("error: %s (use 'reload' to retry)", h.SubjectsError)
		return
	}
	for _, subj := range h.Subjects {
		s.printLine("%s %-24s %s", marker(subj.ID == h.SelectedSubject), subj.ID, subj.Name)
	}
}

func (s *Shell) listUnits(ctx context.Context) {
	s.waitForHierarchy(ctx)
	h := s.session.Snapshot().Hierarchy
	if h.SelectedSubject == "" {
		s.printLine("select a subject first")
		return
	}
	if h.UnitsError != "" {
		s.printLine("error: %s", h.UnitsError)
		return
	}
	for _, u := range h.Units {
		s.printLine("%s %-24s %s", marker(u.ID == h.SelectedUnit), u.ID, u.Name)
	}
}

func (s *Shell) listProblems(ctx context.Context) {
	s.waitForHierarchy(ctx)
	h := s.session.Snapshot().Hierarchy
	if h.SelectedUnit == "" {
		s.printLine("select a unit first")
		return
	}
	if h.ProblemsError != "" {
		s.printLine("error: %s", h.ProblemsError)
		return
	}
	for _, p := range h.Problems.List() {
		s.printLine("%s %-24s %s", marker(p.ID == h.SelectedProblem), p.ID, p.Title())
	}
}

func (s *Shell) show() {
	snap := s.session.Snapshot()
	if snap.Problem == nil {
		s.printLine("no problem selected")
		return
	}
	p := snap.Problem
	s.printLine("== %s ==", p.Title())
	if p.Metadata.Difficulty != "" {
		s.printLine("difficulty: %s", p.Metadata.Difficulty)
	}
	s.printLine("%s", p.Prompt)
	s.printLine("-- code --")
	s.printBlock(snap.Code)
	if snap.DraftDegraded {
		s.printLine("warning: drafts are not being persisted")
	}
	if n := len(p.Metadata.Hints); n > 0 {
		s.printLine("hints seen: %d/%d", snap.HintLevel, n)
	}
	s.printSubmission(snap.Submission)
}

func (s *Shell) printSubmission(st submission.Status) {
	switch st.State {
	case submission.StateIdle:
		return
	case submission.StateSubmitting, submission.StatePolling:
		s.printLine("submission: %s (job %s, attempt %d)", st.State, st.JobID, st.Attempts)
		return
	}

	s.printLine("submission: %s", st.State)
	if st.Error != nil {
		s.printLine("  %s", st.Error.Message)
	}
	r := st.Result
	if r == nil {
		return
	}
	s.printLine("  score %.1f/%.1f (%.0f%%) passed=%d failed=%d errors=%d in %s",
		r.ScoreTotal, r.ScoreMax, r.ScoreFraction()*100, r.Passed, r.Failed, r.Errors, r.Duration().Round(time.Millisecond))
	for _, t := range r.PublicTests() {
		line := fmt.Sprintf("  [%s] %s (%.1f/%.1f)", t.Outcome, t.Name, t.Points, t.MaxPoints)
		if t.Message != "" {
			line += ": " + t.Message
		}
		s.printLine("%s", line)
	}
	if hidden := len(r.TestResults) - len(r.PublicTests()); hidden > 0 {
		s.printLine("  %d hidden test(s)", hidden)
	}
	if r.ErrorMessage != "" {
		s.printLine("  error: %s", r.ErrorMessage)
	}
	if r.Stdout != "" {
		s.printLine("-- stdout --")
		s.printBlock(r.Stdout)
	}
	if r.Stderr != "" {
		s.printLine("-- stderr --")
		s.printBlock(r.Stderr)
	}
}

func (s *Shell) waitForHierarchy(ctx context.Context) {
	s.waitFor(ctx, s.loadTimeout, func(snap playground.Snapshot) bool {
		h := snap.Hierarchy
		if h.SubjectsLoading || h.UnitsLoading || h.ProblemsLoading {
			return false
		}
		// the draft for the selected problem has been loaded
		if snap.Problem == nil {
			return h.SelectedProblem == ""
		}
		return snap.Problem.ID == h.SelectedProblem
	})
}

// waitFor blocks until done reports true for the latest snapshot, ctx ends
// or the timeout (when positive) elapses. It returns the last snapshot seen.
func (s *Shell) waitFor(ctx context.Context, timeout time.Duration, done func(playground.Snapshot) bool) playground.Snapshot {
	_, updates, unsubscribe := s.session.Subscribe()
	defer unsubscribe()

	snap := s.session.Snapshot()
	if done(snap) {
		return snap
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return s.session.Snapshot()
		case <-expired:
			return s.session.Snapshot()
		case next, ok := <-updates:
			if !ok {
				return s.session.Snapshot()
			}
			if done(next) {
				return next
			}
		}
	}
}

func (s *Shell) printHelp() {
	s.printLine("commands:")
	s.printLine("  subjects | units | problems      list the current level")
	s.printLine("  reload                           retry loading subjects")
	s.printLine("  select subject|unit|problem <id> change the selection")
	s.printLine("  show                             problem statement, code and last result")
	s.printLine("  code <file>                      replace the draft with a file")
	s.printLine("  edit '<text>'                    replace the draft with text (\\n for newlines)")
	s.printLine("  reset                            restore the starter code")
	s.printLine("  submit | cancel | wait           grade the draft")
	s.printLine("  hint                             reveal the next hint")
	s.printLine("  help | quit")
}

func (s *Shell) printBlock(text string) {
	_, _ = s.outputWriter.WriteString(text)
	if !strings.HasSuffix(text, "\n") {
		_ = s.outputWriter.WriteByte('\n')
	}
	_ = s.outputWriter.Flush()
}

func (s *Shell) printLine(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.outputWriter, format+"\n", args...)
	_ = s.outputWriter.Flush()
}

func marker(selected bool) string {
	if selected {
		return "*"
	}
	return " "
}

func orNone(id string) string {
	if id == "" {
		return "-"
	}
	return id
}
