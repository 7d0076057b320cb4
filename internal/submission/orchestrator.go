package submission

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cortezalberto/coderunner1/internal/models"
)

// State is the lifecycle position of the orchestrator
type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StatePolling    State = "polling"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateTimeout    State = "timeout"
	StateError      State = "error"
)

// Active reports whether a job is being created or watched
func (s State) Active() bool {
	return s == StateSubmitting || s == StatePolling
}

// Client is the part of the grading API the orchestrator drives
type Client interface {
	Submit(ctx context.Context, req models.SubmitRequest) (*models.SubmitResponse, error)
	GetResult(ctx context.Context, jobID string) (*models.SubmissionResult, error)
}

// Status is a point-in-time copy of the orchestrator state
type Status struct {
	State      State                    `json:"state"`
	ProblemID  string                   `json:"problem_id,omitempty"`
	JobID      string                   `json:"job_id,omitempty"`
	JobStatus  models.JobStatus         `json:"job_status,omitempty"`
	Attempts   int                      `json:"attempts"`
	Result     *models.SubmissionResult `json:"result,omitempty"`
	Error      *Error                   `json:"error,omitempty"`
	StartedAt  time.Time                `json:"started_at,omitempty"`
	FinishedAt time.Time                `json:"finished_at,omitempty"`
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithBackoff sets the polling schedule
func WithBackoff(b Backoff) Option {
	return func(o *Orchestrator) { o.backoff = b }
}

// WithMaxAttempts sets the attempt budget
func WithMaxAttempts(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithSleeper replaces the timer used between polls
func WithSleeper(s Sleeper) Option {
	return func(o *Orchestrator) { o.sleep = s }
}

// WithOnChange registers a callback invoked after every state transition.
// The callback runs outside the orchestrator lock.
func WithOnChange(fn func()) Option {
	return func(o *Orchestrator) { o.onChange = fn }
}

// Orchestrator submits code and watches the resulting job until it reaches
// a terminal status, the attempt budget runs out, or the session is
// cancelled. At most one session is live at a time; every transition from a
// superseded session is dropped.
type Orchestrator struct {
	client      Client
	logger      *slog.Logger
	backoff     Backoff
	maxAttempts int
	sleep       Sleeper
	onChange    func()

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.Mutex
	status        Status
	gen           uint64
	sessionCancel context.CancelFunc
}

// New creates an orchestrator. Sessions run under ctx until Close is called.
func New(ctx context.Context, c Client, opts ...Option) *Orchestrator {
	ctx, cancel := context.WithCancel(ctx)
	o := &Orchestrator{
		client:      c,
		logger:      slog.Default(),
		backoff:     DefaultBackoff,
		maxAttempts: DefaultMaxAttempts,
		sleep:       SleepContext,
		ctx:         ctx,
		cancel:      cancel,
		status:      Status{State: StateIdle},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Submit creates a grading job for code and starts polling for its result.
// It returns once the job handle has been obtained; polling continues in
// the background. Any previous session is cancelled first.
func (o *Orchestrator) Submit(problemID, code, studentID string) error {
	if problemID == "" || strings.TrimSpace(code) == "" {
		msg := msgEmptyCode
		if problemID == "" {
			msg = msgMissingProblem
		}
		verr := validationError(msg)

		o.mu.Lock()
		o.endSessionLocked()
		o.status = Status{State: StateError, ProblemID: problemID, Error: verr}
		o.mu.Unlock()

		o.notify()
		return verr
	}

	o.mu.Lock()
	o.endSessionLocked()
	gen := o.gen
	ctx, cancel := context.WithCancel(o.ctx)
	o.sessionCancel = cancel
	o.status = Status{
		State:     StateSubmitting,
		ProblemID: problemID,
		StartedAt: time.Now(),
	}
	o.mu.Unlock()
	o.notify()

	o.logger.Info("submitting code", "problem_id", problemID, "student_id", studentID)

	resp, err := o.client.Submit(ctx, models.SubmitRequest{
		ProblemID: problemID,
		Code:      code,
		StudentID: studentID,
	})

	o.mu.Lock()
	if gen != o.gen || ctx.Err() != nil {
		o.mu.Unlock()
		o.logger.Debug("dropped submit response from cancelled session", "problem_id", problemID)
		return ErrSuperseded
	}

	if err != nil {
		serr := classifySubmit(err)
		o.status.State = StateError
		o.status.Error = serr
		o.status.FinishedAt = time.Now()
		o.mu.Unlock()

		o.logger.Error("failed to submit code", "problem_id", problemID, "kind", serr.Kind, "error", err)
		o.notify()
		return serr
	}

	o.status.State = StatePolling
	o.status.JobID = resp.JobID
	o.status.JobStatus = resp.Status
	o.wg.Add(1)
	go o.poll(ctx, gen, resp.JobID)
	o.mu.Unlock()

	o.logger.Info("submission accepted", "problem_id", problemID, "job_id", resp.JobID)
	o.notify()
	return nil
}

func (o *Orchestrator) poll(ctx context.Context, gen uint64, jobID string) {
	defer o.wg.Done()

	attempts := 0
	for {
		result, err := o.client.GetResult(ctx, jobID)

		o.mu.Lock()
		if gen != o.gen || ctx.Err() != nil {
			o.mu.Unlock()
			o.logger.Debug("stopped polling cancelled session", "job_id", jobID)
			return
		}

		if err != nil {
			perr := classifyPoll(err)
			o.status.State = StateError
			o.status.Error = perr
			o.status.FinishedAt = time.Now()
			o.mu.Unlock()

			o.logger.Error("failed to poll result", "job_id", jobID, "attempt", attempts+1, "error", err)
			o.notify()
			return
		}

		o.status.JobStatus = result.Status
		if result.Status.IsTerminal() {
			o.status.State = State(result.Status)
			o.status.Result = result
			o.status.FinishedAt = time.Now()
			o.mu.Unlock()

			o.logger.Info("submission finished", "job_id", jobID, "status", result.Status,
				"score_total", result.ScoreTotal, "score_max", result.ScoreMax, "attempts", attempts+1)
			o.notify()
			return
		}

		attempts++
		o.status.Attempts = attempts
		if attempts >= o.maxAttempts {
			o.status.State = StateTimeout
			o.status.Error = budgetExceeded(attempts)
			o.status.FinishedAt = time.Now()
			o.mu.Unlock()

			o.logger.Warn("gave up polling", "job_id", jobID, "attempts", attempts)
			o.notify()
			return
		}
		delay := o.backoff.Delay(attempts)
		o.mu.Unlock()

		o.logger.Debug("job not finished", "job_id", jobID, "status", result.Status, "attempt", attempts, "next_in", delay)
		o.notify()

		if err := o.sleep(ctx, delay); err != nil {
			return
		}
	}
}

// Cancel abandons the live session, if any, and returns to idle.
// With nothing in flight it does nothing.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	if !o.status.State.Active() {
		o.mu.Unlock()
		return
	}
	jobID := o.status.JobID
	o.endSessionLocked()
	o.status = Status{State: StateIdle}
	o.mu.Unlock()

	o.logger.Info("submission cancelled", "job_id", jobID)
	o.notify()
}

// Reset cancels any live session and clears the last result
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	if o.status.State == StateIdle {
		o.mu.Unlock()
		return
	}
	o.endSessionLocked()
	o.status = Status{State: StateIdle}
	o.mu.Unlock()

	o.notify()
}

// Status returns a copy of the current status
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Wait blocks until every polling goroutine has returned
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Close cancels the live session and waits for polling to stop
func (o *Orchestrator) Close() {
	o.cancel()
	o.wg.Wait()
}

// endSessionLocked invalidates the current session so none of its pending
// responses can change state
func (o *Orchestrator) endSessionLocked() {
	o.gen++
	if o.sessionCancel != nil {
		o.sessionCancel()
		o.sessionCancel = nil
	}
}

func (o *Orchestrator) notify() {
	if o.onChange != nil {
		o.onChange()
	}
}
