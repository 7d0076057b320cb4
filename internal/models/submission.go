package models

import "time"

// JobStatus represents the server-side state of a grading job
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobStarted   JobStatus = "started"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobTimeout   JobStatus = "timeout"
)

// IsTerminal returns true if no further transition can occur for the job
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobTimeout
}

// Job is a handle on a remote grading job
type Job struct {
	ID          string    `json:"id"`
	ProblemID   string    `json:"problem_id"`
	Status      JobStatus `json:"status"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Visibility controls whether a test is shown to the student
type Visibility string

const (
	VisibilityPublic Visibility = "public"
	VisibilityHidden Visibility = "hidden"
)

// Outcome is the result of a single test
type Outcome string

const (
	OutcomePassed  Outcome = "passed"
	OutcomeFailed  Outcome = "failed"
	OutcomeError   Outcome = "error"
	OutcomeSkipped Outcome = "skipped"
)

// TestOutcome holds the result of one graded test
type TestOutcome struct {
	Name       string     `json:"test_name"`
	Outcome    Outcome    `json:"outcome"`
	Visibility Visibility `json:"visibility"`
	Points     float64    `json:"points"`
	MaxPoints  float64    `json:"max_points"`
	Duration   float64    `json:"duration"`
	Message    string     `json:"message,omitempty"`
}

// IsHidden reports whether the test details should be withheld
func (t TestOutcome) IsHidden() bool {
	return t.Visibility == VisibilityHidden
}

// SubmissionResult is the payload returned when polling a job.
// Status may be non-terminal; only terminal results are surfaced.
type SubmissionResult struct {
	JobID        string        `json:"job_id,omitempty"`
	Status       JobStatus     `json:"status"`
	OK           bool          `json:"ok"`
	ScoreTotal   float64       `json:"score_total"`
	ScoreMax     float64       `json:"score_max"`
	Passed       int           `json:"passed"`
	Failed       int           `json:"failed"`
	Errors       int           `json:"errors"`
	TestResults  []TestOutcome `json:"test_results,omitempty"`
	Stdout       string        `json:"stdout,omitempty"`
	Stderr       string        `json:"stderr,omitempty"`
	DurationSec  float64       `json:"duration_sec"`
	ErrorMessage string        `json:"error_message,omitempty"`
	Message      string        `json:"message,omitempty"`
}

// ScoreFraction returns score_total/score_max in [0,1] (0 when score_max is 0)
func (r *SubmissionResult) ScoreFraction() float64 {
	if r == nil || r.ScoreMax <= 0 {
		return 0
	}
	f := r.ScoreTotal / r.ScoreMax
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// Duration returns the reported run duration
func (r *SubmissionResult) Duration() time.Duration {
	if r == nil {
		return 0
	}
	return time.Duration(r.DurationSec * float64(time.Second))
}

// PublicTests returns the tests visible to the student
func (r *SubmissionResult) PublicTests() []TestOutcome {
	if r == nil {
		return nil
	}
	var result []TestOutcome
	for _, t := range r.TestResults {
		if !t.IsHidden() {
			result = append(result, t)
		}
	}
	return result
}

// SubmitRequest is the body sent when creating a submission
type SubmitRequest struct {
	ProblemID string `json:"problem_id"`
	Code      string `json:"code"`
	StudentID string `json:"student_id"`
}

// SubmitResponse carries the job handle returned by the server
type SubmitResponse struct {
	JobID   string    `json:"job_id"`
	Status  JobStatus `json:"status,omitempty"`
	Message string    `json:"message,omitempty"`
}
