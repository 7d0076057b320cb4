package submission

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/cortezalberto/coderunner1/pkg/client"
)

// ErrorKind classifies why a submission did not produce a result
type ErrorKind string

const (
	KindValidation     ErrorKind = "validation"
	KindTransport      ErrorKind = "transport"
	KindServer         ErrorKind = "server"
	KindPoll           ErrorKind = "poll"
	KindBudgetExceeded ErrorKind = "budget_exceeded"
)

// ErrSuperseded is returned by Submit when the submission was cancelled or
// replaced before the job handle arrived
var ErrSuperseded = errors.New("submission superseded")

const (
	msgMissingProblem = "select a problem before submitting"
	msgEmptyCode      = "write some code before submitting"
	msgConnectivity   = "could not reach the grading server, check your connection"
	msgUnexpected     = "unexpected error while submitting the code"
	msgPollFailed     = "failed to fetch the submission result"
)

// Error is the uniform failure shape surfaced to the presentation layer
type Error struct {
	Kind       ErrorKind `json:"kind"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code,omitempty"`
	Err        error     `json:"-"`
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a submission Error of the given kind
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

func validationError(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// classifySubmit maps a job creation failure to an Error. Server detail is
// surfaced verbatim; otherwise a message including the status is built.
func classifySubmit(err error) *Error {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Detail
		if msg == "" {
			msg = fmt.Sprintf("server error: %d %s", apiErr.StatusCode, http.StatusText(apiErr.StatusCode))
		}
		return &Error{Kind: KindServer, Message: msg, StatusCode: apiErr.StatusCode, Err: err}
	}

	var transportErr *client.TransportError
	if errors.As(err, &transportErr) {
		return &Error{Kind: KindTransport, Message: msgConnectivity, Err: err}
	}

	return &Error{Kind: KindServer, Message: msgUnexpected, Err: err}
}

func classifyPoll(err error) *Error {
	e := &Error{Kind: KindPoll, Message: msgPollFailed, Err: err}

	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		e.StatusCode = apiErr.StatusCode
		if apiErr.Detail != "" {
			e.Message = msgPollFailed + ": " + apiErr.Detail
		}
	}
	return e
}

func budgetExceeded(attempts int) *Error {
	return &Error{
		Kind:    KindBudgetExceeded,
		Message: fmt.Sprintf("no result after %d attempts; the job may still be running on the server", attempts),
	}
}
