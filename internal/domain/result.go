package domain

// ResultStatus is the outward status of a send.
type ResultStatus string

const (
	StatusSuccess ResultStatus = "success"
	StatusError   ResultStatus = "error"
)

// Failure classifies why a send did not succeed.
type Failure string

const (
	FailureNone       Failure = ""
	FailureValidation Failure = "validation"
	FailurePlatform   Failure = "platform"
	FailureTimeout    Failure = "timeout"
	FailureInternal   Failure = "internal"
)

// Outcome is the terminal state of a media batch.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeFailed  Outcome = "failed"
)

// Result is returned to synchronous callers of the relay.
type Result struct {
	Status  ResultStatus `json:"status"`
	Message string       `json:"message"`
	Failure Failure      `json:"-"`
	Outcome Outcome      `json:"-"`
}

// OK reports whether the result is a success.
func (r Result) OK() bool {
	return r.Status == StatusSuccess
}

// Success builds a success result.
func Success(message string) Result {
	return Result{Status: StatusSuccess, Message: message, Outcome: OutcomeSuccess}
}

// Fail builds a failed result.
func Fail(failure Failure, message string) Result {
	return Result{Status: StatusError, Message: message, Failure: failure, Outcome: OutcomeFailed}
}
