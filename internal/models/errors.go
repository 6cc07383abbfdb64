package models

import (
	"errors"
	"runtime/debug"
)

// ErrorKind classifies why a unit or the worker failed
type ErrorKind int

const (
	// KindDataQuality: the producer's data is wrong; an operator must fix and resubmit.
	KindDataQuality ErrorKind = iota + 1
	// KindIntegration: the portal or browser misbehaved; retrying may help.
	KindIntegration
	// KindSystem: a fault in this worker or its collaborators.
	KindSystem
)

func (k ErrorKind) String() string {
	switch k {
	case KindDataQuality:
		return "data_quality"
	case KindIntegration:
		return "integration"
	case KindSystem:
		return "system"
	default:
		return "unknown"
	}
}

const (
	ReasonTechnical   = "A technical error occurred while processing this record."
	SolutionTechnical = "Our engineering team has been notified. Please try again later."

	ReasonRetriesExhausted   = "Multiple attempts to verify this user's details have been unsuccessful."
	SolutionRetriesExhausted = "Please verify the user details provided and try again."
)

// WorkerError is the single error type executors and the lookup engine return
type WorkerError struct {
	Kind     ErrorKind
	Reason   string
	Solution string
	Cause    error
	Stack    string

	noticeReason   string
	noticeSolution string
}

func (e *WorkerError) Error() string {
	if e.Cause != nil {
		if e.Reason != "" {
			return e.Reason + ": " + e.Cause.Error()
		}
		return e.Cause.Error()
	}
	return e.Reason
}

func (e *WorkerError) Unwrap() error {
	return e.Cause
}

// DataQuality reports a problem with the unit's data
func DataQuality(reason, solution string) *WorkerError {
	return &WorkerError{Kind: KindDataQuality, Reason: reason, Solution: solution}
}

// Integration wraps a browser or portal fault
func Integration(cause error) *WorkerError {
	return &WorkerError{Kind: KindIntegration, Cause: cause}
}

// System wraps an internal fault and captures the stack where it was classified
func System(reason string, cause error) *WorkerError {
	return &WorkerError{Kind: KindSystem, Reason: reason, Cause: cause, Stack: string(debug.Stack())}
}

// AsWorkerError classifies any error; unclassified errors count as system faults
func AsWorkerError(err error) *WorkerError {
	if err == nil {
		return nil
	}
	var we *WorkerError
	if errors.As(err, &we) {
		return we
	}
	return System("unclassified error", err)
}

// WithNotice sets the reason and solution shown to the uploader in place of the defaults
func (e *WorkerError) WithNotice(reason, solution string) *WorkerError {
	e.noticeReason = reason
	e.noticeSolution = solution
	return e
}

// FailureText returns the reason and solution shown to the uploader
func (e *WorkerError) FailureText() (string, string) {
	if e.noticeReason != "" {
		return e.noticeReason, e.noticeSolution
	}
	switch e.Kind {
	case KindDataQuality:
		return e.Reason, e.Solution
	case KindIntegration:
		if e.Reason != "" {
			return e.Reason, e.Solution
		}
		return ReasonRetriesExhausted, SolutionRetriesExhausted
	default:
		return ReasonTechnical, SolutionTechnical
	}
}
