// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrEmptyPrompt indicates a task was submitted with a blank prompt.
var ErrEmptyPrompt = errors.New("prompt is empty")

// ErrInvalidTransition indicates a task status change that the lifecycle
// state machine does not allow.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrNotRetryable indicates a retry was requested for a task that is not in
// a failed, timed-out, or save-failed state.
var ErrNotRetryable = errors.New("task is not in a retryable state")

// ErrNoWorkers indicates no workers are connected to serve a request.
var ErrNoWorkers = errors.New("no workers connected")
