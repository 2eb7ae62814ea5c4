/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package lockverify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jerry-enebeli/lockverify/config"
	"github.com/jerry-enebeli/lockverify/model"
)

type ErrorCode string

const (
	ErrCodeConfiguration      ErrorCode = "CONFIGURATION_ERROR"
	ErrCodeSubmitFailed       ErrorCode = "SUBMIT_FAILED"
	ErrCodeResyncExhausted    ErrorCode = "RESYNC_EXHAUSTED"
	ErrCodeBackendUnavailable ErrorCode = "BACKEND_UNAVAILABLE"
	ErrCodeFieldMismatch      ErrorCode = "FIELD_MISMATCH"
	ErrCodeLockNotFound       ErrorCode = "LOCK_NOT_FOUND"
	ErrCodeOutOfOrder         ErrorCode = "OUT_OF_ORDER"
	ErrCodeCancelled          ErrorCode = "CANCELLED"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
)

var (
	// ErrMissingLockID is returned when resync or validate runs before a lock was submitted.
	ErrMissingLockID = errors.New("no lock id: submit a lock first")
	// ErrResyncNotAttempted is returned when validation is asked for before any resync,
	// since the backend view may still be stale.
	ErrResyncNotAttempted = errors.New("resync has not been attempted for this lock")
	// ErrEmptyLockID is returned when the submitter reports success without an id.
	ErrEmptyLockID = errors.New("submitter returned an empty lock id")
	// ErrMissingSubmitter is returned when submit is asked for without a submitter.
	ErrMissingSubmitter = errors.New("no submitter configured")
)

// SubmitError wraps a failed on-chain approve and lock.
type SubmitError struct {
	Err error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("approve and lock failed: %v", e.Err)
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}

// ResyncExhaustedError is returned when the backend never confirmed a resync.
// It carries the last response seen so the failure can be diagnosed.
type ResyncExhaustedError struct {
	LockID     model.LockID
	Attempts   int
	LastStatus int
	LastBody   string
	LastErr    error
}

func (e *ResyncExhaustedError) Error() string {
	if e.LastErr != nil {
		return fmt.Sprintf("failed to resync lock %s after %d attempts. Last error: %v", e.LockID, e.Attempts, e.LastErr)
	}
	return fmt.Sprintf("failed to resync lock %s after %d attempts. Response: status=%d body=%s",
		e.LockID, e.Attempts, e.LastStatus, e.LastBody)
}

func (e *ResyncExhaustedError) Unwrap() error {
	return e.LastErr
}

// BackendUnavailableError is a transport or HTTP level failure reading from the
// backend. It is distinct from a lock that is not indexed yet.
type BackendUnavailableError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *BackendUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("backend unavailable: %s %s: %v", e.Method, e.URL, e.Err)
	}
	return fmt.Sprintf("backend unavailable: %s %s -> %d body=%q", e.Method, e.URL, e.StatusCode, e.Body)
}

func (e *BackendUnavailableError) Unwrap() error {
	return e.Err
}

// Mismatch is a single field that disagrees with the expected value.
type Mismatch struct {
	Field    string
	Expected string
	Actual   string
}

// FieldMismatchError is returned when the lock was found but reports values
// other than those submitted. It is never retried.
type FieldMismatchError struct {
	LockID     model.LockID
	Mismatches []Mismatch
}

func (e *FieldMismatchError) Error() string {
	parts := make([]string, 0, len(e.Mismatches))
	for _, m := range e.Mismatches {
		parts = append(parts, fmt.Sprintf("%s: expected %q, got %q", m.Field, m.Expected, m.Actual))
	}
	return fmt.Sprintf("lock %s does not match: %s", e.LockID, strings.Join(parts, "; "))
}

// Field is the first mismatching field.
func (e *FieldMismatchError) Field() string {
	if len(e.Mismatches) == 0 {
		return ""
	}
	return e.Mismatches[0].Field
}

// LockNotFoundError is returned when the lock never appeared in the backend.
type LockNotFoundError struct {
	LockID   model.LockID
	Attempts int
}

func (e *LockNotFoundError) Error() string {
	return fmt.Sprintf("new lock with ID %s not found after %d attempts", e.LockID, e.Attempts)
}

// CodeOf maps an error returned by this package to its ErrorCode.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}

	var (
		cfgErr      *config.ConfigurationError
		submitErr   *SubmitError
		resyncErr   *ResyncExhaustedError
		backendErr  *BackendUnavailableError
		mismatchErr *FieldMismatchError
		notFoundErr *LockNotFoundError
	)
	switch {
	case errors.As(err, &cfgErr):
		return ErrCodeConfiguration
	case errors.As(err, &submitErr):
		return ErrCodeSubmitFailed
	case errors.As(err, &resyncErr):
		return ErrCodeResyncExhausted
	case errors.As(err, &backendErr):
		return ErrCodeBackendUnavailable
	case errors.As(err, &mismatchErr):
		return ErrCodeFieldMismatch
	case errors.As(err, &notFoundErr):
		return ErrCodeLockNotFound
	case errors.Is(err, ErrMissingLockID), errors.Is(err, ErrResyncNotAttempted):
		return ErrCodeOutOfOrder
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrCodeCancelled
	}
	return ErrCodeInternal
}
