// Licensed under the Apache License, Version 2.0
// Details: https://raw.githubusercontent.com/square/permitbucket/master/LICENSE

// Package permitbucket implements a lock-free, in-process token bucket whose tokens can only be
// acquired with a single-use permit, optionally granted only while the bucket holds at least a
// threshold of tokens. A Service wraps named buckets with configuration, events and an admin
// console.
package permitbucket

import (
	"errors"
	"fmt"
	"time"
)

// ErrorReason provides details on why a permit or acquisition was refused.
type ErrorReason int

const (
	// Not enough tokens available to satisfy the request right now
	ER_NOT_ENOUGH_TOKENS ErrorReason = iota

	// Available tokens are below the bucket's threshold; no permit granted
	ER_EXCEEDS_CAPACITY

	// Permit was granted by a different bucket, or was already used
	ER_INVALID_PERMIT

	// Gave up updating the token count after too many concurrent retries
	ER_HIGH_CONTENTION

	// No valid bucket
	ER_NO_BUCKET

	// Dynamic bucket couldn't be created
	ER_TOO_MANY_BUCKETS
)

var reasonNames = []string{
	ER_NOT_ENOUGH_TOKENS: "ER_NOT_ENOUGH_TOKENS",
	ER_EXCEEDS_CAPACITY:  "ER_EXCEEDS_CAPACITY",
	ER_INVALID_PERMIT:    "ER_INVALID_PERMIT",
	ER_HIGH_CONTENTION:   "ER_HIGH_CONTENTION",
	ER_NO_BUCKET:         "ER_NO_BUCKET",
	ER_TOO_MANY_BUCKETS:  "ER_TOO_MANY_BUCKETS"}

func (r ErrorReason) String() string {
	if int(r) < 0 || int(r) >= len(reasonNames) {
		return fmt.Sprintf("ErrorReason(%d)", int(r))
	}

	return reasonNames[r]
}

// BucketError is returned by every failing bucket and service operation. Capacity errors may carry
// an advisory wait estimate, measured from the bucket's origin (see Bucket.Elapsed).
type BucketError struct {
	error
	Reason  ErrorReason
	Wait    time.Duration
	HasWait bool
}

func (e *BucketError) Error() string {
	return e.error.Error()
}

// WaitTime returns the wait estimate, if the error carries one.
func (e *BucketError) WaitTime() (time.Duration, bool) {
	return e.Wait, e.HasWait
}

func newError(msg string, reason ErrorReason) *BucketError {
	return &BucketError{error: errors.New(msg), Reason: reason}
}

func newWaitError(msg string, reason ErrorReason, wait time.Duration) *BucketError {
	return &BucketError{error: errors.New(msg), Reason: reason, Wait: wait, HasWait: true}
}

// ReasonOf extracts the ErrorReason from err, if err is (or wraps) a *BucketError.
func ReasonOf(err error) (ErrorReason, bool) {
	var be *BucketError
	if errors.As(err, &be) {
		return be.Reason, true
	}

	return 0, false
}

// IsReason reports whether err is a *BucketError with the given reason.
func IsReason(err error, reason ErrorReason) bool {
	r, ok := ReasonOf(err)
	return ok && r == reason
}

// BuildField identifies the Builder setting a BuildError refers to.
type BuildField int

const (
	FieldRefill BuildField = iota
	FieldMax
	FieldThreshold
	FieldInitial
)

var fieldNames = []string{
	FieldRefill:    "refill",
	FieldMax:       "max",
	FieldThreshold: "threshold",
	FieldInitial:   "initial"}

func (f BuildField) String() string {
	if int(f) < 0 || int(f) >= len(fieldNames) {
		return fmt.Sprintf("BuildField(%d)", int(f))
	}

	return fieldNames[f]
}

// BuildError is returned by Builder.Build. Missing is true when a required field was never set,
// false when it was set to an unusable value.
type BuildError struct {
	Field   BuildField
	Missing bool
	Detail  string
}

func (e *BuildError) Error() string {
	if e.Missing {
		return "missing " + e.Field.String()
	}

	return fmt.Sprintf("invalid %v: %v", e.Field, e.Detail)
}

func missingField(f BuildField) *BuildError {
	return &BuildError{Field: f, Missing: true}
}

func invalidField(f BuildField, detail string) *BuildError {
	return &BuildError{Field: f, Detail: detail}
}

// relativeWait rebases the wait on a capacity error from b's origin to now.
func relativeWait(err error, b *Bucket) (time.Duration, error) {
	var be *BucketError
	if !errors.As(err, &be) || !be.HasWait {
		return 0, err
	}

	wait := be.Wait - b.Elapsed()
	if wait < 0 {
		wait = 0
	}

	return wait, newWaitError(be.Error(), be.Reason, wait)
}
