// Licensed under the Apache License, Version 2.0
// Details: https://raw.githubusercontent.com/square/permitbucket/master/LICENSE

// Package helpers holds assertions shared by tests across packages.
package helpers

import (
	"testing"
	"time"
)

// ExpectingPanic indicates that a function passed in should panic. If it does, no errors are
// thrown. If not, the test fails.
func ExpectingPanic(t *testing.T, f func()) {
	t.Helper()
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("Did not panic()")
		} else {
			t.Logf("Recovered: %v", r)
		}
	}()

	f()
}

// CheckError fails the test if e is not nil.
func CheckError(t *testing.T, e error) {
	t.Helper()
	if e != nil {
		t.Fatalf("Unexpected error %+v", e)
	}
}

// PanicError panics if e is not nil. Useful where there's no *testing.T, such as TestMain.
func PanicError(e error) {
	if e != nil {
		panic(e)
	}
}

// Eventually polls cond every 10ms until it returns true, failing the test after timeout.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out after %v: %v", timeout, msg)
		}

		time.Sleep(10 * time.Millisecond)
	}
}
