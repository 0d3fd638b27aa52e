package main

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes for different failure modes
const (
	ExitSuccess     = 0 // Command completed
	ExitCheckFailed = 1 // A configuration document failed validation
	ExitError       = 2 // Configuration or runtime error
)

// CheckFailedError indicates that the check ran, but one or more documents
// did not validate.
type CheckFailedError struct {
	Message string
}

func (e *CheckFailedError) Error() string {
	return e.Message
}

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)

		var checkErr *CheckFailedError
		if errors.As(err, &checkErr) {
			os.Exit(ExitCheckFailed)
		}

		os.Exit(ExitError)
	}
}
