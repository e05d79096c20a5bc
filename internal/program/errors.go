package program

import "fmt"

// ProgramError represents a failed program run.
// It includes the exit code, the command that was run, and captured stderr.
type ProgramError struct {
	// Command is the full command that was executed (including arguments)
	Command []string

	// ExitCode is the exit code returned by the program, or -1 if it never ran
	ExitCode int

	// Stderr is the captured standard error
	Stderr string

	// Err is the underlying error from the execution
	Err error
}

// Error implements the error interface.
func (e *ProgramError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("program %v failed with exit code %d: %v", e.Command, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("program %v failed with exit code %d", e.Command, e.ExitCode)
}

// Unwrap returns the underlying error.
func (e *ProgramError) Unwrap() error {
	return e.Err
}

var errUnterminated = fmt.Errorf("unterminated quote or escape in command line")
