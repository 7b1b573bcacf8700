package cmd

import "fmt"

// ExitError pins a process exit code to an error, per the CLI's
// documented exit status contract: 0 normal, 2 configuration invalid,
// 3 singleton lock held, 4 fatal filesystem error, 64 unexpected
// internal error (the zero value of ExitError is never constructed —
// any error not wrapped in ExitError exits 64).
type ExitError struct {
	Code int
	Err  error
}

func (e ExitError) Error() string { return e.Err.Error() }
func (e ExitError) Unwrap() error { return e.Err }

func exitErrf(code int, format string, args ...any) error {
	return ExitError{Code: code, Err: fmt.Errorf(format, args...)}
}
