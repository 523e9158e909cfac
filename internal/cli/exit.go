package cli

import "fmt"

// Process exit codes
const (
	ExitOK           = 0
	ExitCorrupted    = 1
	ExitUnverifiable = 2
	ExitUsage        = 3
)

// ExitError carries a non-zero exit code out of a command whose outcome has
// already been reported.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}
