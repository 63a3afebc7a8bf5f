package conda

import (
	"fmt"

	"github.com/openfroyo/condaenv/pkg/runner"
)

// LaunchError is returned when a command could not be started.
type LaunchError struct {
	Argv []string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("exception occurred while running: '%s': %v", runner.CommandLine(e.Argv), e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}
