// Package runnertest provides a scripted runner.Runner for tests.
package runnertest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/openfroyo/condaenv/pkg/runner"
)

// Reply is the scripted outcome of one command.
type Reply struct {
	Stdout   string
	Stderr   string
	ExitCode int

	// Err simulates a launch failure.
	Err error
}

// Fake records every call and answers commands from a script keyed by their shell-quoted
// command line. Staged files are kept in memory under /stage/ with a sequence number in
// place of the pattern's "*".
type Fake struct {
	mu      sync.Mutex
	replies map[string][]Reply
	calls   [][]string
	staged  map[string][]byte
	removed []string
	seq     int

	// StageErr, when set, is returned by Stage.
	StageErr error
}

var _ runner.Runner = (*Fake)(nil)

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		replies: make(map[string][]Reply),
		staged:  make(map[string][]byte),
	}
}

// On scripts reply for the command line. Repeated calls for the same line queue replies;
// the last one is reused once the queue is drained.
func (f *Fake) On(commandLine string, reply Reply) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[commandLine] = append(f.replies[commandLine], reply)
	return f
}

// Run implements runner.Runner.
func (f *Fake) Run(_ context.Context, argv []string) (*runner.ExecResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, append([]string(nil), argv...))

	line := runner.CommandLine(argv)
	queue, ok := f.replies[line]
	if !ok || len(queue) == 0 {
		return nil, fmt.Errorf("no reply scripted for %q", line)
	}
	reply := queue[0]
	if len(queue) > 1 {
		f.replies[line] = queue[1:]
	}

	if reply.Err != nil {
		return nil, reply.Err
	}
	return &runner.ExecResult{
		Argv:     argv,
		Stdout:   reply.Stdout,
		Stderr:   reply.Stderr,
		ExitCode: reply.ExitCode,
		Duration: time.Millisecond,
	}, nil
}

// Stage implements runner.Runner.
func (f *Fake) Stage(_ context.Context, data []byte, pattern string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.StageErr != nil {
		return "", f.StageErr
	}

	f.seq++
	name := pattern + strconv.Itoa(f.seq)
	if i := strings.LastIndex(pattern, "*"); i >= 0 {
		name = pattern[:i] + strconv.Itoa(f.seq) + pattern[i+1:]
	}
	path := "/stage/" + name
	f.staged[path] = append([]byte(nil), data...)
	return path, nil
}

// Remove implements runner.Runner.
func (f *Fake) Remove(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.removed = append(f.removed, path)
	delete(f.staged, path)
	return nil
}

// Calls returns the argv of every Run call in order.
func (f *Fake) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.calls...)
}

// CommandLines returns every Run call rendered as a command line.
func (f *Fake) CommandLines() []string {
	calls := f.Calls()
	lines := make([]string, len(calls))
	for i, argv := range calls {
		lines[i] = runner.CommandLine(argv)
	}
	return lines
}

// Staged returns the content of a staged file that has not been removed.
func (f *Fake) Staged(path string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.staged[path]
	return data, ok
}

// Removed returns the paths passed to Remove.
func (f *Fake) Removed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.removed...)
}
