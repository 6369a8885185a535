// Package shelltest provides a recording shell.Runner for tests.
package shelltest

import (
	"context"
	"fmt"
	"sync"

	"github.com/edvin/homeproxy/internal/shell"
)

var _ shell.Runner = (*Recorder)(nil)

// Recorder is a shell.Runner that records every command and answers from a
// table keyed by Command.String(). Unknown commands succeed with empty
// output.
type Recorder struct {
	mu       sync.Mutex
	Commands []shell.Command
	Results  map[string]*shell.Result
	// Missing lists executables LookPath should fail for.
	Missing map[string]bool
}

func NewRecorder() *Recorder {
	return &Recorder{Results: make(map[string]*shell.Result), Missing: make(map[string]bool)}
}

// On registers the result for a command line.
func (r *Recorder) On(cmdline string, res *shell.Result) *Recorder {
	r.Results[cmdline] = res
	return r
}

func (r *Recorder) Run(_ context.Context, cmd shell.Command) (*shell.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Commands = append(r.Commands, cmd)

	res, ok := r.Results[cmd.String()]
	if !ok {
		return &shell.Result{}, nil
	}
	if res.ExitCode != 0 {
		return res, fmt.Errorf("%s: exit %d: %s", cmd, res.ExitCode, res.Stderr)
	}
	return res, nil
}

func (r *Recorder) LookPath(name string) (string, error) {
	if r.Missing[name] {
		return "", fmt.Errorf("exec: %q: executable file not found in $PATH", name)
	}
	return "/usr/bin/" + name, nil
}

// Ran reports whether a command line was executed.
func (r *Recorder) Ran(cmdline string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.Commands {
		if c.String() == cmdline {
			return true
		}
	}
	return false
}
