// Package shell runs external command-line tools (the docker CLI for
// compose) behind a narrow interface so callers can be tested with a fake.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Command describes a process to run.
type Command struct {
	Dir  string
	Name string
	Args []string
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result holds the captured output of a finished process.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner executes commands.
type Runner interface {
	// Run executes cmd and waits for it. A non-zero exit is reported through
	// Result.ExitCode and a non-nil error; a process that could not be
	// started returns ExitCode -1.
	Run(ctx context.Context, cmd Command) (*Result, error)
	// LookPath reports the resolved path of an executable.
	LookPath(name string) (string, error)
}

// ExecRunner is the os/exec implementation of Runner.
type ExecRunner struct{}

func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

func (ExecRunner) Run(ctx context.Context, c Command) (*Result, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := &Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, fmt.Errorf("%s: exit %d: %s", c, res.ExitCode, strings.TrimSpace(res.Stderr))
		}
		res.ExitCode = -1
		return res, fmt.Errorf("%s: %w", c, err)
	}
	return res, nil
}

func (ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}
