// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

package transform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/gadgetgrove/internal/logging"
)

// DefaultExecTimeout bounds an external transform when no timeout is set.
const DefaultExecTimeout = 30 * time.Minute

// maxDiagnostic caps how much stderr is kept on an Error.
const maxDiagnostic = 8 << 10

// ErrNoCommand is returned when an ExecTransformer has no command.
var ErrNoCommand = errors.New("no transform command configured")

// countPatterns are tried against each stdout line, last line first.
var countPatterns = []*regexp.Regexp{
	regexp.MustCompile(`accepted=(\d+)`),
	regexp.MustCompile(`Total records processed:\s*\**(\d+)\**`),
	regexp.MustCompile(`^\s*(\d+)\s*$`),
}

// ExecTransformer runs an external batch job as
//
//	<Command> <Args...> <dir>
//
// A zero exit status means every row was written. The accepted count is
// read from stdout.
type ExecTransformer struct {
	Command string
	Args    []string
	Timeout time.Duration
	Env     []string
}

// Transform implements Transformer.
func (e *ExecTransformer) Transform(ctx context.Context, dir string) (Result, error) {
	if e.Command == "" {
		return Result{}, &Error{Op: "exec", Err: ErrNoCommand}
	}
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultExecTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string(nil), e.Args...), dir)
	cmd := exec.CommandContext(ctx, e.Command, args...) //nolint:gosec // operator-configured command
	if len(e.Env) > 0 {
		cmd.Env = append(cmd.Environ(), e.Env...)
	}
	cmd.WaitDelay = 5 * time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logging.Ctx(ctx).Info().
		Str("command", e.Command).
		Strs("args", args).
		Msg("Running transform command")

	start := time.Now()
	err := cmd.Run()
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %w", err, ctx.Err())
		}
		return Result{Output: stdout.String()}, &Error{
			Op:         "exec",
			Diagnostic: tail(stderr.String(), maxDiagnostic),
			Err:        err,
		}
	}

	accepted, ok := ParseAccepted(stdout.String())
	if !ok {
		logging.Ctx(ctx).Warn().
			Str("command", e.Command).
			Msg("Transform command did not report an accepted count")
	}
	logging.Ctx(ctx).Info().
		Int("accepted", accepted).
		Dur("duration", time.Since(start)).
		Msg("Transform command finished")

	return Result{Accepted: accepted, Output: stdout.String()}, nil
}

// ParseAccepted finds the accepted-row count in job output. The last line
// matching one of "accepted=<n>", "Total records processed: <n>" or a bare
// integer wins.
func ParseAccepted(output string) (int, bool) {
	lines := strings.Split(strings.TrimRight(output, "\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		for _, re := range countPatterns {
			m := re.FindStringSubmatch(lines[i])
			if m == nil {
				continue
			}
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			return n, true
		}
	}
	return 0, false
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
