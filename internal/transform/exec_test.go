// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

package transform

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// writeScript creates an executable shell script in a temp dir.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stubs need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "job.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestParseAccepted(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   int
		wantOK bool
	}{
		{"key value", "starting\naccepted=42\n", 42, true},
		{"spark summary", "## Spark Job Summary\nTotal records processed: **17**\n", 17, true},
		{"bare integer", "loading\n9\n", 9, true},
		{"last line wins", "accepted=1\naccepted=5\n", 5, true},
		{"trailing noise", "accepted=3\nbye\n", 3, true},
		{"no count", "done\n", 0, false},
		{"empty", "", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseAccepted(tt.output)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseAccepted(%q) = %d, %v; want %d, %v", tt.output, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestExecTransformerSuccess(t *testing.T) {
	out := filepath.Join(t.TempDir(), "arg.txt")
	script := writeScript(t, `echo "$2" > "`+out+`"; echo "mode=$1"; echo "accepted=3"`)

	tr := &ExecTransformer{Command: script, Args: []string{"--fast"}, Timeout: 10 * time.Second}
	res, err := tr.Transform(context.Background(), "/data/processing")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if res.Accepted != 3 {
		t.Errorf("Accepted = %d, want 3", res.Accepted)
	}
	if !strings.Contains(res.Output, "mode=--fast") {
		t.Errorf("Output = %q", res.Output)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if strings.TrimSpace(string(got)) != "/data/processing" {
		t.Errorf("directory argument = %q", got)
	}
}

func TestExecTransformerFailure(t *testing.T) {
	script := writeScript(t, `echo "partial" ; echo "jdbc write failed" >&2; exit 2`)

	tr := &ExecTransformer{Command: script}
	_, err := tr.Transform(context.Background(), t.TempDir())
	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if terr.Op != "exec" || !strings.Contains(terr.Diagnostic, "jdbc write failed") {
		t.Errorf("error = %+v", terr)
	}
}

func TestExecTransformerTimeout(t *testing.T) {
	script := writeScript(t, `exec sleep 10`)

	tr := &ExecTransformer{Command: script, Timeout: 100 * time.Millisecond}
	start := time.Now()
	_, err := tr.Transform(context.Background(), t.TempDir())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 8*time.Second {
		t.Error("timeout did not stop the command")
	}
}

func TestExecTransformerNoCommand(t *testing.T) {
	_, err := (&ExecTransformer{}).Transform(context.Background(), t.TempDir())
	if !errors.Is(err, ErrNoCommand) {
		t.Errorf("expected ErrNoCommand, got %v", err)
	}
}
