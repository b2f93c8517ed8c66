// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

/*
Package artifacts writes human-readable status reports after pipeline runs,
transform batches and retention sweeps.

Each artifact is a small markdown document stored as <dir>/<key>.md and
replaced on every write. Keys in use:

	pipeline-run     outcome of the last staging pipeline run
	spark-<queue>    rows loaded for one queue in the last transform
	spark-total      rows loaded across all queues in the last transform
	sweep            deletions made by the last retention sweep

Artifacts are for operators; nothing parses them back.
*/
package artifacts

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/tomtom215/gadgetgrove/internal/logging"
)

// Artifact statuses.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusNoop    = "noop"
)

// Field is one row of the artifact's key/value summary table.
type Field struct {
	Name  string
	Value string
}

// Table is an optional detail table.
type Table struct {
	Header []string
	Rows   [][]string
}

// Artifact is one status report.
type Artifact struct {
	Key         string
	Title       string
	Status      string
	GeneratedAt time.Time
	Summary     string
	Fields      []Field
	Table       *Table
	Detail      string // rendered verbatim in a code block, e.g. stderr
}

// Writer persists artifacts.
type Writer interface {
	Write(ctx context.Context, a Artifact) error
}

// Discard drops every artifact.
type Discard struct{}

// Write implements Writer.
func (Discard) Write(context.Context, Artifact) error { return nil }

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

const markdownTemplate = `# {{ .Title }}

| | |
|---|---|
| Status | **{{ .Status }}** |
| Generated | {{ .GeneratedAt.Format "2006-01-02 15:04:05 MST" }} |
{{- range .Fields }}
| {{ cell .Name }} | {{ cell .Value }} |
{{- end }}
{{ if .Summary }}
{{ .Summary }}
{{ end }}
{{- with .Table }}
| {{ join .Header " | " }} |
|{{ range .Header }}---|{{ end }}
{{- range .Rows }}
| {{ join . " | " }} |
{{- end }}
{{ end }}
{{- if .Detail }}
` + "```" + `
{{ .Detail }}
` + "```" + `
{{ end -}}
`

var tmpl = template.Must(template.New("artifact").Funcs(template.FuncMap{
	"cell": escapeCell,
	"join": func(cells []string, sep string) string {
		out := make([]string, len(cells))
		for i, c := range cells {
			out[i] = escapeCell(c)
		}
		return strings.Join(out, sep)
	},
}).Parse(markdownTemplate))

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

// Markdown writes artifacts as markdown files under a directory.
type Markdown struct {
	dir string
	now func() time.Time
}

// NewMarkdown creates a writer rooted at dir. The directory is created on
// first write.
func NewMarkdown(dir string) *Markdown {
	return &Markdown{dir: dir, now: time.Now}
}

// Dir returns the artifact directory.
func (m *Markdown) Dir() string {
	return m.dir
}

// Path returns where the artifact with key is stored.
func (m *Markdown) Path(key string) string {
	return filepath.Join(m.dir, key+".md")
}

// Render returns the markdown body of a.
func Render(a Artifact) ([]byte, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, a); err != nil {
		return nil, fmt.Errorf("render artifact %s: %w", a.Key, err)
	}
	return buf.Bytes(), nil
}

// Write renders a and replaces <dir>/<key>.md atomically.
func (m *Markdown) Write(ctx context.Context, a Artifact) error {
	if !keyPattern.MatchString(a.Key) {
		return fmt.Errorf("invalid artifact key %q", a.Key)
	}
	if a.GeneratedAt.IsZero() {
		a.GeneratedAt = m.now().UTC()
	}
	if a.Title == "" {
		a.Title = a.Key
	}

	body, err := Render(a)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(m.dir, 0o750); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}

	tmp, err := os.CreateTemp(m.dir, "."+a.Key+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create artifact temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close artifact: %w", err)
	}
	path := m.Path(a.Key)
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("publish artifact: %w", err)
	}

	logging.Ctx(ctx).Debug().
		Str("artifact", a.Key).
		Str("status", a.Status).
		Str("path", path).
		Msg("Wrote status artifact")
	return nil
}
