// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

// Package landing writes Landing Files: one received event per file under
//
//	<root>/<queue>/<event type>/<receipt timestamp>_<session>.json
//
// A file becomes visible under its final name only once its content has been
// fsynced, so the staging pipeline never discovers a partial file. Existing
// files are never overwritten; a name collision gets a -1, -2, ... suffix.
package landing

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/tomtom215/gadgetgrove/internal/metrics"
)

// File is one event to land.
type File struct {
	Queue      string
	EventType  string
	SessionID  string
	ReceivedAt time.Time
	// Data is one JSON object. A trailing newline is added if missing.
	Data []byte
}

// Fallback path components for empty values.
const (
	AnonymousSession = "anonymous"
	UnknownType      = "unknown"
)

const maxCollisions = 1000

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Writer lands files under a root directory.
type Writer struct {
	root    string
	ext     string
	syncDir bool
}

// NewWriter creates a writer for root. ext defaults to ".json".
func NewWriter(root, ext string) *Writer {
	if ext == "" {
		ext = ".json"
	}
	return &Writer{root: root, ext: ext, syncDir: true}
}

// Root returns the landing root.
func (w *Writer) Root() string {
	return w.root
}

// Token makes s safe as a single path component. Runs of unsafe characters
// become '_' and the result is capped at 64 bytes.
func Token(s, fallback string) string {
	s = unsafeChars.ReplaceAllString(s, "_")
	if len(s) > 64 {
		s = s[:64]
	}
	if s == "" || s == "_" {
		return fallback
	}
	return s
}

// ReceiptStamp formats t as YYYYMMDDTHHMMSSffffff (UTC, microseconds).
func ReceiptStamp(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s%06d", t.Format("20060102T150405"), t.Nanosecond()/1000)
}

// Location returns the directory and base name (without collision suffix
// or extension) for f.
func (w *Writer) Location(f File) (dir, base string) {
	dir = filepath.Join(w.root, Token(f.Queue, UnknownType), Token(f.EventType, UnknownType))
	base = ReceiptStamp(f.ReceivedAt) + "_" + Token(f.SessionID, AnonymousSession)
	return dir, base
}

// Write durably lands f and returns the final path.
func (w *Writer) Write(f File) (path string, err error) {
	start := time.Now()
	defer func() {
		if err == nil {
			metrics.LandingWriteDuration.Observe(time.Since(start).Seconds())
		}
	}()

	if f.Queue == "" {
		return "", fmt.Errorf("landing: queue is required")
	}
	dir, base := w.Location(f)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("landing: create %s: %w", dir, err)
	}

	// The temp name ends in .tmp so discovery (which filters on the
	// configured extension) never sees it.
	tmp, err := os.CreateTemp(dir, "."+base+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("landing: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	data := f.Data
	if len(data) == 0 || data[len(data)-1] != '\n' {
		data = append(append(make([]byte, 0, len(data)+1), data...), '\n')
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("landing: write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("landing: sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("landing: close %s: %w", tmpName, err)
	}

	path, err = publish(tmpName, dir, base, w.ext)
	if err != nil {
		return "", err
	}
	if w.syncDir {
		if err := syncDirectory(dir); err != nil {
			return "", err
		}
	}
	return path, nil
}

// publish hard-links tmp to the first free name. os.Link fails with
// ErrExist instead of replacing, which gives no-clobber semantics.
func publish(tmp, dir, base, ext string) (string, error) {
	for i := 0; i < maxCollisions; i++ {
		name := base + ext
		if i > 0 {
			name = fmt.Sprintf("%s-%d%s", base, i, ext)
		}
		final := filepath.Join(dir, name)
		err := os.Link(tmp, final)
		if err == nil {
			return final, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("landing: publish %s: %w", final, err)
		}
	}
	return "", fmt.Errorf("landing: %d files already named %s in %s", maxCollisions, base, dir)
}

func syncDirectory(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("landing: open dir %s: %w", dir, err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("landing: sync dir %s: %w", dir, err)
	}
	return nil
}
