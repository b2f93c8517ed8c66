// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

package staging

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Area names one of the three file-system areas.
type Area string

const (
	AreaLanding    Area = "landing"
	AreaProcessing Area = "processing"
	AreaArchive    Area = "archive"
)

// Areas holds the root directory of each area.
type Areas struct {
	Landing    string
	Processing string
	Archive    string
}

// Root returns the root directory of a.
func (a Areas) Root(area Area) string {
	switch area {
	case AreaLanding:
		return a.Landing
	case AreaProcessing:
		return a.Processing
	case AreaArchive:
		return a.Archive
	}
	return ""
}

// File is one event file inside an area. Rel is the path relative to the
// area root and always starts with the queue directory.
type File struct {
	Area  Area   `json:"area"`
	Queue string `json:"queue"`
	Rel   string `json:"rel"`
	Path  string `json:"path"`
}

// walkQueue collects files with ext below <root>/<queue>. A missing queue
// directory yields nothing.
func walkQueue(ctx context.Context, area Area, root, queue, ext string) ([]File, error) {
	dir := filepath.Join(root, queue)
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	var files []File
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ext) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, File{Area: area, Queue: queue, Rel: rel, Path: path})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	return files, nil
}

// relocate renames src to dst, creating dst's parent. An existing dst is
// never replaced; a numeric suffix is added to the base name instead. It
// returns the final destination path.
func relocate(src, dst string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return "", fmt.Errorf("create %s: %w", filepath.Dir(dst), err)
	}
	target, err := freeName(dst)
	if err != nil {
		return "", err
	}
	if err := os.Rename(src, target); err != nil {
		return "", fmt.Errorf("move %s: %w", src, err)
	}
	return target, nil
}

func freeName(path string) (string, error) {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	candidate := path
	for i := 1; ; i++ {
		_, err := os.Lstat(candidate)
		if errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", candidate, err)
		}
		candidate = base + "-" + strconv.Itoa(i) + ext
	}
}

func exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}
