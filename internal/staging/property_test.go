// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

package staging

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// propertyAreas creates fresh areas under a directory the test cleans up.
func propertyAreas(t *testing.T) Areas {
	base, err := os.MkdirTemp(t.TempDir(), "prop-")
	if err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	return Areas{
		Landing:    filepath.Join(base, "raw"),
		Processing: filepath.Join(base, "processing"),
		Archive:    filepath.Join(base, "archive"),
	}
}

func uniqueNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok || n == "" {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

func TestProperty_Relocation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 40
	properties := gopter.NewProperties(parameters)

	// Every landing file is in exactly one of landing or processing after Stage.
	properties.Property("stage never loses or duplicates a file", prop.ForAll(
		func(names []string, queueIdx int) bool {
			areas := propertyAreas(t)
			queue := testQueues[queueIdx%len(testQueues)]
			var rels []string
			for _, n := range uniqueNames(names) {
				rel := filepath.Join(queue, "page_view", n+".json")
				writeFile(t, areas.Landing, rel)
				rels = append(rels, rel)
			}

			p := newPipeline(t, areas, &countingTransformer{}, nil)
			files, err := p.Discover(context.Background())
			if err != nil || len(files) != len(rels) {
				return false
			}
			if _, err := p.Stage(context.Background(), files); err != nil {
				return false
			}
			for _, rel := range rels {
				inLanding := fileExists(t, filepath.Join(areas.Landing, rel))
				inProcessing := fileExists(t, filepath.Join(areas.Processing, rel))
				if inLanding == inProcessing {
					return false
				}
			}
			return countFiles(t, areas.Processing) == len(rels)
		},
		gen.SliceOfN(12, gen.Identifier()),
		gen.IntRange(0, 100),
	))

	// Archiving the same set twice ends with each file once in archive.
	properties.Property("archive is idempotent", prop.ForAll(
		func(names []string) bool {
			areas := propertyAreas(t)
			names = uniqueNames(names)
			for _, n := range names {
				writeFile(t, areas.Landing, filepath.Join("user_events", "identify", n+".json"))
			}

			p := newPipeline(t, areas, &countingTransformer{}, nil)
			ctx := context.Background()
			files, _ := p.Discover(ctx)
			staged, err := p.Stage(ctx, files)
			if err != nil {
				return false
			}
			first, err := p.Archive(ctx, staged)
			if err != nil || first != len(names) {
				return false
			}
			second, err := p.Archive(ctx, staged)
			if err != nil || second != 0 {
				return false
			}
			return countFiles(t, areas.Archive) == len(names) && countFiles(t, areas.Processing) == 0
		},
		gen.SliceOfN(8, gen.Identifier()),
	))

	properties.TestingRun(t)
}

func TestProperty_SweepBoundary(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("deletes just past the window, keeps just inside it", prop.ForAll(
		func(hours int) bool {
			root, err := os.MkdirTemp(t.TempDir(), "archive-")
			if err != nil {
				return false
			}
			retention := time.Duration(hours) * time.Hour
			expired := writeAged(t, root, "page_views/page_view/old.json", retention+time.Second)
			fresh := writeAged(t, root, "page_views/page_view/new.json", retention-time.Second)

			res, err := newSweeper(root, nil).Sweep(context.Background(), retention)
			if err != nil {
				return false
			}
			return res.Total == 1 && !fileExists(t, expired) && fileExists(t, fresh)
		},
		gen.IntRange(1, 24*365),
	))

	properties.TestingRun(t)
}
