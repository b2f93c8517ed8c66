// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordPublish(t *testing.T) {
	before := testutil.ToFloat64(PublishTotal.WithLabelValues("page_views", ResultFailure))
	RecordPublish("page_views", errors.New("nats: timeout"))
	after := testutil.ToFloat64(PublishTotal.WithLabelValues("page_views", ResultFailure))

	if after-before != 1 {
		t.Errorf("expected failure counter to increase by 1, got %v", after-before)
	}
}

func TestRecordPipelineRun(t *testing.T) {
	stagedBefore := testutil.ToFloat64(PipelineFilesTotal.WithLabelValues("staged"))
	archivedBefore := testutil.ToFloat64(PipelineFilesTotal.WithLabelValues("archived"))

	RecordPipelineRun(ResultSuccess, 4, 3, 250*time.Millisecond)

	if got := testutil.ToFloat64(PipelineFilesTotal.WithLabelValues("staged")) - stagedBefore; got != 4 {
		t.Errorf("staged delta = %v, want 4", got)
	}
	if got := testutil.ToFloat64(PipelineFilesTotal.WithLabelValues("archived")) - archivedBefore; got != 3 {
		t.Errorf("archived delta = %v, want 3", got)
	}
	if testutil.ToFloat64(PipelineLastSuccess) == 0 {
		t.Error("expected last success timestamp to be set")
	}
}

func TestRecordTransformAndSweep(t *testing.T) {
	rowsBefore := testutil.ToFloat64(TransformRowsTotal.WithLabelValues("ecommerce_events"))
	RecordTransform(time.Second, map[string]int{"ecommerce_events": 7}, nil)
	if got := testutil.ToFloat64(TransformRowsTotal.WithLabelValues("ecommerce_events")) - rowsBefore; got != 7 {
		t.Errorf("rows delta = %v, want 7", got)
	}

	deletedBefore := testutil.ToFloat64(SweepDeletedTotal.WithLabelValues("page_views"))
	errorsBefore := testutil.ToFloat64(SweepErrorsTotal)
	RecordSweep(map[string]int{"page_views": 2}, 1)
	if got := testutil.ToFloat64(SweepDeletedTotal.WithLabelValues("page_views")) - deletedBefore; got != 2 {
		t.Errorf("deleted delta = %v, want 2", got)
	}
	if got := testutil.ToFloat64(SweepErrorsTotal) - errorsBefore; got != 1 {
		t.Errorf("errors delta = %v, want 1", got)
	}
}
