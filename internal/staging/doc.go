// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

/*
Package staging moves landed event files through the processing and archive
areas around the Transform Step, and bounds the archive by age.

# File Lifecycle

	<landing>/<queue>/...   written by the queue consumer
	      | Stage (rename)
	<processing>/<queue>/... exactly one transform is responsible for it
	      | Transform ok -> Archive (rename)
	<archive>/<queue>/...   immutable, deleted by the Sweeper after retention

Every relocation is a single os.Rename on one file system, so a crash leaves
a file in exactly one area. Files keep their path relative to the area root.
Roots on different devices are a configuration error and fail the run.

If the transform fails nothing is archived: staged files stay in the
processing area. With RediscoveryAuto the next run picks them up again
together with new landing files. With RediscoveryManual the next run refuses
to start (ErrStaleProcessing) until an operator has cleared the area.

# Concurrency

A Pipeline allows one run at a time; a second concurrent Run returns
ErrRunInProgress. Nothing prevents two processes from running pipelines over
the same directories, so deployments must schedule at most one runner.

# Retry

RetryPolicy re-invokes either the transform alone (ScopeTransform) or the
whole run (ScopeRun) a fixed number of times with a fixed delay. Files are
never re-staged by a retry; a transform retry runs against the same
processing files.
*/
package staging
