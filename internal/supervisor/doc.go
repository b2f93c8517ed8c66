// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

/*
Package supervisor provides process supervision for the GadgetGrove server
using suture v4.

# Overview

Services are grouped into layers so that a failure in one does not stop the
others:

	RootSupervisor ("gadgetgrove")
	├── MessagingSupervisor ("messaging-layer")
	│   └── RouterService ("queue-consumer")
	├── PipelineSupervisor ("pipeline-layer")
	│   ├── ScheduledJobService ("staging-pipeline")
	│   └── ScheduledJobService ("retention-sweeper")
	├── EmitterSupervisor ("emitter-layer")
	│   └── RunnerService ("event-emitter", if EMITTER_ENABLED)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddMessagingService(services.NewRouterService(router))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
	    logging.Error().Err(err).Msg("Supervisor stopped")
	}

# Configuration

TreeConfig controls restart behavior. Zero fields take suture's defaults:
5 failures, 30 second decay, 15 second backoff, 10 second shutdown timeout.

# Return Behavior

  - Return nil: Service stopped cleanly, will not be restarted
  - Return error: Service crashed, will be restarted
  - Context canceled: Shutdown requested, return promptly

# What Is Not Supervised

The embedded NATS server and the warehouse connection are opened before
the tree starts and closed after it stops, so that the consumer and the
pipeline never run without them.

# Debugging Shutdown Issues

	report, _ := tree.UnstoppedServiceReport()
	for _, svc := range report {
	    logging.Warn().Str("service", svc.Name).Msg("Service did not stop")
	}
*/
package supervisor
