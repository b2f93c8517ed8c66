// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

// Package services adapts the server's long-running components to
// suture.Service so the supervisor tree can start, restart and stop them.
//
//	tree.AddMessagingService(services.NewRouterService(router))
//	tree.AddPipelineService(services.NewScheduledJobService("staging-pipeline", time.Minute, true, runPipeline))
//	tree.AddEmitterService(services.NewRunnerService("event-emitter", em))
//	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
//
// Each wrapper takes a small interface rather than a concrete type, so the
// tests use doubles.
package services
