// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

// Command server runs the GadgetGrove clickstream stack in one process.
//
// # Startup Order
//
//  1. Configuration (koanf: defaults, config.yaml, environment)
//  2. Logging (zerolog)
//  3. Warehouse (DuckDB, or PostgreSQL with WAREHOUSE_DRIVER=postgres)
//  4. Broker (embedded NATS JetStream unless NATS_EMBEDDED=false), stream,
//     Queue Publisher and the Queue Consumer
//  5. Staging pipeline and retention sweeper schedules
//  6. Event emitter (EMITTER_ENABLED=true)
//  7. HTTP API
//
// Steps 4 to 7 run under a suture supervisor tree. The warehouse and the
// broker are closed after the tree has stopped.
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the root context. The HTTP server drains for up
// to 10s, the consumer router stops and closes its subscribers
// (unacknowledged messages are redelivered on the next start) and a running pipeline batch is abandoned
// in the processing area, where the next run picks it up.
//
// # Example
//
//	export QUEUES=page_views,user_events,ecommerce_events,analytics_events,event_queue
//	export EMITTER_ENABLED=true
//	export STAGING_INTERVAL=1m
//	./server
//
// For a cron-driven deployment run cmd/pipeline instead of the scheduled
// jobs and set STAGING_ENABLED=false.
package main
