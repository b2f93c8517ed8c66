// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

// Package eventprocessor moves clickstream events between the storefront and
// the landing area, using Watermill over NATS JetStream.
//
//	┌──────────┐  ┌──────────┐
//	│ Emitter  │  │ HTTP API │
//	└────┬─────┘  └────┬─────┘
//	     └──────┬──────┘
//	            ▼
//	     ┌─────────────┐   RouteQueue(type) -> queue
//	     │  Publisher  │   subject clickstream.<queue>, Nats-Msg-Id dedupe
//	     └──────┬──────┘
//	            ▼
//	   ┌──────────────────┐
//	   │ JetStream stream │  CLICKSTREAM, file storage
//	   └────────┬─────────┘
//	            ▼  one durable consumer per queue
//	     ┌─────────────┐
//	     │  Consumer   │   decode -> stamp receipt -> landing file -> Ack
//	     └─────────────┘   any failure -> Nack (broker redelivers)
//
// Delivery is at-least-once. A message is acknowledged only after its
// landing file has been fsynced, so a crash between write and ack produces a
// redelivery and a second landing file, never a lost event. Redelivery is
// owned by the broker (AckWait, MaxDeliver); the router installs no retry
// middleware of its own.
//
// # Components
//
//   - Event, RoutingTable: wire model and type -> queue routing
//   - Serializer: goccy/go-json encoding with validation
//   - Publisher: Watermill NATS publisher behind a gobreaker circuit breaker
//   - Subscriber: Watermill NATS subscriber bound to one durable consumer
//   - EmbeddedServer, StreamInitializer: in-process broker and stream setup
//   - Router, Consumer: message handling and landing-file hand-off
//   - QueueStats: per-queue backlog from the JetStream consumer info
package eventprocessor
