// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

/*
Package api exposes the GadgetGrove HTTP surface on a Chi router.

Routes:

	GET  /                        welcome message
	POST /api/analytics           ingest one clickstream event
	GET  /api/analytics/stats     broker backlog per queue
	GET  /api/reports/summary     funnel and revenue summary (?hours=N, 0 = all)
	GET  /api/health              broker and warehouse checks (200 or 503)
	GET  /simulate                emit one synthetic session
	GET  /metrics                 Prometheus metrics

Every response carries X-Request-ID. The ingest route is rate limited per
client IP with httprate. Handlers depend on small interfaces so that the
server command can wire the real broker and warehouse while tests use fakes.
*/
package api
