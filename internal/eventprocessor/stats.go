// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

package eventprocessor

import (
	"context"

	"github.com/nats-io/nats.go/jetstream"
)

// ConsumerLookup is the subset of jetstream.JetStream QueueStats needs.
type ConsumerLookup interface {
	Consumer(ctx context.Context, stream, consumer string) (jetstream.Consumer, error)
}

// QueueStat is the broker-side backlog of one queue.
type QueueStat struct {
	Queue       string `json:"queue"`
	Durable     string `json:"durable"`
	Pending     uint64 `json:"pending"`
	AckPending  int    `json:"ack_pending"`
	Redelivered int    `json:"redelivered"`
	Delivered   uint64 `json:"delivered"`
	Error       string `json:"error,omitempty"`
}

// QueueStats reports consumer state for each queue. Lookup failures are
// reported per queue rather than failing the whole call.
func QueueStats(ctx context.Context, js ConsumerLookup, stream string, queues []string) []QueueStat {
	out := make([]QueueStat, 0, len(queues))
	for _, q := range queues {
		stat := QueueStat{Queue: q, Durable: DurableName(q)}
		cons, err := js.Consumer(ctx, stream, stat.Durable)
		if err != nil {
			stat.Error = err.Error()
			out = append(out, stat)
			continue
		}
		info, err := cons.Info(ctx)
		if err != nil {
			stat.Error = err.Error()
			out = append(out, stat)
			continue
		}
		stat.Pending = info.NumPending
		stat.AckPending = info.NumAckPending
		stat.Redelivered = info.NumRedelivered
		stat.Delivered = info.Delivered.Consumer
		out = append(out, stat)
	}
	return out
}
