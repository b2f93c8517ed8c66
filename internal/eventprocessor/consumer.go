// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

package eventprocessor

import (
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/tomtom215/gadgetgrove/internal/landing"
	"github.com/tomtom215/gadgetgrove/internal/logging"
	"github.com/tomtom215/gadgetgrove/internal/metrics"
)

// Consumer outcomes, used as metric labels.
const (
	OutcomeAck       = "ack"
	OutcomeNackParse = "nack_parse"
	OutcomeNackWrite = "nack_write"
)

// LandingWriter persists one event file.
type LandingWriter interface {
	Write(f landing.File) (string, error)
}

// Consumer turns queue messages into landing files.
//
// Handle returns nil only after the landing file is durably written; the
// router then acknowledges the message. Any error makes the router Nack it.
type Consumer struct {
	writer     LandingWriter
	serializer *Serializer
	queues     map[string]struct{}
	now        func() time.Time
	logger     zerolog.Logger
}

// NewConsumer creates a consumer for the given queues.
func NewConsumer(writer LandingWriter, queues []string) *Consumer {
	qs := make(map[string]struct{}, len(queues))
	for _, q := range queues {
		qs[q] = struct{}{}
	}
	return &Consumer{
		writer:     writer,
		serializer: NewSerializer(),
		queues:     qs,
		now:        time.Now,
		logger:     logging.WithComponent("consumer"),
	}
}

// SetClock replaces the receipt clock (tests).
func (c *Consumer) SetClock(now func() time.Time) {
	c.now = now
}

// Handler returns the router handler for one queue.
func (c *Consumer) Handler(queue string) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		_, err := c.Handle(queue, msg)
		return err
	}
}

// Handle processes one message from queue and returns the landing path.
func (c *Consumer) Handle(queue string, msg *message.Message) (string, error) {
	if _, ok := c.queues[queue]; !ok {
		metrics.RecordConsumed(queue, OutcomeNackParse)
		return "", fmt.Errorf("%w: %s", ErrUnknownQueue, queue)
	}

	event, err := c.serializer.Unmarshal(msg.Payload)
	if err != nil {
		metrics.RecordConsumed(queue, OutcomeNackParse)
		c.logger.Warn().Err(err).
			Str("queue", queue).
			Str("message_uuid", msg.UUID).
			Msg("Rejecting unparseable message")
		return "", err
	}

	receivedAt := c.now().UTC()
	event.Queue = queue
	event.ReceivedAt = &receivedAt
	event.MessageID = msg.UUID

	data, err := json.Marshal(event)
	if err != nil {
		metrics.RecordConsumed(queue, OutcomeNackParse)
		return "", fmt.Errorf("encode landing event: %w", err)
	}

	path, err := c.writer.Write(landing.File{
		Queue:      queue,
		EventType:  event.Type,
		SessionID:  event.SessionID,
		ReceivedAt: receivedAt,
		Data:       data,
	})
	if err != nil {
		metrics.RecordConsumed(queue, OutcomeNackWrite)
		c.logger.Error().Err(err).
			Str("queue", queue).
			Str("message_uuid", msg.UUID).
			Msg("Landing write failed, message will be redelivered")
		return "", err
	}

	metrics.RecordConsumed(queue, OutcomeAck)
	c.logger.Debug().
		Str("queue", queue).
		Str("event_type", event.Type).
		Str("path", path).
		Msg("Landed event")
	return path, nil
}

// Register adds one consumer handler per queue to router. subscriberFor
// returns the subscriber bound to a queue's durable consumer.
func (c *Consumer) Register(router *Router, subjectPrefix string, subscriberFor func(queue string) message.Subscriber) {
	for q := range c.queues {
		router.AddConsumerHandler("landing_"+q, Topic(subjectPrefix, q), subscriberFor(q), c.Handler(q))
	}
}

// SubscriberFactory opens the subscriber bound to one queue's durable
// consumer.
type SubscriberFactory func(queue string) (message.Subscriber, error)

// NewRouter builds a router with one handler per queue on subscribers
// freshly opened by open. The router owns those subscribers and closes them
// when it stops, so every restart of the consumer calls NewRouter again.
func (c *Consumer) NewRouter(closeTimeout time.Duration, logger watermill.LoggerAdapter, subjectPrefix string, open SubscriberFactory) (*Router, error) {
	router, err := NewRouter(closeTimeout, logger)
	if err != nil {
		return nil, err
	}
	subs := make(map[string]message.Subscriber, len(c.queues))
	for q := range c.queues {
		sub, err := open(q)
		if err != nil {
			if closeErr := router.closeOwned(); closeErr != nil {
				c.logger.Warn().Err(closeErr).Msg("Failed to close subscribers of an abandoned router")
			}
			return nil, fmt.Errorf("subscriber for %s: %w", q, err)
		}
		subs[q] = sub
		router.Own(sub)
	}
	c.Register(router, subjectPrefix, func(q string) message.Subscriber { return subs[q] })
	return router, nil
}
