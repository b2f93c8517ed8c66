// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

package eventprocessor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/tomtom215/gadgetgrove/internal/metrics"
)

// Metadata keys set on every published message.
const (
	MetadataQueue     = "queue"
	MetadataEventType = "event_type"
	MetadataSessionID = "session_id"
)

// eventIDNamespace scopes the deterministic message IDs derived from event keys.
var eventIDNamespace = uuid.MustParse("4f6c2d1e-9a3b-5c7d-8e0f-1a2b3c4d5e6f")

// MessageID derives a stable message ID from the event identity so that a
// retried publish of the same event is dropped by the broker's duplicate
// window instead of landing twice.
func MessageID(e *Event) string {
	return uuid.NewSHA1(eventIDNamespace, []byte(e.Type+"|"+e.Key())).String()
}

// Publisher wraps the Watermill NATS publisher with a circuit breaker.
type Publisher struct {
	publisher      message.Publisher
	circuitBreaker *gobreaker.CircuitBreaker[interface{}]
	mu             sync.RWMutex
	closed         bool
	logger         watermill.LoggerAdapter
}

// NewPublisher creates a JetStream publisher. The stream must already exist
// (see StreamInitializer); AutoProvision is off.
func NewPublisher(cfg PublisherConfig, logger watermill.LoggerAdapter) (*Publisher, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.ReconnectBufSize(cfg.ReconnectBuffer),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS publisher disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS publisher reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: false,
			TrackMsgId:    cfg.EnableTrackMsgID,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}

	return NewPublisherFrom(pub, logger), nil
}

// NewPublisherFrom wraps any Watermill publisher (tests use gochannel).
func NewPublisherFrom(pub message.Publisher, logger watermill.LoggerAdapter) *Publisher {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &Publisher{publisher: pub, logger: logger}
}

// SetCircuitBreaker configures the circuit breaker for publish operations.
func (p *Publisher) SetCircuitBreaker(cb *gobreaker.CircuitBreaker[interface{}]) {
	p.circuitBreaker = cb
}

// Publish sends msg to topic. The message UUID doubles as Nats-Msg-Id.
func (p *Publisher) Publish(ctx context.Context, topic string, msg *message.Message) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}

	if msg.Metadata.Get(natsgo.MsgIdHdr) == "" {
		msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)
	}
	msg.SetContext(ctx)

	if p.circuitBreaker == nil {
		return p.publisher.Publish(topic, msg)
	}
	_, err := p.circuitBreaker.Execute(func() (interface{}, error) {
		return nil, p.publisher.Publish(topic, msg)
	})
	return err
}

// Close shuts down the publisher. Further Publish calls fail.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.publisher.Close()
}

// MessagePublisher is the part of Publisher the Dispatcher needs.
type MessagePublisher interface {
	Publish(ctx context.Context, topic string, msg *message.Message) error
}

// Dispatcher is the Queue Publisher: it routes an event to its queue,
// serializes it and publishes it on the queue's subject.
type Dispatcher struct {
	routes        *RoutingTable
	publisher     MessagePublisher
	serializer    *Serializer
	subjectPrefix string
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(routes *RoutingTable, publisher MessagePublisher, subjectPrefix string) *Dispatcher {
	return &Dispatcher{
		routes:        routes,
		publisher:     publisher,
		serializer:    NewSerializer(),
		subjectPrefix: subjectPrefix,
	}
}

// Dispatch publishes e to the queue selected by the routing table and
// returns that queue.
func (d *Dispatcher) Dispatch(ctx context.Context, e *Event) (string, error) {
	queue := d.routes.Route(e)
	err := d.PublishEvent(ctx, queue, e)
	return queue, err
}

// PublishEvent publishes e to an explicit queue.
func (d *Dispatcher) PublishEvent(ctx context.Context, queue string, e *Event) error {
	if !d.routes.Has(queue) {
		return fmt.Errorf("%w: %s", ErrUnknownQueue, queue)
	}
	data, err := d.serializer.Marshal(e)
	if err != nil {
		metrics.RecordPublish(queue, err)
		return err
	}

	msg := message.NewMessage(MessageID(e), data)
	msg.Metadata.Set(MetadataQueue, queue)
	msg.Metadata.Set(MetadataEventType, e.Type)
	msg.Metadata.Set(MetadataSessionID, e.SessionID)

	err = d.publisher.Publish(ctx, Topic(d.subjectPrefix, queue), msg)
	metrics.RecordPublish(queue, err)
	if err != nil {
		return fmt.Errorf("publish %s to %s: %w", e.Type, queue, err)
	}
	return nil
}

// Routes exposes the routing table.
func (d *Dispatcher) Routes() *RoutingTable {
	return d.routes
}
