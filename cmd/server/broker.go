// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tomtom215/gadgetgrove/internal/config"
	"github.com/tomtom215/gadgetgrove/internal/eventprocessor"
	"github.com/tomtom215/gadgetgrove/internal/landing"
	"github.com/tomtom215/gadgetgrove/internal/logging"
	"github.com/tomtom215/gadgetgrove/internal/supervisor/services"
)

// BrokerComponents holds the broker side of the server: the optional
// embedded NATS server, the stream, the Queue Publisher and the Queue
// Consumer. Consumer routers are built on demand by NewConsumerRouter.
type BrokerComponents struct {
	server    *eventprocessor.EmbeddedServer
	conn      *natsgo.Conn
	js        jetstream.JetStream
	stream    *eventprocessor.StreamInitializer
	publisher *eventprocessor.Publisher
	consumer  *eventprocessor.Consumer

	Dispatcher *eventprocessor.Dispatcher

	url        string
	nats       config.NATSConfig
	wmLogger   watermill.LoggerAdapter
	streamName string
	queues     []string
}

// InitBroker starts the embedded server if configured, provisions the
// stream and builds the publisher and the consumer. On error every
// component created so far is closed.
func InitBroker(ctx context.Context, cfg *config.Config, wmLogger watermill.LoggerAdapter) (_ *BrokerComponents, err error) {
	b := &BrokerComponents{
		nats:       cfg.NATS,
		wmLogger:   wmLogger,
		streamName: cfg.NATS.StreamName,
		queues:     cfg.Queues.Names,
	}
	defer func() {
		if err != nil {
			b.Close(context.Background())
		}
	}()

	url := cfg.NATS.URL
	if cfg.NATS.EmbeddedServer {
		b.server, err = eventprocessor.NewEmbeddedServer(eventprocessor.ServerConfig{
			Host:              cfg.NATS.Host,
			Port:              cfg.NATS.Port,
			StoreDir:          cfg.NATS.StoreDir,
			JetStreamMaxMem:   cfg.NATS.MaxMemory,
			JetStreamMaxStore: cfg.NATS.MaxStore,
		})
		if err != nil {
			return nil, err
		}
		url = b.server.ClientURL()
		logging.Info().Str("url", url).Msg("Embedded NATS server started")
	} else {
		logging.Info().Str("url", url).Msg("Using external NATS server")
	}

	b.conn, err = natsgo.Connect(url,
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	b.js, err = jetstream.New(b.conn)
	if err != nil {
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	streamCfg := eventprocessor.DefaultStreamConfig(cfg.NATS.StreamName, cfg.NATS.SubjectPrefix)
	if cfg.NATS.StreamMaxAge > 0 {
		streamCfg.MaxAge = cfg.NATS.StreamMaxAge
	}
	if cfg.NATS.DuplicateWindow > 0 {
		streamCfg.DuplicateWindow = cfg.NATS.DuplicateWindow
	}
	b.stream, err = eventprocessor.NewStreamInitializer(b.js, streamCfg)
	if err != nil {
		return nil, err
	}
	stream, err := b.stream.EnsureStream(ctx)
	if err != nil {
		return nil, err
	}
	info := stream.CachedInfo()
	logging.Info().
		Str("name", info.Config.Name).
		Strs("subjects", info.Config.Subjects).
		Dur("max_age", info.Config.MaxAge).
		Msg("JetStream stream ready")

	b.publisher, err = eventprocessor.NewPublisher(eventprocessor.DefaultPublisherConfig(url), wmLogger)
	if err != nil {
		return nil, err
	}
	b.publisher.SetCircuitBreaker(eventprocessor.NewCircuitBreaker(eventprocessor.DefaultCircuitBreakerConfig("nats-publisher")))

	routes, err := eventprocessor.NewRoutingTable(cfg.Queues.Names, cfg.Queues.Default, nil)
	if err != nil {
		return nil, err
	}
	b.Dispatcher = eventprocessor.NewDispatcher(routes, b.publisher, cfg.NATS.SubjectPrefix)

	b.url = url
	b.consumer = eventprocessor.NewConsumer(landing.NewWriter(cfg.Staging.RawDir, cfg.Staging.Extension), cfg.Queues.Names)

	logging.Info().
		Strs("queues", cfg.Queues.Names).
		Str("default_queue", cfg.Queues.Default).
		Str("landing_dir", cfg.Staging.RawDir).
		Msg("Queue consumer configured")
	return b, nil
}

// NewConsumerRouter builds a Queue Consumer router on freshly opened
// subscribers. The router closes them when it stops.
func (b *BrokerComponents) NewConsumerRouter() (services.MessageRouter, error) {
	r, err := b.consumer.NewRouter(b.nats.CloseTimeout, b.wmLogger, b.nats.SubjectPrefix, b.openSubscriber)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (b *BrokerComponents) openSubscriber(queue string) (message.Subscriber, error) {
	subCfg := eventprocessor.DefaultSubscriberConfig(b.url, b.nats.StreamName, queue)
	if b.nats.AckWait > 0 {
		subCfg.AckWaitTimeout = b.nats.AckWait
	}
	if b.nats.MaxDeliver != 0 {
		subCfg.MaxDeliver = b.nats.MaxDeliver
	}
	if b.nats.MaxAckPending > 0 {
		subCfg.MaxAckPending = b.nats.MaxAckPending
	}
	if b.nats.CloseTimeout > 0 {
		subCfg.CloseTimeout = b.nats.CloseTimeout
	}
	sub, err := eventprocessor.NewSubscriber(subCfg, b.wmLogger)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// QueueStats reports the durable consumer state of every queue.
func (b *BrokerComponents) QueueStats(ctx context.Context) []eventprocessor.QueueStat {
	return eventprocessor.QueueStats(ctx, b.js, b.streamName, b.queues)
}

// HealthCheck fails when the connection is down or the stream is missing.
func (b *BrokerComponents) HealthCheck(ctx context.Context) error {
	if !b.conn.IsConnected() {
		return fmt.Errorf("nats connection %s", b.conn.Status())
	}
	if !b.stream.IsHealthy(ctx) {
		return fmt.Errorf("stream %s unavailable", b.streamName)
	}
	return nil
}

// Close releases everything in reverse order of creation. It is safe on a
// partially initialized value. Consumer routers are closed by their
// service before this runs.
func (b *BrokerComponents) Close(ctx context.Context) {
	if b.publisher != nil {
		if err := b.publisher.Close(); err != nil {
			logging.Warn().Err(err).Msg("Error closing publisher")
		}
	}
	if b.conn != nil {
		b.conn.Close()
	}
	if b.server != nil {
		if err := b.server.Shutdown(ctx); err != nil {
			logging.Warn().Err(err).Msg("Error shutting down embedded NATS server")
		}
	}
}
