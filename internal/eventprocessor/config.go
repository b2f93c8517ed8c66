// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

package eventprocessor

import (
	"strings"
	"time"
)

// ServerConfig configures the embedded NATS server.
type ServerConfig struct {
	Host              string
	Port              int // -1 picks a random free port
	StoreDir          string
	JetStreamMaxMem   int64
	JetStreamMaxStore int64
}

// DefaultServerConfig returns embedded server defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:              "127.0.0.1",
		Port:              4222,
		StoreDir:          "/data/nats/jetstream",
		JetStreamMaxMem:   256 << 20, // 256MB
		JetStreamMaxStore: 4 << 30,   // 4GB
	}
}

// PublisherConfig configures the Watermill NATS publisher.
type PublisherConfig struct {
	URL              string
	MaxReconnects    int
	ReconnectWait    time.Duration
	ReconnectBuffer  int
	EnableTrackMsgID bool // nolint:revive // ID is correct per Go conventions
}

// DefaultPublisherConfig returns publisher defaults for url.
func DefaultPublisherConfig(url string) PublisherConfig {
	return PublisherConfig{
		URL:              url,
		MaxReconnects:    -1, // Unlimited
		ReconnectWait:    2 * time.Second,
		ReconnectBuffer:  8 * 1024 * 1024, // 8MB
		EnableTrackMsgID: true,
	}
}

// SubscriberConfig configures one durable queue subscriber.
type SubscriberConfig struct {
	URL string
	// DurableName identifies the JetStream consumer; it must be unique per queue.
	DurableName    string
	StreamName     string
	AckWaitTimeout time.Duration
	// MaxDeliver bounds broker redelivery of nacked messages (-1 = unlimited).
	MaxDeliver    int
	MaxAckPending int
	CloseTimeout  time.Duration
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultSubscriberConfig returns defaults for the consumer of queue.
// MaxAckPending=1 keeps one message in flight per queue.
func DefaultSubscriberConfig(url, streamName, queue string) SubscriberConfig {
	return SubscriberConfig{
		URL:            url,
		DurableName:    DurableName(queue),
		StreamName:     streamName,
		AckWaitTimeout: 30 * time.Second,
		MaxDeliver:     10,
		MaxAckPending:  1,
		CloseTimeout:   30 * time.Second,
		MaxReconnects:  -1,
		ReconnectWait:  2 * time.Second,
	}
}

// DurableName returns the JetStream consumer name for a queue. Durable
// names may not contain '.', '*' or '>'.
func DurableName(queue string) string {
	return "landing-" + strings.NewReplacer(".", "_", "*", "_", ">", "_").Replace(queue)
}

// StreamConfig configures the JetStream stream that holds every queue.
type StreamConfig struct {
	Name            string
	Subjects        []string
	MaxAge          time.Duration
	MaxBytes        int64
	MaxMsgs         int64
	DuplicateWindow time.Duration
	Replicas        int
}

// DefaultStreamConfig returns a stream capturing <prefix>.>.
func DefaultStreamConfig(name, subjectPrefix string) StreamConfig {
	return StreamConfig{
		Name:            name,
		Subjects:        []string{subjectPrefix + ".>"},
		MaxAge:          7 * 24 * time.Hour,
		MaxBytes:        -1,
		MaxMsgs:         -1,
		DuplicateWindow: 2 * time.Minute,
		Replicas:        1,
	}
}

// CircuitBreakerConfig configures the publish circuit breaker.
type CircuitBreakerConfig struct {
	Name             string
	MaxRequests      uint32        // Allowed in half-open state
	Interval         time.Duration // Reset interval for counts
	Timeout          time.Duration // Time to stay open
	FailureThreshold uint32        // Consecutive failures before opening
}

// DefaultCircuitBreakerConfig returns circuit breaker defaults.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          10 * time.Second,
		FailureThreshold: 5,
	}
}

// Topic returns the NATS subject for a queue.
func Topic(subjectPrefix, queue string) string {
	return subjectPrefix + "." + queue
}
