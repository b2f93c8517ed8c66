// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

package eventprocessor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
)

// Router wraps the Watermill router that drives the queue consumers.
//
// A handler error makes the router Nack the message, which JetStream
// redelivers immediately, up to MaxDeliver deliveries in total. Panics are
// turned into errors by the Recoverer middleware and take the same path.
// There is no Retry or PoisonQueue middleware.
//
// A Watermill router runs once. After Run returns, build a new Router.
type Router struct {
	router   *message.Router
	running  atomic.Bool
	handlers []string

	owned     []io.Closer
	closeOnce sync.Once
	closeErr  error
}

// NewRouter creates a router whose Close waits up to closeTimeout for
// in-flight handlers.
func NewRouter(closeTimeout time.Duration, logger watermill.LoggerAdapter) (*Router, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	wmRouter, err := message.NewRouter(message.RouterConfig{CloseTimeout: closeTimeout}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill router: %w", err)
	}
	wmRouter.AddMiddleware(middleware.Recoverer)
	return &Router{router: wmRouter}, nil
}

// AddConsumerHandler registers a handler that produces no output messages.
func (r *Router) AddConsumerHandler(name, topic string, sub message.Subscriber, fn message.NoPublishHandlerFunc) {
	r.router.AddConsumerHandler(name, topic, sub, fn)
	r.handlers = append(r.handlers, name)
}

// Own hands c to the router, which closes it once the router stops.
func (r *Router) Own(c io.Closer) {
	r.owned = append(r.owned, c)
}

// Run blocks until ctx is canceled or Close is called. Owned closers are
// closed before it returns.
func (r *Router) Run(ctx context.Context) error {
	r.running.Store(true)
	defer r.running.Store(false)
	err := r.router.Run(ctx)
	return errors.Join(err, r.closeOwned())
}

// Running is closed once every handler has subscribed.
func (r *Router) Running() <-chan struct{} {
	return r.router.Running()
}

// Close stops the router, waiting for in-flight messages, then closes
// everything it owns.
func (r *Router) Close() error {
	err := r.router.Close()
	return errors.Join(err, r.closeOwned())
}

func (r *Router) closeOwned() error {
	r.closeOnce.Do(func() {
		var errs []error
		for _, c := range r.owned {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		r.closeErr = errors.Join(errs...)
	})
	return r.closeErr
}

// IsRunning reports whether Run is active and every handler has
// subscribed.
func (r *Router) IsRunning() bool {
	if !r.running.Load() {
		return false
	}
	select {
	case <-r.router.Running():
		return true
	default:
		return false
	}
}

// Handlers lists registered handler names.
func (r *Router) Handlers() []string {
	return append([]string(nil), r.handlers...)
}
