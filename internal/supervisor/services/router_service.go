// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tomtom215/gadgetgrove/internal/logging"
)

// MessageRouter is the lifecycle of *eventprocessor.Router.
type MessageRouter interface {
	Run(ctx context.Context) error
	Close() error
	IsRunning() bool
}

// RouterFactory builds a router with fresh subscriptions. A Watermill
// router cannot run twice, so every Serve starts from a new one.
type RouterFactory func() (MessageRouter, error)

// ErrRouterNotRunning is returned by HealthCheck while no router consumes.
var ErrRouterNotRunning = errors.New("consumer router not running")

// RouterService runs the Queue Consumer router. Messages still in flight
// when the context is canceled are not acknowledged, so the broker
// redelivers them to the router of the next start.
type RouterService struct {
	newRouter RouterFactory
	name      string
	logger    zerolog.Logger

	mu      sync.Mutex
	current MessageRouter
}

// NewRouterService creates the service. newRouter is called on every start.
func NewRouterService(newRouter RouterFactory) *RouterService {
	return &RouterService{
		newRouter: newRouter,
		name:      "queue-consumer",
		logger:    logging.WithComponent("queue-consumer"),
	}
}

// Serve implements suture.Service.
func (s *RouterService) Serve(ctx context.Context) error {
	router, err := s.newRouter()
	if err != nil {
		return fmt.Errorf("build consumer router: %w", err)
	}
	s.setCurrent(router)
	defer func() {
		s.setCurrent(nil)
		if err := router.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("Error closing consumer router")
		}
	}()

	err = router.Run(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("consumer router stopped: %w", err)
	}
	return errors.New("consumer router stopped unexpectedly")
}

// HealthCheck fails unless the current router has subscribed every queue.
func (s *RouterService) HealthCheck(context.Context) error {
	s.mu.Lock()
	router := s.current
	s.mu.Unlock()
	if router == nil || !router.IsRunning() {
		return ErrRouterNotRunning
	}
	return nil
}

func (s *RouterService) setCurrent(r MessageRouter) {
	s.mu.Lock()
	s.current = r
	s.mu.Unlock()
}

// String names the service in supervisor logs.
func (s *RouterService) String() string {
	return s.name
}
