// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

package eventprocessor

import "errors"

// ErrInvalidEvent is returned when an event fails validation or cannot be decoded.
var ErrInvalidEvent = errors.New("invalid event")

// ErrPublisherClosed is returned by Publish after Close.
var ErrPublisherClosed = errors.New("publisher is closed")

// ErrUnknownQueue is returned when a message arrives for a queue that is not configured.
var ErrUnknownQueue = errors.New("unknown queue")

// ErrInvalidConfig is returned when a component is built with incomplete configuration.
var ErrInvalidConfig = errors.New("invalid configuration")
