// GadgetGrove - E-commerce Clickstream Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gadgetgrove

package eventprocessor

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Serializer handles event encoding/decoding for NATS messages and landing files.
type Serializer struct{}

// NewSerializer creates a new serializer.
func NewSerializer() *Serializer {
	return &Serializer{}
}

// Marshal validates and encodes an event.
func (s *Serializer) Marshal(event *Event) ([]byte, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return data, nil
}

// Unmarshal decodes and validates an event. Every failure wraps ErrInvalidEvent.
func (s *Serializer) Unmarshal(data []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	return &event, nil
}

// SerializeEvent marshals an event with a fresh Serializer.
func SerializeEvent(event *Event) ([]byte, error) {
	return NewSerializer().Marshal(event)
}

// DeserializeEvent unmarshals an event with a fresh Serializer.
func DeserializeEvent(data []byte) (*Event, error) {
	return NewSerializer().Unmarshal(data)
}
