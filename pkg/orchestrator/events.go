// Copyright 2026 Etlengine Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package orchestrator

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// EventType names one of the orchestrator's lifecycle topics.
type EventType string

const (
	EventStarted        EventType = "pipeline.started"
	EventCompleted      EventType = "pipeline.completed"
	EventFailed         EventType = "pipeline.failed"
	EventCancelled      EventType = "pipeline.cancelled"
	EventStageCompleted EventType = "pipeline.stage.completed"
	EventDataProcessed  EventType = "pipeline.data.processed"
)

// Event is the message body delivered to subscribers, carrying the
// correlation id (execution id) and an optional result payload, per
// spec.md §6.
type Event struct {
	Type        EventType
	ExecutionID string
	PipelineID  string
	Timestamp   time.Time
	Properties  map[string]string
	Result      interface{}
}

// Handler reacts to an Event. Handlers must not block on orchestrator
// state, since dispatch runs synchronously on the orchestrator's
// goroutine.
type Handler func(Event)

// EventBus is an in-process, synchronous publish/subscribe collaborator.
// Subscribers for a topic are invoked in registration order; a panicking
// handler is recovered, logged, and does not affect sibling handlers or
// the run that triggered the event, grounded on the teacher's
// mutex-guarded subscriber-list bus adapted from channel delivery to
// direct synchronous calls so ordering and panic-isolation hold exactly
// as spec.md §4.4 requires.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Handler
	logger      *zap.Logger
}

// NewEventBus constructs an empty bus.
func NewEventBus(logger *zap.Logger) *EventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBus{
		subscribers: make(map[EventType][]Handler),
		logger:      logger,
	}
}

// Subscribe registers a handler for a topic, appended after any existing
// handlers for that topic.
func (b *EventBus) Subscribe(topic EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[topic] = append(b.subscribers[topic], handler)
}

// Publish invokes every subscriber of ev.Type synchronously, in
// registration order. A handler panic is recovered and logged rather
// than propagated.
func (b *EventBus) Publish(ev Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.subscribers[ev.Type]))
	copy(handlers, b.subscribers[ev.Type])
	b.mu.RUnlock()

	for _, h := range handlers {
		b.invoke(h, ev)
	}
}

func (b *EventBus) invoke(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event subscriber panicked",
				zap.String("topic", string(ev.Type)),
				zap.String("execution_id", ev.ExecutionID),
				zap.Any("panic", r),
			)
		}
	}()
	h(ev)
}

// busPublisher adapts EventBus to pipeline.EventPublisher so a running
// pipeline can emit its own stage.completed/data.processed events without
// pkg/pipeline importing pkg/orchestrator.
type busPublisher struct {
	bus *EventBus
}

func (p *busPublisher) Publish(topic, executionID, pipelineID string, payload interface{}) {
	p.bus.Publish(newEvent(EventType(topic), executionID, pipelineID, payload))
}

func newEvent(eventType EventType, executionID, pipelineID string, result interface{}) Event {
	return Event{
		Type:        eventType,
		ExecutionID: executionID,
		PipelineID:  pipelineID,
		Timestamp:   time.Now(),
		Properties:  map[string]string{"correlation_id": executionID},
		Result:      result,
	}
}
