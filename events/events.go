// Licensed under the Apache License, Version 2.0
// Details: https://raw.githubusercontent.com/square/permitbucket/master/LICENSE

package events

import (
	"fmt"
	"time"

	"github.com/square/permitbucket/logging"
)

type EventType int

const (
	EVENT_TOKENS_SERVED EventType = iota
	EVENT_NOT_ENOUGH_TOKENS
	EVENT_PERMIT_DENIED
	EVENT_INVALID_PERMIT
	EVENT_HIGH_CONTENTION
	EVENT_BUCKET_MISS
	EVENT_BUCKET_CREATED
	EVENT_BUCKET_REMOVED
)

var eventNames = []string{
	EVENT_TOKENS_SERVED:     "EVENT_TOKENS_SERVED",
	EVENT_NOT_ENOUGH_TOKENS: "EVENT_NOT_ENOUGH_TOKENS",
	EVENT_PERMIT_DENIED:     "EVENT_PERMIT_DENIED",
	EVENT_INVALID_PERMIT:    "EVENT_INVALID_PERMIT",
	EVENT_HIGH_CONTENTION:   "EVENT_HIGH_CONTENTION",
	EVENT_BUCKET_MISS:       "EVENT_BUCKET_MISS",
	EVENT_BUCKET_CREATED:    "EVENT_BUCKET_CREATED",
	EVENT_BUCKET_REMOVED:    "EVENT_BUCKET_REMOVED"}

func (et EventType) String() string {
	if int(et) < 0 || int(et) >= len(eventNames) {
		panic(fmt.Sprintf("Don't know event %d", et))
	}

	return eventNames[et]
}

type Event interface {
	EventType() EventType
	BucketName() string
	Dynamic() bool
	NumTokens() uint64
	// WaitTime is the advisory wait reported to the caller, measured from when the event was
	// created. It is 0 when there was no estimate.
	WaitTime() time.Duration
}

// Emitter accepts events without blocking.
type Emitter interface {
	Emit(e Event)
}

// EventProducer is a hook into the notification system, to inform listeners that certain events
// take place.
type EventProducer struct {
	c chan Event
}

// Emit queues event for the listener, dropping it if the queue is full.
func (e *EventProducer) Emit(event Event) {
	if e.c == nil {
		return
	}

	select {
	case e.c <- event:
	// OK
	default:
		logging.Debug("Event buffer full; dropping event.")
	}
}

func (e *EventProducer) notifyListeners(l Listener) {
	for event := range e.c {
		l(event)
	}
}

// Listener is a function that consumes an Event
type Listener func(details Event)

// RegisterListener takes a Listener and a buffer size and
// returns an EventProducer that consumes events and notifies listeners
func RegisterListener(listener Listener, bufsize int) *EventProducer {
	if listener == nil {
		panic("Cannot register a nil listener")
	}

	ep := &EventProducer{make(chan Event, bufsize)}

	go ep.notifyListeners(listener)

	return ep
}

// NewNilProducer returns an EventProducer that discards every event.
func NewNilProducer() *EventProducer {
	return &EventProducer{}
}

type namedEvent struct {
	eventType  EventType
	bucketName string
	dynamic    bool
}

func (n *namedEvent) String() string {
	return fmt.Sprintf("namedEvent{type: %v, name: %v, dynamic: %v}",
		n.eventType, n.bucketName, n.dynamic)
}

func (n *namedEvent) EventType() EventType {
	return n.eventType
}

func (n *namedEvent) BucketName() string {
	return n.bucketName
}

func (n *namedEvent) Dynamic() bool {
	return n.dynamic
}

func (n *namedEvent) NumTokens() uint64 {
	return 0
}

func (n *namedEvent) WaitTime() time.Duration {
	return 0
}

type tokenEvent struct {
	*namedEvent
	numTokens uint64
}

func (t *tokenEvent) String() string {
	return fmt.Sprintf("tokenEvent{type: %v, name: %v, dynamic: %v, numTokens: %v}",
		t.eventType, t.bucketName, t.dynamic, t.numTokens)
}

func (t *tokenEvent) NumTokens() uint64 {
	return t.numTokens
}

type tokenWaitEvent struct {
	*tokenEvent
	waitTime time.Duration
}

func (t *tokenWaitEvent) String() string {
	return fmt.Sprintf("tokenWaitEvent{type: %v, name: %v, dynamic: %v, numTokens: %v, waitTime: %v}",
		t.eventType, t.bucketName, t.dynamic, t.numTokens, t.waitTime)
}

func (t *tokenWaitEvent) WaitTime() time.Duration {
	return t.waitTime
}

// NewTokensServedEvent creates a new event with the type EVENT_TOKENS_SERVED
func NewTokensServedEvent(bucketName string, dynamic bool, numTokens uint64) Event {
	return newTokenEvent(bucketName, dynamic, numTokens, EVENT_TOKENS_SERVED)
}

// NewNotEnoughTokensEvent creates a new event with the type EVENT_NOT_ENOUGH_TOKENS
func NewNotEnoughTokensEvent(bucketName string, dynamic bool, numTokens uint64, waitTime time.Duration) Event {
	return &tokenWaitEvent{
		tokenEvent: newTokenEvent(bucketName, dynamic, numTokens, EVENT_NOT_ENOUGH_TOKENS),
		waitTime:   waitTime}
}

// NewPermitDeniedEvent creates a new event with the type EVENT_PERMIT_DENIED
func NewPermitDeniedEvent(bucketName string, dynamic bool, numTokens uint64, waitTime time.Duration) Event {
	return &tokenWaitEvent{
		tokenEvent: newTokenEvent(bucketName, dynamic, numTokens, EVENT_PERMIT_DENIED),
		waitTime:   waitTime}
}

// NewInvalidPermitEvent creates a new event with the type EVENT_INVALID_PERMIT
func NewInvalidPermitEvent(bucketName string, dynamic bool, numTokens uint64) Event {
	return newTokenEvent(bucketName, dynamic, numTokens, EVENT_INVALID_PERMIT)
}

// NewHighContentionEvent creates a new event with the type EVENT_HIGH_CONTENTION
func NewHighContentionEvent(bucketName string, dynamic bool, numTokens uint64) Event {
	return newTokenEvent(bucketName, dynamic, numTokens, EVENT_HIGH_CONTENTION)
}

// NewBucketMissedEvent creates a new event with the type EVENT_BUCKET_MISS
func NewBucketMissedEvent(bucketName string, dynamic bool) Event {
	return newNamedEvent(bucketName, dynamic, EVENT_BUCKET_MISS)
}

// NewBucketCreatedEvent creates a new event with the type EVENT_BUCKET_CREATED
func NewBucketCreatedEvent(bucketName string, dynamic bool) Event {
	return newNamedEvent(bucketName, dynamic, EVENT_BUCKET_CREATED)
}

// NewBucketRemovedEvent creates a new event with the type EVENT_BUCKET_REMOVED
func NewBucketRemovedEvent(bucketName string, dynamic bool) Event {
	return newNamedEvent(bucketName, dynamic, EVENT_BUCKET_REMOVED)
}

func newTokenEvent(bucketName string, dynamic bool, numTokens uint64, eventType EventType) *tokenEvent {
	return &tokenEvent{
		namedEvent: newNamedEvent(bucketName, dynamic, eventType),
		numTokens:  numTokens}
}

func newNamedEvent(bucketName string, dynamic bool, eventType EventType) *namedEvent {
	return &namedEvent{
		eventType:  eventType,
		bucketName: bucketName,
		dynamic:    dynamic}
}
