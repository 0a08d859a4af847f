// Package events provides types and interfaces for publishing task
// lifecycle events to external observers.
//
// This package defines event types and a publisher interface that allow for
// loose coupling between the task manager and whatever is watching it.
// The manager emits events without knowing which publishers will receive
// them; publishers are best-effort and their failures never affect task
// processing.
//
// The primary components are:
// - StatusEvent / ConsoleEvent: what happened to a task
// - Publisher: interface for external delivery channels
// - Emitter: fan-out of events to all registered publishers
// - RedisPublisher: pub/sub delivery for detached UIs
package events
