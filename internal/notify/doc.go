// Package notify delivers device status change events to observers.
//
// The main components are:
//
//   - [Notifier]: fire-and-forget publish interface used by the reconciler
//   - [Hub]: in-process fan-out to subscribed channels (SSE and WebSocket clients)
//   - [NATSPublisher]: publishes events as JSON on a NATS subject
//   - [Multi]: fans one event out to several notifiers
//   - [Func]: adapts a callback, recovering from panics
//
// Delivery is best effort. Publish never blocks on a slow observer, there is
// no acknowledgement and late subscribers do not see earlier events.
package notify
