// Package fanout implements the in-process event distribution used by the
// dashboard: a topic-keyed registry of ordered callbacks and a bounded
// history buffer.
//
// A Hub delivers each published value to every callback registered under
// the value's topic, in registration order, before it accepts the next
// published value. Registration and removal copy the per-topic slice, so a
// dispatch in progress iterates a stable snapshot even when a callback
// removes itself or a sibling.
//
// Removal and delivery exclude each other: once the function returned by On
// has returned, the callback is not running and the hub starts no further
// invocation of it. A callback may remove itself from inside its own
// delivery; that call returns without waiting for the delivery to end.
package fanout
