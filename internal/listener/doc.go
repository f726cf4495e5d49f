// Package listener connects a platform.Source to a notify.State.
//
// The Listener subscribes to the source at most once and, on every event,
// resolves the state through a weak pointer. A Listener therefore never
// keeps a runtime's state alive: once the state has been released, events
// are dropped silently.
package listener
