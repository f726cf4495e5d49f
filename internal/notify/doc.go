// Package notify holds the per-runtime-instance notification state: the
// single live layout-change callback of one consumer runtime.
//
// A State owns at most one callback.Handle. Registering a callback replaces
// the current one, finalizing it before the new handle becomes live, so a
// replaced callback never runs again even if a notification for it is
// already queued. Teardown finalizes the live handle and must be the last
// operation on the State.
package notify
