// Package playback drives an external media player for the ranked playlist queue.
//
// The [Controller] is a finite-state machine over player readiness. Raw player
// callbacks are posted as [Event] values and applied one at a time by
// [Controller.Run], so transitions and track-change deduplication happen in a
// single place. Controls fail with [shared.ErrNotReady] unless the controller is
// Ready with a device bound.
package playback
