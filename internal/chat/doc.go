// Package chat implements realtime room chat.
//
// A [Client] joins named rooms over a [Transport] (in-process or NATS) and hands
// out one [Channel] per join. A [Reconciler] merges the persisted snapshot,
// optimistic local sends and broadcasts from other participants into one ordered,
// deduplicated view. [Room] wires the two together with a [MessageStore].
package chat
