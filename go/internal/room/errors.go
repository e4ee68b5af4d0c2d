package room

import "errors"

var (
	// ErrStaleAction rejects a pick that arrives after its seat was already
	// resolved or with a sequence number that no longer matches the room.
	// Room state is unaffected.
	ErrStaleAction = errors.New("stale action")

	// ErrNotFound rejects an event whose seat token does not resolve to an
	// occupied seat in this room.
	ErrNotFound = errors.New("unknown seat token")

	// ErrRoomFull rejects a join when every seat is occupied.
	ErrRoomFull = errors.New("room is full")

	// ErrBadPhase rejects an event that is not valid in the room's current
	// lifecycle phase.
	ErrBadPhase = errors.New("not valid in current phase")

	// ErrAborted reports that the room was aborted after every seat's grace
	// deadline elapsed.
	ErrAborted = errors.New("room aborted")

	// ErrQueueFull reports that the room's command queue rejected an enqueue.
	// Submitters retry; the room itself never blocks on transport.
	ErrQueueFull = errors.New("room command queue full")

	// ErrClosed reports that the room's worker has stopped draining commands.
	ErrClosed = errors.New("room closed")
)
