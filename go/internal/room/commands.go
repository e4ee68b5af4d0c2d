package room

import (
	"github.com/google/uuid"

	"github.com/twinsuns/draftdeck/go/internal/events"
)

// replyFunc delivers an event back to the connection that submitted a
// command. Replies are private; broadcasts go through the Broadcaster.
type replyFunc func(events.Event)

// command is an inbound unit of work for a room's single worker. Every
// mutation of room state happens by handling one of these in arrival order,
// including timer expiries.
type command interface{ isCommand() }

// joinCmd binds a participant to a seat. A non-nil Token means reconnect.
type joinCmd struct {
	Token uuid.UUID
	Name  string
	Reply replyFunc
}

// pickCmd submits a pick for the seat resolved from Token.
type pickCmd struct {
	Token  uuid.UUID
	CardID string
	Seq    uint64
	Reply  replyFunc
}

// leaveCmd permanently gives up a seat (no grace window).
type leaveCmd struct {
	Token uuid.UUID
	Reply replyFunc
}

// disconnectCmd marks a seat's transport as dropped, starting the grace
// window. The pick clock keeps running.
type disconnectCmd struct {
	Token uuid.UUID
}

// startCmd is the host's manual start override for a WAITING room below
// full capacity.
type startCmd struct {
	Token uuid.UUID
	Reply replyFunc
}

// snapshotCmd requests a full state snapshot, redacted to what the
// requesting token may see.
type snapshotCmd struct {
	Token uuid.UUID
	Reply replyFunc
}

// chatCmd relays a chat line room-wide. Mutates nothing; routed through the
// queue so chat observes the same ordering as everything else.
type chatCmd struct {
	Token uuid.UUID
	Text  string
	Reply replyFunc
}

// timerExpiredCmd is a seat timer firing, delivered as an ordinary queued
// event. Gen guards against fires from timers that were since replaced.
type timerExpiredCmd struct {
	Seat int
	Gen  uint64
}

// graceExpiredCmd is a disconnect grace deadline elapsing.
type graceExpiredCmd struct {
	Seat int
	Gen  uint64
}

// breakOverCmd ends a ROUND_BREAK pause and starts the next round.
type breakOverCmd struct {
	Round int
}

// abortCmd forces the room to ABORTED (registry teardown).
type abortCmd struct {
	Reason string
}

func (joinCmd) isCommand()         {}
func (pickCmd) isCommand()         {}
func (leaveCmd) isCommand()        {}
func (disconnectCmd) isCommand()   {}
func (startCmd) isCommand()        {}
func (snapshotCmd) isCommand()     {}
func (chatCmd) isCommand()         {}
func (timerExpiredCmd) isCommand() {}
func (graceExpiredCmd) isCommand() {}
func (breakOverCmd) isCommand()    {}
func (abortCmd) isCommand()        {}
