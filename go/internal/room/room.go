package room

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/twinsuns/draftdeck/go/internal/cards"
	"github.com/twinsuns/draftdeck/go/internal/events"
)

// Phase is a room's lifecycle phase.
type Phase string

const (
	PhaseWaiting    Phase = "WAITING"
	PhaseActive     Phase = "ACTIVE"
	PhaseRoundBreak Phase = "ROUND_BREAK"
	PhaseComplete   Phase = "COMPLETE"
	PhaseAborted    Phase = "ABORTED"
)

// Direction is the rotation direction of the current round. Left passes a
// seat's pack to seat+1 mod N, right to seat-1 mod N.
type Direction int

const (
	DirectionLeft Direction = iota
	DirectionRight
)

func (d Direction) String() string {
	if d == DirectionRight {
		return "right"
	}
	return "left"
}

// next returns the seat index a pack rotates to.
func (d Direction) next(seat, seats int) int {
	if d == DirectionRight {
		return (seat - 1 + seats) % seats
	}
	return (seat + 1) % seats
}

// Config fixes a room's shape at creation time.
type Config struct {
	SetCode      string
	SeatCount    int
	MinSeats     int // host may force-start once this many seats are filled
	PacksPerSeat int
	PackSize     int
	PickTimeout  time.Duration
	GracePeriod  time.Duration
	RoundBreak   time.Duration
	Seed         int64
}

// Broadcaster fans outbound events to the connections subscribed to a room.
// Implemented by the gateway; rooms never hold connection references.
type Broadcaster interface {
	Broadcast(roomID uuid.UUID, ev events.Event)
	SendToSeat(roomID uuid.UUID, seat int, ev events.Event)
}

// PickRecord is the opaque ordered record handed to the archive collaborator
// for each resolved pick.
type PickRecord struct {
	Seat     int       `json:"seat"`
	CardID   string    `json:"card_id"`
	CardName string    `json:"card_name"`
	Round    int       `json:"round"`
	AutoPick bool      `json:"auto_pick"`
	PickedAt time.Time `json:"picked_at"`
}

// ArchiveSink receives resolved picks and completion notices. Implementations
// must enqueue internally and return immediately; the room worker never
// blocks on archival.
type ArchiveSink interface {
	RecordPick(roomID uuid.UUID, rec PickRecord)
	RoomCompleted(roomID uuid.UUID, completedAt time.Time)
}

// Summary is the read-only view the registry and health reporting use.
type Summary struct {
	ID           uuid.UUID
	SetCode      string
	Phase        Phase
	SeatCount    int
	Occupied     int
	Connected    int
	Round        int
	Sequence     uint64
	CreatedAt    time.Time
	LastActivity time.Time
}

// seat is one participant slot. Accessed only by the room's worker.
type seat struct {
	index     int
	name      string
	token     uuid.UUID
	occupied  bool
	connected bool

	pack         *cards.Pack
	boosters     []*cards.Pack
	history      []cards.Card
	resolved     bool
	doneForRound bool

	pickTimer *seatTimer
	timerGen  uint64

	graceTimer    *seatTimer
	graceGen      uint64
	graceDeadline time.Time
	gracePast     bool
}

// Room is one isolated draft session. All state below the command channel is
// owned by the single worker goroutine draining it; nothing else reads or
// writes it, which is what keeps the state machine lock-free.
type Room struct {
	ID    uuid.UUID
	cfg   Config
	clock clockwork.Clock

	commands    chan command
	quit        chan struct{}
	quitOnce    sync.Once
	broadcaster Broadcaster
	archive     ArchiveSink
	pool        []cards.Card

	phase      Phase
	round      int
	direction  Direction
	seq        uint64
	seats      []*seat
	dealtTotal int
	createdAt  time.Time
	lastActive time.Time

	summaryMu sync.Mutex
	summary   Summary
}

const (
	commandQueueSize = 256
	tickInterval     = 5 * time.Second
)

// New creates a WAITING room. pool is the set's full card pool, loaded once
// by the registry from the catalog; the room treats it as read-only.
func New(id uuid.UUID, cfg Config, pool []cards.Card, clock clockwork.Clock, b Broadcaster, sink ArchiveSink) *Room {
	r := &Room{
		ID:          id,
		cfg:         cfg,
		clock:       clock,
		commands:    make(chan command, commandQueueSize),
		quit:        make(chan struct{}),
		broadcaster: b,
		archive:     sink,
		pool:        pool,
		phase:       PhaseWaiting,
		direction:   DirectionLeft,
		createdAt:   clock.Now(),
		lastActive:  clock.Now(),
	}
	r.seats = make([]*seat, cfg.SeatCount)
	for i := range r.seats {
		r.seats[i] = &seat{index: i}
	}
	r.updateSummary()
	return r
}

// Run drains the command queue until the context is cancelled or the room is
// closed. This is the room's only worker and the sole place state mutates.
func (r *Room) Run(ctx context.Context) {
	ticker := r.clock.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.quit:
			return
		case cmd := <-r.commands:
			r.handle(cmd)
		case <-ticker.Chan():
			r.handleTick()
		}
	}
}

// Close stops the worker. Pending commands are dropped; submitters see
// ErrClosed afterwards.
func (r *Room) Close() {
	r.quitOnce.Do(func() { close(r.quit) })
}

// Enqueue hands a command to the room's worker and returns after enqueue,
// never after processing, keeping transport goroutines non-blocking.
func (r *Room) Enqueue(cmd command) error {
	select {
	case <-r.quit:
		return ErrClosed
	default:
	}
	select {
	case r.commands <- cmd:
		return nil
	default:
		return ErrQueueFull
	}
}

// Submission constructors: the gateway builds commands through these so the
// command types stay internal to the package.

func (r *Room) SubmitJoin(token uuid.UUID, name string, reply func(events.Event)) error {
	return r.Enqueue(joinCmd{Token: token, Name: name, Reply: reply})
}

func (r *Room) SubmitPick(token uuid.UUID, cardID string, seq uint64, reply func(events.Event)) error {
	return r.Enqueue(pickCmd{Token: token, CardID: cardID, Seq: seq, Reply: reply})
}

func (r *Room) SubmitLeave(token uuid.UUID, reply func(events.Event)) error {
	return r.Enqueue(leaveCmd{Token: token, Reply: reply})
}

func (r *Room) SubmitDisconnect(token uuid.UUID) error {
	return r.Enqueue(disconnectCmd{Token: token})
}

func (r *Room) SubmitStart(token uuid.UUID, reply func(events.Event)) error {
	return r.Enqueue(startCmd{Token: token, Reply: reply})
}

func (r *Room) SubmitSnapshot(token uuid.UUID, reply func(events.Event)) error {
	return r.Enqueue(snapshotCmd{Token: token, Reply: reply})
}

func (r *Room) SubmitChat(token uuid.UUID, text string, reply func(events.Event)) error {
	return r.Enqueue(chatCmd{Token: token, Text: text, Reply: reply})
}

func (r *Room) SubmitAbort(reason string) error {
	return r.Enqueue(abortCmd{Reason: reason})
}

// Summary returns the latest published summary. Safe from any goroutine.
func (r *Room) Summary() Summary {
	r.summaryMu.Lock()
	defer r.summaryMu.Unlock()
	return r.summary
}

func (r *Room) updateSummary() {
	occupied, connected := 0, 0
	for _, s := range r.seats {
		if s.occupied {
			occupied++
			if s.connected {
				connected++
			}
		}
	}
	r.summaryMu.Lock()
	r.summary = Summary{
		ID:           r.ID,
		SetCode:      r.cfg.SetCode,
		Phase:        r.phase,
		SeatCount:    len(r.seats),
		Occupied:     occupied,
		Connected:    connected,
		Round:        r.round,
		Sequence:     r.seq,
		CreatedAt:    r.createdAt,
		LastActivity: r.lastActive,
	}
	r.summaryMu.Unlock()
}

// handle processes one command. Per-event errors are reported to the
// submitter and never halt the queue.
func (r *Room) handle(cmd command) {
	r.lastActive = r.clock.Now()
	switch c := cmd.(type) {
	case joinCmd:
		r.handleJoin(c)
	case pickCmd:
		r.handlePick(c)
	case leaveCmd:
		r.handleLeave(c)
	case disconnectCmd:
		r.handleDisconnect(c)
	case startCmd:
		r.handleStart(c)
	case snapshotCmd:
		r.handleSnapshot(c)
	case chatCmd:
		r.handleChat(c)
	case timerExpiredCmd:
		r.handleTimerExpired(c)
	case graceExpiredCmd:
		r.handleGraceExpired(c)
	case breakOverCmd:
		r.handleBreakOver(c)
	case abortCmd:
		r.abort(c.Reason)
	}
	r.updateSummary()
}

// seatByToken resolves a seat from its opaque token. Client-supplied seat
// indices are never trusted directly.
func (r *Room) seatByToken(token uuid.UUID) *seat {
	if token == uuid.Nil {
		return nil
	}
	for _, s := range r.seats {
		if s.occupied && s.token == token {
			return s
		}
	}
	return nil
}

func (r *Room) handleJoin(c joinCmd) {
	if c.Token != uuid.Nil {
		r.handleReconnect(c)
		return
	}

	if r.phase != PhaseWaiting {
		r.replyError(c.Reply, ErrBadPhase, "draft already started; reconnect with your seat token")
		return
	}

	var target *seat
	for _, s := range r.seats {
		if !s.occupied {
			target = s
			break
		}
	}
	if target == nil {
		r.replyError(c.Reply, ErrRoomFull, "every seat is occupied")
		return
	}

	target.occupied = true
	target.connected = true
	target.name = c.Name
	target.token = uuid.New()

	log.Info().
		Str("room_id", r.ID.String()).
		Int("seat", target.index).
		Str("name", c.Name).
		Msg("seat occupied")

	if c.Reply != nil {
		c.Reply(events.New(r.ID, events.TypeJoined, r.clock.Now(), events.JoinedPayload{
			Seat:      target.index,
			SeatToken: target.token.String(),
			Name:      target.name,
		}))
	}
	r.broadcastDelta()

	if r.occupiedCount() == len(r.seats) {
		r.activate()
	}
}

func (r *Room) handleReconnect(c joinCmd) {
	s := r.seatByToken(c.Token)
	if s == nil {
		r.replyError(c.Reply, ErrNotFound, "seat token does not match any seat")
		return
	}

	s.connected = true
	s.gracePast = false
	if s.graceTimer != nil {
		s.graceTimer.cancel()
		s.graceTimer = nil
	}
	s.graceGen++

	log.Info().
		Str("room_id", r.ID.String()).
		Int("seat", s.index).
		Msg("seat reconnected within grace period")

	if c.Reply != nil {
		c.Reply(events.New(r.ID, events.TypeJoined, r.clock.Now(), events.JoinedPayload{
			Seat:      s.index,
			SeatToken: s.token.String(),
			Name:      s.name,
			Rejoined:  true,
		}))
		c.Reply(r.snapshotFor(s))
	}
	r.broadcastDelta()
}

func (r *Room) handleLeave(c leaveCmd) {
	s := r.seatByToken(c.Token)
	if s == nil {
		r.replyError(c.Reply, ErrNotFound, "seat token does not match any seat")
		return
	}

	if r.phase == PhaseWaiting {
		r.vacate(s)
		r.broadcastDelta()
		return
	}

	// Mid-draft leave: no grace window, the seat rides on auto-picks.
	s.connected = false
	s.gracePast = true
	if s.graceTimer != nil {
		s.graceTimer.cancel()
		s.graceTimer = nil
	}
	log.Info().Str("room_id", r.ID.String()).Int("seat", s.index).Msg("seat left mid-draft")
	r.broadcastDelta()
	r.maybeAbortAllGone()
}

func (r *Room) handleDisconnect(c disconnectCmd) {
	s := r.seatByToken(c.Token)
	if s == nil {
		return
	}
	if !s.connected {
		return
	}

	if r.phase == PhaseWaiting {
		r.vacate(s)
		r.broadcastDelta()
		return
	}

	// The seat's pick clock keeps running; only the grace window starts.
	s.connected = false
	s.graceDeadline = r.clock.Now().Add(r.cfg.GracePeriod)
	s.graceGen++
	gen := s.graceGen
	idx := s.index
	s.graceTimer = newSeatTimer(r.clock, r.cfg.GracePeriod, func() {
		if err := r.Enqueue(graceExpiredCmd{Seat: idx, Gen: gen}); err != nil {
			log.Warn().Err(err).Str("room_id", r.ID.String()).Int("seat", idx).
				Msg("dropped grace expiry")
		}
	})

	log.Info().
		Str("room_id", r.ID.String()).
		Int("seat", s.index).
		Time("grace_deadline", s.graceDeadline).
		Msg("seat disconnected, grace window started")

	r.broadcastDelta()
}

func (r *Room) vacate(s *seat) {
	log.Info().Str("room_id", r.ID.String()).Int("seat", s.index).Msg("seat vacated")
	s.occupied = false
	s.connected = false
	s.name = ""
	s.token = uuid.Nil
}

func (r *Room) handleStart(c startCmd) {
	s := r.seatByToken(c.Token)
	if s == nil {
		r.replyError(c.Reply, ErrNotFound, "seat token does not match any seat")
		return
	}
	if s.index != 0 {
		r.replyError(c.Reply, ErrStaleAction, "only the host seat may force-start")
		return
	}
	if r.phase != PhaseWaiting {
		r.replyError(c.Reply, ErrBadPhase, "draft already started")
		return
	}
	if occ := r.occupiedCount(); occ < r.cfg.MinSeats {
		r.replyError(c.Reply, ErrStaleAction, "not enough seats filled to start")
		return
	}

	r.compactSeats()
	r.activate()
}

// compactSeats drops vacant seats before a force-start so rotation only
// covers occupied seats. Seat indices are reassigned; tokens are unchanged.
func (r *Room) compactSeats() {
	kept := r.seats[:0]
	for _, s := range r.seats {
		if s.occupied {
			s.index = len(kept)
			kept = append(kept, s)
		}
	}
	r.seats = kept
}

func (r *Room) handleChat(c chatCmd) {
	s := r.seatByToken(c.Token)
	if s == nil {
		r.replyError(c.Reply, ErrNotFound, "seat token does not match any seat")
		return
	}
	r.broadcaster.Broadcast(r.ID, events.New(r.ID, events.TypeChat, r.clock.Now(), events.ChatPayload{
		Seat: s.index,
		Name: s.name,
		Text: c.Text,
	}))
}

func (r *Room) handleSnapshot(c snapshotCmd) {
	if c.Reply == nil {
		return
	}
	c.Reply(r.snapshotFor(r.seatByToken(c.Token)))
}

func (r *Room) handleGraceExpired(c graceExpiredCmd) {
	if c.Seat >= len(r.seats) {
		return
	}
	s := r.seats[c.Seat]
	if s.graceGen != c.Gen || s.connected || !s.occupied {
		return
	}
	s.gracePast = true
	s.graceTimer = nil

	log.Info().Str("room_id", r.ID.String()).Int("seat", s.index).Msg("grace period expired")
	r.maybeAbortAllGone()
}

// maybeAbortAllGone aborts the room only when every occupied seat is both
// disconnected and past its grace deadline. A single disconnect never
// deletes a draft.
func (r *Room) maybeAbortAllGone() {
	if r.phase == PhaseComplete || r.phase == PhaseAborted {
		return
	}
	for _, s := range r.seats {
		if !s.occupied {
			continue
		}
		if s.connected || !s.gracePast {
			return
		}
	}
	r.abort("every seat disconnected past its grace deadline")
}

func (r *Room) occupiedCount() int {
	n := 0
	for _, s := range r.seats {
		if s.occupied {
			n++
		}
	}
	return n
}

func (r *Room) replyError(reply replyFunc, err error, msg string) {
	log.Debug().Str("room_id", r.ID.String()).Err(err).Str("detail", msg).Msg("rejected event")
	if reply == nil {
		return
	}
	reply(events.New(r.ID, events.TypeError, r.clock.Now(), events.ErrorPayload{
		Code:    ErrorCode(err),
		Message: msg,
	}))
}

// ErrorCode maps the room error taxonomy onto wire codes.
func ErrorCode(err error) string {
	switch err {
	case ErrStaleAction, ErrBadPhase:
		return "stale_action"
	case ErrNotFound:
		return "not_found"
	case ErrRoomFull:
		return "capacity_error"
	case ErrAborted:
		return "aborted"
	default:
		return "internal_error"
	}
}
