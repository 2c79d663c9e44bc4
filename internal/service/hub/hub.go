package hub

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/avress/switchyard/internal/protocol"
)

// Recoverable failures sent back to the offending connection. None of
// them terminate a connection or touch other sessions.
var (
	ErrDuplicateNickname = errors.New("nickname already in use")
	ErrNotIdentified     = errors.New("identify first")
	ErrTargetNotFound    = errors.New("target not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrMalformedCommand  = errors.New("malformed command")
)

// Role is assigned once, at identification time, and never changes for
// the session's lifetime.
type Role int

const (
	RoleUnidentified Role = iota
	RoleAgent
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleAgent:
		return "agent"
	case RoleAdmin:
		return "admin"
	default:
		return "unidentified"
	}
}

// Conn is the transport-side handle for one client. Send is best-effort:
// implementations deliver what they can and drop the rest, the hub never
// inspects the outcome.
type Conn interface {
	Send(ev protocol.Event)
	Close()
	RemoteAddr() string
}

// RolePolicy decides the role a nickname identifies into.
type RolePolicy func(nickname string) Role

// AdminSetPolicy builds the default policy: names in the set become
// admins, everyone else is an agent.
func AdminSetPolicy(adminNames []string) RolePolicy {
	set := make(map[string]struct{}, len(adminNames))
	for _, name := range adminNames {
		set[name] = struct{}{}
	}
	return func(nickname string) Role {
		if _, ok := set[nickname]; ok {
			return RoleAdmin
		}
		return RoleAgent
	}
}

// Scheduler plans a deferred task and hands back a cancel handle. The
// real implementation wraps time.AfterFunc; tests substitute a manual one.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) (cancel func())
}

type timerScheduler struct{}

func (timerScheduler) AfterFunc(d time.Duration, f func()) func() {
	t := time.AfterFunc(d, f)
	return func() { t.Stop() }
}

// Interceptor inspects one inbound line before classification and returns
// false to block it. Blocked lines are dropped without a reply.
type Interceptor func(from Profile, line string) bool

// Profile is the read-only view of a session handed to interceptors.
type Profile struct {
	Nickname string
	Role     Role
	Address  string
}

// Options tunes a Hub. The zero value is usable; New fills in defaults.
type Options struct {
	// CommandTimeout bounds how long a dispatched command may stay
	// unanswered before the issuing admin is notified. Default 5s.
	CommandTimeout time.Duration

	// NicknameMaxLen truncates identifying nicknames. Default 32 runes.
	NicknameMaxLen int

	// RolePolicy assigns roles at identification time. Default: nobody
	// is an admin.
	RolePolicy RolePolicy

	// Interceptors run in order against every inbound line.
	Interceptors []Interceptor

	// RetainEmptyRooms keeps rooms alive after their last member leaves.
	// The default reclaims them.
	RetainEmptyRooms bool

	// CancelTimerOnOverwrite stops the superseded timeout timer when a
	// newer command overwrites an agent's pending entry. Off by default:
	// the stale timer fires and finds nothing to do.
	CancelTimerOnOverwrite bool

	// Clock and Scheduler exist for deterministic tests.
	Clock     func() time.Time
	Scheduler Scheduler
}

// Hub owns every piece of shared routing state: the connection registry,
// the room table and the pending-command table. One mutex serializes all
// mutation, so events are observed one at a time in arrival order.
type Hub struct {
	mu      sync.Mutex
	conns   map[Conn]*session
	byNick  map[string]*session
	rooms   map[string]*room
	pending map[string]*pendingCommand

	roomSeq int
	cmdSeq  uint64

	opts  Options
	now   func() time.Time
	sched Scheduler

	stats Stats
}

// New builds a Hub, filling unset options with defaults.
func New(opts Options) *Hub {
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = 5 * time.Second
	}
	if opts.NicknameMaxLen <= 0 {
		opts.NicknameMaxLen = 32
	}
	if opts.RolePolicy == nil {
		opts.RolePolicy = AdminSetPolicy(nil)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Scheduler == nil {
		opts.Scheduler = timerScheduler{}
	}
	return &Hub{
		conns:   make(map[Conn]*session),
		byNick:  make(map[string]*session),
		rooms:   make(map[string]*room),
		pending: make(map[string]*pendingCommand),
		opts:    opts,
		now:     opts.Clock,
		sched:   opts.Scheduler,
	}
}

// Connect registers an admitted connection. The session starts
// unidentified and must send IDENTIFY before anything else.
func (h *Hub) Connect(conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sess := h.register(conn)
	h.stats.TotalConnections++
	log.Printf("[hub] connection from %s session=%s", sess.addr, sess.id)
	conn.Send(protocol.Welcome("identify to join"))
}

// Disconnect removes the connection's session and cascades: room
// membership goes, nickname uniqueness is released. A pending command
// keyed to the session's nickname is deliberately left alone; its reply
// may still arrive, or its timeout will reap it.
func (h *Hub) Disconnect(conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sess, ok := h.conns[conn]
	if !ok {
		return
	}
	h.leaveRoom(sess)
	if sess.nickname != "" {
		delete(h.byNick, sess.nickname)
	}
	delete(h.conns, conn)
	log.Printf("[hub] session=%s (%s) disconnected", sess.id, sess.displayName())
}

// HandleMessage routes one inbound line from an established connection.
func (h *Hub) HandleMessage(conn Conn, line string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sess, ok := h.conns[conn]
	if !ok {
		return
	}
	sess.lastActivity = h.now()

	for _, intercept := range h.opts.Interceptors {
		if !intercept(sess.profile(), line) {
			return
		}
	}

	msg := protocol.Parse(line)

	if sess.role == RoleUnidentified {
		if msg.Verb != protocol.VerbIdentify {
			conn.Send(protocol.Errorf(ErrNotIdentified.Error()))
			return
		}
		h.identify(sess, msg.Target)
		return
	}

	switch msg.Verb {
	case protocol.VerbIdentify:
		conn.Send(protocol.Errorf("already identified"))
	case protocol.VerbReply:
		if sess.role == RoleAgent {
			h.handleReply(sess, msg.Body)
			return
		}
		// A tagged line from anyone else is just chat.
		h.broadcast(sess, msg.Body)
	case protocol.VerbCommand:
		h.dispatchCommand(sess, msg.Target, msg.Body)
	case protocol.VerbJoin:
		if h.dropAgentChatter(sess) {
			return
		}
		h.joinRoom(sess, msg.Target)
	case protocol.VerbLeave:
		if h.dropAgentChatter(sess) {
			return
		}
		h.leaveRoomCmd(sess)
	case protocol.VerbListRooms:
		if h.dropAgentChatter(sess) {
			return
		}
		conn.Send(protocol.RoomList(h.roomSnapshot()))
	case protocol.VerbListAgents:
		h.listAgents(sess)
	case protocol.VerbDM:
		if h.dropAgentChatter(sess) {
			return
		}
		h.direct(sess, msg.Target, msg.Body)
	default:
		if h.dropAgentChatter(sess) {
			return
		}
		h.broadcast(sess, msg.Body)
	}
}

// dropAgentChatter enforces the write-once-responder rule: an agent's
// only accepted output is a tagged reply, everything else is silently
// discarded and never forwarded.
func (h *Hub) dropAgentChatter(sess *session) bool {
	return sess.role == RoleAgent
}

// Stats are the aggregate counters exposed read-only over HTTP.
type Stats struct {
	Connections        int    `json:"connections"`
	TotalConnections   uint64 `json:"totalConnections"`
	Identified         int    `json:"identified"`
	Rooms              int    `json:"rooms"`
	MessagesRouted     uint64 `json:"messagesRouted"`
	CommandsDispatched uint64 `json:"commandsDispatched"`
	RepliesMatched     uint64 `json:"repliesMatched"`
	RepliesFallback    uint64 `json:"repliesFallback"`
	TimeoutsFired      uint64 `json:"timeoutsFired"`
}

// Snapshot returns a copy of the counters at this instant.
func (h *Hub) Snapshot() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.stats
	s.Connections = len(h.conns)
	s.Identified = len(h.byNick)
	s.Rooms = len(h.rooms)
	return s
}

// Rooms returns the room table snapshot in creation order.
func (h *Hub) Rooms() []protocol.RoomInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.roomSnapshot()
}
