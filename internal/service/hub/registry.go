package hub

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/avress/switchyard/internal/protocol"
)

// session is the registry record behind one live connection. Exactly one
// per connection; the nickname is unique among active sessions and the
// claim is released on disconnect.
type session struct {
	id           string
	nickname     string
	role         Role
	roomName     string
	addr         string
	joinedAt     time.Time
	lastActivity time.Time
	conn         Conn
}

func (s *session) displayName() string {
	if s.nickname == "" {
		return "unidentified"
	}
	return s.nickname
}

func (s *session) profile() Profile {
	return Profile{Nickname: s.nickname, Role: s.role, Address: s.addr}
}

// register creates the unidentified session for a new connection.
// Callers hold h.mu.
func (h *Hub) register(conn Conn) *session {
	now := h.now()
	sess := &session{
		id:           uuid.NewString(),
		role:         RoleUnidentified,
		addr:         conn.RemoteAddr(),
		joinedAt:     now,
		lastActivity: now,
		conn:         conn,
	}
	h.conns[conn] = sess
	return sess
}

// identify consumes the session's first accepted message. The nickname is
// truncated to the configured maximum, checked for uniqueness among
// active sessions, and the role is derived once via the injected policy.
// On rejection the session stays unidentified and may retry.
func (h *Hub) identify(sess *session, rawName string) {
	name := truncate(rawName, h.opts.NicknameMaxLen)
	if name == "" {
		sess.conn.Send(protocol.Errorf("nickname required"))
		return
	}
	if _, taken := h.byNick[name]; taken {
		sess.conn.Send(protocol.Errorf(ErrDuplicateNickname.Error()))
		return
	}

	sess.nickname = name
	sess.role = h.opts.RolePolicy(name)
	h.byNick[name] = sess

	log.Printf("[hub] session=%s identified as %q role=%s", sess.id, name, sess.role)
	sess.conn.Send(protocol.Success(fmt.Sprintf("identified as %s (%s)", name, sess.role)))
}

// listAgents serves LIST_AGENTS, an admin-only view of connected agents.
func (h *Hub) listAgents(sess *session) {
	if sess.role != RoleAdmin {
		sess.conn.Send(protocol.Errorf(ErrUnauthorized.Error()))
		return
	}

	var agents []protocol.AgentInfo
	for _, other := range h.byNick {
		if other.role == RoleAgent {
			agents = append(agents, protocol.AgentInfo{Nickname: other.nickname, Address: other.addr})
		}
	}
	sess.conn.Send(protocol.AgentList(agents))
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
