package hub

import "github.com/avress/switchyard/internal/protocol"

// broadcast routes plain chat. Room members get room-scoped delivery;
// sessions outside any room broadcast to every other live session.
// Delivery is best-effort and the sender never hears its own message.
func (h *Hub) broadcast(sess *session, text string) {
	if text == "" {
		return
	}
	ev := protocol.Message(sess.nickname, text, false, h.now())
	h.stats.MessagesRouted++

	if sess.roomName != "" {
		r, ok := h.rooms[sess.roomName]
		if !ok {
			return
		}
		for member := range r.members {
			if member != sess {
				member.conn.Send(ev)
			}
		}
		r.lastActivity = h.now()
		return
	}

	for _, other := range h.conns {
		if other != sess {
			other.conn.Send(ev)
		}
	}
}

// direct delivers a DM to exactly one nickname.
func (h *Hub) direct(sess *session, target, text string) {
	if target == "" || text == "" {
		sess.conn.Send(protocol.Errorf(ErrMalformedCommand.Error()))
		return
	}
	dest, ok := h.byNick[target]
	if !ok {
		sess.conn.Send(protocol.Errorf(ErrTargetNotFound.Error()))
		return
	}
	h.stats.MessagesRouted++
	dest.conn.Send(protocol.Message(sess.nickname, text, true, h.now()))
}
