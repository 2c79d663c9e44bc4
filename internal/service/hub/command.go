package hub

import (
	"fmt"
	"log"
	"time"

	"github.com/avress/switchyard/internal/protocol"
)

// TargetAll addresses a command to every connected agent.
const TargetAll = "all"

// pendingCommand tracks the single outstanding command for one agent
// nickname. It is keyed by nickname rather than by either connection, so
// the issuing admin may disconnect while the command is in flight and the
// agent's reply can still reach somebody.
type pendingCommand struct {
	target   string
	issuer   Conn
	issuedAt time.Time
	deadline time.Time
	seq      uint64
	cancel   func()
}

// dispatchCommand serves COMMAND <all|nickname> <text> from an admin.
// Non-admins are rejected locally and no agent is ever contacted.
func (h *Hub) dispatchCommand(sess *session, target, payload string) {
	if sess.role != RoleAdmin {
		sess.conn.Send(protocol.Errorf(ErrUnauthorized.Error()))
		return
	}
	if target == "" || payload == "" {
		sess.conn.Send(protocol.Errorf(ErrMalformedCommand.Error()))
		return
	}

	if target == TargetAll {
		n := 0
		for _, other := range h.byNick {
			if other.role == RoleAgent {
				h.issue(sess.conn, other, payload)
				n++
			}
		}
		sess.conn.Send(protocol.Success(fmt.Sprintf("command dispatched to %d agent(s)", n)))
		return
	}

	dest, ok := h.byNick[target]
	if !ok || dest.role != RoleAgent {
		sess.conn.Send(protocol.Errorf(ErrTargetNotFound.Error()))
		return
	}
	h.issue(sess.conn, dest, payload)
	sess.conn.Send(protocol.Success(fmt.Sprintf("command dispatched to %s", target)))
}

// issue delivers the payload to one agent and records the pending entry,
// last-writer-wins. A superseded entry's timer keeps running unless
// CancelTimerOnOverwrite is set; when it fires it finds a newer sequence
// number and does nothing. Callers hold h.mu.
func (h *Hub) issue(issuer Conn, agent *session, payload string) {
	now := h.now()
	h.cmdSeq++
	pc := &pendingCommand{
		target:   agent.nickname,
		issuer:   issuer,
		issuedAt: now,
		deadline: now.Add(h.opts.CommandTimeout),
		seq:      h.cmdSeq,
	}

	if old, ok := h.pending[agent.nickname]; ok && h.opts.CancelTimerOnOverwrite && old.cancel != nil {
		old.cancel()
	}
	h.pending[agent.nickname] = pc

	nickname, seq := agent.nickname, pc.seq
	pc.cancel = h.sched.AfterFunc(h.opts.CommandTimeout, func() {
		h.expire(nickname, seq)
	})

	h.stats.CommandsDispatched++
	agent.conn.Send(protocol.Command(payload))
}

// expire is the timeout sweep for one scheduled check. It only acts if
// the very entry it was scheduled for is still pending; a consumed or
// overwritten entry makes the check a no-op.
func (h *Hub) expire(nickname string, seq uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	pc, ok := h.pending[nickname]
	if !ok || pc.seq != seq {
		return
	}
	delete(h.pending, nickname)
	h.stats.TimeoutsFired++
	log.Printf("[hub] command to %s timed out", nickname)

	if _, open := h.conns[pc.issuer]; open {
		pc.issuer.Send(protocol.Timeout(nickname))
	}
}

// handleReply correlates a tagged reply from an agent. A matched reply
// goes to the recorded issuer if that admin is still connected. If the
// issuer is gone, or there is no entry at all (late or duplicate reply),
// the reply is broadcast to every connected admin so somebody sees it.
func (h *Hub) handleReply(sess *session, taggedText string) {
	ev := protocol.CommandResponse(sess.nickname, taggedText)

	pc, ok := h.pending[sess.nickname]
	if ok {
		delete(h.pending, sess.nickname)
		if _, open := h.conns[pc.issuer]; open {
			h.stats.RepliesMatched++
			pc.issuer.Send(ev)
			return
		}
	}

	h.stats.RepliesFallback++
	for _, other := range h.byNick {
		if other.role == RoleAdmin {
			other.conn.Send(ev)
		}
	}
}
