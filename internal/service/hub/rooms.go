package hub

import (
	"fmt"
	"sort"
	"time"

	"github.com/avress/switchyard/internal/protocol"
)

// room groups sessions for scoped chat. Rooms are created lazily on first
// join and, unless configured otherwise, reclaimed when the last member
// leaves. Membership is always a subset of active sessions: disconnect
// cascades through leaveRoom.
type room struct {
	name         string
	members      map[*session]struct{}
	createdAt    time.Time
	lastActivity time.Time
	seq          int
}

// joinRoom moves the session into roomName. A session belongs to at most
// one room, so any prior membership is dropped first.
func (h *Hub) joinRoom(sess *session, roomName string) {
	if roomName == "" {
		sess.conn.Send(protocol.Errorf("room name required"))
		return
	}

	h.leaveRoom(sess)

	r, ok := h.rooms[roomName]
	if !ok {
		h.roomSeq++
		r = &room{
			name:      roomName,
			members:   make(map[*session]struct{}),
			createdAt: h.now(),
			seq:       h.roomSeq,
		}
		h.rooms[roomName] = r
	}

	r.members[sess] = struct{}{}
	r.lastActivity = h.now()
	sess.roomName = roomName
	sess.conn.Send(protocol.Success(fmt.Sprintf("joined %s", roomName)))
}

// leaveRoomCmd serves an explicit LEAVE.
func (h *Hub) leaveRoomCmd(sess *session) {
	if sess.roomName == "" {
		sess.conn.Send(protocol.Errorf("not in a room"))
		return
	}
	name := sess.roomName
	h.leaveRoom(sess)
	sess.conn.Send(protocol.Success(fmt.Sprintf("left %s", name)))
}

// leaveRoom removes the session from its room, if any, and reclaims the
// room once empty. Callers hold h.mu.
func (h *Hub) leaveRoom(sess *session) {
	if sess.roomName == "" {
		return
	}
	r, ok := h.rooms[sess.roomName]
	sess.roomName = ""
	if !ok {
		return
	}
	delete(r.members, sess)
	r.lastActivity = h.now()
	if len(r.members) == 0 && !h.opts.RetainEmptyRooms {
		delete(h.rooms, r.name)
	}
}

// roomSnapshot lists rooms in creation order. Callers hold h.mu.
func (h *Hub) roomSnapshot() []protocol.RoomInfo {
	rooms := make([]*room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].seq < rooms[j].seq })

	infos := make([]protocol.RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		infos = append(infos, protocol.RoomInfo{
			Name:      r.name,
			Members:   len(r.members),
			CreatedAt: r.createdAt,
		})
	}
	return infos
}
