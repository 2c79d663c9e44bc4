package protocol

import "time"

// EventType tags a server-to-client event.
type EventType string

const (
	EventWelcome         EventType = "WELCOME"
	EventError           EventType = "ERROR"
	EventSuccess         EventType = "SUCCESS"
	EventMessage         EventType = "MESSAGE"
	EventRoomList        EventType = "ROOM_LIST"
	EventAgentList       EventType = "AGENT_LIST"
	EventCommand         EventType = "COMMAND"
	EventCommandResponse EventType = "COMMAND_RESPONSE"
	EventTimeout         EventType = "TIMEOUT"
)

// Event is the single envelope written to clients. Only the fields that
// apply to the event's type are populated.
type Event struct {
	Type      EventType   `json:"type"`
	Reason    string      `json:"reason,omitempty"`
	Detail    string      `json:"detail,omitempty"`
	From      string      `json:"from,omitempty"`
	Content   string      `json:"content,omitempty"`
	Direct    bool        `json:"direct,omitempty"`
	Text      string      `json:"text,omitempty"`
	Agent     string      `json:"agent,omitempty"`
	Rooms     []RoomInfo  `json:"rooms,omitempty"`
	Agents    []AgentInfo `json:"agents,omitempty"`
	Timestamp time.Time   `json:"timestamp,omitzero"`
}

// RoomInfo is one entry of a ROOM_LIST event.
type RoomInfo struct {
	Name      string    `json:"name"`
	Members   int       `json:"members"`
	CreatedAt time.Time `json:"createdAt"`
}

// AgentInfo is one entry of an AGENT_LIST event.
type AgentInfo struct {
	Nickname string `json:"nickname"`
	Address  string `json:"address"`
}

// Welcome greets a freshly admitted connection.
func Welcome(detail string) Event {
	return Event{Type: EventWelcome, Detail: detail}
}

// Errorf builds an ERROR event carrying a recoverable failure reason.
func Errorf(reason string) Event {
	return Event{Type: EventError, Reason: reason}
}

// Success acknowledges an accepted request.
func Success(detail string) Event {
	return Event{Type: EventSuccess, Detail: detail}
}

// Message is chat traffic, broadcast or direct.
func Message(from, content string, direct bool, at time.Time) Event {
	return Event{Type: EventMessage, From: from, Content: content, Direct: direct, Timestamp: at}
}

// RoomList snapshots the room table.
func RoomList(rooms []RoomInfo) Event {
	return Event{Type: EventRoomList, Rooms: rooms}
}

// AgentList snapshots the connected agents, admin eyes only.
func AgentList(agents []AgentInfo) Event {
	return Event{Type: EventAgentList, Agents: agents}
}

// Command carries a dispatched command payload to an agent.
func Command(text string) Event {
	return Event{Type: EventCommand, Text: text}
}

// CommandResponse forwards an agent's tagged reply to an admin.
func CommandResponse(from, text string) Event {
	return Event{Type: EventCommandResponse, From: from, Text: text}
}

// Timeout notifies an admin that an agent never replied in time.
func Timeout(agent string) Event {
	return Event{Type: EventTimeout, Agent: agent}
}
