package protocol

import "strings"

// Verb classifies one inbound line of client traffic.
type Verb int

const (
	// VerbChat is the fallthrough: any line that matches no keyword.
	VerbChat Verb = iota
	VerbIdentify
	VerbJoin
	VerbLeave
	VerbListRooms
	VerbListAgents
	VerbDM
	VerbCommand
	VerbReply
)

// Reply tags an agent may respond with. Anything else from an agent is
// not a reply.
const (
	TagOutput    = "OUTPUT"
	TagError     = "ERROR"
	TagException = "EXCEPTION"
)

// Inbound is the parsed form of one line. Target holds the nickname or
// room argument where the verb takes one; Body holds the free-text
// remainder. For VerbReply, Tag holds the reply tag and Body the full
// tagged line as the agent sent it.
type Inbound struct {
	Verb   Verb
	Target string
	Body   string
	Tag    string
}

// Parse classifies a raw line. It never fails: lines that fit no keyword
// come back as chat, and missing arguments are left empty for the caller
// to reject.
func Parse(line string) Inbound {
	line = strings.TrimRight(line, "\r\n")

	if tag, ok := replyTag(line); ok {
		return Inbound{Verb: VerbReply, Tag: tag, Body: line}
	}

	keyword, rest := splitWord(line)
	switch keyword {
	case "IDENTIFY":
		target, _ := splitWord(rest)
		return Inbound{Verb: VerbIdentify, Target: target}
	case "JOIN":
		target, _ := splitWord(rest)
		return Inbound{Verb: VerbJoin, Target: target}
	case "LEAVE":
		return Inbound{Verb: VerbLeave}
	case "LIST_ROOMS":
		return Inbound{Verb: VerbListRooms}
	case "LIST_AGENTS":
		return Inbound{Verb: VerbListAgents}
	case "DM":
		target, body := splitWord(rest)
		return Inbound{Verb: VerbDM, Target: target, Body: body}
	case "COMMAND":
		target, body := splitWord(rest)
		return Inbound{Verb: VerbCommand, Target: target, Body: body}
	}

	return Inbound{Verb: VerbChat, Body: line}
}

func replyTag(line string) (string, bool) {
	for _, tag := range []string{TagOutput, TagError, TagException} {
		if strings.HasPrefix(line, tag+":") {
			return tag, true
		}
	}
	return "", false
}

// splitWord cuts the first space-delimited word off s and trims the rest.
func splitWord(s string) (word, rest string) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[:i], strings.TrimSpace(s[i+1:])
	}
	return s, ""
}
