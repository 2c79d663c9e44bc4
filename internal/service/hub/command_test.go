package hub_test

import (
	"testing"

	"github.com/avress/switchyard/internal/protocol"
	"github.com/avress/switchyard/internal/service/hub"
)

func opsPolicy() hub.RolePolicy {
	return hub.AdminSetPolicy([]string{"root", "root2"})
}

func TestCommandUnauthorized(t *testing.T) {
	h, _ := newTestHub(hub.Options{RolePolicy: opsPolicy()})
	agent := connect(t, h, "bob")
	other := connect(t, h, "carol")

	h.HandleMessage(agent, "COMMAND all status")

	if got := agent.lastError(); got != "unauthorized" {
		t.Fatalf("lastError = %q, want unauthorized", got)
	}
	if len(other.ofType(protocol.EventCommand)) != 0 {
		t.Fatalf("unauthorized command reached an agent")
	}
}

func TestCommandMalformed(t *testing.T) {
	h, _ := newTestHub(hub.Options{RolePolicy: opsPolicy()})
	admin := connect(t, h, "root")

	h.HandleMessage(admin, "COMMAND bob")
	if got := admin.lastError(); got != "malformed command" {
		t.Fatalf("lastError = %q, want malformed command", got)
	}
}

func TestCommandTargetNotFound(t *testing.T) {
	h, _ := newTestHub(hub.Options{RolePolicy: opsPolicy()})
	admin := connect(t, h, "root")

	h.HandleMessage(admin, "COMMAND ghost uptime")
	if got := admin.lastError(); got != "target not found" {
		t.Fatalf("lastError = %q", got)
	}

	// Another admin is not a valid command target either.
	connect(t, h, "root2")
	admin.clear()
	h.HandleMessage(admin, "COMMAND root2 uptime")
	if got := admin.lastError(); got != "target not found" {
		t.Fatalf("lastError = %q", got)
	}
}

func TestCommandDeliveredToAgent(t *testing.T) {
	h, _ := newTestHub(hub.Options{RolePolicy: opsPolicy()})
	agent := connect(t, h, "bob")
	admin := connect(t, h, "root")

	h.HandleMessage(admin, "COMMAND bob uptime")

	cmds := agent.ofType(protocol.EventCommand)
	if len(cmds) != 1 || cmds[0].Text != "uptime" {
		t.Fatalf("unexpected agent delivery: %+v", cmds)
	}
}

func TestReplyBeforeTimeout(t *testing.T) {
	h, sched := newTestHub(hub.Options{RolePolicy: opsPolicy()})
	agent := connect(t, h, "bob")
	admin := connect(t, h, "root")

	h.HandleMessage(admin, "COMMAND bob uptime")
	h.HandleMessage(agent, "OUTPUT: done")

	resps := admin.ofType(protocol.EventCommandResponse)
	if len(resps) != 1 || resps[0].From != "bob" || resps[0].Text != "OUTPUT: done" {
		t.Fatalf("unexpected responses: %+v", resps)
	}

	// The scheduled check fires later, finds no pending entry, and stays
	// silent.
	sched.fire(0)
	if len(admin.ofType(protocol.EventTimeout)) != 0 {
		t.Fatalf("timeout fired after reply consumed the entry")
	}
}

func TestTimeoutFires(t *testing.T) {
	h, sched := newTestHub(hub.Options{RolePolicy: opsPolicy()})
	connect(t, h, "bob")
	admin := connect(t, h, "root")

	h.HandleMessage(admin, "COMMAND bob uptime")
	sched.fire(0)

	timeouts := admin.ofType(protocol.EventTimeout)
	if len(timeouts) != 1 || timeouts[0].Agent != "bob" {
		t.Fatalf("unexpected timeouts: %+v", timeouts)
	}

	// The entry is gone: firing again produces nothing.
	sched.fire(0)
	if len(admin.ofType(protocol.EventTimeout)) != 1 {
		t.Fatalf("timeout delivered twice")
	}
}

func TestTimeoutSurvivesAgentDisconnect(t *testing.T) {
	h, sched := newTestHub(hub.Options{RolePolicy: opsPolicy()})
	agent := connect(t, h, "bob")
	admin := connect(t, h, "root")

	h.HandleMessage(admin, "COMMAND bob uptime")
	h.Disconnect(agent)
	sched.fire(0)

	timeouts := admin.ofType(protocol.EventTimeout)
	if len(timeouts) != 1 || timeouts[0].Agent != "bob" {
		t.Fatalf("pending entry should outlive the agent connection: %+v", timeouts)
	}
}

func TestSingleFlightLastWriterWins(t *testing.T) {
	h, sched := newTestHub(hub.Options{RolePolicy: opsPolicy()})
	agent := connect(t, h, "bob")
	first := connect(t, h, "root")
	second := connect(t, h, "root2")

	h.HandleMessage(first, "COMMAND bob run")
	h.HandleMessage(second, "COMMAND bob run2")

	if got := len(agent.ofType(protocol.EventCommand)); got != 2 {
		t.Fatalf("agent saw %d commands, want 2", got)
	}

	// The reply correlates to the overwriting command's issuer only.
	h.HandleMessage(agent, "OUTPUT: ok")
	if got := len(first.ofType(protocol.EventCommandResponse)); got != 0 {
		t.Fatalf("superseded issuer received the reply")
	}
	if got := len(second.ofType(protocol.EventCommandResponse)); got != 1 {
		t.Fatalf("overwriting issuer missed the reply")
	}

	// Both timers fire as no-ops: the first is stale, the second's entry
	// was consumed by the reply.
	sched.fire(0)
	sched.fire(1)
	if len(first.ofType(protocol.EventTimeout))+len(second.ofType(protocol.EventTimeout)) != 0 {
		t.Fatalf("stale or consumed timers produced events")
	}
}

func TestStaleTimerDoesNotReapNewerCommand(t *testing.T) {
	h, sched := newTestHub(hub.Options{RolePolicy: opsPolicy()})
	connect(t, h, "bob")
	admin := connect(t, h, "root")

	h.HandleMessage(admin, "COMMAND bob run")
	h.HandleMessage(admin, "COMMAND bob run2")

	// The superseded command's timer fires against the newer entry and
	// must leave it alone.
	sched.fire(0)
	if len(admin.ofType(protocol.EventTimeout)) != 0 {
		t.Fatalf("stale timer reaped the newer entry")
	}

	// The newer command still times out on its own schedule.
	sched.fire(1)
	timeouts := admin.ofType(protocol.EventTimeout)
	if len(timeouts) != 1 || timeouts[0].Agent != "bob" {
		t.Fatalf("unexpected timeouts: %+v", timeouts)
	}
}

func TestOverwriteCancelsTimerWhenConfigured(t *testing.T) {
	h, sched := newTestHub(hub.Options{RolePolicy: opsPolicy(), CancelTimerOnOverwrite: true})
	connect(t, h, "bob")
	admin := connect(t, h, "root")

	h.HandleMessage(admin, "COMMAND bob run")
	h.HandleMessage(admin, "COMMAND bob run2")

	if !sched.tasks[0].cancelled {
		t.Fatalf("superseded timer was not cancelled")
	}
	if sched.tasks[1].cancelled {
		t.Fatalf("live timer was cancelled")
	}
}

func TestCommandAllScenario(t *testing.T) {
	h, sched := newTestHub(hub.Options{RolePolicy: opsPolicy()})
	bob := connect(t, h, "bob")
	carol := connect(t, h, "carol")
	root := connect(t, h, "root")

	h.HandleMessage(root, "COMMAND all status")

	for _, agent := range []*fakeConn{bob, carol} {
		cmds := agent.ofType(protocol.EventCommand)
		if len(cmds) != 1 || cmds[0].Text != "status" {
			t.Fatalf("agent missed dispatch: %+v", cmds)
		}
	}

	h.HandleMessage(bob, "OUTPUT: ok")
	resps := root.ofType(protocol.EventCommandResponse)
	if len(resps) != 1 || resps[0].From != "bob" || resps[0].Text != "OUTPUT: ok" {
		t.Fatalf("unexpected responses: %+v", resps)
	}

	// carol never replies; both scheduled checks fire, only hers acts.
	sched.fire(0)
	sched.fire(1)
	timeouts := root.ofType(protocol.EventTimeout)
	if len(timeouts) != 1 || timeouts[0].Agent != "carol" {
		t.Fatalf("unexpected timeouts: %+v", timeouts)
	}
}

func TestReplyFallsBackWhenIssuerGone(t *testing.T) {
	h, _ := newTestHub(hub.Options{RolePolicy: opsPolicy()})
	agent := connect(t, h, "bob")
	issuer := connect(t, h, "root")
	bystander := connect(t, h, "root2")

	h.HandleMessage(issuer, "COMMAND bob uptime")
	h.Disconnect(issuer)
	h.HandleMessage(agent, "OUTPUT: done")

	resps := bystander.ofType(protocol.EventCommandResponse)
	if len(resps) != 1 || resps[0].From != "bob" {
		t.Fatalf("fallback missed the other admin: %+v", resps)
	}
}

func TestLateReplyBroadcastToAdmins(t *testing.T) {
	h, sched := newTestHub(hub.Options{RolePolicy: opsPolicy()})
	agent := connect(t, h, "bob")
	issuer := connect(t, h, "root")
	other := connect(t, h, "root2")

	h.HandleMessage(issuer, "COMMAND bob uptime")
	sched.fire(0)
	issuer.clear()

	// The entry was reaped by the timeout; the late reply is unmatched
	// and goes to every admin rather than being dropped.
	h.HandleMessage(agent, "OUTPUT: finally")

	for _, admin := range []*fakeConn{issuer, other} {
		resps := admin.ofType(protocol.EventCommandResponse)
		if len(resps) != 1 || resps[0].Text != "OUTPUT: finally" {
			t.Fatalf("late reply not broadcast: %+v", resps)
		}
	}
}

func TestAgentReplyWithoutCommand(t *testing.T) {
	h, _ := newTestHub(hub.Options{RolePolicy: opsPolicy()})
	agent := connect(t, h, "bob")
	admin := connect(t, h, "root")

	h.HandleMessage(agent, "ERROR: unprompted")

	resps := admin.ofType(protocol.EventCommandResponse)
	if len(resps) != 1 || resps[0].From != "bob" || resps[0].Text != "ERROR: unprompted" {
		t.Fatalf("unmatched reply should reach admins: %+v", resps)
	}
}
