// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package verdict

import (
	"bytes"
	"testing"
	"time"

	"grimm.is/ips/internal/clock"
	"grimm.is/ips/internal/logging"
	"grimm.is/ips/internal/ratelimit"
	"grimm.is/ips/internal/rules"
)

func testLogger() *logging.Logger {
	return logging.New(logging.Config{Output: &bytes.Buffer{}, Level: logging.LevelDebug})
}

// rule builds a Rule through the same exported compile path Load uses,
// without going through JSON, since Rule's compiled expr fields are
// unexported.
func rule(t *testing.T, r rules.Rule) rules.Rule {
	t.Helper()
	if r.SrcIP == "" {
		r.SrcIP = "any"
	}
	if r.DstIP == "" {
		r.DstIP = "any"
	}
	if r.SrcPort == "" {
		r.SrcPort = "any"
	}
	if r.DstPort == "" {
		r.DstPort = "any"
	}
	if r.Protocol == "" {
		r.Protocol = "any"
	}
	compiled, err := rules.New(r)
	if err != nil {
		t.Fatalf("rules.New: %v", err)
	}
	return compiled
}

func tcpPacket(srcIP, dstIP string, srcPort, dstPort uint16) PacketView {
	return PacketView{SrcIP: srcIP, DstIP: dstIP, SrcPort: srcPort, DstPort: dstPort, Protocol: 6}
}

func TestDecide_SingleDropRuleDropsMatchingPacket(t *testing.T) {
	rs := []rules.Rule{rule(t, rules.Rule{RuleID: 1, DstPort: "80", Action: rules.ActionDrop})}
	pkt := tcpPacket("1.2.3.4", "5.6.7.8", 10000, 80)

	if got := Decide(pkt, rs, nil, testLogger()); got {
		t.Error("expected drop, got accept")
	}
}

func TestDecide_AlertThenAcceptYieldsAccept(t *testing.T) {
	rs := []rules.Rule{
		rule(t, rules.Rule{RuleID: 1, DstPort: "80", Action: rules.ActionAlert}),
		rule(t, rules.Rule{RuleID: 2, DstPort: "80", Action: rules.ActionAccept}),
	}
	pkt := tcpPacket("1.2.3.4", "5.6.7.8", 10000, 80)

	if got := Decide(pkt, rs, nil, testLogger()); !got {
		t.Error("expected accept, got drop")
	}
}

func TestDecide_LastMatchWinsBySourceIP(t *testing.T) {
	rs := []rules.Rule{
		rule(t, rules.Rule{RuleID: 1, SrcIP: "any", Action: rules.ActionDrop}),
		rule(t, rules.Rule{RuleID: 2, SrcIP: "10.0.0.1", Action: rules.ActionAccept}),
	}

	if got := Decide(tcpPacket("10.0.0.1", "1.1.1.1", 1, 2), rs, nil, testLogger()); !got {
		t.Error("expected accept for 10.0.0.1")
	}
	if got := Decide(tcpPacket("10.0.0.2", "1.1.1.1", 1, 2), rs, nil, testLogger()); got {
		t.Error("expected drop for 10.0.0.2")
	}
}

func TestDecide_RateLimitArmingAndBanLifecycle(t *testing.T) {
	rs := []rules.Rule{rule(t, rules.Rule{
		RuleID: 9, SrcIP: "any", IsRateLimitRule: true,
		MaxRequests: 3, TimeWindowSeconds: 10, BanDurationSeconds: 60,
		Action: rules.ActionDrop,
	})}

	mc := clock.NewMock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	limiter := ratelimit.New(mc)
	logger := testLogger()
	pkt := tcpPacket("9.9.9.9", "1.1.1.1", 1, 2)

	for i := 0; i < 3; i++ {
		if got := Decide(pkt, rs, limiter, logger); !got {
			t.Fatalf("packet %d: expected accept (under threshold), got drop", i+1)
		}
	}

	if got := Decide(pkt, rs, limiter, logger); got {
		t.Error("4th packet: expected drop (threshold tripped)")
	}

	mc.Advance(30 * time.Second)
	if got := Decide(pkt, rs, limiter, logger); got {
		t.Error("expected drop while still within the ban window")
	}

	mc.Advance(31 * time.Second) // total 61s since the ban was issued
	if got := Decide(pkt, rs, limiter, logger); !got {
		t.Error("expected normal evaluation once the ban has expired")
	}
}

func TestDecide_PortExpressionAlternation(t *testing.T) {
	rs := []rules.Rule{rule(t, rules.Rule{RuleID: 1, SrcPort: "80 OR 443", Action: rules.ActionDrop})}

	if got := Decide(tcpPacket("1.1.1.1", "2.2.2.2", 80, 443), rs, nil, testLogger()); got {
		t.Error("expected drop for src_port 80")
	}
	if got := Decide(tcpPacket("1.1.1.1", "2.2.2.2", 22, 443), rs, nil, testLogger()); !got {
		t.Error("expected accept (no match) for src_port 22")
	}
}

func TestDecide_StringExpressionAgainstPayload(t *testing.T) {
	rs := []rules.Rule{rule(t, rules.Rule{
		RuleID: 1, StringContent: "(admin AND password) OR root", Action: rules.ActionDrop,
	})}
	pkt := tcpPacket("1.1.1.1", "2.2.2.2", 1, 2)
	pkt.Payload = []byte("user=admin&pass=password")

	if got := Decide(pkt, rs, nil, testLogger()); got {
		t.Error("expected drop, payload matches the string expression")
	}
}

func TestDecide_LastMatchWinsAmongNonAlertRules(t *testing.T) {
	pkt := tcpPacket("1.1.1.1", "2.2.2.2", 1, 2)

	acceptThenDrop := []rules.Rule{
		rule(t, rules.Rule{RuleID: 1, Action: rules.ActionAccept}),
		rule(t, rules.Rule{RuleID: 2, Action: rules.ActionDrop}),
	}
	if got := Decide(pkt, acceptThenDrop, nil, testLogger()); got {
		t.Error("expected drop when the later matching rule drops")
	}

	dropThenAccept := []rules.Rule{
		rule(t, rules.Rule{RuleID: 1, Action: rules.ActionDrop}),
		rule(t, rules.Rule{RuleID: 2, Action: rules.ActionAccept}),
	}
	if got := Decide(pkt, dropThenAccept, nil, testLogger()); !got {
		t.Error("expected accept when the later matching rule accepts")
	}
}

func TestDecide_AlertRulesDoNotAffectVerdict(t *testing.T) {
	pkt := tcpPacket("1.1.1.1", "2.2.2.2", 1, 2)

	withoutAlerts := []rules.Rule{rule(t, rules.Rule{RuleID: 1, Action: rules.ActionDrop})}
	withAlerts := []rules.Rule{
		rule(t, rules.Rule{RuleID: 1, Action: rules.ActionAlert}),
		rule(t, rules.Rule{RuleID: 2, Action: rules.ActionDrop}),
		rule(t, rules.Rule{RuleID: 3, Action: rules.ActionAlert}),
	}

	got1 := Decide(pkt, withoutAlerts, nil, testLogger())
	got2 := Decide(pkt, withAlerts, nil, testLogger())
	if got1 != got2 {
		t.Errorf("inserting alert rules changed the verdict: %v vs %v", got1, got2)
	}
}

func TestDecide_DefaultAllowWhenNothingMatches(t *testing.T) {
	pkt := tcpPacket("1.1.1.1", "2.2.2.2", 1, 2)
	if got := Decide(pkt, nil, nil, testLogger()); !got {
		t.Error("expected accept with no rules loaded")
	}
}

// TestDecide_BanOverridesAnExplicitAcceptRule: once a source is banned, it
// is dropped regardless of what any other rule in the set would decide.
func TestDecide_BanOverridesAnExplicitAcceptRule(t *testing.T) {
	rs := []rules.Rule{
		rule(t, rules.Rule{RuleID: 1, SrcIP: "any", IsRateLimitRule: true,
			MaxRequests: 1, TimeWindowSeconds: 10, BanDurationSeconds: 60, Action: rules.ActionDrop}),
		rule(t, rules.Rule{RuleID: 2, SrcIP: "9.9.9.9", Action: rules.ActionAccept}),
	}
	mc := clock.NewMock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	limiter := ratelimit.New(mc)
	logger := testLogger()
	pkt := tcpPacket("9.9.9.9", "1.1.1.1", 1, 2)

	Decide(pkt, rs, limiter, logger) // 1st: under threshold
	if got := Decide(pkt, rs, limiter, logger); got {
		t.Fatal("expected the 2nd packet to trip the limiter and be dropped")
	}
	// Despite rule 2 unconditionally accepting 9.9.9.9, the ban wins.
	if got := Decide(pkt, rs, limiter, logger); got {
		t.Error("expected ban to override an explicit accept rule")
	}
}

// TestDecide_BannedIPIgnoresPayloadAndOtherFields ensures that once a
// source is banned, a packet from it with a different destination, ports
// and protocol is dropped too.
func TestDecide_BannedIPIgnoresPayloadAndOtherFields(t *testing.T) {
	rs := []rules.Rule{rule(t, rules.Rule{
		RuleID: 1, SrcIP: "any", IsRateLimitRule: true,
		MaxRequests: 1, TimeWindowSeconds: 10, BanDurationSeconds: 60, Action: rules.ActionDrop,
	})}
	mc := clock.NewMock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	limiter := ratelimit.New(mc)
	logger := testLogger()

	Decide(tcpPacket("9.9.9.9", "1.1.1.1", 1, 2), rs, limiter, logger)
	Decide(tcpPacket("9.9.9.9", "1.1.1.1", 1, 2), rs, limiter, logger) // trips + bans

	// A completely different flow shape from the same banned source.
	other := PacketView{SrcIP: "9.9.9.9", DstIP: "8.8.8.8", SrcPort: 55555, DstPort: 443, Protocol: 17}
	if got := Decide(other, rs, limiter, logger); got {
		t.Error("expected every packet from a banned source to be dropped")
	}
}

func TestDecide_NoRateLimiterSkipsRateLimitRules(t *testing.T) {
	rs := []rules.Rule{rule(t, rules.Rule{
		RuleID: 1, IsRateLimitRule: true, MaxRequests: 1, TimeWindowSeconds: 10,
		BanDurationSeconds: 60, Action: rules.ActionDrop,
	})}
	pkt := tcpPacket("1.1.1.1", "2.2.2.2", 1, 2)
	if got := Decide(pkt, rs, nil, testLogger()); !got {
		t.Error("expected accept: no limiter wired, rate-limit rule cannot trip or enforce a ban")
	}
}
