// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package verdict is the packet matcher and verdict engine: given a packet
// view, the loaded rule set and the rate limiter, it decides accept or
// drop and emits whatever alert side effects the match produced.
package verdict

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"grimm.is/ips/internal/logging"
	"grimm.is/ips/internal/ratelimit"
	"grimm.is/ips/internal/rules"
)

// PacketView is the 5-tuple-plus-payload contract the external packet
// extractor hands the verdict engine. Protocol follows the IP
// protocol number: 6 = TCP, 17 = UDP, anything else is treated as ANY.
type PacketView struct {
	SrcIP    string
	DstIP    string
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8
	Payload  []byte
}

// protocolString renders Protocol the way rule matching and alert lines
// expect it spelled.
func (p PacketView) protocolString() string {
	switch p.Protocol {
	case 6:
		return "TCP"
	case 17:
		return "UDP"
	default:
		return "ANY"
	}
}

// Decide runs the four-phase algorithm against pkt and rs, reporting true
// for ACCEPT and false for DROP. It never returns an error: every edge
// case resolves to a verdict.
func Decide(pkt PacketView, rs []rules.Rule, limiter *ratelimit.Limiter, logger *logging.Logger) bool {
	srcPort := strconv.Itoa(int(pkt.SrcPort))
	dstPort := strconv.Itoa(int(pkt.DstPort))
	proto := pkt.protocolString()

	matches := func(r *rules.Rule) bool {
		return r.MatchSrcIP(pkt.SrcIP) &&
			r.MatchDstIP(pkt.DstIP) &&
			r.MatchSrcPort(srcPort) &&
			r.MatchDstPort(dstPort) &&
			r.MatchProtocol(proto) &&
			r.MatchPayload(pkt.Payload)
	}

	// Phase 1: rate-limit arming. The first rate-limit rule whose fields
	// match and whose threshold is exceeded bans the source and returns
	// immediately, before any ordinary rule is even considered.
	anyRateLimitRule := false
	for i := range rs {
		r := &rs[i]
		if !r.IsRateLimitRule {
			continue
		}
		anyRateLimitRule = true
		if limiter == nil || !matches(r) {
			continue
		}
		if limiter.CheckRateLimit(pkt.SrcIP, r.MaxRequests, r.TimeWindowSeconds) {
			limiter.BanIP(pkt.SrcIP, r.BanDurationSeconds)
			logger.Alert(fmt.Sprintf(
				"Rate limit exceeded by %s (exceeded %d packets per %d seconds) - Banned for %d seconds",
				pkt.SrcIP, r.MaxRequests, r.TimeWindowSeconds, r.BanDurationSeconds,
			), "alert_id", uuid.NewString(), "kind", "rate_limit")
			return decideVerdictFromAction(r.Action)
		}
	}

	// Phase 2: ban enforcement. If the rule set has at least one
	// rate-limit rule and the source is currently banned, drop regardless
	// of anything else in the rule set.
	if anyRateLimitRule && limiter != nil && limiter.IsBanned(pkt.SrcIP) {
		logger.Alert(fmt.Sprintf("Banned IP %s attempted connection", pkt.SrcIP),
			"alert_id", uuid.NewString(), "kind", "ban_enforcement")
		return false
	}

	// Phase 3: last-match-wins rule walk. Alert rules emit and continue
	// without ever becoming the last matching non-alert rule.
	var lastAction rules.Action
	var lastRule *rules.Rule
	for i := range rs {
		r := &rs[i]
		if !matches(r) {
			continue
		}
		if r.Action == rules.ActionAlert {
			emitMatchAlert(logger, pkt, r)
			continue
		}
		lastAction = r.Action
		lastRule = r
	}

	// Phase 4: verdict resolution.
	if lastRule == nil {
		return true // no non-alert rule matched: default allow
	}
	return decideVerdictFromAction(lastAction)
}

// decideVerdictFromAction maps a rule's action to a verdict. Accept is the
// default for anything that isn't literally "drop", mirroring
// an unrecognized action falling back to accept rather than drop.
func decideVerdictFromAction(action rules.Action) bool {
	return action != rules.ActionDrop
}

func emitMatchAlert(logger *logging.Logger, pkt PacketView, r *rules.Rule) {
	logger.Alert(fmt.Sprintf("%s:%d -> %s:%d (%s)",
		pkt.SrcIP, pkt.SrcPort, pkt.DstIP, pkt.DstPort, pkt.protocolString()),
		"alert_id", uuid.NewString(), "kind", "rule_match")
	logger.WriteRaw(fmt.Sprintf("| Matches rule: %q (ID: %d)", r.Description, r.RuleID))
	if logger.IsVerbose() {
		rules.DumpVerbose(logger, []rules.Rule{*r})
	}
}
