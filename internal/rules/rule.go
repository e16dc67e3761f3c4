// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package rules is the rule model and loader: it turns a JSON rules file
// into a slice of compiled Rule values the packet matcher can evaluate
// without ever re-parsing an expression on the hot path.
package rules

import (
	"fmt"
	"regexp"

	"grimm.is/ips/internal/expr"
)

// Action is the verdict a matched rule asks for.
type Action string

const (
	ActionDrop   Action = "drop"
	ActionAlert  Action = "alert"
	ActionAccept Action = "accept"
)

// Rule is one entry from the rules file, with its literal fields compiled
// into expr.Expr values once at load time (compiled once, evaluated
// many times). The exported fields are the values as read from JSON; the
// unexported compiled* fields are what the matcher actually evaluates.
type Rule struct {
	RuleID             int
	Description        string
	SrcIP              string
	DstIP              string
	SrcPort            string
	DstPort            string
	Protocol           string
	Action             Action
	StringContent      string
	RegexContent       string
	IsRateLimitRule    bool
	MaxRequests        int
	TimeWindowSeconds  int
	BanDurationSeconds int

	srcIPExpr   *expr.Expr
	dstIPExpr   *expr.Expr
	srcPortExpr *expr.Expr
	dstPortExpr *expr.Expr
	stringExpr  *expr.Expr
	regex       *regexp.Regexp
}

// New compiles r's literal fields into matchers and returns the ready-to-
// evaluate Rule. Load uses this internally after validating a JSON rule;
// it is also the entry point for any other caller (e.g. tests) building a
// Rule from already-valid fields rather than from a rules file.
func New(r Rule) (Rule, error) {
	if err := r.compile(); err != nil {
		return Rule{}, err
	}
	return r, nil
}

// compile builds every expr.Expr and the optional regexp this rule needs.
// Called exactly once, at load time.
func (r *Rule) compile() error {
	r.srcIPExpr = expr.Compile(r.SrcIP)
	r.dstIPExpr = expr.Compile(r.DstIP)
	r.srcPortExpr = expr.Compile(r.SrcPort)
	r.dstPortExpr = expr.Compile(r.DstPort)
	r.stringExpr = expr.Compile(r.StringContent)

	if r.RegexContent != "" {
		re, err := regexp.Compile(r.RegexContent)
		if err != nil {
			return fmt.Errorf("regex field: %w", err)
		}
		r.regex = re
	}
	return nil
}

// MatchSrcIP reports whether ip satisfies this rule's src_ip expression.
func (r *Rule) MatchSrcIP(ip string) bool { return r.srcIPExpr.Evaluate(ip, expr.FieldIP) }

// MatchDstIP reports whether ip satisfies this rule's dst_ip expression.
func (r *Rule) MatchDstIP(ip string) bool { return r.dstIPExpr.Evaluate(ip, expr.FieldIP) }

// MatchSrcPort reports whether port satisfies this rule's src_port expression.
func (r *Rule) MatchSrcPort(port string) bool { return r.srcPortExpr.Evaluate(port, expr.FieldPort) }

// MatchDstPort reports whether port satisfies this rule's dst_port expression.
func (r *Rule) MatchDstPort(port string) bool { return r.dstPortExpr.Evaluate(port, expr.FieldPort) }

// MatchProtocol reports whether proto (e.g. "TCP", "UDP") satisfies this
// rule's protocol field: a wildcard ("any"/"ANY"/unset) matches anything,
// otherwise the comparison is case-insensitive exact equality. Protocol
// is deliberately not routed through the generic string field type: that
// type's substring semantics suit a payload search, not a token field
// where "TCP" must not match "UDP" just because neither contains the
// other.
func (r *Rule) MatchProtocol(proto string) bool {
	if isAnyToken(r.Protocol) {
		return true
	}
	return equalFold(r.Protocol, proto)
}

func isAnyToken(s string) bool { return s == "" || s == "any" || s == "ANY" }

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if cb >= 'A' && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// MatchPayload reports whether payload satisfies both the string_content
// expression and, if present, the regex_content pattern. Both must match
// when both are configured; an empty/absent field always matches its half.
func (r *Rule) MatchPayload(payload []byte) bool {
	if !r.stringExpr.Evaluate(string(payload), expr.FieldString) {
		return false
	}
	if r.regex != nil && !r.regex.Match(payload) {
		return false
	}
	return true
}

// Summary is the set of fields the verbose per-rule dump prints. It
// is the loader's raw per-rule listing.
type Summary struct {
	RuleID       int
	Description  string
	SrcIP        string
	DstIP        string
	SrcPort      string
	DstPort      string
	Protocol     string
	Action       Action
	RateLimited  bool
}

// Summarize returns the fields DumpVerbose prints for this rule.
func (r *Rule) Summarize() Summary {
	return Summary{
		RuleID:      r.RuleID,
		Description: r.Description,
		SrcIP:       r.SrcIP,
		DstIP:       r.DstIP,
		SrcPort:     r.SrcPort,
		DstPort:     r.DstPort,
		Protocol:    r.Protocol,
		Action:      r.Action,
		RateLimited: r.IsRateLimitRule,
	}
}
