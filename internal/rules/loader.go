// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	ipserrors "grimm.is/ips/internal/errors"
	"grimm.is/ips/internal/logging"
)

// knownFields are the JSON keys Load understands. Anything else in a rule
// object is logged as a warning rather than treated as fatal: a rules file
// written for a newer version of this program still loads under an older one.
var knownFields = map[string]bool{
	"rule_id":              true,
	"description":          true,
	"src_ip":               true,
	"dst_ip":               true,
	"src_port":             true,
	"dst_port":             true,
	"protocol":             true,
	"action":               true,
	"string":               true,
	"regex":                true,
	"is_rate_limit_rule":   true,
	"max_requests":         true,
	"time_window_seconds":  true,
	"ban_duration_seconds": true,
}

// Load reads, parses and validates the rules file at path, returning
// compiled rules in file order. It never exits the process: every failure
// mode (a missing file, invalid JSON, a schema violation) comes back as
// an error whose Kind (see internal/errors) tells the caller whether it is
// recoverable (KindNotFound: start with an empty/default-allow rule set)
// or not (KindValidation: the rules file itself is broken and needs
// fixing before the program should run).
func Load(path string, logger *logging.Logger) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Error("rules file not found", "path", path)
			return nil, ipserrors.Wrapf(err, ipserrors.KindNotFound, "open rules file %q", path)
		}
		logger.Error("cannot read rules file", "path", path, "error", err)
		return nil, ipserrors.Wrapf(err, ipserrors.KindInternal, "read rules file %q", path)
	}

	var raw []map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		logger.Error("rules file is not a JSON array of objects", "path", path, "error", err)
		return nil, ipserrors.Wrapf(err, ipserrors.KindValidation, "parse rules file %q", path)
	}

	seen := make(map[int]bool, len(raw))
	out := make([]Rule, 0, len(raw))

	for i, item := range raw {
		logger.Verbose("parsing rule", "index", i)

		warnUnknownFields(logger, i, item)

		r, err := parseRule(item)
		if err != nil {
			logger.Error("invalid rule, cannot continue", "index", i, "error", err)
			return nil, ipserrors.Wrapf(err, ipserrors.KindValidation, "rule at index %d", i)
		}

		if seen[r.RuleID] {
			logger.Error("duplicate rule_id", "rule_id", r.RuleID)
			return nil, ipserrors.Errorf(ipserrors.KindValidation, "duplicate rule_id %d", r.RuleID)
		}
		seen[r.RuleID] = true

		if err := r.compile(); err != nil {
			logger.Error("rule failed to compile", "rule_id", r.RuleID, "error", err)
			return nil, ipserrors.Wrapf(err, ipserrors.KindValidation, "compiling rule_id %d", r.RuleID)
		}

		out = append(out, r)
	}

	logger.Info("loaded rules", "count", len(out), "path", path)
	return out, nil
}

func warnUnknownFields(logger *logging.Logger, index int, item map[string]json.RawMessage) {
	var unknown []string
	for key := range item {
		if !knownFields[key] {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) == 0 {
		return
	}
	sort.Strings(unknown)
	logger.Warn("unknown field in rule, ignoring", "index", index, "fields", unknown)
}

func parseRule(item map[string]json.RawMessage) (Rule, error) {
	ruleID, present, err := intField(item, "rule_id", 0)
	if err != nil {
		return Rule{}, err
	}
	if !present {
		return Rule{}, fmt.Errorf("rule_id is required")
	}

	action, actionPresent, err := actionField(item)
	if err != nil {
		return Rule{}, err
	}
	if !actionPresent {
		action = ActionAccept
	}

	srcIP, err := stringField(item, "src_ip", "any")
	if err != nil {
		return Rule{}, err
	}
	dstIP, err := stringField(item, "dst_ip", "any")
	if err != nil {
		return Rule{}, err
	}
	if !fieldPresent(item, "src_ip") && !fieldPresent(item, "dst_ip") {
		return Rule{}, fmt.Errorf("at least one of src_ip or dst_ip is required")
	}

	srcPort, err := stringField(item, "src_port", "any")
	if err != nil {
		return Rule{}, err
	}
	dstPort, err := stringField(item, "dst_port", "any")
	if err != nil {
		return Rule{}, err
	}
	protocol, err := stringField(item, "protocol", "any")
	if err != nil {
		return Rule{}, err
	}
	description, err := stringField(item, "description", "")
	if err != nil {
		return Rule{}, err
	}
	stringContent, err := stringField(item, "string", "")
	if err != nil {
		return Rule{}, err
	}
	regexContent, err := stringField(item, "regex", "")
	if err != nil {
		return Rule{}, err
	}

	isRateLimit, err := boolField(item, "is_rate_limit_rule", false)
	if err != nil {
		return Rule{}, err
	}

	maxRequests, _, err := intField(item, "max_requests", 0)
	if err != nil {
		return Rule{}, err
	}
	timeWindow, _, err := intField(item, "time_window_seconds", 0)
	if err != nil {
		return Rule{}, err
	}
	banDuration, _, err := intField(item, "ban_duration_seconds", 0)
	if err != nil {
		return Rule{}, err
	}

	if isRateLimit {
		if maxRequests <= 0 || timeWindow <= 0 || banDuration <= 0 {
			return Rule{}, fmt.Errorf("rate-limit rule requires positive max_requests, time_window_seconds and ban_duration_seconds")
		}
	}

	return Rule{
		RuleID:             ruleID,
		Description:        description,
		SrcIP:              srcIP,
		DstIP:              dstIP,
		SrcPort:            srcPort,
		DstPort:            dstPort,
		Protocol:           protocol,
		Action:             action,
		StringContent:      stringContent,
		RegexContent:       regexContent,
		IsRateLimitRule:    isRateLimit,
		MaxRequests:        maxRequests,
		TimeWindowSeconds:  timeWindow,
		BanDurationSeconds: banDuration,
	}, nil
}

func fieldPresent(item map[string]json.RawMessage, key string) bool {
	v, ok := item[key]
	return ok && string(v) != "null"
}

func stringField(item map[string]json.RawMessage, key, def string) (string, error) {
	if !fieldPresent(item, key) {
		return def, nil
	}
	var s string
	if err := json.Unmarshal(item[key], &s); err != nil {
		return "", fmt.Errorf("field %q must be a string: %w", key, err)
	}
	return s, nil
}

func intField(item map[string]json.RawMessage, key string, def int) (int, bool, error) {
	if !fieldPresent(item, key) {
		return def, false, nil
	}
	var n int
	if err := json.Unmarshal(item[key], &n); err != nil {
		return 0, true, fmt.Errorf("field %q must be an integer: %w", key, err)
	}
	return n, true, nil
}

func boolField(item map[string]json.RawMessage, key string, def bool) (bool, error) {
	if !fieldPresent(item, key) {
		return def, nil
	}
	var b bool
	if err := json.Unmarshal(item[key], &b); err != nil {
		return false, fmt.Errorf("field %q must be a boolean: %w", key, err)
	}
	return b, nil
}

func actionField(item map[string]json.RawMessage) (Action, bool, error) {
	if !fieldPresent(item, "action") {
		return "", false, nil
	}
	var s string
	if err := json.Unmarshal(item["action"], &s); err != nil {
		return "", true, fmt.Errorf("field %q must be a string: %w", "action", err)
	}
	switch Action(s) {
	case ActionDrop, ActionAlert, ActionAccept:
		return Action(s), true, nil
	default:
		return "", true, fmt.Errorf("action %q is not one of drop, alert, accept", s)
	}
}

// DumpVerbose writes a human-readable listing of every rule to logger,
// bypassing structured log formatting. This is the loader's
// raw per-rule dump, enabled when verbose logging is on.
func DumpVerbose(logger *logging.Logger, rs []Rule) {
	for _, r := range rs {
		s := r.Summarize()
		logger.WriteRaw(fmt.Sprintf("| Rule ID    : %d", s.RuleID))
		logger.WriteRaw(fmt.Sprintf("| Description: %s", s.Description))
		logger.WriteRaw(fmt.Sprintf("| Src IP     : %s", s.SrcIP))
		logger.WriteRaw(fmt.Sprintf("| Dst IP     : %s", s.DstIP))
		logger.WriteRaw(fmt.Sprintf("| Src Port   : %s", s.SrcPort))
		logger.WriteRaw(fmt.Sprintf("| Dst Port   : %s", s.DstPort))
		logger.WriteRaw(fmt.Sprintf("| Protocol   : %s", s.Protocol))
		logger.WriteRaw(fmt.Sprintf("| Action     : %s", s.Action))
		logger.WriteRaw(fmt.Sprintf("| RateLimited: %t", s.RateLimited))
		logger.WriteRaw("|")
	}
}
