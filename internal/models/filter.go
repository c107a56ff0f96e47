package models

import "strings"

type MatchType string

const (
	MatchExact      MatchType = "EXACT"
	MatchStartsWith MatchType = "STARTS_WITH"
	MatchEndsWith   MatchType = "ENDS_WITH"
	MatchContains   MatchType = "CONTAINS"
)

type FilterTarget string

const (
	TargetSender  FilterTarget = "SENDER"
	TargetMessage FilterTarget = "MESSAGE"
	TargetBoth    FilterTarget = "BOTH"
)

type FilterMode string

const (
	ModeAllowList FilterMode = "ALLOW_LIST"
	ModeBlockList FilterMode = "BLOCK_LIST"
)

// FilterRule matches a sender and/or message body against a pattern.
type FilterRule struct {
	Pattern       string       `json:"pattern"`
	MatchType     MatchType    `json:"matchType"`
	Target        FilterTarget `json:"target"`
	CaseSensitive bool         `json:"caseSensitive"`
}

// FilterConfig is the user-authored filter, persisted as a JSON blob in the
// settings store and read fresh on every evaluation.
type FilterConfig struct {
	Version int          `json:"version"`
	Enabled bool         `json:"enabled"`
	Mode    FilterMode   `json:"mode"`
	Rules   []FilterRule `json:"rules"`
}

// FilterConfigVersion is the current schema version written by the relay.
// Older blobs are migrated on read.
const FilterConfigVersion = 1

func (r FilterRule) matchesString(text string) bool {
	if r.Pattern == "" || text == "" {
		return false
	}

	pattern := r.Pattern
	if !r.CaseSensitive {
		pattern = strings.ToLower(pattern)
		text = strings.ToLower(text)
	}

	switch r.MatchType {
	case MatchExact:
		return text == pattern
	case MatchStartsWith:
		return strings.HasPrefix(text, pattern)
	case MatchEndsWith:
		return strings.HasSuffix(text, pattern)
	case MatchContains:
		return strings.Contains(text, pattern)
	default:
		return false
	}
}

// Matches reports whether the rule matches the given sender and/or message.
// An absent target value never matches.
func (r FilterRule) Matches(sender, message string) bool {
	switch r.Target {
	case TargetSender:
		return r.matchesString(sender)
	case TargetMessage:
		return r.matchesString(message)
	case TargetBoth:
		return r.matchesString(sender) || r.matchesString(message)
	default:
		// Older blobs omit the target field; sender is the historical default.
		return r.matchesString(sender)
	}
}
