package filter

import (
	"testing"

	"smsrelay/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

type staticSource struct {
	blob string
}

func (s staticSource) FilterConfigBlob() string { return s.blob }

func TestEvaluate_DisabledAlwaysPasses(t *testing.T) {
	cfg := models.FilterConfig{
		Enabled: false,
		Mode:    models.ModeBlockList,
		Rules: []models.FilterRule{
			{Pattern: "", MatchType: models.MatchContains, Target: models.TargetBoth},
			{Pattern: "a", MatchType: models.MatchContains, Target: models.TargetBoth},
		},
	}

	assert.True(t, Evaluate(cfg, "spam", "anything at all"))
}

func TestEvaluate_EmptyRulesNeverBlock(t *testing.T) {
	for _, mode := range []models.FilterMode{models.ModeAllowList, models.ModeBlockList} {
		cfg := models.FilterConfig{Enabled: true, Mode: mode}
		assert.True(t, Evaluate(cfg, "+15551234567", "hello"), "mode %s", mode)
	}
}

func TestEvaluate_BlockListExactSender(t *testing.T) {
	cfg := models.FilterConfig{
		Enabled: true,
		Mode:    models.ModeBlockList,
		Rules: []models.FilterRule{
			{Pattern: "SPAM", MatchType: models.MatchExact, Target: models.TargetSender, CaseSensitive: false},
		},
	}

	assert.False(t, Evaluate(cfg, "spam", "buy now"), "exact case-insensitive match should block")
	assert.True(t, Evaluate(cfg, "spam1", "buy now"), "non-exact sender should pass")
}

func TestEvaluate_AllowListRequiresMatch(t *testing.T) {
	cfg := models.FilterConfig{
		Enabled: true,
		Mode:    models.ModeAllowList,
		Rules: []models.FilterRule{
			{Pattern: "+1555", MatchType: models.MatchStartsWith, Target: models.TargetSender},
		},
	}

	assert.True(t, Evaluate(cfg, "+15551234567", "hi"))
	assert.False(t, Evaluate(cfg, "+441234567890", "hi"))
}

func TestEvaluate_RuleMatching(t *testing.T) {
	tests := []struct {
		name    string
		rule    models.FilterRule
		sender  string
		message string
		matches bool
	}{
		{
			name:    "ends with on message",
			rule:    models.FilterRule{Pattern: "now", MatchType: models.MatchEndsWith, Target: models.TargetMessage},
			message: "buy now",
			matches: true,
		},
		{
			name:    "contains on both hits sender",
			rule:    models.FilterRule{Pattern: "555", MatchType: models.MatchContains, Target: models.TargetBoth},
			sender:  "+15551234567",
			message: "hello",
			matches: true,
		},
		{
			name:    "case sensitive mismatch",
			rule:    models.FilterRule{Pattern: "SPAM", MatchType: models.MatchExact, Target: models.TargetSender, CaseSensitive: true},
			sender:  "spam",
			matches: false,
		},
		{
			name:    "absent sender never matches",
			rule:    models.FilterRule{Pattern: "x", MatchType: models.MatchContains, Target: models.TargetSender},
			sender:  "",
			message: "x marks the spot",
			matches: false,
		},
		{
			name:    "empty pattern never matches",
			rule:    models.FilterRule{Pattern: "", MatchType: models.MatchContains, Target: models.TargetBoth},
			sender:  "anyone",
			message: "anything",
			matches: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.matches, tt.rule.Matches(tt.sender, tt.message))
		})
	}
}

func TestEngine_MigratesLegacyBlob(t *testing.T) {
	// Pre-versioned blobs carried no target field on rules.
	blob := `{"enabled":true,"rules":[{"pattern":"SPAM","matchType":"EXACT"}]}`
	engine := NewEngine(staticSource{blob: blob}, logrus.New())

	assert.False(t, engine.ShouldProcess("spam", "hello"), "legacy rule should default to sender target and block-list mode")
	assert.True(t, engine.ShouldProcess("friend", "SPAM in body"), "legacy rule should not match on message")
}

func TestEngine_CorruptBlobDisablesFiltering(t *testing.T) {
	engine := NewEngine(staticSource{blob: "{not json"}, logrus.New())
	assert.True(t, engine.ShouldProcess("anyone", "anything"))
}

func TestEngine_EmptyBlobPasses(t *testing.T) {
	engine := NewEngine(staticSource{blob: ""}, logrus.New())
	assert.True(t, engine.ShouldProcess("anyone", "anything"))
}
