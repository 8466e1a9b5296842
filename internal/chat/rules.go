package chat

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	FallbackReply = "Sorry, I didn't understand that. Try 'create a blue button' or 'show a form'."
	UploadAckText = "I've received your HTML file. Click the preview to see it."
)

const (
	blueButtonHTML = `<button class="px-4 py-2 bg-blue-500 text-white rounded-lg hover:bg-blue-600">Click me</button>`
	cardHTML       = `<div class="bg-white border border-gray-200 rounded-lg shadow-md p-6 w-64"><h3 class="text-lg font-bold mb-2">Card Title</h3><p class="text-gray-600">This is some card content.</p></div>`
	formHTML       = `<form class="bg-white p-6 border rounded-lg w-full max-w-sm">
  <div class="mb-4">
    <label class="block text-gray-700 text-sm font-bold mb-2" for="username">
      Username
    </label>
    <input class="shadow appearance-none border rounded w-full py-2 px-3 text-gray-700 leading-tight focus:outline-none focus:shadow-outline" id="username" type="text" placeholder="Username">
  </div>
  <div class="flex items-center justify-between">
    <button class="bg-purple-500 hover:bg-purple-700 text-white font-bold py-2 px-4 rounded focus:outline-none focus:shadow-outline" type="button">
      Sign In
    </button>
  </div>
</form>`
)

// Rule maps a lower-case substring to a canned reply. An empty HTML means
// the reply carries no fragment.
type Rule struct {
	Match string `yaml:"match"`
	Reply string `yaml:"reply"`
	HTML  string `yaml:"html,omitempty"`
}

// RuleSet is an ordered list of rules; the first match wins.
type RuleSet struct {
	Rules    []Rule `yaml:"rules"`
	Fallback string `yaml:"fallback,omitempty"`
}

var defaultRules = RuleSet{
	Rules: []Rule{
		{Match: "blue button", Reply: "I've created a blue button for you.", HTML: blueButtonHTML},
		{Match: "card", Reply: "Here is a card component.", HTML: cardHTML},
		{Match: "form", Reply: "Here is a simple form structure.", HTML: formHTML},
	},
	Fallback: FallbackReply,
}

// DefaultRules returns a copy of the built-in rule set.
func DefaultRules() RuleSet {
	return RuleSet{
		Rules:    append([]Rule(nil), defaultRules.Rules...),
		Fallback: defaultRules.Fallback,
	}
}

// Classify matches text case-insensitively against the rules in order.
func (rs RuleSet) Classify(text string) Reply {
	lower := strings.ToLower(text)
	for _, r := range rs.Rules {
		if r.Match == "" || !strings.Contains(lower, r.Match) {
			continue
		}
		reply := Reply{Text: r.Reply}
		if r.HTML != "" {
			reply.HTML = stringPtr(r.HTML)
		}
		return reply
	}
	fallback := rs.Fallback
	if fallback == "" {
		fallback = FallbackReply
	}
	return Reply{Text: fallback}
}

// GenerateHTMLFromText runs the built-in classifier. The second result is
// nil when the text matched no rule.
func GenerateHTMLFromText(text string) (string, *string) {
	reply := defaultRules.Classify(text)
	return reply.Text, reply.HTML
}

// ParseRules decodes a YAML rule file and normalizes match keys to lower case.
func ParseRules(raw []byte) (RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(raw, &rs); err != nil {
		return RuleSet{}, fmt.Errorf("decode rules: %w", err)
	}
	if len(rs.Rules) == 0 {
		return RuleSet{}, fmt.Errorf("rules: at least one rule is required")
	}
	for i := range rs.Rules {
		r := &rs.Rules[i]
		r.Match = strings.ToLower(strings.TrimSpace(r.Match))
		r.Reply = strings.TrimSpace(r.Reply)
		if r.Match == "" {
			return RuleSet{}, fmt.Errorf("rules[%d]: match is required", i)
		}
		if r.Reply == "" {
			return RuleSet{}, fmt.Errorf("rules[%d]: reply is required", i)
		}
	}
	rs.Fallback = strings.TrimSpace(rs.Fallback)
	if rs.Fallback == "" {
		rs.Fallback = FallbackReply
	}
	return rs, nil
}

// LoadRules reads a rule file from disk.
func LoadRules(path string) (RuleSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return RuleSet{}, fmt.Errorf("read rules %s: %w", path, err)
	}
	rs, err := ParseRules(raw)
	if err != nil {
		return RuleSet{}, fmt.Errorf("%s: %w", path, err)
	}
	return rs, nil
}

// RuleResponder answers with a fixed rule set. It never fails.
type RuleResponder struct {
	rules RuleSet
}

func NewRuleResponder(rules RuleSet) *RuleResponder {
	return &RuleResponder{rules: rules}
}

func (r *RuleResponder) Respond(_ context.Context, text string) (Reply, error) {
	return r.rules.Classify(text), nil
}
