// Package prompts builds the provider-agnostic prompts for the four AI
// features. Builders never see provider details.
package prompts

import (
	"strings"

	"github.com/tokligence/labgate/internal/session"
)

// HistoryWindow is how many trailing conversation messages are quoted back
// to the model.
const HistoryWindow = 3

// System prompts sent alongside each feature's prompt.
const (
	ArchitectureSystem = "You are an expert software architect. Always respond with valid JSON. Be specific about technologies, patterns, and real-world considerations."
	FlowSystem         = "You are an expert software engineer designing feature flows. Always respond with valid JSON. Focus on real-world failure scenarios, edge cases, and error handling."
	CostSystem         = "You are a cost optimization expert. Always respond with valid JSON. Focus on engineering intuition and real-world cost patterns, not precise billing."
	SystemDesignSystem = "You are a system design expert analyzing architecture changes. Always respond with valid JSON. Be specific about real-world cost, performance, and complexity implications."
)

// Constraints narrow an architecture prompt.
type Constraints struct {
	Scale    string
	Budget   string
	TeamSize string
}

// Changes are proposed system design toggles. Nil toggles are omitted.
type Changes struct {
	Database string
	Cache    *bool
	Queue    *bool
	CDN      *bool
}

// Architecture builds the architecture planning prompt.
func Architecture(idea string, constraints *Constraints, history []session.Message) string {
	var b strings.Builder
	b.WriteString("You are an expert software architect helping to design a system architecture.\n\n")
	b.WriteString("User's app idea: " + idea + "\n\n")

	if constraints != nil {
		b.WriteString("Constraints:\n")
		line(&b, "- Scale: ", constraints.Scale)
		line(&b, "- Budget: ", constraints.Budget)
		line(&b, "- Team size: ", constraints.TeamSize)
		b.WriteString("\n")
	}

	b.WriteString(architectureBody)
	appendHistory(&b, "Previous conversation context:", history)
	return b.String()
}

// Flow builds the feature flow prompt.
func Flow(feature string, history []session.Message) string {
	var b strings.Builder
	b.WriteString("You are an expert software engineer designing feature flows.\n\n")
	b.WriteString("User wants a flow for: " + feature + "\n\n")
	b.WriteString("Generate a detailed step-by-step flow. Respond with JSON:\n\n")
	b.WriteString("{\n  \"feature\": " + quote(feature) + ",\n")
	b.WriteString(flowBody)
	appendHistory(&b, "Previous context:", history)
	return b.String()
}

// Cost builds the cost reasoning prompt.
func Cost(trafficEstimate, aiUsagePattern, currentArchitecture string, history []session.Message) string {
	var b strings.Builder
	b.WriteString("You are a cost optimization expert analyzing system costs.\n\n")
	b.WriteString("Traffic estimate: " + trafficEstimate + "\n")
	line(&b, "AI usage pattern: ", aiUsagePattern)
	line(&b, "Current architecture: ", currentArchitecture)
	b.WriteString("\n")
	b.WriteString(costBody)
	appendHistory(&b, "Previous context:", history)
	return b.String()
}

// SystemDesign builds the system design impact prompt.
func SystemDesign(base string, changes *Changes, history []session.Message) string {
	var b strings.Builder
	b.WriteString("You are analyzing system design changes and their implications.\n\n")
	b.WriteString("Base architecture: " + base + "\n\n")

	if changes != nil {
		b.WriteString("Proposed changes:\n")
		line(&b, "- Database: ", changes.Database)
		toggle(&b, "- Cache: ", changes.Cache)
		toggle(&b, "- Queue: ", changes.Queue)
		toggle(&b, "- CDN: ", changes.CDN)
		b.WriteString("\n")
	}

	b.WriteString(systemDesignBody)
	appendHistory(&b, "Previous context:", history)
	return b.String()
}

func line(b *strings.Builder, label, value string) {
	if value != "" {
		b.WriteString(label + value + "\n")
	}
}

func toggle(b *strings.Builder, label string, v *bool) {
	if v == nil {
		return
	}
	if *v {
		b.WriteString(label + "enabled\n")
	} else {
		b.WriteString(label + "disabled\n")
	}
}

// appendHistory quotes the last HistoryWindow non-system messages.
func appendHistory(b *strings.Builder, heading string, history []session.Message) {
	msgs := make([]session.Message, 0, len(history))
	for _, m := range history {
		if m.Role != session.RoleSystem {
			msgs = append(msgs, m)
		}
	}
	if len(msgs) == 0 {
		return
	}
	if len(msgs) > HistoryWindow {
		msgs = msgs[len(msgs)-HistoryWindow:]
	}
	b.WriteString("\n\n" + heading + "\n")
	for _, m := range msgs {
		b.WriteString(string(m.Role) + ": " + m.Content + "\n")
	}
}

func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	return `"` + r.Replace(s) + `"`
}
