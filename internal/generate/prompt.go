package generate

import (
	"fmt"
	"strings"

	"pressline/internal/domain"
)

// buildPrompt assembles the generation prompt for one content requirement
// from the opportunity's strategic context.
func buildPrompt(opp domain.Opportunity, item domain.ContentRequirement, lane string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a communications strategist executing a campaign.\n\n")
	fmt.Fprintf(&b, "Campaign: %s\n", opp.Title)
	if opp.Objective != "" {
		fmt.Fprintf(&b, "Objective: %s\n", opp.Objective)
	}
	if opp.Timeline != "" {
		fmt.Fprintf(&b, "Timeline: %s\n", opp.Timeline)
	}
	if len(opp.KeyMessages) > 0 {
		b.WriteString("Key messages:\n")
		for _, m := range opp.KeyMessages {
			fmt.Fprintf(&b, "  - %s\n", m)
		}
	}
	fmt.Fprintf(&b, "\nDeliverable: %s (%s channel)\n", strings.ReplaceAll(item.Type, "_", " "), lane)
	if item.Stakeholder != "" {
		fmt.Fprintf(&b, "Audience: %s\n", item.Stakeholder)
	}
	if item.Purpose != "" {
		fmt.Fprintf(&b, "Purpose: %s\n", item.Purpose)
	}
	if len(item.KeyPoints) > 0 {
		b.WriteString("Points to cover:\n")
		for _, p := range item.KeyPoints {
			fmt.Fprintf(&b, "  - %s\n", p)
		}
	}
	if item.Urgency != "" {
		fmt.Fprintf(&b, "Urgency: %s\n", item.Urgency)
	}
	b.WriteString("\nWrite the deliverable in full, ready to publish. Output only the content itself, no preamble.\n")
	return b.String()
}
