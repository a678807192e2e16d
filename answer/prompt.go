package answer

import (
	"fmt"
	"strings"
)

// BuildPrompt assembles the renderer prompt from the question, the ordered
// evidence bundle, and recent history. The assembly is deterministic: same
// inputs, same prompt, so cached answers stay valid.
func BuildPrompt(question, language string, evidence []EvidenceItem, history []Message) string {
	var builder strings.Builder

	if len(history) > 0 {
		builder.WriteString("Conversation so far:\n")
		for _, message := range history {
			label := "User"
			if message.Role == RoleAssistant {
				label = "Assistant"
			}
			builder.WriteString(fmt.Sprintf("%s: %s\n", label, strings.TrimSpace(message.Content)))
		}
		builder.WriteString("\n")
	}

	structured := filterEvidence(evidence, TierStructured)
	semantic := filterEvidence(evidence, TierSemantic)
	web := filterEvidence(evidence, TierWeb)

	if len(structured) > 0 {
		builder.WriteString("Verified assessment data:\n")
		for _, item := range structured {
			builder.WriteString("- " + item.Body + "\n")
		}
		builder.WriteString("\n")
	}
	if len(semantic) > 0 {
		builder.WriteString("Excerpts from uploaded documents:\n")
		for _, item := range semantic {
			builder.WriteString(fmt.Sprintf("- [%s] %s\n", item.Title, item.Body))
		}
		builder.WriteString("\n")
	}
	if len(web) > 0 {
		builder.WriteString("Web search results (unverified):\n")
		for _, item := range web {
			builder.WriteString(fmt.Sprintf("- %s: %s (%s)\n", item.Title, item.Body, item.Source))
		}
		builder.WriteString("\n")
	}
	if len(structured) == 0 && len(semantic) == 0 && len(web) == 0 {
		builder.WriteString("No evidence was found for this question.\n\n")
	}

	if trimmed := strings.TrimSpace(language); trimmed != "" && !strings.EqualFold(trimmed, "english") {
		builder.WriteString("Respond in " + trimmed + ".\n\n")
	}

	builder.WriteString("Question: " + strings.TrimSpace(question))
	return builder.String()
}

func filterEvidence(evidence []EvidenceItem, tier string) []EvidenceItem {
	filtered := make([]EvidenceItem, 0, len(evidence))
	for _, item := range evidence {
		if item.Tier == tier {
			filtered = append(filtered, item)
		}
	}
	return filtered
}
