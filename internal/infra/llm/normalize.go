package llm

import "strings"

const (
	geminiRoleUser  = "user"
	geminiRoleModel = "model"
	cohereRoleUser  = "USER"
	cohereRoleBot   = "CHATBOT"

	geminiSystemMarker = "System: "
)

// Normalize projects stored history into the layout a provider shape expects.
// history is never modified.
//
// Only ShapeAnthropic has a separate system field, and there a configured
// systemPrompt replaces inline system content. The other shapes keep inline
// system turns in place: ShapeChatCompletions as system messages after the
// configured prompt, ShapeGemini as user turns, ShapeCohere as USER history.
func Normalize(history []Message, systemPrompt string, shape Shape) Normalized {
	switch shape {
	case ShapeAnthropic:
		return normalizeAnthropic(history, systemPrompt)
	case ShapeGemini:
		return normalizeGemini(history, systemPrompt)
	case ShapeCohere:
		return normalizeCohere(history, systemPrompt)
	default:
		return normalizeChatCompletions(history, systemPrompt)
	}
}

func normalizeChatCompletions(history []Message, systemPrompt string) Normalized {
	out := make([]Message, 0, len(history)+1)
	if systemPrompt != "" {
		out = append(out, Message{Role: RoleSystem, Content: systemPrompt})
	}
	out = append(out, history...)
	return Normalized{Messages: out}
}

func normalizeAnthropic(history []Message, systemPrompt string) Normalized {
	out := make([]Message, 0, len(history))
	var inline []string
	for _, m := range history {
		if m.Role == RoleSystem {
			inline = append(inline, m.Content)
			continue
		}
		out = append(out, m)
	}

	system := systemPrompt
	if system == "" {
		system = strings.Join(inline, "\n\n")
	}
	return Normalized{Messages: out, System: system}
}

func normalizeGemini(history []Message, systemPrompt string) Normalized {
	out := make([]Message, 0, len(history)+1)
	if systemPrompt != "" {
		out = append(out, Message{Role: geminiRoleUser, Content: geminiSystemMarker + systemPrompt})
	}
	for _, m := range history {
		role := geminiRoleUser
		if m.Role == RoleAssistant {
			role = geminiRoleModel
		}
		out = append(out, Message{Role: role, Content: m.Content})
	}
	return Normalized{Messages: out}
}

func normalizeCohere(history []Message, systemPrompt string) Normalized {
	if len(history) == 0 {
		return Normalized{Messages: []Message{}, Prompt: systemPrompt}
	}

	last := history[len(history)-1]
	past := make([]Message, 0, len(history)-1)
	for _, m := range history[:len(history)-1] {
		role := cohereRoleUser
		if m.Role == RoleAssistant {
			role = cohereRoleBot
		}
		past = append(past, Message{Role: role, Content: m.Content})
	}

	prompt := last.Content
	if systemPrompt != "" {
		prompt = systemPrompt + "\n\n" + prompt
	}
	return Normalized{Messages: past, Prompt: prompt}
}
