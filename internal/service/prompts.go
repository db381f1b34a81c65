package service

import (
	"fmt"
	"strings"

	"ingres/internal/domain"
	"ingres/internal/session"
)

const assistantName = "INGRES (Integrated Groundwater Resource Information System) assistant"

func conversationalPrompt(query string, intent domain.Intent, history []session.Turn) string {
	var instruction string
	switch intent {
	case domain.IntentGreeting:
		instruction = "Respond in a friendly, welcoming manner and briefly introduce what you can help with regarding groundwater resources in India. Keep it conversational."
	case domain.IntentFarewell:
		instruction = "Respond politely and encourage them to come back if they need help with groundwater information."
	default:
		instruction = "Give a helpful overview of what you can assist with: state-wise groundwater statistics, rainfall, extraction and resource figures, and using the INGRES system. Be specific about your capabilities."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are the %s.\n\n", assistantName)
	writeHistory(&sb, history)
	fmt.Fprintf(&sb, "The user said: %q\n\n%s", query, instruction)
	return sb.String()
}

func retrievalPrompt(query string, intent domain.Intent, contextText string, history []session.Turn) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are the %s, answering questions about India's groundwater resources.\n\n", assistantName)
	sb.WriteString(`Instructions:
- Answer only from the context data below.
- When the context contains numbers (rainfall, extraction, resources), quote them exactly.
- If the context covers a specific state, answer for that state.
- If the context does not answer the question, say so rather than guessing.
`)
	if intent == domain.IntentComparison {
		sb.WriteString("- Compare every region present in the context side by side.\n")
	}
	sb.WriteString("\n")
	writeHistory(&sb, history)
	fmt.Fprintf(&sb, "CONTEXT DATA:\n%s\n\nUSER QUERY: %s\nINTENT: %s\n", contextText, query, intent)
	return sb.String()
}

func writeHistory(sb *strings.Builder, history []session.Turn) {
	if len(history) == 0 {
		return
	}
	sb.WriteString("RECENT CONVERSATION:\n")
	for _, t := range history {
		fmt.Fprintf(sb, "User: %s\nAssistant: %s\n", t.Query, t.Answer)
	}
	sb.WriteString("\n")
}
