package service

import (
	"strings"

	"ingres/internal/domain"
)

var conversationalTemplates = map[domain.Intent]string{
	domain.IntentGreeting: `Hello! Welcome to INGRES, the Integrated Groundwater Resource Information System.

I can help you with:
- Groundwater statistics for Indian states and union territories
- Rainfall data and its relationship with groundwater
- Ground water extraction and annual extractable resources
- Using the INGRES system and understanding its reports

What would you like to know about groundwater resources today?`,
	domain.IntentFarewell: "Thank you for using INGRES! If you need more information about groundwater resources in India, feel free to ask anytime. Take care!",
	domain.IntentHelp: `I'm the INGRES assistant. You can ask me about:

Data and statistics:
- State-wise groundwater data, e.g. "what is rainfall in bihar?"
- Comparisons, e.g. "compare punjab vs rajasthan extraction"
- Rainfall, extraction and resource availability figures

Concepts:
- Groundwater management practices and terminology, e.g. "what is an aquifer?"

Name a state, a metric or a year to get specific figures.`,
}

var retrievalTemplates = map[domain.Intent]string{
	domain.IntentStatistics:  "Here are the groundwater records that match your query.",
	domain.IntentComparison:  "Here are the records for the regions you asked to compare.",
	domain.IntentExplanation: "I can't generate an explanation right now, but these sources are relevant to your question.",
}

const (
	generalTemplate = "Here is the most relevant information I found in the groundwater database."
	noContextAnswer = "I couldn't find specific information to answer your query. Please try rephrasing your question or ask about specific states or groundwater metrics like rainfall, extraction, or resources."
)

func conversationalAnswer(intent domain.Intent) string {
	if t, ok := conversationalTemplates[intent]; ok {
		return t
	}
	return conversationalTemplates[domain.IntentHelp]
}

// fallbackAnswer is deterministic and only repeats retrieved evidence.
func fallbackAnswer(intent domain.Intent, evidence domain.Context) string {
	if evidence.Empty() {
		return noContextAnswer
	}
	intro, ok := retrievalTemplates[intent]
	if !ok {
		intro = generalTemplate
	}
	return intro + "\n\n" + strings.TrimSpace(evidence.Text)
}
