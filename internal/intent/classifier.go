package intent

import (
	"regexp"
	"strings"

	"ingres/internal/domain"
)

// Signals is what a rule sees: the lowercased text and its entities.
type Signals struct {
	Lower    string
	Entities domain.Entities
}

// Rule assigns Intent when Match holds. Rules are evaluated in order and the
// first match wins.
type Rule struct {
	Name   string
	Intent domain.Intent
	Match  func(Signals) bool
}

var (
	helpPatterns = []string{
		"help", "how to use", "guide", "tutorial", "assistance", "support",
		"how do i", "can you help", "need help", "how to",
	}
	greetingWords   = regexp.MustCompile(`\b(hi|hello|hey|namaste|greetings)\b`)
	greetingPhrases = []string{"good morning", "good evening", "good afternoon"}
	farewellWords   = regexp.MustCompile(`\b(bye|goodbye|farewell)\b`)
	farewellPhrases = []string{"see you", "take care"}
	comparisonCues  = []string{"compare", " vs ", " vs. ", " versus ", "difference between"}
	dataRequests    = []string{
		"what is rainfall", "rainfall in", "rainfall data", "rainfall for",
		"what is groundwater", "groundwater in", "groundwater data", "groundwater for",
		"show me", "give me", "tell me about", "data for", "information for",
		"statistics for", "stats for", "how much rain", "rain in",
	}
	statisticsKeywords = []string{"rainfall", "groundwater", "extraction", "resources", "data", "statistics", "mm", "cubic"}
	explanationCues    = []string{
		"how does", "what does", "explain", "definition of", "meaning of",
		"what are the", "how do", "why does", "process of",
	}
	locatingWords = []string{"data", "in ", "for "}
	topicKeywords = []string{"rainfall", "groundwater", "extraction", "data"}
)

// DefaultRules is the precedence order. Help comes before greeting because
// "hi, how do I ..." is a help request, and comparison before statistics
// because comparisons always name metrics too.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "help", Intent: domain.IntentHelp, Match: func(s Signals) bool {
			return containsAny(s.Lower, helpPatterns)
		}},
		{Name: "greeting", Intent: domain.IntentGreeting, Match: func(s Signals) bool {
			return greetingWords.MatchString(s.Lower) || containsAny(s.Lower, greetingPhrases)
		}},
		{Name: "farewell", Intent: domain.IntentFarewell, Match: func(s Signals) bool {
			return farewellWords.MatchString(s.Lower) || containsAny(s.Lower, farewellPhrases)
		}},
		{Name: "comparison", Intent: domain.IntentComparison, Match: func(s Signals) bool {
			return containsAny(" "+s.Lower+" ", comparisonCues)
		}},
		{Name: "data-request", Intent: domain.IntentStatistics, Match: func(s Signals) bool {
			return containsAny(s.Lower, dataRequests)
		}},
		{Name: "region-with-metric", Intent: domain.IntentStatistics, Match: func(s Signals) bool {
			return len(s.Entities.Regions) > 0 &&
				(len(s.Entities.Metrics) > 0 || containsAny(s.Lower, statisticsKeywords))
		}},
		{Name: "definition", Intent: domain.IntentExplanation, Match: func(s Signals) bool {
			return strings.Contains(s.Lower, "what is") &&
				len(s.Entities.Regions) == 0 && !containsAny(s.Lower, locatingWords)
		}},
		{Name: "explanation", Intent: domain.IntentExplanation, Match: func(s Signals) bool {
			return containsAny(s.Lower, explanationCues)
		}},
		{Name: "topic-keyword", Intent: domain.IntentStatistics, Match: func(s Signals) bool {
			return containsAny(s.Lower, topicKeywords)
		}},
	}
}

// Classifier maps query text to exactly one intent.
type Classifier struct {
	extractor *Extractor
	rules     []Rule
}

// NewClassifier uses DefaultRules when rules is empty.
func NewClassifier(extractor *Extractor, rules []Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Classifier{extractor: extractor, rules: rules}
}

// Classify returns the intent of text. It is a pure function of text.
func (c *Classifier) Classify(text string) domain.Intent {
	in, _ := c.Explain(text)
	return in
}

// Explain also returns the name of the rule that fired, or "default".
func (c *Classifier) Explain(text string) (domain.Intent, string) {
	s := Signals{Lower: strings.ToLower(strings.TrimSpace(text)), Entities: c.extractor.Extract(text)}
	for _, r := range c.rules {
		if r.Match(s) {
			return r.Intent, r.Name
		}
	}
	return domain.IntentGeneral, "default"
}
