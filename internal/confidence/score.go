// Package confidence scores how well an answer is backed by its context.
// The score is a heuristic, not a calibrated probability.
package confidence

import (
	"math"
	"strings"
	"unicode"
)

const (
	// Floor is returned when either the context or the answer is empty, and
	// is the lowest score any evidence-backed answer can get.
	Floor = 0.1
	// Fallback marks templated answers, always below any generated answer.
	Fallback = 0.05
	// Conversational is used for greeting, farewell and help replies.
	Conversational = 1.0
	// Failure is reported with the apology response.
	Failure = 0.0

	contextSaturation = 1000.0
	answerSaturation  = 200.0

	contextWeight     = 0.4
	answerWeight      = 0.3
	specificityWeight = 0.3

	digitBonus   = 0.3
	keywordBonus = 0.2
)

var domainKeywords = []string{"state", "rainfall", "groundwater", "ham", "mm"}

// Score rates answer against context, rounded to two decimals.
func Score(context, answer string) float64 {
	if strings.TrimSpace(context) == "" || strings.TrimSpace(answer) == "" {
		return Floor
	}
	contextScore := math.Min(float64(len(context))/contextSaturation, 1)
	answerScore := math.Min(float64(len(answer))/answerSaturation, 1)

	specificity := 0.0
	if strings.IndexFunc(answer, unicode.IsDigit) >= 0 {
		specificity += digitBonus
	}
	lower := strings.ToLower(answer)
	for _, k := range domainKeywords {
		if strings.Contains(lower, k) {
			specificity += keywordBonus
			break
		}
	}

	s := contextScore*contextWeight + answerScore*answerWeight + specificity*specificityWeight
	s = math.Round(s*100) / 100
	return math.Max(Floor, math.Min(s, 1))
}
