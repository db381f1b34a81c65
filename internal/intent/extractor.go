package intent

import (
	"strings"

	"ingres/internal/domain"
)

// Vocabulary is the fixed term list the extractor matches against.
type Vocabulary struct {
	Regions []string
	Metrics []string
	Years   []string
}

// DefaultVocabulary lists the Indian states and union territories, the
// groundwater metrics and the assessment years the data set covers.
var DefaultVocabulary = Vocabulary{
	Regions: []string{
		"andhra pradesh", "arunachal pradesh", "assam", "bihar", "chhattisgarh", "goa",
		"gujarat", "haryana", "himachal pradesh", "jharkhand", "karnataka", "kerala",
		"madhya pradesh", "maharashtra", "manipur", "meghalaya", "mizoram", "nagaland",
		"odisha", "punjab", "rajasthan", "sikkim", "tamil nadu", "telangana", "tripura",
		"uttar pradesh", "uttarakhand", "west bengal", "delhi", "chandigarh",
		"dadra and nagar haveli", "daman and diu", "lakshadweep", "puducherry",
		"andaman and nicobar islands", "jammu and kashmir", "ladakh",
	},
	Metrics: []string{
		"rainfall", "ground water extraction", "groundwater extraction",
		"annual extractable ground water resources", "water resources", "precipitation",
		"aquifer", "bore well", "tube well",
	},
	Years: []string{"2024", "2025", "2023", "2022", "2021"},
}

// Extractor finds vocabulary terms in query text by case-insensitive
// substring containment. A term inside a longer word still matches.
type Extractor struct {
	vocab Vocabulary
}

func NewExtractor(vocab Vocabulary) *Extractor {
	return &Extractor{vocab: vocab}
}

// Extract returns matched terms per category in vocabulary order.
func (e *Extractor) Extract(text string) domain.Entities {
	lower := strings.ToLower(text)
	return domain.Entities{
		Regions: matchAll(lower, e.vocab.Regions),
		Metrics: matchAll(lower, e.vocab.Metrics),
		Years:   matchAll(lower, e.vocab.Years),
	}
}

func matchAll(lower string, terms []string) []string {
	var out []string
	for _, t := range terms {
		if strings.Contains(lower, t) {
			out = append(out, t)
		}
	}
	return out
}

func containsAny(lower string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
