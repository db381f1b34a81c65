package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ingres/internal/domain"
)

func TestExtractor_Extract(t *testing.T) {
	ex := NewExtractor(DefaultVocabulary)

	got := ex.Extract("Compare Maharashtra vs BIHAR rainfall and groundwater extraction in 2024")
	assert.Equal(t, []string{"bihar", "maharashtra"}, got.Regions)
	assert.Equal(t, []string{"rainfall", "groundwater extraction"}, got.Metrics)
	assert.Equal(t, []string{"2024"}, got.Years)

	t.Run("substring inside a word still matches", func(t *testing.T) {
		assert.Equal(t, []string{"goa"}, ex.Extract("what is the goal").Regions)
	})

	t.Run("nothing found", func(t *testing.T) {
		assert.True(t, ex.Extract("hello there").Empty())
	})

	t.Run("idempotent", func(t *testing.T) {
		q := "tube well density in tamil nadu 2023"
		assert.Equal(t, ex.Extract(q), ex.Extract(q))
	})
}

func TestClassifier_Classify(t *testing.T) {
	c := NewClassifier(NewExtractor(DefaultVocabulary), nil)

	cases := []struct {
		query string
		want  domain.Intent
	}{
		{"hi, how do I use this?", domain.IntentHelp},
		{"can you help me", domain.IntentHelp},
		{"hello", domain.IntentGreeting},
		{"Namaste!", domain.IntentGreeting},
		{"good morning", domain.IntentGreeting},
		{"bye", domain.IntentFarewell},
		{"thanks, take care", domain.IntentFarewell},
		{"compare bihar vs maharashtra rainfall", domain.IntentComparison},
		{"difference between punjab and kerala groundwater", domain.IntentComparison},
		{"what is rainfall in bihar?", domain.IntentStatistics},
		{"bihar rainfall data", domain.IntentStatistics},
		{"kerala extraction", domain.IntentStatistics},
		{"which state has the most rainfall", domain.IntentStatistics},
		{"what is an aquifer", domain.IntentExplanation},
		{"how does recharge work", domain.IntentExplanation},
		{"explain the water cycle", domain.IntentExplanation},
		{"tell me a joke", domain.IntentGeneral},
		{"", domain.IntentGeneral},
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			assert.Equal(t, tc.want, c.Classify(tc.query))
		})
	}
}

func TestClassifier_StatisticsBeatsExplanation(t *testing.T) {
	c := NewClassifier(NewExtractor(DefaultVocabulary), nil)
	in, rule := c.Explain("What is rainfall in Bihar")
	assert.Equal(t, domain.IntentStatistics, in)
	assert.Equal(t, "data-request", rule)

	in, rule = c.Explain("how does extraction work in punjab")
	assert.Equal(t, domain.IntentStatistics, in)
	assert.Equal(t, "region-with-metric", rule)
}

func TestClassifier_Deterministic(t *testing.T) {
	c := NewClassifier(NewExtractor(DefaultVocabulary), nil)
	q := "show me groundwater resources for odisha"
	first := c.Classify(q)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, c.Classify(q))
	}
}

func TestClassifier_CustomRules(t *testing.T) {
	c := NewClassifier(NewExtractor(DefaultVocabulary), []Rule{
		{Name: "always", Intent: domain.IntentHelp, Match: func(Signals) bool { return true }},
	})
	assert.Equal(t, domain.IntentHelp, c.Classify("compare bihar vs goa"))
}
