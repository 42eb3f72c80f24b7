package contacts

import (
	"strings"
	"unicode"
)

// Seniority is a coarse rank derived from a job title.
type Seniority struct {
	Label string `json:"label"`
	Level int    `json:"level"`
}

var (
	SeniorityUnknown    = Seniority{Label: "Unknown", Level: 0}
	SeniorityIndividual = Seniority{Label: "Individual Contributor", Level: 1}
	SeniorityManager    = Seniority{Label: "Manager", Level: 2}
	SeniorityDirector   = Seniority{Label: "Director", Level: 3}
	SeniorityVP         = Seniority{Label: "VP", Level: 4}
	SenioritySVP        = Seniority{Label: "SVP", Level: 5}
	SeniorityExecutive  = Seniority{Label: "C-Level", Level: 6}
)

type seniorityRule struct {
	seniority Seniority
	phrases   []string // matched as substrings
	words     []string // matched as whole words
}

// Rules are tried top-down; titles often match several.
var seniorityLadder = []seniorityRule{
	{
		seniority: SeniorityExecutive,
		phrases:   []string{"chief", "c-level", "c-suite"},
		words:     []string{"ceo", "cto", "cfo", "coo", "cmo", "cio", "ciso", "cro", "cpo"},
	},
	{
		seniority: SenioritySVP,
		phrases:   []string{"senior vice president"},
		words:     []string{"svp"},
	},
	{
		seniority: SeniorityVP,
		phrases:   []string{"vice president"},
		words:     []string{"vp"},
	},
	{
		seniority: SeniorityDirector,
		phrases:   []string{"director"},
	},
	{
		seniority: SeniorityManager,
		phrases:   []string{"manager"},
		words:     []string{"lead"},
	},
}

// ClassifySeniority ranks a job title. An empty title is Unknown; a title
// matching no rule is an individual contributor.
func ClassifySeniority(title string) Seniority {
	normalized := strings.ToLower(strings.TrimSpace(title))
	if normalized == "" {
		return SeniorityUnknown
	}

	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(normalized, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		words[w] = true
	}

	for _, rule := range seniorityLadder {
		for _, phrase := range rule.phrases {
			if strings.Contains(normalized, phrase) {
				return rule.seniority
			}
		}
		for _, w := range rule.words {
			if words[w] {
				return rule.seniority
			}
		}
	}
	return SeniorityIndividual
}
