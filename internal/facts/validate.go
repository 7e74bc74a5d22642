package facts

import "strings"

// Validator scores how publishable a generated fact looks. The score starts
// at 100 and loses points for red flags; anything below MinScore is
// discarded rather than published and later fact-checked by viewers.
type Validator struct {
	MinScore  int
	MinLength int
	MaxLength int
}

func NewValidator(minLength, maxLength int) *Validator {
	return &Validator{MinScore: 70, MinLength: minLength, MaxLength: maxLength}
}

var exaggerationWords = []string{
	"always", "never", "every single", "all scientists", "proves",
	"100%", "guaranteed", "definitely", "impossible", "miracle",
}

var hedgeWords = []string{
	"might", "maybe", "possibly", "some say", "it is said", "allegedly",
	"reportedly", "rumored",
}

// Score returns the verification score for a fact text.
func (v *Validator) Score(text string) int {
	score := 100
	lower := strings.ToLower(text)

	n := len(strings.TrimSpace(text))
	if v.MinLength > 0 && n < v.MinLength {
		score -= 40
	}
	if v.MaxLength > 0 && n > v.MaxLength {
		score -= 20
	}

	for _, w := range exaggerationWords {
		if strings.Contains(lower, w) {
			score -= 15
		}
	}
	for _, w := range hedgeWords {
		if strings.Contains(lower, w) {
			score -= 10
		}
	}

	// A fact without any concrete anchor (a number, a name) tends to be
	// generated filler.
	if !strings.ContainsAny(text, "0123456789") && !containsProperNoun(text) {
		score -= 10
	}
	if strings.Contains(lower, "as an ai") || strings.Contains(lower, "language model") {
		score = 0
	}

	if score < 0 {
		score = 0
	}
	return score
}

// IsValid reports whether the text clears the minimum score.
func (v *Validator) IsValid(text string) bool {
	return v.Score(text) >= v.MinScore
}

func containsProperNoun(text string) bool {
	words := strings.Fields(text)
	for i, w := range words {
		if i == 0 {
			continue
		}
		r := []rune(w)
		if len(r) > 1 && r[0] >= 'A' && r[0] <= 'Z' {
			return true
		}
	}
	return false
}
