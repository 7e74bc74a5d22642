// Package facts owns the persisted fact catalog and its generation. Facts
// live in a category-keyed JSON document; they are marked used after a
// successful video and never deleted.
package facts

import "time"

type Fact struct {
	Text              string     `json:"text"`
	Category          string     `json:"category"`
	VerificationScore int        `json:"verification_score"`
	DateAdded         time.Time  `json:"date_added"`
	Used              bool       `json:"used"`
	UsedDate          *time.Time `json:"used_date,omitempty"`
}

func Texts(facts []Fact) []string {
	texts := make([]string, 0, len(facts))
	for _, f := range facts {
		texts = append(texts, f.Text)
	}
	return texts
}
