// Package segment maps a list of fact texts to the ordered time slices of the
// output video: one short title segment followed by one segment per fact.
package segment

import (
	"fmt"
	"strings"

	"factmill/manager-go/internal/utils"
)

type Kind string

const (
	KindTitle Kind = "title"
	KindFact  Kind = "fact"
)

type Segment struct {
	Kind            Kind
	DisplayText     string
	DurationSeconds float64
	SequenceIndex   int
}

type Plan struct {
	Title    string
	Category string
	Segments []Segment
}

// TotalSeconds is the planned duration of the final encode.
func (p Plan) TotalSeconds() float64 {
	var total float64
	for _, s := range p.Segments {
		total += s.DurationSeconds
	}
	return total
}

// Facts returns the fact texts in segment order.
func (p Plan) Facts() []string {
	facts := make([]string, 0, len(p.Segments))
	for _, s := range p.Segments {
		if s.Kind == KindFact {
			facts = append(facts, s.DisplayText)
		}
	}
	return facts
}

type Planner struct {
	TitleDuration float64
	FactDuration  float64
	MinFacts      int
}

// fallbackFacts is the last line of defense against a zero-fact video. They
// are deliberately category-agnostic.
var fallbackFacts = []string{
	"Honey never spoils. Archaeologists have found edible honey in ancient Egyptian tombs.",
	"Octopuses have three hearts and blue blood.",
	"A day on Venus is longer than a year on Venus.",
	"Bananas are berries, but strawberries are not.",
	"The Eiffel Tower can be 15 centimeters taller during hot summer days.",
	"Sharks existed before trees appeared on Earth.",
	"A bolt of lightning is five times hotter than the surface of the sun.",
	"Wombats are the only animals that produce cube-shaped droppings.",
}

// Build produces the title segment plus one segment per fact, preserving the
// input order. An undersized fact list is padded from the built-in fallback
// set; Build errors only when even that set cannot reach MinFacts, which
// indicates a broken invariant rather than bad input.
func (p Planner) Build(facts []string, category string) (Plan, error) {
	minFacts := p.MinFacts
	if minFacts <= 0 {
		minFacts = 1
	}

	kept := make([]string, 0, len(facts))
	for _, f := range facts {
		f = strings.TrimSpace(f)
		if f != "" {
			kept = append(kept, f)
		}
	}

	if len(kept) < minFacts {
		utils.Warn("fact list undersized, padding from fallback set",
			"have", len(kept), "need", minFacts, "category", category)
		for _, f := range fallbackFacts {
			if len(kept) >= minFacts {
				break
			}
			kept = append(kept, f)
		}
	}
	if len(kept) < minFacts {
		return Plan{}, fmt.Errorf("segment: %d facts required but only %d available with fallback set", minFacts, len(kept))
	}

	title := TitleFor(len(kept), category)
	segments := make([]Segment, 0, len(kept)+1)
	segments = append(segments, Segment{
		Kind:            KindTitle,
		DisplayText:     title,
		DurationSeconds: p.TitleDuration,
		SequenceIndex:   0,
	})
	for i, f := range kept {
		segments = append(segments, Segment{
			Kind:            KindFact,
			DisplayText:     f,
			DurationSeconds: p.FactDuration,
			SequenceIndex:   i + 1,
		})
	}

	return Plan{Title: title, Category: category, Segments: segments}, nil
}

// TitleFor synthesizes the video title, e.g. "5 Amazing Ocean Facts".
func TitleFor(count int, category string) string {
	return fmt.Sprintf("%d Amazing %s Facts", count, Capitalize(category))
}

func Capitalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
