package distill

import (
	"context"
	"strings"
	"unicode"

	"github.com/ziadkadry99/distill/internal/cluster"
	"github.com/ziadkadry99/distill/internal/model"
	"github.com/ziadkadry99/distill/internal/similarity"
)

// GroupStrategy collapses each similarity group of a cluster into one
// concept anchored on its most informative member.
type GroupStrategy struct {
	synth   Synthesizer
	grouper similarity.Grouper
}

// NewGroupStrategy returns a group strategy. With a nil synthesizer the
// anchor's text is used as the theme and no service calls are made.
func NewGroupStrategy(synth Synthesizer, opts Options) *GroupStrategy {
	return &GroupStrategy{
		synth:   synth,
		grouper: similarity.Grouper{Threshold: opts.SimilarityThreshold, MinSize: opts.MinSimilarityGroupSize},
	}
}

// Name implements Strategy.
func (s *GroupStrategy) Name() model.Strategy { return model.StrategyGroup }

// Plan returns the similarity groups of the cluster.
func (s *GroupStrategy) Plan(c cluster.Cluster) ([][]model.AtomicNote, error) {
	groups, err := s.grouper.Groups(c.Members)
	if err != nil {
		return nil, err
	}
	units := make([][]model.AtomicNote, len(groups))
	for i, g := range groups {
		units[i] = g.Members
	}
	return units, nil
}

// Distill implements Strategy. The anchor is the first source; the other
// members are carried as provenance only.
func (s *GroupStrategy) Distill(ctx context.Context, unit []model.AtomicNote) ([]model.DistilledConcept, error) {
	if len(unit) == 0 {
		return nil, model.ErrInsufficientData
	}
	ai := Anchor(unit)
	anchor := unit[ai]
	others := make([]model.AtomicNote, 0, len(unit)-1)
	others = append(others, unit[:ai]...)
	others = append(others, unit[ai+1:]...)

	theme := anchor.Text
	if s.synth != nil {
		err := withStrictRetry(func(strict bool) error {
			t, err := s.synth.Merge(ctx, anchor, others, strict)
			theme = t
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	return []model.DistilledConcept{{
		Theme:        theme,
		AnchorNoteID: anchor.ID,
		Sources:      model.SourcesOf(append([]model.AtomicNote{anchor}, others...)),
	}}, nil
}

// Anchor returns the index of the member with the most distinct content
// words. Ties go to the longer text, then to the lower id.
func Anchor(notes []model.AtomicNote) int {
	best, bestWords := 0, -1
	for i, n := range notes {
		w := contentWords(n.Text)
		switch {
		case w > bestWords:
		case w == bestWords && len(n.Text) > len(notes[best].Text):
		case w == bestWords && len(n.Text) == len(notes[best].Text) && n.ID < notes[best].ID:
		default:
			continue
		}
		best, bestWords = i, w
	}
	return best
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true, "be": true,
	"but": true, "by": true, "for": true, "from": true, "has": true, "have": true, "i": true,
	"if": true, "in": true, "is": true, "it": true, "its": true, "my": true, "of": true,
	"on": true, "or": true, "so": true, "that": true, "the": true, "this": true, "to": true,
	"was": true, "we": true, "were": true, "with": true, "you": true,
}

func contentWords(text string) int {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		if !stopwords[w] {
			seen[w] = true
		}
	}
	return len(seen)
}
