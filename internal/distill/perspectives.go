package distill

import (
	"context"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/ziadkadry99/distill/internal/cluster"
	"github.com/ziadkadry99/distill/internal/model"
	"github.com/ziadkadry99/distill/internal/similarity"
)

// ClusterStrategy distills a whole topic cluster into one concept that keeps
// its distinct perspectives and contradictions apart.
type ClusterStrategy struct {
	synth     Synthesizer
	threshold float64
}

// NewClusterStrategy returns a cluster strategy.
func NewClusterStrategy(synth Synthesizer, opts Options) *ClusterStrategy {
	return &ClusterStrategy{synth: synth, threshold: opts.SimilarityThreshold}
}

// Name implements Strategy.
func (s *ClusterStrategy) Name() model.Strategy { return model.StrategyCluster }

// Plan returns the cluster as a single unit.
func (s *ClusterStrategy) Plan(c cluster.Cluster) ([][]model.AtomicNote, error) {
	if len(c.Members) < 2 {
		return nil, nil
	}
	return [][]model.AtomicNote{c.Members}, nil
}

// Distill implements Strategy.
func (s *ClusterStrategy) Distill(ctx context.Context, unit []model.AtomicNote) ([]model.DistilledConcept, error) {
	if len(unit) == 0 {
		return nil, model.ErrInsufficientData
	}
	sim, err := similarity.Matrix(unit)
	if err != nil {
		return nil, err
	}

	var syn *Synthesis
	err = withStrictRetry(func(strict bool) error {
		var err error
		syn, err = s.synth.Synthesize(ctx, unit, strict)
		return err
	})
	if err != nil {
		return nil, err
	}

	return []model.DistilledConcept{{
		Theme:          syn.Theme,
		Perspectives:   repairPerspectives(syn.Perspectives, unit, sim, s.threshold),
		Contradictions: cleanContradictions(syn.Contradictions, unit),
		Sources:        model.SourcesOf(unit),
	}}, nil
}

// repairPerspectives makes the synthesizer's perspectives safe to show:
// every member lands in exactly one perspective, and the notes of one
// perspective are pairwise more similar than threshold. A perspective that
// mixes dissimilar notes is split; notes the synthesizer left out become
// perspectives of their own.
func repairPerspectives(drafts []DraftPerspective, notes []model.AtomicNote, sim *mat.SymDense, threshold float64) []model.Perspective {
	assigned := make([]bool, len(notes))
	var out []model.Perspective

	for _, d := range drafts {
		var members []int
		for _, ref := range d.Notes {
			i := ref - 1
			if i < 0 || i >= len(notes) || assigned[i] {
				continue
			}
			assigned[i] = true
			members = append(members, i)
		}
		if len(members) == 0 {
			continue
		}
		for k, clique := range cliques(members, sim, threshold) {
			stmt := strings.TrimSpace(d.Statement)
			if k > 0 || stmt == "" {
				stmt = notes[clique[0]].Text
			}
			out = append(out, model.Perspective{Statement: stmt, NoteIDs: idsOf(notes, clique)})
		}
	}

	var orphans []int
	for i, ok := range assigned {
		if !ok {
			orphans = append(orphans, i)
		}
	}
	for _, clique := range cliques(orphans, sim, threshold) {
		out = append(out, model.Perspective{Statement: notes[clique[0]].Text, NoteIDs: idsOf(notes, clique)})
	}
	return out
}

// cliques packs members greedily, in order, into groups whose pairs all
// have similarity above threshold.
func cliques(members []int, sim *mat.SymDense, threshold float64) [][]int {
	var groups [][]int
next:
	for _, i := range members {
		for g, group := range groups {
			fits := true
			for _, j := range group {
				if sim.At(i, j) <= threshold {
					fits = false
					break
				}
			}
			if fits {
				groups[g] = append(group, i)
				continue next
			}
		}
		groups = append(groups, []int{i})
	}
	return groups
}

var emptyContradictions = map[string]bool{"": true, "none": true, "n/a": true, "na": true, "no contradictions": true}

func cleanContradictions(drafts []DraftContradiction, notes []model.AtomicNote) []model.Contradiction {
	var out []model.Contradiction
	for _, d := range drafts {
		desc := strings.TrimSpace(d.Description)
		if emptyContradictions[strings.Trim(strings.ToLower(desc), ".")] {
			continue
		}
		var ids []string
		seen := map[int]bool{}
		for _, ref := range d.Notes {
			i := ref - 1
			if i < 0 || i >= len(notes) || seen[i] {
				continue
			}
			seen[i] = true
			ids = append(ids, notes[i].ID)
		}
		out = append(out, model.Contradiction{Description: desc, NoteIDs: ids})
	}
	return out
}

func idsOf(notes []model.AtomicNote, idx []int) []string {
	ids := make([]string, len(idx))
	for k, i := range idx {
		ids[k] = notes[i].ID
	}
	return ids
}
