// Package similarity finds tight near-duplicate groups inside a cluster.
package similarity

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/ziadkadry99/distill/internal/model"
)

// Group is a set of notes whose similarity graph is connected above the
// threshold. Members keep the order of the input.
type Group struct {
	Members []model.AtomicNote
	// Similarity holds the pairwise cosine similarities of Members.
	Similarity *mat.SymDense
}

// NoteIDs returns the member ids.
func (g Group) NoteIDs() []string { return model.NoteIDs(g.Members) }

// Matrix returns the pairwise cosine similarity matrix of the notes'
// embeddings.
func Matrix(notes []model.AtomicNote) (*mat.SymDense, error) {
	n := len(notes)
	if n == 0 {
		// mat panics on zero-sized matrices; the empty value is valid.
		return &mat.SymDense{}, nil
	}
	dim := len(notes[0].Embedding)
	if dim == 0 {
		return nil, fmt.Errorf("note %s has no embedding: %w", notes[0].ID, model.ErrInsufficientData)
	}

	rows := mat.NewDense(n, dim, nil)
	row := make([]float64, dim)
	for i, nt := range notes {
		if len(nt.Embedding) != dim {
			return nil, fmt.Errorf("note %s has %d dimensions, want %d", nt.ID, len(nt.Embedding), dim)
		}
		for j, x := range nt.Embedding {
			row[j] = float64(x)
		}
		if norm := floats.Norm(row, 2); norm > 0 {
			floats.Scale(1/norm, row)
		}
		rows.SetRow(i, row)
	}

	var prod mat.Dense
	prod.Mul(rows, rows.T())
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, prod.At(i, j))
		}
	}
	return sym, nil
}

// Grouper finds similarity groups.
type Grouper struct {
	Threshold float64
	MinSize   int
}

// Groups links every pair of notes whose similarity is strictly above the
// threshold and returns the connected components with at least MinSize
// members. Components are ordered by their first member.
func (g Grouper) Groups(notes []model.AtomicNote) ([]Group, error) {
	if len(notes) == 0 {
		return nil, nil
	}
	sim, err := Matrix(notes)
	if err != nil {
		return nil, err
	}
	n := len(notes)

	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	find := func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if sim.At(i, j) > g.Threshold {
				ri, rj := find(i), find(j)
				if ri != rj {
					// Lower root wins so component order is stable.
					if rj < ri {
						ri, rj = rj, ri
					}
					parent[rj] = ri
				}
			}
		}
	}

	comps := map[int][]int{}
	for i := 0; i < n; i++ {
		r := find(i)
		comps[r] = append(comps[r], i)
	}
	roots := make([]int, 0, len(comps))
	for r, idx := range comps {
		if len(idx) >= max(g.MinSize, 1) {
			roots = append(roots, r)
		}
	}
	sort.Ints(roots)

	groups := make([]Group, 0, len(roots))
	for _, r := range roots {
		idx := comps[r]
		grp := Group{Members: make([]model.AtomicNote, len(idx)), Similarity: mat.NewSymDense(len(idx), nil)}
		for a, i := range idx {
			grp.Members[a] = notes[i]
			for b := a; b < len(idx); b++ {
				grp.Similarity.SetSym(a, b, sim.At(i, idx[b]))
			}
		}
		groups = append(groups, grp)
	}
	return groups, nil
}
