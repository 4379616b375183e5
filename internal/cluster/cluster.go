// Package cluster partitions notes into topic clusters from their
// embeddings: a seeded manifold projection followed by HDBSCAN, or
// average-linkage agglomerative clustering for small populations.
package cluster

import (
	"fmt"
	"sort"

	"github.com/ziadkadry99/distill/internal/logger"
	"github.com/ziadkadry99/distill/internal/model"
)

// Method names the algorithm that produced a partition.
type Method string

const (
	MethodDensity       Method = "density"
	MethodAgglomerative Method = "agglomerative"
	MethodNone          Method = "none"
)

// Cluster is one topic grouping. Members are sorted by id.
type Cluster struct {
	Index    int
	Members  []model.AtomicNote
	Centroid []float32
}

// NoteIDs returns the member ids.
func (c Cluster) NoteIDs() []string { return model.NoteIDs(c.Members) }

// Partition splits the input into clusters and an unclustered remainder.
type Partition struct {
	Method      Method
	Params      Params
	Clusters    []Cluster
	Unclustered []model.AtomicNote
}

// Options configure a Clusterer.
type Options struct {
	Seed int64
	// MinClusterSize caps the scaled minimum cluster size.
	MinClusterSize int
	// MinNotesForDensity is the population below which the agglomerative
	// fallback runs.
	MinNotesForDensity int
	// FallbackDistance is the cosine distance below which the fallback
	// keeps merging.
	FallbackDistance float64
}

// DefaultOptions match the configuration defaults.
var DefaultOptions = Options{Seed: 42, MinClusterSize: 5, MinNotesForDensity: 20, FallbackDistance: 0.5}

// Params are the population-scaled parameters of one clustering.
type Params struct {
	Components     int `json:"components"`
	Neighbors      int `json:"neighbors"`
	MinClusterSize int `json:"min_cluster_size"`
	MinSamples     int `json:"min_samples"`
}

// ScaledParams sizes the projection and density parameters for n notes.
// Small populations get small neighborhoods and minimum sizes.
func ScaledParams(n, maxMinClusterSize int) Params {
	if maxMinClusterSize < 2 {
		maxMinClusterSize = 2
	}
	p := Params{
		Components:     clamp(n/2, 2, 10),
		Neighbors:      clamp(n/3, 2, 15),
		MinClusterSize: clamp(n/4, 2, maxMinClusterSize),
		MinSamples:     clamp(n/5, 1, 2),
	}
	if n > 1 && p.Neighbors > n-1 {
		p.Neighbors = n - 1
	}
	return p
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

// Clusterer partitions notes. It keeps no state between calls.
type Clusterer struct {
	opts Options
}

// New returns a Clusterer. Zero option fields take their defaults.
func New(opts Options) *Clusterer {
	if opts.MinClusterSize <= 0 {
		opts.MinClusterSize = DefaultOptions.MinClusterSize
	}
	if opts.MinNotesForDensity <= 0 {
		opts.MinNotesForDensity = DefaultOptions.MinNotesForDensity
	}
	if opts.FallbackDistance <= 0 {
		opts.FallbackDistance = DefaultOptions.FallbackDistance
	}
	return &Clusterer{opts: opts}
}

// Cluster partitions notes by their embeddings. Input order does not
// matter: notes are sorted by id first, so the same set and seed always
// give the same partition. Every note must carry an embedding of the
// same length.
func (c *Clusterer) Cluster(notes []model.AtomicNote) (*Partition, error) {
	sorted := append([]model.AtomicNote(nil), notes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	n := len(sorted)
	part := &Partition{Method: MethodNone, Params: ScaledParams(n, c.opts.MinClusterSize)}
	if n < 2 {
		part.Unclustered = sorted
		return part, nil
	}

	vecs, err := normalized(sorted)
	if err != nil {
		return nil, err
	}

	var labels []int
	if n < c.opts.MinNotesForDensity {
		part.Method = MethodAgglomerative
		labels = agglomerate(vecs, c.opts.FallbackDistance, 2)
	} else {
		part.Method = MethodDensity
		p := part.Params
		emb := project(vecs, p.Components, p.Neighbors, c.opts.Seed)
		labels = hdbscan(emb, p.MinClusterSize, p.MinSamples)
	}

	part.Clusters, part.Unclustered = assemble(sorted, vecs, labels)
	logger.Debug("clustered notes", "method", part.Method, "notes", n,
		"clusters", len(part.Clusters), "unclustered", len(part.Unclustered))
	return part, nil
}

// assemble turns labels into clusters numbered by their first member, so
// numbering does not depend on the label values an algorithm assigns.
func assemble(notes []model.AtomicNote, vecs [][]float64, labels []int) ([]Cluster, []model.AtomicNote) {
	index := map[int]int{}
	var clusters []Cluster
	var members [][]int
	var unclustered []model.AtomicNote
	for i, l := range labels {
		if l < 0 {
			unclustered = append(unclustered, notes[i])
			continue
		}
		k, ok := index[l]
		if !ok {
			k = len(clusters)
			index[l] = k
			clusters = append(clusters, Cluster{Index: k})
			members = append(members, nil)
		}
		clusters[k].Members = append(clusters[k].Members, notes[i])
		members[k] = append(members[k], i)
	}
	for k := range clusters {
		clusters[k].Centroid = centroid(vecs, members[k])
	}
	return clusters, unclustered
}

func normalized(notes []model.AtomicNote) ([][]float64, error) {
	dim := len(notes[0].Embedding)
	out := make([][]float64, len(notes))
	for i, n := range notes {
		if len(n.Embedding) == 0 {
			return nil, fmt.Errorf("note %s has no embedding: %w", n.ID, model.ErrInsufficientData)
		}
		if len(n.Embedding) != dim {
			return nil, fmt.Errorf("note %s has %d dimensions, want %d", n.ID, len(n.Embedding), dim)
		}
		out[i] = unit(n.Embedding)
	}
	return out, nil
}
