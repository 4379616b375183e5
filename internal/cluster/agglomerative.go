package cluster

import "math"

// agglomerate runs average-linkage clustering on cosine distance, merging
// the closest pair while its distance is below threshold. Clusters smaller
// than minSize are labelled -1. Ties merge the lowest index pair first.
func agglomerate(vecs [][]float64, threshold float64, minSize int) []int {
	n := len(vecs)
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
		for j := 0; j < i; j++ {
			d := cosineDistance(vecs[i], vecs[j])
			dist[i][j], dist[j][i] = d, d
		}
	}

	size := make([]int, n)
	active := make([]bool, n)
	members := make([][]int, n)
	for i := range size {
		size[i], active[i], members[i] = 1, true, []int{i}
	}

	for {
		bi, bj, best := -1, -1, math.Inf(1)
		for i := 0; i < n; i++ {
			if !active[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if active[j] && dist[i][j] < best {
					bi, bj, best = i, j, dist[i][j]
				}
			}
		}
		if bi < 0 || best >= threshold {
			break
		}

		// Lance-Williams update for average linkage; i absorbs j.
		for k := 0; k < n; k++ {
			if !active[k] || k == bi || k == bj {
				continue
			}
			d := (float64(size[bi])*dist[bi][k] + float64(size[bj])*dist[bj][k]) / float64(size[bi]+size[bj])
			dist[bi][k], dist[k][bi] = d, d
		}
		size[bi] += size[bj]
		members[bi] = append(members[bi], members[bj]...)
		active[bj] = false
	}

	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}
	next := 0
	for i := 0; i < n; i++ {
		if !active[i] || size[i] < minSize {
			continue
		}
		for _, m := range members[i] {
			labels[m] = next
		}
		next++
	}
	return labels
}
