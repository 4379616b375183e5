package cluster

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Layout curve parameters for min_dist 0.1, spread 1.0.
const (
	curveA = 1.577
	curveB = 0.8951

	layoutEpochs    = 200
	negativeSamples = 5
	learningRate    = 1.0
	gradClip        = 4.0
	spectralMaxN    = 2000
	initScale       = 10.0
)

type edge struct {
	i, j int
	w    float64
}

// project embeds unit vectors into dims dimensions, preserving their
// cosine neighborhood structure. The result depends only on the input
// order and seed.
func project(vecs [][]float64, dims, k int, seed int64) [][]float64 {
	n := len(vecs)
	if n <= dims+1 {
		// Too few points for a meaningful layout; keep the first dims
		// coordinates, padded with zeros.
		out := make([][]float64, n)
		for i, v := range vecs {
			out[i] = make([]float64, dims)
			copy(out[i], v)
		}
		return out
	}
	k = clamp(k, 2, n-1)
	rng := rand.New(rand.NewPCG(uint64(seed), 0x9e3779b97f4a7c15))

	graph := fuzzyGraph(vecs, k)
	emb := spectralInit(graph, n, dims, rng)
	if emb == nil {
		emb = randomInit(n, dims, rng)
	}
	optimizeLayout(emb, graph, rng)
	return emb
}

// fuzzyGraph builds the symmetric fuzzy simplicial set over the cosine
// k-nearest-neighbor graph.
func fuzzyGraph(vecs [][]float64, k int) []edge {
	n := len(vecs)
	type nb struct {
		j int
		d float64
	}

	directed := make([]map[int]float64, n)
	target := math.Log2(float64(k))
	for i := 0; i < n; i++ {
		nbs := make([]nb, 0, n-1)
		for j := 0; j < n; j++ {
			if j != i {
				nbs = append(nbs, nb{j, cosineDistance(vecs[i], vecs[j])})
			}
		}
		sort.SliceStable(nbs, func(a, b int) bool { return nbs[a].d < nbs[b].d })
		nbs = nbs[:k]

		rho := nbs[0].d
		dists := make([]float64, k)
		for x, e := range nbs {
			dists[x] = e.d
		}
		sigma := smoothSigma(dists, rho, target)

		directed[i] = make(map[int]float64, k)
		for _, e := range nbs {
			directed[i][e.j] = math.Exp(-math.Max(0, e.d-rho) / sigma)
		}
	}

	// Fuzzy union: w = a + b - a*b.
	var edges []edge
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			a, b := directed[i][j], directed[j][i]
			if w := a + b - a*b; w > 0 {
				edges = append(edges, edge{i, j, w})
			}
		}
	}
	return edges
}

// smoothSigma binary-searches the bandwidth at which the neighbor
// memberships sum to target.
func smoothSigma(dists []float64, rho, target float64) float64 {
	lo, hi, mid := 0.0, math.Inf(1), 1.0
	for iter := 0; iter < 64; iter++ {
		sum := 0.0
		for _, d := range dists {
			sum += math.Exp(-math.Max(0, d-rho) / mid)
		}
		if math.Abs(sum-target) < 1e-5 {
			break
		}
		if sum > target {
			hi = mid
			mid = (lo + hi) / 2
		} else {
			lo = mid
			if math.IsInf(hi, 1) {
				mid *= 2
			} else {
				mid = (lo + hi) / 2
			}
		}
	}
	return math.Max(mid, math.Max(1e-3*meanOf(dists), 1e-12))
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

// spectralInit lays points out along the smallest non-trivial eigenvectors
// of the normalized graph Laplacian. It returns nil when the graph is too
// large or the decomposition fails.
func spectralInit(edges []edge, n, dims int, rng *rand.Rand) [][]float64 {
	if n > spectralMaxN {
		return nil
	}
	deg := make([]float64, n)
	for _, e := range edges {
		deg[e.i] += e.w
		deg[e.j] += e.w
	}
	for _, d := range deg {
		if d == 0 {
			return nil
		}
	}

	lap := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		lap.SetSym(i, i, 1)
	}
	for _, e := range edges {
		lap.SetSym(e.i, e.j, -e.w/math.Sqrt(deg[e.i]*deg[e.j]))
	}

	var es mat.EigenSym
	if ok := es.Factorize(lap, true); !ok {
		return nil
	}
	var vectors mat.Dense
	es.VectorsTo(&vectors)

	// Eigenvalues come back ascending; skip the trivial first vector.
	emb := make([][]float64, n)
	maxAbs := 0.0
	for i := 0; i < n; i++ {
		emb[i] = make([]float64, dims)
		for d := 0; d < dims; d++ {
			v := vectors.At(i, d+1)
			emb[i][d] = v
			maxAbs = math.Max(maxAbs, math.Abs(v))
		}
	}
	if maxAbs == 0 {
		return nil
	}
	scale := initScale / maxAbs
	for i := range emb {
		for d := range emb[i] {
			emb[i][d] = emb[i][d]*scale + rng.NormFloat64()*1e-4
		}
	}
	return emb
}

func randomInit(n, dims int, rng *rand.Rand) [][]float64 {
	emb := make([][]float64, n)
	for i := range emb {
		emb[i] = make([]float64, dims)
		for d := range emb[i] {
			emb[i][d] = rng.Float64()*2*initScale - initScale
		}
	}
	return emb
}

// optimizeLayout refines the embedding by stochastic gradient descent:
// graph edges attract, random negative samples repel.
func optimizeLayout(emb [][]float64, edges []edge, rng *rand.Rand) {
	if len(edges) == 0 {
		return
	}
	n := len(emb)
	maxW := 0.0
	for _, e := range edges {
		maxW = math.Max(maxW, e.w)
	}

	perSample := make([]float64, len(edges))
	nextSample := make([]float64, len(edges))
	perNeg := make([]float64, len(edges))
	nextNeg := make([]float64, len(edges))
	for x, e := range edges {
		perSample[x] = maxW / e.w
		nextSample[x] = perSample[x]
		perNeg[x] = perSample[x] / negativeSamples
		nextNeg[x] = perNeg[x]
	}

	for epoch := 0; epoch < layoutEpochs; epoch++ {
		alpha := learningRate * (1 - float64(epoch)/layoutEpochs)
		for x, e := range edges {
			if nextSample[x] > float64(epoch) {
				continue
			}
			yi, yj := emb[e.i], emb[e.j]

			d2 := sqDist(yi, yj)
			if d2 > 0 {
				coeff := -2 * curveA * curveB * math.Pow(d2, curveB-1) / (curveA*math.Pow(d2, curveB) + 1)
				for d := range yi {
					g := clip(coeff * (yi[d] - yj[d]))
					yi[d] += g * alpha
					yj[d] -= g * alpha
				}
			}
			nextSample[x] += perSample[x]

			negs := max(0, int((float64(epoch)-nextNeg[x])/perNeg[x]))
			for s := 0; s < negs; s++ {
				k := rng.IntN(n)
				if k == e.i {
					continue
				}
				yk := emb[k]
				d2 := sqDist(yi, yk)
				for d := range yi {
					g := gradClip
					if d2 > 0 {
						coeff := 2 * curveB / ((0.001 + d2) * (curveA*math.Pow(d2, curveB) + 1))
						g = clip(coeff * (yi[d] - yk[d]))
					}
					yi[d] += g * alpha
				}
			}
			nextNeg[x] += float64(negs) * perNeg[x]
		}
	}
}

func sqDist(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}

func clip(v float64) float64 {
	return math.Max(-gradClip, math.Min(gradClip, v))
}
