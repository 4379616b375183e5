package cluster

import (
	"math"
	"sort"
)

// merge is one single-linkage dendrogram step joining nodes a and b into a
// new node. Leaves are 0..n-1; merge x creates node n+x.
type merge struct {
	a, b int
	dist float64
	size int
}

// condensed is one row of the condensed cluster tree: child (a point when
// child < n, else a cluster) leaves parent at lambda.
type condensed struct {
	parent, child int
	lambda        float64
	size          int
}

// hdbscan labels points with HDBSCAN over Euclidean distance, selecting
// clusters by excess of mass. The root is never selected; points outside
// every selected cluster are labelled -1.
func hdbscan(points [][]float64, minClusterSize, minSamples int) []int {
	n := len(points)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}
	if n < 2 || n < minClusterSize {
		return labels
	}

	tree := singleLinkage(points, minSamples)
	rows := condense(tree, n, minClusterSize)
	selected := selectEOM(rows, n)
	if len(selected) == 0 {
		return labels
	}

	parentOf := make(map[int]int, len(rows))
	for _, r := range rows {
		parentOf[r.child] = r.parent
	}
	for p := 0; p < n; p++ {
		for c, ok := parentOf[p]; ok; c, ok = parentOf[c] {
			if l, sel := selected[c]; sel {
				labels[p] = l
				break
			}
		}
	}
	return labels
}

// singleLinkage builds the dendrogram of the minimum spanning tree over
// mutual reachability distances.
func singleLinkage(points [][]float64, minSamples int) []merge {
	n := len(points)
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := euclidean(points[i], points[j])
			dist[i][j], dist[j][i] = d, d
		}
	}

	// Core distance counts the point itself as its first neighbor.
	k := clamp(minSamples, 1, n)
	core := make([]float64, n)
	for i := range core {
		row := append([]float64(nil), dist[i]...)
		sort.Float64s(row)
		core[i] = row[k-1]
	}
	reach := func(i, j int) float64 {
		return math.Max(dist[i][j], math.Max(core[i], core[j]))
	}

	// Prim's algorithm on the dense graph.
	type mstEdge struct {
		a, b int
		w    float64
	}
	inTree := make([]bool, n)
	best := make([]float64, n)
	from := make([]int, n)
	for i := range best {
		best[i] = math.Inf(1)
	}
	edges := make([]mstEdge, 0, n-1)
	cur := 0
	inTree[0] = true
	for len(edges) < n-1 {
		next, nextW := -1, math.Inf(1)
		for j := 0; j < n; j++ {
			if inTree[j] {
				continue
			}
			if w := reach(cur, j); w < best[j] {
				best[j], from[j] = w, cur
			}
			if best[j] < nextW {
				next, nextW = j, best[j]
			}
		}
		inTree[next] = true
		edges = append(edges, mstEdge{from[next], next, nextW})
		cur = next
	}
	sort.SliceStable(edges, func(i, j int) bool { return edges[i].w < edges[j].w })

	// Union-find over the sorted edges yields the dendrogram.
	parent := make([]int, 2*n-1)
	size := make([]int, 2*n-1)
	for i := range parent {
		parent[i] = i
		if i < n {
			size[i] = 1
		}
	}
	find := func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}

	tree := make([]merge, 0, n-1)
	for _, e := range edges {
		ra, rb := find(e.a), find(e.b)
		node := n + len(tree)
		parent[ra], parent[rb] = node, node
		size[node] = size[ra] + size[rb]
		tree = append(tree, merge{a: ra, b: rb, dist: e.w, size: size[node]})
	}
	return tree
}

// condense walks the dendrogram from the root, keeping only splits where
// both sides have at least minSize points. Smaller sides fall out of their
// parent cluster point by point. Cluster labels start at n (the root).
func condense(tree []merge, n, minSize int) []condensed {
	root := 2*n - 2
	sizeOf := func(node int) int {
		if node < n {
			return 1
		}
		return tree[node-n].size
	}
	leaves := func(node int) []int {
		var out []int
		stack := []int{node}
		for len(stack) > 0 {
			x := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if x < n {
				out = append(out, x)
				continue
			}
			m := tree[x-n]
			stack = append(stack, m.b, m.a)
		}
		return out
	}

	relabel := map[int]int{root: n}
	nextLabel := n + 1
	var rows []condensed

	queue := []int{root}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if node < n {
			continue
		}
		m := tree[node-n]
		lambda := 1 / math.Max(m.dist, 1e-10)
		label := relabel[node]
		la, lb := sizeOf(m.a), sizeOf(m.b)

		switch {
		case la >= minSize && lb >= minSize:
			for _, child := range []int{m.a, m.b} {
				relabel[child] = nextLabel
				rows = append(rows, condensed{label, nextLabel, lambda, sizeOf(child)})
				nextLabel++
				queue = append(queue, child)
			}
		case la < minSize && lb < minSize:
			for _, child := range []int{m.a, m.b} {
				for _, p := range leaves(child) {
					rows = append(rows, condensed{label, p, lambda, 1})
				}
			}
		default:
			big, small := m.a, m.b
			if la < minSize {
				big, small = m.b, m.a
			}
			relabel[big] = label
			queue = append(queue, big)
			for _, p := range leaves(small) {
				rows = append(rows, condensed{label, p, lambda, 1})
			}
		}
	}
	return rows
}

// selectEOM picks the clusters maximizing total stability, excluding the
// root. It returns selected cluster -> output label.
func selectEOM(rows []condensed, n int) map[int]int {
	birth := map[int]float64{n: 0}
	children := map[int][]int{}
	for _, r := range rows {
		if r.child >= n {
			birth[r.child] = r.lambda
			children[r.parent] = append(children[r.parent], r.child)
		}
	}

	stability := map[int]float64{}
	for c := range birth {
		stability[c] = 0
	}
	for _, r := range rows {
		stability[r.parent] += (r.lambda - birth[r.parent]) * float64(r.size)
	}

	// Children always carry larger labels than parents, so descending
	// label order is bottom-up.
	nodes := make([]int, 0, len(stability))
	for c := range stability {
		if c != n {
			nodes = append(nodes, c)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(nodes)))

	isCluster := map[int]bool{}
	for _, c := range nodes {
		isCluster[c] = true
	}
	for _, c := range nodes {
		sub := 0.0
		for _, ch := range children[c] {
			sub += stability[ch]
		}
		if len(children[c]) > 0 && sub > stability[c] {
			isCluster[c] = false
			stability[c] = sub
			continue
		}
		stack := append([]int(nil), children[c]...)
		for len(stack) > 0 {
			x := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			isCluster[x] = false
			stack = append(stack, children[x]...)
		}
	}

	var chosen []int
	for c, ok := range isCluster {
		if ok {
			chosen = append(chosen, c)
		}
	}
	sort.Ints(chosen)
	out := make(map[int]int, len(chosen))
	for i, c := range chosen {
		out[c] = i
	}
	return out
}
