package similarity

import "math"

// minLinkDistance keeps lambda = 1/distance finite for duplicate vectors.
const minLinkDistance = 1e-12

// linkNode is a merge in the single-linkage dendrogram. Leaves are
// numbered 0..n-1 and merges n..2n-2.
type linkNode struct {
	left, right int
	dist        float64
	size        int
}

type dendrogram struct {
	nodes  []linkNode
	leaves int
}

func (d dendrogram) size(node int) int {
	if node < d.leaves {
		return 1
	}
	return d.nodes[node-d.leaves].size
}

// points returns the leaves under node.
func (d dendrogram) points(node int) []int {
	var out []int
	stack := []int{node}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if top < d.leaves {
			out = append(out, top)
			continue
		}
		ln := d.nodes[top-d.leaves]
		stack = append(stack, ln.right, ln.left)
	}
	return out
}

// linkage turns the weight-sorted spanning tree edges of a connected
// component into a single-linkage dendrogram.
func linkage(n int, edges []edge) dendrogram {
	d := dendrogram{leaves: n, nodes: make([]linkNode, 0, n-1)}
	parent := make([]int, 2*n-1)
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

	for _, e := range edges {
		ra, rb := find(e.a), find(e.b)
		if ra == rb {
			continue
		}
		id := n + len(d.nodes)
		d.nodes = append(d.nodes, linkNode{left: ra, right: rb, dist: e.w, size: d.size(ra) + d.size(rb)})
		parent[ra] = id
		parent[rb] = id
	}
	return d
}

type fallout struct {
	point  int
	lambda float64
}

// condensedCluster is a node of the condensed tree. Parents always have a
// lower index than their children.
type condensedCluster struct {
	children []int
	points   []fallout
	parent   int
	birth    float64
	size     int
}

type hierarchy struct {
	clusters []condensedCluster
}

func lambdaOf(dist float64) float64 {
	return 1 / math.Max(dist, minLinkDistance)
}

// condense walks the dendrogram from the root. A split where both sides
// hold at least minSize points creates two clusters; smaller sides drop
// their points out of the current cluster.
func condense(d dendrogram, minSize int) hierarchy {
	h := hierarchy{clusters: []condensedCluster{{parent: -1, size: d.leaves}}}
	if len(d.nodes) == 0 {
		for p := 0; p < d.leaves; p++ {
			h.clusters[0].points = append(h.clusters[0].points, fallout{point: p, lambda: math.Inf(1)})
		}
		return h
	}

	type frame struct{ node, cluster int }
	stack := []frame{{node: d.leaves + len(d.nodes) - 1, cluster: 0}}

	drop := func(node, cluster int, lambda float64) {
		for _, p := range d.points(node) {
			h.clusters[cluster].points = append(h.clusters[cluster].points, fallout{point: p, lambda: lambda})
		}
	}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if f.node < d.leaves {
			drop(f.node, f.cluster, math.Inf(1))
			continue
		}

		ln := d.nodes[f.node-d.leaves]
		lambda := lambdaOf(ln.dist)
		ls, rs := d.size(ln.left), d.size(ln.right)

		switch {
		case ls >= minSize && rs >= minSize:
			left := h.add(f.cluster, lambda, ls)
			right := h.add(f.cluster, lambda, rs)
			stack = append(stack, frame{ln.right, right}, frame{ln.left, left})
		case ls < minSize && rs < minSize:
			drop(ln.left, f.cluster, lambda)
			drop(ln.right, f.cluster, lambda)
		case ls >= minSize:
			drop(ln.right, f.cluster, lambda)
			stack = append(stack, frame{ln.left, f.cluster})
		default:
			drop(ln.left, f.cluster, lambda)
			stack = append(stack, frame{ln.right, f.cluster})
		}
	}
	return h
}

func (h *hierarchy) add(parent int, birth float64, size int) int {
	id := len(h.clusters)
	h.clusters = append(h.clusters, condensedCluster{parent: parent, birth: birth, size: size})
	h.clusters[parent].children = append(h.clusters[parent].children, id)
	return id
}

// stability is the excess of mass of cluster i.
func (h hierarchy) stability(i int) float64 {
	c := h.clusters[i]
	var s float64
	for _, p := range c.points {
		s += lambdaSpan(p.lambda, c.birth)
	}
	for _, child := range c.children {
		s += (h.clusters[child].birth - c.birth) * float64(h.clusters[child].size)
	}
	return s
}

// lambdaSpan caps points that never left (infinite lambda) at the largest
// finite contribution.
func lambdaSpan(lambda, birth float64) float64 {
	if math.IsInf(lambda, 1) {
		lambda = 1 / minLinkDistance
	}
	return lambda - birth
}

// selectClusters returns the members of every selected cluster in cluster
// order. The root (index 0) is eligible only when rootSelectable.
func (h hierarchy) selectClusters(method Method, rootSelectable bool) [][]int {
	selected := make([]bool, len(h.clusters))

	switch method {
	case MethodEOM:
		h.selectEOM(selected, rootSelectable)
	default:
		h.selectLeaves(selected, rootSelectable)
	}

	// Every point belongs to the nearest selected ancestor of the cluster
	// it fell out of.
	owner := make([]int, len(h.clusters))
	for i, c := range h.clusters {
		switch {
		case selected[i]:
			owner[i] = i
		case c.parent >= 0:
			owner[i] = owner[c.parent]
		default:
			owner[i] = -1
		}
	}

	members := make(map[int][]int)
	for i, c := range h.clusters {
		if owner[i] < 0 {
			continue
		}
		for _, p := range c.points {
			members[owner[i]] = append(members[owner[i]], p.point)
		}
	}

	var out [][]int
	for i := range h.clusters {
		if selected[i] && len(members[i]) > 0 {
			out = append(out, members[i])
		}
	}
	return out
}

func (h hierarchy) selectLeaves(selected []bool, rootSelectable bool) {
	if len(h.clusters[0].children) == 0 {
		selected[0] = rootSelectable
		return
	}
	for i := 1; i < len(h.clusters); i++ {
		selected[i] = len(h.clusters[i].children) == 0
	}
}

func (h hierarchy) selectEOM(selected []bool, rootSelectable bool) {
	subtree := make([]float64, len(h.clusters))
	for i := len(h.clusters) - 1; i >= 0; i-- {
		if i == 0 && !rootSelectable {
			break
		}
		own := h.stability(i)
		var children float64
		for _, child := range h.clusters[i].children {
			children += subtree[child]
		}
		if len(h.clusters[i].children) == 0 || own >= children {
			selected[i] = true
			h.clearDescendants(selected, i)
			subtree[i] = own
		} else {
			subtree[i] = children
		}
	}
}

func (h hierarchy) clearDescendants(selected []bool, i int) {
	stack := append([]int(nil), h.clusters[i].children...)
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		selected[top] = false
		stack = append(stack, h.clusters[top].children...)
	}
}
