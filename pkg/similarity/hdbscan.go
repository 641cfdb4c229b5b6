package similarity

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog/log"
)

// NoiseLabel marks chunks that belong to no cluster.
const NoiseLabel = -1

// Method chooses how clusters are picked from the condensed hierarchy.
type Method string

const (
	// MethodLeaf selects the most granular clusters of the hierarchy.
	MethodLeaf Method = "leaf"
	// MethodEOM selects clusters by excess of mass (stability).
	MethodEOM Method = "eom"
)

// Config parameterizes one clustering call. It is a plain value: callers
// pass it to every Cluster call and nothing is retained between calls.
type Config struct {
	// Method defaults to MethodLeaf.
	Method Method `json:"method"`
	// MinClusterSize is the smallest group that counts as a cluster.
	MinClusterSize int `json:"min_cluster_size"`
	// MinSamples sets the neighbour rank used for core distances.
	// Zero means MinClusterSize.
	MinSamples int `json:"min_samples"`
	// NoiseDistance cuts mutual-reachability links longer than this value,
	// so isolated chunks become noise even in tiny inputs. For unit-length
	// embeddings sqrt(2) corresponds to cosine similarity 0. Zero disables
	// the cut.
	NoiseDistance float64 `json:"noise_distance"`
	// AllowSingleCluster lets a whole dense region come back as one cluster.
	AllowSingleCluster bool `json:"allow_single_cluster"`
}

// DefaultConfig returns the settings used by the enrichment pipeline.
func DefaultConfig() Config {
	return Config{
		Method:             MethodLeaf,
		MinClusterSize:     2,
		NoiseDistance:      math.Sqrt2,
		AllowSingleCluster: true,
	}
}

func (c Config) normalized() (Config, error) {
	if c.MinClusterSize < 2 {
		return c, fmt.Errorf("min cluster size %d < 2: %w", c.MinClusterSize, ErrInvalidConfig)
	}
	if c.MinSamples < 0 {
		return c, fmt.Errorf("min samples %d < 0: %w", c.MinSamples, ErrInvalidConfig)
	}
	if c.MinSamples == 0 {
		c.MinSamples = c.MinClusterSize
	}
	switch c.Method {
	case "":
		c.Method = MethodLeaf
	case MethodLeaf, MethodEOM:
	default:
		return c, fmt.Errorf("unknown selection method %q: %w", c.Method, ErrInvalidConfig)
	}
	if c.NoiseDistance < 0 || math.IsNaN(c.NoiseDistance) {
		return c, fmt.Errorf("noise distance %v: %w", c.NoiseDistance, ErrInvalidConfig)
	}
	return c, nil
}

// Assignment is the result of one fit: labels and medoids always come from
// the same call.
type Assignment struct {
	// Medoids maps every non-noise label to the row index of its medoid.
	Medoids map[int]int `json:"medoids"`
	// Labels holds one label per input row; NoiseLabel marks noise.
	Labels []int `json:"labels"`
	Outcome
}

// Clusters returns the distinct non-noise labels in ascending order.
func (a Assignment) Clusters() []int {
	ids := make([]int, 0, len(a.Medoids))
	for id := range a.Medoids {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// NoiseCount returns how many rows were labelled as noise.
func (a Assignment) NoiseCount() int {
	n := 0
	for _, l := range a.Labels {
		if l == NoiseLabel {
			n++
		}
	}
	return n
}

// Cluster partitions the rows of m with hierarchical density-based
// clustering and computes one medoid per cluster. It never panics: invalid
// input or internal failures produce a Failed assignment with no labels.
func Cluster(cfg Config, m Matrix) (a Assignment) {
	defer func() {
		if r := recover(); r != nil {
			err := recovered("cluster", r)
			log.Error().Err(err).Int("rows", m.Rows()).Msg("Clustering failed")
			a = Assignment{Outcome: failed(err)}
		}
	}()

	cfg, err := cfg.normalized()
	if err != nil {
		return Assignment{Outcome: failed(err)}
	}
	if m.Rows() == 0 {
		return Assignment{Outcome: failed(ErrEmptyInput)}
	}

	labels := fit(cfg, m)
	medoids := Medoids(m, labels)

	if len(medoids) == 0 {
		return Assignment{Outcome: degenerate(ErrAllNoise), Labels: labels, Medoids: medoids}
	}
	return Assignment{Outcome: ok(), Labels: labels, Medoids: medoids}
}

// Medoids returns, for every non-noise label, the member whose summed
// Euclidean distance to the other members is smallest. Ties go to the lowest
// row index.
func Medoids(m Matrix, labels []int) map[int]int {
	members := make(map[int][]int)
	for i, l := range labels {
		if l != NoiseLabel {
			members[l] = append(members[l], i)
		}
	}

	medoids := make(map[int]int, len(members))
	for label, idx := range members {
		best, bestSum := idx[0], math.Inf(1)
		for _, i := range idx {
			var sum float64
			for _, j := range idx {
				if i != j {
					sum += m.Distance(i, j)
				}
			}
			if sum < bestSum {
				best, bestSum = i, sum
			}
		}
		medoids[label] = best
	}
	return medoids
}

type edge struct {
	a, b int
	w    float64
}

// fit returns one label per row.
func fit(cfg Config, m Matrix) []int {
	n := m.Rows()
	labels := make([]int, n)
	for i := range labels {
		labels[i] = NoiseLabel
	}
	if n < cfg.MinClusterSize {
		return labels
	}

	dist := m.pairwise()
	core := coreDistances(dist, n, cfg.MinSamples)
	tree := spanningTree(dist, core, n)

	kept := make([]edge, 0, len(tree))
	for _, e := range tree {
		if cfg.NoiseDistance > 0 && e.w > cfg.NoiseDistance {
			continue
		}
		kept = append(kept, e)
	}

	comps := components(n, kept)
	rootSelectable := cfg.AllowSingleCluster || len(comps) > 1

	next := 0
	for _, comp := range comps {
		if len(comp) < cfg.MinClusterSize {
			continue
		}
		local := make(map[int]int, len(comp))
		for li, gi := range comp {
			local[gi] = li
		}
		var edges []edge
		for _, e := range kept {
			la, inA := local[e.a]
			lb, inB := local[e.b]
			if inA && inB {
				edges = append(edges, edge{a: la, b: lb, w: e.w})
			}
		}

		h := condense(linkage(len(comp), edges), cfg.MinClusterSize)
		for _, members := range h.selectClusters(cfg.Method, rootSelectable) {
			for _, li := range members {
				labels[comp[li]] = next
			}
			next++
		}
	}
	return labels
}

// coreDistances returns the distance from each row to its k-th nearest
// neighbour, counting the row itself as the first.
func coreDistances(dist []float64, n, k int) []float64 {
	if k > n {
		k = n
	}
	core := make([]float64, n)
	row := make([]float64, n)
	for i := 0; i < n; i++ {
		copy(row, dist[i*n:(i+1)*n])
		sort.Float64s(row)
		core[i] = row[k-1]
	}
	return core
}

// spanningTree builds the minimum spanning tree of the mutual reachability
// graph with Prim's algorithm and returns its edges sorted by weight.
func spanningTree(dist, core []float64, n int) []edge {
	inTree := make([]bool, n)
	best := make([]float64, n)
	from := make([]int, n)
	for i := range best {
		best[i] = math.Inf(1)
	}

	edges := make([]edge, 0, n-1)
	current := 0
	inTree[0] = true
	for step := 0; step < n-1; step++ {
		for j := 0; j < n; j++ {
			if inTree[j] {
				continue
			}
			w := math.Max(dist[current*n+j], math.Max(core[current], core[j]))
			if w < best[j] {
				best[j] = w
				from[j] = current
			}
		}

		next := -1
		for j := 0; j < n; j++ {
			if !inTree[j] && (next == -1 || best[j] < best[next]) {
				next = j
			}
		}
		edges = append(edges, edge{a: from[next], b: next, w: best[next]})
		inTree[next] = true
		current = next
	}

	sort.SliceStable(edges, func(i, j int) bool { return edges[i].w < edges[j].w })
	return edges
}

// components groups rows connected by edges. Members are ascending and
// groups are ordered by their lowest member.
func components(n int, edges []edge) [][]int {
	uf := newUnionFind(n)
	for _, e := range edges {
		uf.union(e.a, e.b)
	}

	index := make(map[int]int)
	var groups [][]int
	for i := 0; i < n; i++ {
		root := uf.find(i)
		g, seen := index[root]
		if !seen {
			g = len(groups)
			index[root] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], i)
	}
	return groups
}

type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return &unionFind{parent: p}
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[rb] = ra
	}
}
