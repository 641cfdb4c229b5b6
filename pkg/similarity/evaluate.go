package similarity

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog/log"
)

// Metrics holds clustering quality scores. A nil field means undefined.
type Metrics struct {
	Silhouette       *float64 `json:"silhouette"`
	DaviesBouldin    *float64 `json:"davies_bouldin"`
	CalinskiHarabasz *float64 `json:"calinski_harabasz"`
}

// Evaluation is the result of Evaluate.
type Evaluation struct {
	Metrics
	Outcome
}

// Evaluate scores a labelling of m. The noise label counts as a label of its
// own. Scores are defined only for 2..n-1 distinct labels; otherwise the
// evaluation is Degenerate and every metric is nil.
func Evaluate(m Matrix, labels []int) (ev Evaluation) {
	defer func() {
		if r := recover(); r != nil {
			err := recovered("evaluate", r)
			log.Error().Err(err).Msg("Clustering evaluation failed")
			ev = Evaluation{Outcome: failed(err)}
		}
	}()

	n := len(labels)
	if n == 0 {
		return Evaluation{Outcome: failed(ErrEmptyInput)}
	}
	if m.Rows() != n {
		return Evaluation{Outcome: failed(fmt.Errorf("%d labels for %d rows: %w", n, m.Rows(), ErrLengthMismatch))}
	}

	groups := groupLabels(labels)
	switch k := len(groups); {
	case k < 2:
		return Evaluation{Outcome: degenerate(ErrTooFewLabels)}
	case k > n-1:
		return Evaluation{Outcome: degenerate(ErrTooManyLabels)}
	}

	sil := silhouette(m, labels, groups)
	db := daviesBouldin(m, groups)
	ch := calinskiHarabasz(m, groups)
	for _, v := range []float64{sil, db, ch} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Evaluation{Outcome: failed(fmt.Errorf("metric is not finite: %w", ErrNonFinite))}
		}
	}

	return Evaluation{
		Metrics: Metrics{Silhouette: &sil, DaviesBouldin: &db, CalinskiHarabasz: &ch},
		Outcome: ok(),
	}
}

type labelGroup struct {
	members []int
	label   int
}

// groupLabels returns the members of every distinct label, ordered by label.
func groupLabels(labels []int) []labelGroup {
	index := make(map[int]int)
	var groups []labelGroup
	for i, l := range labels {
		g, seen := index[l]
		if !seen {
			g = len(groups)
			index[l] = g
			groups = append(groups, labelGroup{label: l})
		}
		groups[g].members = append(groups[g].members, i)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].label < groups[j].label })
	return groups
}

// silhouette is the mean silhouette coefficient; samples in singleton
// groups score 0.
func silhouette(m Matrix, labels []int, groups []labelGroup) float64 {
	pos := make(map[int]int, len(groups))
	for g, grp := range groups {
		pos[grp.label] = g
	}

	var total float64
	sums := make([]float64, len(groups))
	for i := range labels {
		own := pos[labels[i]]
		if len(groups[own].members) == 1 {
			continue
		}
		for g := range sums {
			sums[g] = 0
		}
		for g, grp := range groups {
			for _, j := range grp.members {
				if j != i {
					sums[g] += m.Distance(i, j)
				}
			}
		}

		a := sums[own] / float64(len(groups[own].members)-1)
		b := math.Inf(1)
		for g, grp := range groups {
			if g == own {
				continue
			}
			b = math.Min(b, sums[g]/float64(len(grp.members)))
		}
		if denom := math.Max(a, b); denom > 0 {
			total += (b - a) / denom
		}
	}
	return total / float64(len(labels))
}

func centroid(m Matrix, members []int) []float64 {
	c := make([]float64, m.Cols())
	for _, i := range members {
		for k, v := range m.Row(i) {
			c[k] += v
		}
	}
	for k := range c {
		c[k] /= float64(len(members))
	}
	return c
}

// daviesBouldin averages, over groups, the worst ratio of summed intra-group
// scatter to centroid separation. Coinciding centroids are ignored.
func daviesBouldin(m Matrix, groups []labelGroup) float64 {
	k := len(groups)
	centroids := make([][]float64, k)
	scatter := make([]float64, k)
	for g, grp := range groups {
		centroids[g] = centroid(m, grp.members)
		for _, i := range grp.members {
			scatter[g] += euclidean(m.Row(i), centroids[g])
		}
		scatter[g] /= float64(len(grp.members))
	}

	allZero := true
	for _, s := range scatter {
		if s > 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return 0
	}

	separated := false
	var total float64
	for i := 0; i < k; i++ {
		worst := 0.0
		for j := 0; j < k; j++ {
			if i == j {
				continue
			}
			d := euclidean(centroids[i], centroids[j])
			if d == 0 {
				continue
			}
			separated = true
			worst = math.Max(worst, (scatter[i]+scatter[j])/d)
		}
		total += worst
	}
	if !separated {
		return 0
	}
	return total / float64(k)
}

// calinskiHarabasz is the ratio of between-group to within-group dispersion,
// scaled by degrees of freedom. It is 1 when every group is a single point
// repeated.
func calinskiHarabasz(m Matrix, groups []labelGroup) float64 {
	n, k := m.Rows(), len(groups)
	all := make([]int, n)
	for i := range all {
		all[i] = i
	}
	mean := centroid(m, all)

	var extra, intra float64
	for _, grp := range groups {
		c := centroid(m, grp.members)
		d := euclidean(c, mean)
		extra += float64(len(grp.members)) * d * d
		for _, i := range grp.members {
			e := euclidean(m.Row(i), c)
			intra += e * e
		}
	}
	if intra == 0 {
		return 1
	}
	return extra * float64(n-k) / (intra * float64(k-1))
}
