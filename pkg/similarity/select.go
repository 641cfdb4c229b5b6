package similarity

import (
	"fmt"
	"math"
	"sort"
)

// OutlierPrefix marks chunks that belong to no cluster once representatives
// and outliers are merged downstream.
const OutlierPrefix = "OUTLIER: "

// SelectRepresentatives picks, for every cluster in ascending label order,
// the member chunk nearest to the cluster medoid, and returns all noise
// chunks in input order with OutlierPrefix prepended.
//
// Empty labels yield empty results. An error is returned only when the
// inputs disagree with each other.
func SelectRepresentatives(chunks []string, labels []int, m Matrix, medoids map[int]int) (representatives, outliers []string, err error) {
	if len(labels) == 0 {
		return nil, nil, nil
	}
	if len(chunks) != len(labels) || m.Rows() != len(labels) {
		return nil, nil, fmt.Errorf("%d chunks, %d labels, %d embeddings: %w",
			len(chunks), len(labels), m.Rows(), ErrLengthMismatch)
	}

	members := make(map[int][]int)
	for i, l := range labels {
		if l == NoiseLabel {
			outliers = append(outliers, OutlierPrefix+chunks[i])
			continue
		}
		members[l] = append(members[l], i)
	}

	ids := make([]int, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		medoid, found := medoids[id]
		if !found {
			return nil, nil, fmt.Errorf("cluster %d has no medoid", id)
		}
		if medoid < 0 || medoid >= m.Rows() {
			return nil, nil, fmt.Errorf("cluster %d medoid %d out of range", id, medoid)
		}
		representatives = append(representatives, chunks[nearest(m, members[id], medoid)])
	}
	return representatives, outliers, nil
}

// nearest returns the member closest to row target; the first minimum in
// member order wins.
func nearest(m Matrix, members []int, target int) int {
	best, bestDist := members[0], math.Inf(1)
	for _, i := range members {
		if d := m.Distance(i, target); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}
