// pkg/hnsw/select.go
package hnsw

import "sort"

// selectNeighborsSimple implements select_neighbors_simple (spec.md
// §4.3/§4.5): the m nearest candidates by distance alone, used when the
// index's distance kind is Linear or when link_nearest is set.
func selectNeighborsSimple(cands []candidate, m int) []NeighborEdge {
	sorted := append([]candidate(nil), cands...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].dist < sorted[j].dist })
	if len(sorted) > m {
		sorted = sorted[:m]
	}
	out := make([]NeighborEdge, len(sorted))
	for i, c := range sorted {
		out[i] = NeighborEdge{ID: c.id, Dist: c.dist}
	}
	return out
}

// selectNeighborsHeuristic implements select_neighbors_heuristic (spec.md
// §4.3): pop candidates closest-to-query first, accepting v iff v is at
// least as close to the query as it is to every already-accepted winner
// (the standard HNSW diversity rule), until m winners are accepted.
func (idx *Index) selectNeighborsHeuristic(cands []candidate, m int, kernel Kernel, dims, maxM int) ([]NeighborEdge, error) {
	sorted := append([]candidate(nil), cands...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].dist < sorted[j].dist })

	type winner struct {
		id   NodeID
		vec  []float32
		bias float32
		dist float32
	}
	winners := make([]winner, 0, m)

	for _, c := range sorted {
		if len(winners) >= m {
			break
		}
		ct, err := idx.getTuple(c.id, dims, maxM)
		if err != nil {
			return nil, err
		}
		accept := true
		for _, w := range winners {
			if kernel(ct.vector, w.vec, w.bias) < c.dist {
				accept = false
				break
			}
		}
		if accept {
			winners = append(winners, winner{id: c.id, vec: ct.vector, bias: ct.bias, dist: c.dist})
		}
	}

	out := make([]NeighborEdge, len(winners))
	for i, w := range winners {
		out[i] = NeighborEdge{ID: w.id, Dist: w.dist}
	}
	return out, nil
}

// selectNeighbors dispatches to the heuristic or simple selector per the
// index's configured distance kind / link_nearest override.
func (idx *Index) selectNeighbors(cands []candidate, m int, kernel Kernel, dims, maxM int, forceSimple bool) ([]NeighborEdge, error) {
	if forceSimple || idx.distKind().UsesSimpleSelection() {
		return selectNeighborsSimple(cands, m), nil
	}
	return idx.selectNeighborsHeuristic(cands, m, kernel, dims, maxM)
}
