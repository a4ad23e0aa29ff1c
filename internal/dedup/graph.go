package dedup

import (
	"fmt"
	"sort"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/PaliC/popcorn-data-utils/internal/dedup/lsh"
)

// Graph maps each document ID to its candidate near-duplicates, self
// excluded. Neighbour slices are sorted. Band matching is symmetric, so if
// y appears under x then x appears under y.
type Graph map[string][]string

// buildGraph queries the index with every signed document's own signature.
// Documents with a nil signature (too short to shingle) get an empty entry
// without touching the index. Queries fan out across workers; the index is
// fully populated and read-only by the time this runs.
func buildGraph(ix *lsh.Index, ids []string, sigs [][]uint64, workers int, progress func(int)) (Graph, error) {
	neighbours := make([][]string, len(ids))
	var completed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(workers)
	for i := range ids {
		if sigs[i] == nil {
			continue
		}
		g.Go(func() error {
			candidates, err := ix.Query(sigs[i])
			if err != nil {
				return fmt.Errorf("querying candidates for %s: %w", ids[i], err)
			}
			neighbours[i] = withoutSelf(candidates, ids[i])
			progress(int(completed.Add(1)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	graph := make(Graph, len(ids))
	for i, id := range ids {
		graph[id] = neighbours[i]
	}
	return graph, nil
}

// withoutSelf removes id from the sorted candidate list in place.
func withoutSelf(candidates []string, id string) []string {
	i := sort.SearchStrings(candidates, id)
	if i < len(candidates) && candidates[i] == id {
		return append(candidates[:i], candidates[i+1:]...)
	}
	return candidates
}
