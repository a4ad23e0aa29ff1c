package dedup

// resolve applies the greedy tie-break: a document is dropped as soon as
// any candidate outranks it. Each ID is judged only against its own
// neighbour set; no transitive closure is computed, so two indirectly
// similar documents can both survive when they were never mutual
// candidates. Evaluation per ID is independent, making iteration order
// irrelevant.
func resolve(graph Graph, byID map[string]Document) map[string]struct{} {
	kept := make(map[string]struct{}, len(graph))
	for id, candidates := range graph {
		doc := byID[id]
		dropped := false
		for _, cand := range candidates {
			if outranks(byID[cand], doc) {
				dropped = true
				break
			}
		}
		if !dropped {
			kept[id] = struct{}{}
		}
	}
	return kept
}
