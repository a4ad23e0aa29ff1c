package dedup

// CandidateHistogram counts how many documents have each candidate-set
// size. A heavy tail means the band layout is too permissive for the
// corpus; a histogram concentrated at zero means it may be too strict.
// Diagnostic only, never needed for correctness.
func CandidateHistogram(graph Graph) map[int]int {
	hist := make(map[int]int)
	for _, candidates := range graph {
		hist[len(candidates)]++
	}
	return hist
}
