// Package shingle turns text into the fixed-length character n-gram sets
// that MinHash signatures are computed over. Shingling is byte-oriented over
// the lower-cased text: one encoding, held fixed, so identical texts always
// yield identical sets regardless of script.
package shingle

import "strings"

// Set returns every contiguous length-n substring of the lower-cased text.
// Repeated shingles collapse to one entry. Texts shorter than n produce an
// empty set; they carry too little signal to fingerprint.
func Set(text string, n int) map[string]struct{} {
	if n < 1 {
		return map[string]struct{}{}
	}
	lowered := strings.ToLower(text)
	if len(lowered) < n {
		return map[string]struct{}{}
	}
	shingles := make(map[string]struct{}, len(lowered)-n+1)
	for i := 0; i+n <= len(lowered); i++ {
		shingles[lowered[i:i+n]] = struct{}{}
	}
	return shingles
}
