// Package benchmark contains Go benchmarks for the shingler, MinHash
// signatures, the LSH index, and the full dedup pipeline, measuring
// throughput and allocation behaviour.
package benchmark

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/PaliC/popcorn-data-utils/internal/dedup"
	"github.com/PaliC/popcorn-data-utils/internal/dedup/lsh"
	"github.com/PaliC/popcorn-data-utils/internal/dedup/minhash"
	"github.com/PaliC/popcorn-data-utils/internal/dedup/shingle"
)

// benchText produces deterministic pseudo-random prose-like text.
func benchText(seed int64, length int) string {
	rng := rand.New(rand.NewSource(seed))
	const letters = "abcdefghijklmnopqrstuvwxyz      "
	buf := make([]byte, length)
	for i := range buf {
		buf[i] = letters[rng.Intn(len(letters))]
	}
	return string(buf)
}

// randomSignature builds a signature of the given width from rng.
func randomSignature(rng *rand.Rand, width int) []uint64 {
	sig := make([]uint64, width)
	for i := range sig {
		sig[i] = rng.Uint64()
	}
	return sig
}

// BenchmarkShingleSet measures character n-gram extraction at typical
// document sizes.
func BenchmarkShingleSet(b *testing.B) {
	sizes := []int{1000, 10000}
	for _, size := range sizes {
		b.Run(fmt.Sprintf("chars_%d", size), func(b *testing.B) {
			text := benchText(1, size)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				set := shingle.Set(text, 5)
				_ = set
			}
		})
	}
}

// BenchmarkSignature measures MinHash signature computation at the narrow
// and the default signature widths.
func BenchmarkSignature(b *testing.B) {
	widths := []int{128, 2048}
	for _, width := range widths {
		b.Run(fmt.Sprintf("width_%d", width), func(b *testing.B) {
			hasher, err := minhash.NewHasher(width)
			if err != nil {
				b.Fatal(err)
			}
			shingles := shingle.Set(benchText(2, 1000), 5)

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				sig := hasher.Signature(shingles)
				_ = sig
			}
		})
	}
}

// BenchmarkLSHInsert measures per-document insert throughput into the
// banded index.
func BenchmarkLSHInsert(b *testing.B) {
	ix, err := lsh.New(16, 8)
	if err != nil {
		b.Fatal(err)
	}
	rng := rand.New(rand.NewSource(3))
	sigs := make([][]uint64, 1024)
	for i := range sigs {
		sigs[i] = randomSignature(rng, 128)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		docID := fmt.Sprintf("doc-%d", i)
		if err := ix.Insert(docID, sigs[i%len(sigs)]); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkLSHQuery measures candidate lookup latency over 10 000 indexed
// signatures.
func BenchmarkLSHQuery(b *testing.B) {
	ix, err := lsh.New(16, 8)
	if err != nil {
		b.Fatal(err)
	}
	rng := rand.New(rand.NewSource(4))
	sigs := make([][]uint64, 10000)
	for i := range sigs {
		sigs[i] = randomSignature(rng, 128)
		if err := ix.Insert(fmt.Sprintf("doc-%d", i), sigs[i]); err != nil {
			b.Fatal(err)
		}
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		candidates, err := ix.Query(sigs[i%len(sigs)])
		if err != nil {
			b.Fatal(err)
		}
		_ = candidates
	}
}

// BenchmarkLSHQueryParallel measures concurrent read throughput against the
// sharded index.
func BenchmarkLSHQueryParallel(b *testing.B) {
	ix, err := lsh.New(16, 8)
	if err != nil {
		b.Fatal(err)
	}
	rng := rand.New(rand.NewSource(5))
	sigs := make([][]uint64, 10000)
	for i := range sigs {
		sigs[i] = randomSignature(rng, 128)
		if err := ix.Insert(fmt.Sprintf("doc-%d", i), sigs[i]); err != nil {
			b.Fatal(err)
		}
	}

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			candidates, err := ix.Query(sigs[i%len(sigs)])
			if err != nil {
				b.Fatal(err)
			}
			_ = candidates
			i++
		}
	})
}

// BenchmarkPipelineRun measures end-to-end deduplication at various corpus
// sizes, with one in ten documents an exact duplicate.
func BenchmarkPipelineRun(b *testing.B) {
	sizes := []int{100, 1000}
	for _, size := range sizes {
		b.Run(fmt.Sprintf("docs_%d", size), func(b *testing.B) {
			params := dedup.Params{
				NgramSize:   5,
				Bands:       16,
				RowsPerBand: 8,
				Threshold:   0.7,
			}
			pipeline, err := dedup.New(params)
			if err != nil {
				b.Fatal(err)
			}

			base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			docs := make([]dedup.Document, size)
			for i := range docs {
				text := benchText(int64(i), 800)
				if i%10 == 9 {
					text = docs[i-1].Text
				}
				docs[i] = dedup.Document{
					ID:      fmt.Sprintf("doc-%d", i),
					Text:    text,
					Recency: base.Add(time.Duration(i) * time.Second),
				}
			}

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				result, err := pipeline.Run(context.Background(), docs)
				if err != nil {
					b.Fatal(err)
				}
				_ = result
			}
		})
	}
}
