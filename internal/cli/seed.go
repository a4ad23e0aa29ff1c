package cli

import (
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/PaliC/popcorn-data-utils/internal/catalog"
)

var seedCmd = &cobra.Command{
	Use:   "seed <corpus.jsonl>",
	Short: "Generate a synthetic corpus with planted duplicates",
	Long: `Write a JSONL corpus of random documents seeded with exact and
near duplicates, for demos and for exercising the pipeline end to end.

Each planted exact duplicate repeats an earlier document verbatim with a
later commit time; each near duplicate changes a single word. The generator
is deterministic for a given --seed.`,
	Args: cobra.ExactArgs(1),
	Run:  runSeed,
}

var (
	seedCount     int
	seedExactRate float64
	seedNearRate  float64
	seedWords     int
	seedSeed      int64
)

func init() {
	seedCmd.Flags().IntVar(&seedCount, "count", 1000, "Number of base documents")
	seedCmd.Flags().Float64Var(&seedExactRate, "exact-rate", 0.1, "Fraction of base documents duplicated verbatim")
	seedCmd.Flags().Float64Var(&seedNearRate, "near-rate", 0.1, "Fraction of base documents duplicated with one word changed")
	seedCmd.Flags().IntVar(&seedWords, "words", 200, "Words per document")
	seedCmd.Flags().Int64Var(&seedSeed, "seed", 42, "Random seed")
}

var seedVocabulary = []string{
	"corpus", "document", "signature", "shingle", "band", "bucket",
	"duplicate", "verdict", "snapshot", "pipeline", "threshold", "estimate",
	"collision", "candidate", "cluster", "recency", "archive", "ledger",
	"revision", "paragraph", "sentence", "token", "fragment", "digest",
	"mirror", "reprint", "excerpt", "chapter", "abstract", "appendix",
	"margin", "footnote", "citation", "edition", "volume", "index",
	"draft", "manuscript", "transcript", "summary",
}

func runSeed(cmd *cobra.Command, args []string) {
	if seedCount <= 0 {
		exitError("--count must be positive")
	}
	if seedExactRate < 0 || seedExactRate > 1 || seedNearRate < 0 || seedNearRate > 1 {
		exitError("rates must be between 0 and 1")
	}

	rng := rand.New(rand.NewSource(seedSeed))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	var records []catalog.Record
	exact, near := 0, 0
	for i := 0; i < seedCount; i++ {
		words := make([]string, seedWords)
		for w := range words {
			words[w] = seedVocabulary[rng.Intn(len(seedVocabulary))]
		}
		text := strings.Join(words, " ")
		committed := base.Add(time.Duration(i) * time.Minute)
		records = append(records, catalog.Record{
			ID: uuid.NewString(), Text: text, CommittedAt: committed,
		})

		if rng.Float64() < seedExactRate {
			records = append(records, catalog.Record{
				ID: uuid.NewString(), Text: text, CommittedAt: committed.Add(30 * time.Second),
			})
			exact++
		}
		if rng.Float64() < seedNearRate {
			mutated := make([]string, len(words))
			copy(mutated, words)
			mutated[rng.Intn(len(mutated))] = "altered"
			records = append(records, catalog.Record{
				ID:          uuid.NewString(),
				Text:        strings.Join(mutated, " "),
				CommittedAt: committed.Add(45 * time.Second),
			})
			near++
		}
	}

	// Planted duplicates cluster next to their originals; shuffle so input
	// order carries no signal.
	rng.Shuffle(len(records), func(i, j int) {
		records[i], records[j] = records[j], records[i]
	})

	f, err := os.Create(args[0])
	if err != nil {
		exitError("failed to create output file: %v", err)
	}
	defer f.Close()
	if err := catalog.WriteRecords(f, records); err != nil {
		exitError("failed to write %s: %v", args[0], err)
	}

	color.New(color.FgGreen).Printf("Wrote %d document(s) to %s\n", len(records), args[0])
	color.New(color.FgYellow).Printf("  %d base, %d exact duplicate(s), %d near duplicate(s)\n",
		seedCount, exact, near)
}
