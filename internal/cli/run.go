package cli

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/PaliC/popcorn-data-utils/internal/catalog"
	"github.com/PaliC/popcorn-data-utils/internal/dedup"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Deduplicate the catalog corpus",
	Long: `Run exact and near-duplicate detection over every document in the
catalog and stamp each one with a KEPT or DROPPED verdict.

Exact duplicates (identical text) collapse to the most recently committed
copy. Near duplicates are found with MinHash signatures and LSH banding; of
each detected pair, the more recently committed document survives.`,
	Run: runRun,
}

var (
	runDB        string
	runNgramSize int
	runBands     int
	runRows      int
	runThreshold float64
	runWorkers   int
	runShowHist  bool
)

func init() {
	defaults := dedup.DefaultParams()
	runCmd.Flags().StringVar(&runDB, "db", "catalog.db", "Path to the catalog database")
	runCmd.Flags().IntVar(&runNgramSize, "ngram-size", defaults.NgramSize, "Character n-gram size for shingling")
	runCmd.Flags().IntVar(&runBands, "bands", defaults.Bands, "Number of LSH bands")
	runCmd.Flags().IntVar(&runRows, "rows-per-band", defaults.RowsPerBand, "Signature rows per band")
	runCmd.Flags().Float64Var(&runThreshold, "threshold", defaults.Threshold, "Jaccard similarity threshold")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "Worker goroutines (0 = all CPUs)")
	runCmd.Flags().BoolVar(&runShowHist, "histogram", false, "Print the candidate count histogram")
}

// stagePrinter prints one line as each pipeline stage starts and finishes.
type stagePrinter struct{}

func (stagePrinter) StageStarted(stage string, total int) {
	fmt.Printf("  %-9s %d documents\n", stage, total)
}

func (stagePrinter) StageProgress(string, int) {}

func (stagePrinter) StageFinished(stage string, took time.Duration) {
	fmt.Printf("  %-9s done in %s\n", stage, took.Round(time.Millisecond))
}

func runRun(cmd *cobra.Command, args []string) {
	cat := openCatalog(runDB)
	defer cat.Close()

	ctx := context.Background()
	docs, err := cat.Snapshot(ctx)
	if err != nil {
		exitError("failed to load catalog: %v", err)
	}
	if len(docs) == 0 {
		fmt.Println("Catalog is empty; nothing to deduplicate")
		return
	}

	params := dedup.Params{
		NgramSize:   runNgramSize,
		Bands:       runBands,
		RowsPerBand: runRows,
		Threshold:   runThreshold,
		Workers:     runWorkers,
	}
	pipeline, err := dedup.New(params, dedup.WithObserver(stagePrinter{}))
	if err != nil {
		exitError("invalid parameters: %v", err)
	}

	screened, rejections := dedup.Screen(docs)
	for _, rej := range rejections {
		color.New(color.FgYellow).Printf("Skipping %s: %v\n", rej.ID, rej.Err)
	}
	if len(screened) == 0 {
		fmt.Println("No valid documents to deduplicate")
		return
	}

	run := catalog.Run{
		ID:          uuid.NewString(),
		NgramSize:   params.NgramSize,
		Bands:       params.Bands,
		RowsPerBand: params.RowsPerBand,
		Threshold:   params.Threshold,
		StartedAt:   time.Now().UTC(),
	}
	if err := cat.StartRun(ctx, run); err != nil {
		exitError("failed to record run: %v", err)
	}
	fmt.Printf("Run %s over %d document(s)\n", shortID(run.ID), len(screened))

	result, err := pipeline.Run(ctx, screened)
	if err != nil {
		if ferr := cat.FailRun(ctx, run.ID, err.Error()); ferr != nil {
			exitError("run failed (%v) and could not be recorded: %v", err, ferr)
		}
		exitError("run failed: %v", err)
	}

	keptIDs := make([]string, 0, len(result.Kept))
	keptSet := make(map[string]struct{}, len(result.Kept))
	for _, doc := range result.Kept {
		keptIDs = append(keptIDs, doc.ID)
		keptSet[doc.ID] = struct{}{}
	}
	droppedIDs := make([]string, 0, len(screened)-len(result.Kept))
	for _, doc := range screened {
		if _, ok := keptSet[doc.ID]; !ok {
			droppedIDs = append(droppedIDs, doc.ID)
		}
	}
	if err := cat.ApplyVerdicts(ctx, run.ID, keptIDs, droppedIDs); err != nil {
		exitError("failed to store verdicts: %v", err)
	}

	run.TotalDocs = result.Stats.Total
	run.ExactDropped = result.Stats.ExactDropped
	run.NearDropped = result.Stats.NearDropped
	run.Kept = result.Stats.Kept
	run.Histogram = result.Stats.Histogram
	run.FinishedAt = time.Now().UTC()
	if err := cat.CompleteRun(ctx, run); err != nil {
		exitError("failed to finalize run: %v", err)
	}

	color.New(color.FgGreen).Printf("Run %s completed in %s\n",
		shortID(run.ID), run.Duration().Round(time.Millisecond))
	fmt.Printf("  %d total, %d exact dropped, %d near dropped, %d kept\n",
		run.TotalDocs, run.ExactDropped, run.NearDropped, run.Kept)

	if runShowHist {
		printHistogram(result.Stats.Histogram)
	}
}

// printHistogram prints candidate counts in ascending bucket order.
func printHistogram(hist map[int]int) {
	if len(hist) == 0 {
		return
	}
	buckets := make([]int, 0, len(hist))
	for b := range hist {
		buckets = append(buckets, b)
	}
	sort.Ints(buckets)
	fmt.Println("Candidates per document:")
	for _, b := range buckets {
		fmt.Printf("  %3d candidate(s): %d document(s)\n", b, hist[b])
	}
}
