package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/PaliC/popcorn-data-utils/internal/corpus"
	"github.com/PaliC/popcorn-data-utils/pkg/wire"
)

var statusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Show the status of a worker run",
	Args:  cobra.ExactArgs(1),
	Run:   runStatus,
}

var statusAddr string

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "localhost:7600", "Worker control address")
}

func runStatus(cmd *cobra.Command, args []string) {
	client := dialWorker(statusAddr)
	defer client.Close()

	var summary wire.RunSummary
	if err := client.Call("Dedup.RunStatus", wire.RunStatusRequest{RunID: args[0]}, &summary); err != nil {
		exitError("status failed: %v", err)
	}
	printSummary(summary)
}

// statusColor picks the display colour for a run state.
func statusColor(status string) *color.Color {
	switch status {
	case corpus.RunCompleted:
		return color.New(color.FgGreen)
	case corpus.RunFailed:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgCyan)
	}
}

// printSummary prints one run in full.
func printSummary(s wire.RunSummary) {
	color.New(color.FgYellow).Printf("run %s ", s.RunID)
	statusColor(s.Status).Printf("(%s)\n", s.Status)
	fmt.Printf("Params:  ngram %d, %d band(s) x %d row(s), threshold %.2f\n",
		s.NgramSize, s.Bands, s.RowsPerBand, s.Threshold)
	fmt.Printf("Counts:  %d total, %d exact dropped, %d near dropped, %d kept\n",
		s.TotalDocs, s.ExactDropped, s.NearDropped, s.Kept)
	started := time.Unix(s.StartedAt, 0).UTC()
	fmt.Printf("Started: %s\n", started.Format(time.RFC3339))
	if s.FinishedAt != 0 {
		fmt.Printf("Took:    %s\n", time.Duration(s.DurationMs)*time.Millisecond)
	} else {
		fmt.Printf("Running: %s so far\n", time.Duration(s.DurationMs)*time.Millisecond)
	}
}
