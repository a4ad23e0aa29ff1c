package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/PaliC/popcorn-data-utils/pkg/wire"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent worker runs",
	Run:   runRuns,
}

var (
	runsAddr  string
	runsLimit int
)

func init() {
	runsCmd.Flags().StringVar(&runsAddr, "addr", "localhost:7600", "Worker control address")
	runsCmd.Flags().IntVarP(&runsLimit, "n", "n", 0, "Limit the number of runs to show")
}

func runRuns(cmd *cobra.Command, args []string) {
	client := dialWorker(runsAddr)
	defer client.Close()

	var resp wire.ListRunsResponse
	if err := client.Call("Dedup.ListRuns", wire.ListRunsRequest{Limit: int32(runsLimit)}, &resp); err != nil {
		exitError("listing runs failed: %v", err)
	}
	if len(resp.Runs) == 0 {
		fmt.Println("No runs yet")
		return
	}

	for _, s := range resp.Runs {
		started := time.Unix(s.StartedAt, 0).UTC()
		statusColor(s.Status).Printf("%-9s ", s.Status)
		fmt.Printf("%s  kept %d/%d  %s\n",
			shortID(s.RunID), s.Kept, s.TotalDocs, started.Format("2006-01-02 15:04:05"))
	}
}
