package cli

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/PaliC/popcorn-data-utils/pkg/rpc"
	"github.com/PaliC/popcorn-data-utils/pkg/wire"
)

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Start a deduplication run on the dedup worker",
	Long: `Ask a running dedup worker to start a run over the platform corpus.

Parameter flags left at zero fall back to the worker's configured defaults.
The worker executes one run at a time; triggering while a run is active
fails.`,
	Run: runTrigger,
}

var (
	triggerAddr      string
	triggerNgramSize int
	triggerBands     int
	triggerRows      int
	triggerThreshold float64
)

func init() {
	triggerCmd.Flags().StringVar(&triggerAddr, "addr", "localhost:7600", "Worker control address")
	triggerCmd.Flags().IntVar(&triggerNgramSize, "ngram-size", 0, "Character n-gram size (0 = worker default)")
	triggerCmd.Flags().IntVar(&triggerBands, "bands", 0, "Number of LSH bands (0 = worker default)")
	triggerCmd.Flags().IntVar(&triggerRows, "rows-per-band", 0, "Signature rows per band (0 = worker default)")
	triggerCmd.Flags().Float64Var(&triggerThreshold, "threshold", 0, "Jaccard similarity threshold (0 = worker default)")
}

// dialWorker connects to the worker's RPC control port.
func dialWorker(addr string) *rpc.Client {
	client, err := rpc.Dial(addr)
	if err != nil {
		exitError("failed to reach dedup worker at %s: %v", addr, err)
	}
	return client
}

func runTrigger(cmd *cobra.Command, args []string) {
	client := dialWorker(triggerAddr)
	defer client.Close()

	req := wire.TriggerRunRequest{
		NgramSize:   int32(triggerNgramSize),
		Bands:       int32(triggerBands),
		RowsPerBand: int32(triggerRows),
		Threshold:   triggerThreshold,
	}
	var resp wire.TriggerRunResponse
	if err := client.Call("Dedup.TriggerRun", req, &resp); err != nil {
		exitError("trigger failed: %v", err)
	}

	color.New(color.FgGreen).Printf("Run %s started (%s)\n", shortID(resp.RunID), resp.Status)
	color.New(color.FgCyan).Printf("Follow it with: dedupctl status %s --addr %s\n", resp.RunID, triggerAddr)
}
