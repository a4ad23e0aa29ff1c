package cli

import (
	"context"
	"errors"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/PaliC/popcorn-data-utils/internal/catalog"
	apperrors "github.com/PaliC/popcorn-data-utils/pkg/errors"
)

var exportCmd = &cobra.Command{
	Use:   "export <kept.jsonl>",
	Short: "Export the kept documents from a run",
	Long: `Write the documents a run kept to a JSONL file, one document per
line. Without --run the latest completed run is exported.`,
	Args: cobra.ExactArgs(1),
	Run:  runExport,
}

var (
	exportDB  string
	exportRun string
)

func init() {
	exportCmd.Flags().StringVar(&exportDB, "db", "catalog.db", "Path to the catalog database")
	exportCmd.Flags().StringVar(&exportRun, "run", "", "Run ID to export (default: latest completed)")
}

func runExport(cmd *cobra.Command, args []string) {
	cat := openCatalog(exportDB)
	defer cat.Close()

	ctx := context.Background()
	runID := exportRun
	if runID == "" {
		latest, err := cat.LatestRun(ctx)
		if errors.Is(err, apperrors.ErrRunNotFound) {
			exitError("no completed run to export; run 'dedupctl run' first")
		}
		if err != nil {
			exitError("failed to find latest run: %v", err)
		}
		runID = latest.ID
	}

	records, err := cat.KeptDocuments(ctx, runID)
	if err != nil {
		exitError("failed to load kept documents: %v", err)
	}
	if len(records) == 0 {
		exitError("run %s kept no documents (wrong run id?)", shortID(runID))
	}

	f, err := os.Create(args[0])
	if err != nil {
		exitError("failed to create output file: %v", err)
	}
	defer f.Close()

	if err := catalog.WriteRecords(f, records); err != nil {
		exitError("failed to write %s: %v", args[0], err)
	}
	color.New(color.FgGreen).Printf("Exported %d document(s) from run %s to %s\n",
		len(records), shortID(runID), args[0])
}
