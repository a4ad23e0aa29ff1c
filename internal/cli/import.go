package cli

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/PaliC/popcorn-data-utils/internal/catalog"
)

var importCmd = &cobra.Command{
	Use:   "import <corpus.jsonl>",
	Short: "Load a JSONL corpus into the local catalog",
	Long: `Load documents from a JSONL file into the catalog database.

Each line is one document: {"id": "...", "text": "...", "committed_at": "..."}.
Records without an id are assigned one; records without a commit time are
stamped with the import time. Re-importing an id replaces the stored document.`,
	Args: cobra.ExactArgs(1),
	Run:  runImport,
}

var importDB string

func init() {
	importCmd.Flags().StringVar(&importDB, "db", "catalog.db", "Path to the catalog database")
}

func runImport(cmd *cobra.Command, args []string) {
	f, err := os.Open(args[0])
	if err != nil {
		exitError("failed to open corpus file: %v", err)
	}
	defer f.Close()

	records, err := catalog.ReadRecords(f)
	if err != nil {
		exitError("failed to parse %s: %v", args[0], err)
	}

	cat := openCatalog(importDB)
	defer cat.Close()

	ctx := context.Background()
	now := time.Now().UTC()
	imported, skipped := 0, 0
	for _, rec := range records {
		if rec.Text == "" {
			skipped++
			continue
		}
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if rec.CommittedAt.IsZero() {
			rec.CommittedAt = now
		}
		sum := sha256.Sum256([]byte(rec.Text))
		doc := catalog.Document{
			ID:          rec.ID,
			Text:        rec.Text,
			ContentHash: hex.EncodeToString(sum[:]),
			CommittedAt: rec.CommittedAt,
		}
		if err := cat.PutDocument(ctx, doc); err != nil {
			exitError("failed to store document %s: %v", rec.ID, err)
		}
		imported++
	}

	if skipped > 0 {
		color.New(color.FgYellow).Printf("Skipped %d record(s) with empty text\n", skipped)
	}
	color.New(color.FgGreen).Printf("Imported %d document(s) into %s\n", imported, importDB)
}
