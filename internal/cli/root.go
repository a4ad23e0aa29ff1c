// Package cli implements the dedupctl command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/PaliC/popcorn-data-utils/internal/catalog"
)

var rootCmd = &cobra.Command{
	Use:   "dedupctl",
	Short: "Corpus deduplication toolkit",
	Long: `dedupctl removes exact and near-duplicate documents from text corpora.

Offline, against a local SQLite catalog:
  dedupctl import corpus.jsonl     Load a JSONL corpus into the catalog
  dedupctl run                     Deduplicate the catalog
  dedupctl export kept.jsonl       Export the surviving documents
  dedupctl seed corpus.jsonl       Generate a synthetic corpus

Against a running dedup worker:
  dedupctl trigger                 Start a run over the platform corpus
  dedupctl status <run-id>         Inspect a run
  dedupctl runs                    List recent runs

Platform administration:
  dedupctl keys create|list|revoke Manage ingestion API keys`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(triggerCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(keysCmd)
}

// openCatalog opens the catalog database and ensures its schema exists.
func openCatalog(path string) *catalog.Catalog {
	cat, err := catalog.New(path)
	if err != nil {
		exitError("failed to open catalog %s: %v", path, err)
	}
	if err := cat.Initialize(); err != nil {
		cat.Close()
		exitError("failed to initialize catalog: %v", err)
	}
	return cat
}

// exitError prints an error and exits
func exitError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

// shortID returns first 8 characters of an ID
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
