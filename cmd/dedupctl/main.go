// Command dedupctl is the corpus deduplication CLI.
//
// It deduplicates JSONL corpora offline against a local SQLite catalog, and
// doubles as the control client for a running dedup worker. See
// `dedupctl --help` for the command list.
package main

import (
	"os"

	"github.com/PaliC/popcorn-data-utils/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
