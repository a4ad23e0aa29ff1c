package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/PaliC/popcorn-data-utils/internal/corpus"
	"github.com/PaliC/popcorn-data-utils/pkg/config"
	"github.com/PaliC/popcorn-data-utils/pkg/postgres"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage ingestion API keys",
	Long: `Create, list, and revoke the API keys the ingestion service accepts.

Keys live in the platform's PostgreSQL corpus database. Connection settings
come from --config when given, otherwise from defaults and PDU_* environment
variables.`,
}

var keysConfig string

var keysCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new API key",
	Args:  cobra.ExactArgs(1),
	Run:   runKeysCreate,
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List API keys",
	Run:   runKeysList,
}

var keysRevokeCmd = &cobra.Command{
	Use:   "revoke <key-id>",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	Run:   runKeysRevoke,
}

func init() {
	keysCmd.PersistentFlags().StringVar(&keysConfig, "config", "", "Path to a platform config file")
	keysCmd.AddCommand(keysCreateCmd)
	keysCmd.AddCommand(keysListCmd)
	keysCmd.AddCommand(keysRevokeCmd)
}

// openCorpusStore connects to the platform corpus for key management.
func openCorpusStore(ctx context.Context) (*corpus.Store, func()) {
	cfg, err := config.Load(keysConfig)
	if err != nil {
		exitError("failed to load config: %v", err)
	}
	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		exitError("failed to connect to postgres: %v", err)
	}
	store := corpus.NewStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		exitError("failed to ensure corpus schema: %v", err)
	}
	return store, func() { db.Close() }
}

func runKeysCreate(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	store, closeStore := openCorpusStore(ctx)
	defer closeStore()

	key, secret, err := store.CreateAPIKey(ctx, args[0])
	if err != nil {
		exitError("failed to create key: %v", err)
	}
	color.New(color.FgGreen).Printf("Created key %s (%s)\n", shortID(key.ID), key.Name)
	fmt.Printf("Secret: %s\n", secret)
	color.New(color.FgYellow).Println("Store the secret now; it cannot be shown again.")
}

func runKeysList(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	store, closeStore := openCorpusStore(ctx)
	defer closeStore()

	keys, err := store.ListAPIKeys(ctx)
	if err != nil {
		exitError("failed to list keys: %v", err)
	}
	if len(keys) == 0 {
		fmt.Println("No API keys yet")
		return
	}
	for _, key := range keys {
		if key.Revoked() {
			color.New(color.FgRed).Printf("%-9s ", "revoked")
		} else {
			color.New(color.FgGreen).Printf("%-9s ", "active")
		}
		fmt.Printf("%s  %-20s created %s\n",
			shortID(key.ID), key.Name, key.CreatedAt.UTC().Format(time.RFC3339))
	}
}

func runKeysRevoke(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	store, closeStore := openCorpusStore(ctx)
	defer closeStore()

	if err := store.RevokeAPIKey(ctx, args[0]); err != nil {
		exitError("failed to revoke key: %v", err)
	}
	color.New(color.FgGreen).Printf("Revoked key %s\n", shortID(args[0]))
}
