// Command gatewayctl runs operator tasks against the gateway database:
// schema migration, catalog seeding, admin bootstrap, top-ups and key issue.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"llm_router/internal/config"
	"llm_router/internal/storage"
)

var (
	commandTimeout time.Duration
	databaseURL    string
)

var rootCmd = &cobra.Command{
	Use:   "gatewayctl",
	Short: "Operator tool for the LLM router",
	Long: `gatewayctl manages the router's PostgreSQL database.

Connection settings come from the same environment (and .env file) as the
gateway itself; --database-url overrides DATABASE_URL.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().DurationVar(&commandTimeout, "timeout", 30*time.Second, "Timeout for the whole command")
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (defaults to DATABASE_URL)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openStore connects to PostgreSQL using the gateway configuration
func openStore() (*storage.DB, *storage.PostgresStore, error) {
	if databaseURL != "" {
		os.Setenv("DATABASE_URL", databaseURL)
	}
	os.Setenv("STORAGE_BACKEND", "postgres")

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	db, err := storage.NewDB(storage.DBConfig{
		URL:             cfg.Database.URL,
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		return nil, nil, err
	}
	return db, storage.NewPostgresStore(db), nil
}

// withStore runs fn against an open store under the command timeout
func withStore(fn func(ctx context.Context, db *storage.DB, store *storage.PostgresStore) error) error {
	db, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	return fn(ctx, db, store)
}
