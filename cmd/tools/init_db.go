package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stashbase/stashbase"
	"github.com/stashbase/stashbase/internal"
)

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Create the metadata table",
	Long:  `Create the reserved collection metadata table in PostgreSQL. Collection tables themselves are created on demand by createCollection.`,
	RunE:  runInitDB,
}

func runInitDB(cmd *cobra.Command, args []string) error {
	cfg, err := loadToolConfig()
	if err != nil {
		return err
	}
	d := cfg.Database

	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.Username, d.Password, d.Database, d.SSLMode)
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		name TEXT PRIMARY KEY,
		description TEXT NOT NULL DEFAULT '',
		fields JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`, internal.QuoteIdent(d.MetaTable))
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create metadata table: %w", err)
	}

	zap.S().Infow("metadata table ready", "table", d.MetaTable, "database", d.Database)
	return nil
}

// loadToolConfig resolves configuration the same way the server does:
// --config flag, then CONFIG_PATH, then defaults.
func loadToolConfig() (*stashbase.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		return stashbase.DefaultConfig(), nil
	}
	return stashbase.LoadConfig(path)
}
