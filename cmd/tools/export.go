package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stashbase/stashbase/internal"
	"github.com/stashbase/stashbase/internal/export"
)

var exportCollections []string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Snapshot collections to Parquet on S3",
	Long:  `Export collection snapshots as Parquet objects to the configured S3 bucket. With no --collections flag, every registered collection is exported.`,
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringSliceVar(&exportCollections, "collections", nil, "collections to export (default: all)")
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadToolConfig()
	if err != nil {
		return err
	}
	if !cfg.Export.Enabled {
		return fmt.Errorf("export is not enabled in the configuration")
	}

	ctx := context.Background()

	names := exportCollections
	if len(names) == 0 {
		conns := internal.NewConnManager(cfg.Database)
		pool, err := conns.Acquire(ctx)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer conns.Close()

		metas, err := internal.NewMetaStore(pool, cfg.Database.MetaTable).List(ctx)
		if err != nil {
			return fmt.Errorf("list collections: %w", err)
		}
		for _, meta := range metas {
			names = append(names, meta.Name)
		}
	}
	if len(names) == 0 {
		zap.S().Infow("no collections to export")
		return nil
	}

	exporter, err := export.NewExporter(ctx, cfg.Export)
	if err != nil {
		return fmt.Errorf("create exporter: %w", err)
	}
	defer exporter.Close()

	if err := exporter.HealthCheck(ctx); err != nil {
		return fmt.Errorf("export bucket not reachable: %w", err)
	}

	if err := exporter.ExportAll(ctx, cfg.Database, names); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	zap.S().Infow("export complete", "collections", len(names))
	return nil
}
