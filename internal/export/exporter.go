// Package export snapshots collections to Parquet on S3. DuckDB reads the
// collection tables through postgres_scan, stages a local Parquet file, and
// the file is uploaded to a _tmp key before being copied to its final key
// so readers never observe a partially written object.
package export

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/google/uuid"
	"github.com/stashbase/stashbase"
	"github.com/stashbase/stashbase/internal"
	"go.uber.org/zap"
)

// Exporter owns the DuckDB staging database and the S3 client for one
// export run or a long-lived server.
type Exporter struct {
	cfg      stashbase.ExportConfig
	db       *sql.DB
	s3Client *s3.Client
	uploader *manager.Uploader
	breaker  *Breaker
}

// NewExporter opens the DuckDB staging database, loads its extensions, and
// builds the S3 client from the ambient AWS config.
func NewExporter(ctx context.Context, cfg stashbase.ExportConfig) (*Exporter, error) {
	db, err := sql.Open("duckdb", cfg.DuckDBPath)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	setupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	for _, ext := range []string{"parquet", "postgres_scanner"} {
		if _, err := db.ExecContext(setupCtx, "INSTALL "+ext+";"); err != nil {
			zap.S().Warnw("duckdb install extension failed", "ext", ext, "error", err)
			continue
		}
		if _, err := db.ExecContext(setupCtx, "LOAD "+ext+";"); err != nil {
			zap.S().Warnw("duckdb load extension failed", "ext", ext, "error", err)
		}
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if cfg.S3Region != "" {
		awsCfg.Region = cfg.S3Region
	}
	if cfg.S3AccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")
	}
	client := s3.NewFromConfig(awsCfg)

	return &Exporter{
		cfg:      cfg,
		db:       db,
		s3Client: client,
		uploader: manager.NewUploader(client),
		breaker:  NewBreaker(3, 5*time.Minute, 2*time.Minute),
	}, nil
}

// HealthCheck verifies the export bucket is reachable with the configured
// credentials.
func (e *Exporter) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := e.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(e.cfg.S3Bucket),
	})
	if err != nil {
		return fmt.Errorf("head bucket %s: %w", e.cfg.S3Bucket, classifyS3Error(err))
	}
	return nil
}

// Close releases the DuckDB staging database.
func (e *Exporter) Close() error {
	return e.db.Close()
}

// ExportCollection snapshots one collection to Parquet and publishes it
// under <prefix>/<collection>/<uuid>.parquet, returning the final key.
func (e *Exporter) ExportCollection(ctx context.Context, dbCfg stashbase.DatabaseConfig, collection string) (string, error) {
	local, err := e.stageParquet(ctx, dbCfg, collection)
	if err != nil {
		return "", err
	}
	defer os.Remove(local)

	batch := uuid.Must(uuid.NewV7()).String()
	prefix := strings.TrimSuffix(e.cfg.S3Prefix, "/")
	tmpKey := fmt.Sprintf("%s/%s/_tmp/%s.parquet", prefix, collection, batch)
	finalKey := fmt.Sprintf("%s/%s/%s.parquet", prefix, collection, batch)

	if err := e.upload(ctx, local, tmpKey); err != nil {
		return "", err
	}
	if err := e.promote(ctx, tmpKey, finalKey); err != nil {
		return "", err
	}

	zap.S().Infow("collection snapshot exported", "collection", collection, "key", finalKey)
	return finalKey, nil
}

// ExportAll snapshots every named collection, continuing past individual
// failures and returning the last error seen. Repeated failures open the
// breaker and the remaining collections are skipped until it closes.
func (e *Exporter) ExportAll(ctx context.Context, dbCfg stashbase.DatabaseConfig, collections []string) error {
	var lastErr error
	for _, collection := range collections {
		if e.breaker.Open() {
			zap.S().Warnw("export breaker open, skipping remaining collections", "collection", collection)
			if lastErr == nil {
				lastErr = fmt.Errorf("export suspended after repeated failures")
			}
			break
		}
		if _, err := e.ExportCollection(ctx, dbCfg, collection); err != nil {
			zap.S().Errorw("collection export failed", "collection", collection, "error", err)
			e.breaker.RecordFailure()
			lastErr = err
			continue
		}
		e.breaker.RecordSuccess()
	}
	return lastErr
}

// stageParquet copies one collection's rows into a local Parquet file
// through DuckDB's postgres_scan and returns the file path.
func (e *Exporter) stageParquet(ctx context.Context, dbCfg stashbase.DatabaseConfig, collection string) (string, error) {
	// postgres_scan takes a table name, not SQL, but the name is embedded
	// in the statement text so it is held to the collection-name grammar.
	if !internal.IsValidCollectionName(collection) {
		return "", fmt.Errorf("refusing to export unsafe collection name %q", collection)
	}

	local := filepath.Join(os.TempDir(), fmt.Sprintf("stashbase-%s-%s.parquet", collection, uuid.Must(uuid.NewV7()).String()))
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		dbCfg.Host, dbCfg.Port, dbCfg.Username, dbCfg.Password, dbCfg.Database, dbCfg.SSLMode)
	connEsc := strings.ReplaceAll(connStr, "'", "''")
	localEsc := strings.ReplaceAll(local, "'", "''")

	stmt := fmt.Sprintf(`COPY (
SELECT id, CAST(data AS VARCHAR) AS data, created_at
FROM postgres_scan('%s', 'public', '%s')
) TO '%s' (FORMAT PARQUET, COMPRESSION 'ZSTD');`, connEsc, collection, localEsc)

	execCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()
	if _, err := e.db.ExecContext(execCtx, stmt); err != nil {
		return "", fmt.Errorf("duckdb copy for collection %s: %w", collection, err)
	}
	return local, nil
}

func (e *Exporter) upload(ctx context.Context, local, key string) error {
	f, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("open staged parquet: %w", err)
	}
	defer f.Close()

	_, err = e.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(e.cfg.S3Bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, classifyS3Error(err))
	}
	return nil
}

// promote copies the staged object to its final key and removes the tmp
// object. A failed tmp delete leaves garbage under _tmp but the snapshot
// itself is already published.
func (e *Exporter) promote(ctx context.Context, tmpKey, finalKey string) error {
	_, err := e.s3Client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(e.cfg.S3Bucket),
		CopySource: aws.String(e.cfg.S3Bucket + "/" + tmpKey),
		Key:        aws.String(finalKey),
	})
	if err != nil {
		return fmt.Errorf("copy %s to %s: %w", tmpKey, finalKey, classifyS3Error(err))
	}

	if _, err := e.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(e.cfg.S3Bucket),
		Key:    aws.String(tmpKey),
	}); err != nil {
		zap.S().Warnw("tmp object cleanup failed", "key", tmpKey, "error", err)
	}
	return nil
}

// classifyS3Error annotates AWS API errors with their service error code.
func classifyS3Error(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("s3 %s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage())
	}
	return err
}
