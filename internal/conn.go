package internal

import (
	"context"
	"fmt"
	"sync"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dsql/auth"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stashbase/stashbase"
	"go.uber.org/zap"
)

// ConnManager establishes the shared pgx pool lazily and hands out the same
// pool to every caller. When several goroutines race on a cold manager only
// one dials the database; the rest wait for that attempt instead of opening
// parallel connections. A failed attempt clears the pending state so the
// next Acquire retries from scratch.
type ConnManager struct {
	cfg stashbase.DatabaseConfig

	mu      sync.Mutex
	pool    *pgxpool.Pool
	pending chan struct{}
}

// NewConnManager creates a manager; no connection is made until Acquire.
func NewConnManager(cfg stashbase.DatabaseConfig) *ConnManager {
	return &ConnManager{cfg: cfg}
}

// Acquire returns the shared pool, connecting on first use.
func (m *ConnManager) Acquire(ctx context.Context) (*pgxpool.Pool, error) {
	for {
		m.mu.Lock()
		if m.pool != nil {
			pool := m.pool
			m.mu.Unlock()
			return pool, nil
		}
		if m.pending != nil {
			pending := m.pending
			m.mu.Unlock()
			select {
			case <-pending:
			case <-ctx.Done():
				return nil, stashbase.NewConnectionError("wait for database connection", ctx.Err())
			}
			continue
		}
		m.pending = make(chan struct{})
		pending := m.pending
		m.mu.Unlock()

		pool, err := m.connect(ctx)

		m.mu.Lock()
		if err == nil {
			m.pool = pool
		}
		m.pending = nil
		close(pending)
		m.mu.Unlock()

		if err != nil {
			return nil, err
		}
		return pool, nil
	}
}

// Close releases the pool. The manager can be reused; the next Acquire
// reconnects.
func (m *ConnManager) Close() {
	m.mu.Lock()
	pool := m.pool
	m.pool = nil
	m.mu.Unlock()
	if pool != nil {
		pool.Close()
	}
}

func (m *ConnManager) connect(ctx context.Context) (*pgxpool.Pool, error) {
	cfg := m.cfg
	if cfg.UseIAMAuth {
		token, err := m.iamToken(ctx)
		if err != nil {
			zap.S().Warnw("failed to generate IAM auth token, falling back to configured password", "error", err)
		} else {
			cfg.Password = token
		}
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, stashbase.NewConnectionError("parse connection string", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = cfg.ConnMaxIdleTime
	poolConfig.ConnConfig.ConnectTimeout = cfg.Timeout

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, stashbase.NewConnectionError("create connection pool", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, stashbase.NewConnectionError("ping database", err)
	}

	zap.S().Infow("database connection established",
		"host", cfg.Host, "database", cfg.Database, "max_conns", cfg.MaxConnections)
	return pool, nil
}

// iamToken generates a DSQL DB connect auth token in place of a static
// password.
func (m *ConnManager) iamToken(ctx context.Context) (string, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return "", fmt.Errorf("load aws config: %w", err)
	}
	if m.cfg.AWSRegion != "" {
		awsCfg.Region = m.cfg.AWSRegion
	}
	endpoint := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	token, err := auth.GenerateDbConnectAuthToken(ctx, endpoint, awsCfg.Region, awsCfg.Credentials)
	if err != nil {
		return "", fmt.Errorf("generate db connect token: %w", err)
	}
	return token, nil
}
