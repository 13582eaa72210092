package internal

import (
	"context"
	"fmt"
	"time"
)

// CheckDatabase verifies the database is reachable and can execute SQL.
// timeout may be 0 to use a 5s default.
func CheckDatabase(ctx context.Context, pool PgxPool, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if _, err := pool.Exec(ctx, "SELECT 1"); err != nil {
		return fmt.Errorf("database probe query failed: %w", err)
	}
	return nil
}
