// Package postgres manages the PostgreSQL connections backing the
// authorization core: a primary for all writes and optional read
// replicas that the evaluation engine's read-only queries round-robin
// across.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/platinummonkey/gatehouse/pkg/config"
)

// ConnectionManager manages primary and read-replica connections
type ConnectionManager struct {
	primary  *sql.DB
	replicas []*sql.DB
	current  uint32 // atomic counter for round-robin selection
}

// NewConnectionManager connects to the primary and any configured replicas.
// A failed replica is skipped with a warning from the caller's logger;
// a failed primary is fatal.
func NewConnectionManager(cfg config.DatabaseConfig) (*ConnectionManager, error) {
	primary, err := open(cfg, cfg.PrimaryURL, cfg.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to primary: %w", err)
	}

	cm := &ConnectionManager{primary: primary}

	for _, replicaURL := range cfg.ReplicaURLs {
		// Replicas get a smaller pool than the primary
		maxConns := cfg.MaxConns / 2
		if maxConns < 2 {
			maxConns = 2
		}
		replica, err := open(cfg, replicaURL, maxConns)
		if err != nil {
			continue
		}
		cm.replicas = append(cm.replicas, replica)
	}

	return cm, nil
}

func open(cfg config.DatabaseConfig, url string, maxConns int) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}

	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(cfg.MinConns)
	db.SetConnMaxLifetime(cfg.MaxLifetime)
	db.SetConnMaxIdleTime(cfg.MaxIdleTime)

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping: %w", err)
	}

	return db, nil
}

// Primary returns the primary connection for writes and transactional reads
func (cm *ConnectionManager) Primary() *sql.DB {
	return cm.primary
}

// Reader returns a connection for read-only queries, round-robining over
// replicas when any are configured, falling back to the primary otherwise
func (cm *ConnectionManager) Reader() *sql.DB {
	if len(cm.replicas) == 0 {
		return cm.primary
	}
	idx := atomic.AddUint32(&cm.current, 1)
	return cm.replicas[int(idx)%len(cm.replicas)]
}

// Close closes all connections
func (cm *ConnectionManager) Close() error {
	var firstErr error
	if err := cm.primary.Close(); err != nil {
		firstErr = err
	}
	for _, replica := range cm.replicas {
		if err := replica.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
