// Package postgres implements the tenant-scoped key-value store on a single
// tenant_kv table. Keys compose as tenant_id:entity_type:entity_id; callers
// supply the parts separately so cross-tenant keys cannot be built.
package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/pitchlabs/pitchscore/internal/core/domain"
	"github.com/pitchlabs/pitchscore/internal/core/ports"
	"github.com/pitchlabs/pitchscore/internal/infrastructure/resilience"
)

type TenantStore struct {
	db       *sql.DB
	executor *resilience.Executor
}

func NewTenantStore(db *sql.DB, executor *resilience.Executor) *TenantStore {
	return &TenantStore{db: db, executor: executor}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (s *TenantStore) EnsureSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082801)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS tenant_kv (
	tenant_id TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	value JSONB NOT NULL,
	expires_at TIMESTAMPTZ,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (tenant_id, entity_type, entity_id)
);

CREATE INDEX IF NOT EXISTS idx_tenant_kv_scan ON tenant_kv(tenant_id, entity_type, entity_id);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (s *TenantStore) Put(ctx context.Context, tenantID, entityType, id string, value []byte, ttl time.Duration) error {
	var expires *time.Time
	if ttl > 0 {
		t := time.Now().UTC().Add(ttl)
		expires = &t
	}
	return s.run(ctx, "tenant_kv.put", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
INSERT INTO tenant_kv (tenant_id, entity_type, entity_id, value, expires_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (tenant_id, entity_type, entity_id)
DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at, updated_at = EXCLUDED.updated_at
`, tenantID, entityType, id, value, expires, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("upsert %s:%s:%s: %w", tenantID, entityType, id, err)
		}
		return nil
	})
}

func (s *TenantStore) Get(ctx context.Context, tenantID, entityType, id string) ([]byte, error) {
	var value []byte
	err := s.run(ctx, "tenant_kv.get", func(ctx context.Context) error {
		row := s.db.QueryRowContext(ctx, `
SELECT value FROM tenant_kv
WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3
  AND (expires_at IS NULL OR expires_at > now())
`, tenantID, entityType, id)
		return row.Scan(&value)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "tenant_kv.get",
				fmt.Errorf("%s:%s:%s", tenantID, entityType, id))
		}
		return nil, err
	}
	return value, nil
}

func (s *TenantStore) Delete(ctx context.Context, tenantID, entityType, id string) error {
	return s.run(ctx, "tenant_kv.delete", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
DELETE FROM tenant_kv
WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3
`, tenantID, entityType, id)
		if err != nil {
			return fmt.Errorf("delete %s:%s:%s: %w", tenantID, entityType, id, err)
		}
		return nil
	})
}

func (s *TenantStore) ScanPrefix(ctx context.Context, tenantID, entityType string) ([]ports.StoredEntity, error) {
	var out []ports.StoredEntity
	err := s.run(ctx, "tenant_kv.scan", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, `
SELECT entity_id, value FROM tenant_kv
WHERE tenant_id = $1 AND entity_type = $2
  AND (expires_at IS NULL OR expires_at > now())
ORDER BY entity_id
`, tenantID, entityType)
		if err != nil {
			return fmt.Errorf("scan %s:%s: %w", tenantID, entityType, err)
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			var entity ports.StoredEntity
			if err := rows.Scan(&entity.ID, &entity.Value); err != nil {
				return fmt.Errorf("scan row: %w", err)
			}
			out = append(out, entity)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// run executes one store operation with retry/backoff and maps connectivity
// failures to ErrStorageUnavailable so callers can distinguish them from
// absence.
func (s *TenantStore) run(ctx context.Context, operation string, fn func(context.Context) error) error {
	var err error
	if s.executor != nil {
		err = s.executor.Execute(ctx, operation, fn, classifyStorageError)
	} else {
		err = fn(ctx)
	}
	if err == nil {
		return nil
	}
	if classifyStorageError(err).Retryable {
		return domain.WrapError(domain.ErrStorageUnavailable, operation, err)
	}
	return err
}

func classifyStorageError(err error) resilience.Verdict {
	if err == nil {
		return resilience.Verdict{}
	}
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.Verdict{}
	}
	if errors.Is(err, driver.ErrBadConn) || resilience.IsCircuitOpen(err) {
		return resilience.Verdict{Retryable: true, RecordFailure: true}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.Verdict{Retryable: true, RecordFailure: true}
	}
	return resilience.Verdict{RecordFailure: true}
}
