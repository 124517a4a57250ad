package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres backs the store with a shared database so multiple gateway
// processes can serve the same assistant.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to connString, verifies the connection, and
// applies the schema.
func OpenPostgres(ctx context.Context, connString string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	p := &Postgres{pool: pool}
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS hashes (
			key   TEXT NOT NULL,
			field TEXT NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (key, field)
		)`,
		`CREATE TABLE IF NOT EXISTS logs (
			id    BIGSERIAL PRIMARY KEY,
			key   TEXT NOT NULL,
			value BYTEA NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS logs_key ON logs (key, id)`,
		`CREATE TABLE IF NOT EXISTS blobs (
			key        TEXT PRIMARY KEY,
			data       BYTEA NOT NULL,
			created_at BIGINT NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("applying store schema: %w", err)
		}
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := p.pool.QueryRow(ctx, `SELECT value FROM kv WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("kv get %q: %w", key, err)
	}
	return value, nil
}

func (p *Postgres) Set(ctx context.Context, key, value string) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("kv set %q: %w", key, err)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, key string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM kv WHERE key = $1`, key); err != nil {
		return fmt.Errorf("kv delete %q: %w", key, err)
	}
	return nil
}

func (p *Postgres) HGet(ctx context.Context, key, field string) (string, error) {
	var value string
	err := p.pool.QueryRow(ctx,
		`SELECT value FROM hashes WHERE key = $1 AND field = $2`, key, field).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("hash get %q.%q: %w", key, field, err)
	}
	return value, nil
}

func (p *Postgres) HSet(ctx context.Context, key, field, value string) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO hashes (key, field, value) VALUES ($1, $2, $3)
		 ON CONFLICT (key, field) DO UPDATE SET value = EXCLUDED.value`,
		key, field, value)
	if err != nil {
		return fmt.Errorf("hash set %q.%q: %w", key, field, err)
	}
	return nil
}

func (p *Postgres) HSetAll(ctx context.Context, key string, fields map[string]string) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("hash setall %q: %w", key, err)
	}
	defer tx.Rollback(ctx)
	for field, value := range fields {
		if _, err := tx.Exec(ctx,
			`INSERT INTO hashes (key, field, value) VALUES ($1, $2, $3)
			 ON CONFLICT (key, field) DO UPDATE SET value = EXCLUDED.value`,
			key, field, value); err != nil {
			return fmt.Errorf("hash setall %q.%q: %w", key, field, err)
		}
	}
	return tx.Commit(ctx)
}

func (p *Postgres) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT field, value FROM hashes WHERE key = $1`, key)
	if err != nil {
		return nil, fmt.Errorf("hash getall %q: %w", key, err)
	}
	defer rows.Close()

	fields := map[string]string{}
	for rows.Next() {
		var field, value string
		if err := rows.Scan(&field, &value); err != nil {
			return nil, fmt.Errorf("hash getall %q: %w", key, err)
		}
		fields[field] = value
	}
	return fields, rows.Err()
}

func (p *Postgres) LogAppend(ctx context.Context, key string, value []byte, max int) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("log append %q: %w", key, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO logs (key, value) VALUES ($1, $2)`, key, value); err != nil {
		return fmt.Errorf("log append %q: %w", key, err)
	}
	if max > 0 {
		if _, err := tx.Exec(ctx,
			`DELETE FROM logs WHERE key = $1 AND id NOT IN
			 (SELECT id FROM logs WHERE key = $1 ORDER BY id DESC LIMIT $2)`,
			key, max); err != nil {
			return fmt.Errorf("log trim %q: %w", key, err)
		}
	}
	return tx.Commit(ctx)
}

func (p *Postgres) LogRange(ctx context.Context, key string, limit int) ([][]byte, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if limit > 0 {
		rows, err = p.pool.Query(ctx,
			`SELECT value FROM
			 (SELECT id, value FROM logs WHERE key = $1 ORDER BY id DESC LIMIT $2) recent
			 ORDER BY id ASC`, key, limit)
	} else {
		rows, err = p.pool.Query(ctx,
			`SELECT value FROM logs WHERE key = $1 ORDER BY id ASC`, key)
	}
	if err != nil {
		return nil, fmt.Errorf("log range %q: %w", key, err)
	}
	defer rows.Close()

	var values [][]byte
	for rows.Next() {
		var value []byte
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("log range %q: %w", key, err)
		}
		values = append(values, value)
	}
	return values, rows.Err()
}

func (p *Postgres) LogDelete(ctx context.Context, key string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM logs WHERE key = $1`, key); err != nil {
		return fmt.Errorf("log delete %q: %w", key, err)
	}
	return nil
}

func (p *Postgres) PutBlob(ctx context.Context, data []byte) (string, error) {
	key := uuid.NewString()
	_, err := p.pool.Exec(ctx,
		`INSERT INTO blobs (key, data, created_at) VALUES ($1, $2, $3)`,
		key, data, time.Now().Unix())
	if err != nil {
		return "", fmt.Errorf("blob put: %w", err)
	}
	return key, nil
}

func (p *Postgres) GetBlob(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := p.pool.QueryRow(ctx, `SELECT data FROM blobs WHERE key = $1`, key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("blob get %q: %w", key, err)
	}
	return data, nil
}

func (p *Postgres) DeleteBlob(ctx context.Context, key string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM blobs WHERE key = $1`, key); err != nil {
		return fmt.Errorf("blob delete %q: %w", key, err)
	}
	return nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
