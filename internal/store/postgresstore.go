package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	sdkAuth "github.com/Infomaniak/infomaniak-login-go/sdk/auth"
	_ "github.com/jackc/pgx/v5/stdlib"
	log "github.com/sirupsen/logrus"
)

const defaultTokenTable = "infomaniak_tokens"

// PostgresStoreConfig captures configuration required to initialize a Postgres-backed store.
type PostgresStoreConfig struct {
	DSN        string
	Schema     string
	TokenTable string
}

// PostgresStore persists token records in a PostgreSQL table, one JSONB row per record.
type PostgresStore struct {
	db  *sql.DB
	cfg PostgresStoreConfig
	mu  sync.Mutex
}

var _ sdkAuth.Store = (*PostgresStore)(nil)

// NewPostgresStore establishes a connection to PostgreSQL and creates the token
// table when missing.
func NewPostgresStore(ctx context.Context, cfg PostgresStoreConfig) (*PostgresStore, error) {
	trimmedDSN := strings.TrimSpace(cfg.DSN)
	if trimmedDSN == "" {
		return nil, fmt.Errorf("postgres store: DSN is required")
	}
	cfg.DSN = trimmedDSN
	if strings.TrimSpace(cfg.TokenTable) == "" {
		cfg.TokenTable = defaultTokenTable
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres store: open database connection: %w", err)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres store: ping database: %w", err)
	}

	store := &PostgresStore{db: db, cfg: cfg}
	if err = store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the underlying database connection.
func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// EnsureSchema creates the token table (and schema when provided).
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store: not initialized")
	}
	if schema := strings.TrimSpace(s.cfg.Schema); schema != "" {
		query := fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", quoteIdentifier(schema))
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("postgres store: create schema: %w", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			user_id BIGINT NOT NULL,
			content JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`, s.tableName())); err != nil {
		return fmt.Errorf("postgres store: create token table: %w", err)
	}
	return nil
}

// Save upserts record under its id.
func (s *PostgresStore) Save(ctx context.Context, record *sdkAuth.Record) (string, error) {
	if record == nil || record.Token == nil {
		return "", fmt.Errorf("postgres store: record is nil")
	}
	id, err := recordID(record)
	if err != nil {
		return "", err
	}
	raw, err := sdkAuth.MarshalRecord(record)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := fmt.Sprintf(`
		INSERT INTO %s (id, user_id, content, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (id)
		DO UPDATE SET user_id = EXCLUDED.user_id, content = EXCLUDED.content, updated_at = NOW()
	`, s.tableName())
	if _, err = s.db.ExecContext(ctx, query, id, record.Token.UserID, json.RawMessage(raw)); err != nil {
		return "", fmt.Errorf("postgres store: upsert token record: %w", err)
	}
	record.ID = id
	record.Path = s.location(id)
	return record.Path, nil
}

// Load reads the record stored under id.
func (s *PostgresStore) Load(ctx context.Context, id string) (*sdkAuth.Record, error) {
	id, err := normalizeID(id)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT content FROM %s WHERE id = $1", s.tableName())
	var payload string
	err = s.db.QueryRowContext(ctx, query, id).Scan(&payload)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("%w: %s", sdkAuth.ErrRecordNotFound, id)
	case err != nil:
		return nil, fmt.Errorf("postgres store: load token record: %w", err)
	}
	return s.decode(id, []byte(payload))
}

// List enumerates all token records ordered by id.
func (s *PostgresStore) List(ctx context.Context) ([]*sdkAuth.Record, error) {
	query := fmt.Sprintf("SELECT id, content, updated_at FROM %s ORDER BY id", s.tableName())
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list token records: %w", err)
	}
	defer rows.Close()

	records := make([]*sdkAuth.Record, 0, 8)
	for rows.Next() {
		var (
			id        string
			payload   string
			updatedAt time.Time
		)
		if err = rows.Scan(&id, &payload, &updatedAt); err != nil {
			return nil, fmt.Errorf("postgres store: scan token row: %w", err)
		}
		record, errDecode := s.decode(id, []byte(payload))
		if errDecode != nil {
			log.WithError(errDecode).Warnf("postgres store: skipping token %s with invalid json", id)
			continue
		}
		if record.LastRefreshedAt.IsZero() {
			record.LastRefreshedAt = updatedAt
		}
		records = append(records, record)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres store: iterate token rows: %w", err)
	}
	return records, nil
}

// Delete removes the record stored under id. A missing row is not an error.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	id, err := normalizeID(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", s.tableName())
	if _, err = s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("postgres store: delete token record: %w", err)
	}
	return nil
}

func (s *PostgresStore) decode(id string, payload []byte) (*sdkAuth.Record, error) {
	record, err := sdkAuth.UnmarshalRecord(payload)
	if err != nil {
		return nil, fmt.Errorf("postgres store: %s: %w", id, err)
	}
	record.ID = id
	record.Path = s.location(id)
	return record, nil
}

// location describes where a record lives, for messages shown to the user.
func (s *PostgresStore) location(id string) string {
	return fmt.Sprintf("postgres:%s/%s", s.tableName(), id)
}

func (s *PostgresStore) tableName() string {
	return fullTableName(s.cfg.Schema, s.cfg.TokenTable)
}

func fullTableName(schema, name string) string {
	if strings.TrimSpace(schema) == "" {
		return quoteIdentifier(name)
	}
	return quoteIdentifier(schema) + "." + quoteIdentifier(name)
}

func quoteIdentifier(identifier string) string {
	replaced := strings.ReplaceAll(identifier, "\"", "\"\"")
	return "\"" + replaced + "\""
}
