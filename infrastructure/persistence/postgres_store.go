package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"linkhealth/domain/repository"
	"linkhealth/infrastructure/configuration"

	_ "github.com/lib/pq"
)

func NewPostgreSQLDB(cfg configuration.Db) (*sql.DB, error) {
	port := cfg.Port
	if port == "" {
		port = "5432"
	}
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable", cfg.Host, port, cfg.User, cfg.Password, cfg.Name)
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// EnsureDocumentSchema creates the JSONB documents table if not exists
func EnsureDocumentSchema(db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS documents (
        collection TEXT NOT NULL,
        id TEXT NOT NULL,
        data JSONB NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL,
        PRIMARY KEY (collection, id)
    )`
	if _, err := db.Exec(ddl); err != nil {
		return fmt.Errorf("create documents table: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_documents_data ON documents USING GIN (data jsonb_path_ops)`); err != nil {
		return fmt.Errorf("create idx_documents_data: %w", err)
	}
	return nil
}

// PostgresStore keeps documents as JSONB rows keyed by (collection, id).
type PostgresStore struct{ db *sql.DB }

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Put(ctx context.Context, collection, id string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	q := `INSERT INTO documents (collection, id, data, updated_at) VALUES ($1, $2, $3, $4)
          ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`
	if _, err := s.db.ExecContext(ctx, q, collection, id, raw, time.Now().UTC()); err != nil {
		return fmt.Errorf("put %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, collection, id string, out any) error {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM documents WHERE collection = $1 AND id = $2`, collection, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return json.Unmarshal(raw, out)
}

func (s *PostgresStore) Query(ctx context.Context, collection string, filter repository.Filter, out any) error {
	keys, err := filterKeys(filter)
	if err != nil {
		return err
	}
	var sb strings.Builder
	sb.WriteString(`SELECT data FROM documents WHERE collection = $1`)
	args := []any{collection}
	for _, k := range keys {
		args = append(args, k, filterValue(filter[k]))
		fmt.Fprintf(&sb, ` AND data->>$%d = $%d`, len(args)-1, len(args))
	}
	sb.WriteString(` ORDER BY updated_at`)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	var docs [][]byte
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return err
		}
		docs = append(docs, raw)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	return decodeList(docs, out)
}
