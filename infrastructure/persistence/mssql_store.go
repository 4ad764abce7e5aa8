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
)

// EnsureDocumentSchemaMSSQL creates the documents table on SQL Server if not exists
func EnsureDocumentSchemaMSSQL(db *sql.DB) error {
	ddl := `IF OBJECT_ID(N'dbo.documents', N'U') IS NULL
BEGIN
    CREATE TABLE dbo.documents (
        collection NVARCHAR(100) NOT NULL,
        id NVARCHAR(200) NOT NULL,
        data NVARCHAR(MAX) NOT NULL,
        updated_at DATETIME2 NOT NULL,
        CONSTRAINT PK_documents PRIMARY KEY (collection, id)
    )
END`
	if _, err := db.Exec(ddl); err != nil {
		return fmt.Errorf("create documents table: %w", err)
	}
	return nil
}

// MSSQLStore keeps documents as JSON text and filters with JSON_VALUE.
type MSSQLStore struct{ db *sql.DB }

func NewMSSQLStore(db *sql.DB) *MSSQLStore {
	return &MSSQLStore{db: db}
}

func (s *MSSQLStore) Put(ctx context.Context, collection, id string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	q := `MERGE dbo.documents AS target
USING (SELECT @p1 AS collection, @p2 AS id) AS source
ON target.collection = source.collection AND target.id = source.id
WHEN MATCHED THEN UPDATE SET data = @p3, updated_at = @p4
WHEN NOT MATCHED THEN INSERT (collection, id, data, updated_at) VALUES (@p1, @p2, @p3, @p4);`
	if _, err := s.db.ExecContext(ctx, q, collection, id, string(raw), time.Now().UTC()); err != nil {
		return fmt.Errorf("put %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *MSSQLStore) Get(ctx context.Context, collection, id string, out any) error {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM dbo.documents WHERE collection = @p1 AND id = @p2`, collection, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return json.Unmarshal([]byte(raw), out)
}

func (s *MSSQLStore) Query(ctx context.Context, collection string, filter repository.Filter, out any) error {
	keys, err := filterKeys(filter)
	if err != nil {
		return err
	}
	var sb strings.Builder
	sb.WriteString(`SELECT data FROM dbo.documents WHERE collection = @p1`)
	args := []any{collection}
	for _, k := range keys {
		args = append(args, filterValue(filter[k]))
		// keys are validated by filterKeys before being embedded in the JSON path
		fmt.Fprintf(&sb, ` AND JSON_VALUE(data, '$.%s') = @p%d`, k, len(args))
	}
	sb.WriteString(` ORDER BY updated_at`)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	var docs [][]byte
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return err
		}
		docs = append(docs, []byte(raw))
	}
	if err := rows.Err(); err != nil {
		return err
	}
	return decodeList(docs, out)
}
