package repository

import (
	"context"
	"errors"
)

// ErrNotFound is returned by document stores when no document has the given id.
var ErrNotFound = errors.New("document not found")

// Filter matches documents whose top-level JSON fields equal the given values.
type Filter map[string]any

// IDocumentStore is a schemaless keyed store. Put overwrites the whole document.
// Query decodes matches into out, which must be a pointer to a slice.
type IDocumentStore interface {
	Put(ctx context.Context, collection, id string, doc any) error
	Get(ctx context.Context, collection, id string, out any) error
	Query(ctx context.Context, collection string, filter Filter, out any) error
}
