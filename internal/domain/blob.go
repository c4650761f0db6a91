package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver moves settled markets from the database to cold storage.
type Archiver interface {
	// ArchiveSettlements uploads a snapshot of every market resolved before
	// the cutoff, together with its settled predictions, and prunes the
	// archived predictions from the primary store. It returns the number of
	// markets archived.
	ArchiveSettlements(ctx context.Context, before time.Time) (int64, error)
}
