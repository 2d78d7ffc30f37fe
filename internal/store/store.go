package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("document not found")
	ErrAlreadyExists = errors.New("document already exists")
	ErrInvalidQuery  = errors.New("invalid query")
	ErrClosed        = errors.New("store closed")
)

// Ref addresses a single document.
type Ref struct {
	Collection string
	ID         string
}

// Doc returns a reference to the document id in collection.
func Doc(collection, id string) Ref {
	return Ref{Collection: collection, ID: id}
}

func (r Ref) String() string {
	return r.Collection + "/" + r.ID
}

// ChangeType describes how a document changed between two snapshots.
type ChangeType int

const (
	ChangeAdded ChangeType = iota
	ChangeModified
	ChangeRemoved
)

func (c ChangeType) String() string {
	switch c {
	case ChangeAdded:
		return "added"
	case ChangeModified:
		return "modified"
	default:
		return "removed"
	}
}

// Change is a single per-document diff inside a snapshot.
type Change struct {
	Type ChangeType
	Doc  Document
}

// Snapshot is the full result set of a live query plus the changes since
// the previous delivery to the same registration. A periodic re-delivery
// carries the full result set and no changes.
type Snapshot struct {
	Docs     []Document
	Changes  []Change
	ReadTime time.Time
}

// Added returns the documents reported as newly added.
func (s Snapshot) Added() []Document {
	var docs []Document
	for _, c := range s.Changes {
		if c.Type == ChangeAdded {
			docs = append(docs, c.Doc)
		}
	}
	return docs
}

// SnapshotFunc receives snapshots of a live query. err is non-nil when the
// query could not be evaluated; the subscription stays open and is retried
// on the next change.
type SnapshotFunc func(snap Snapshot, err error)

// Registration is a handle on a live query.
type Registration interface {
	// Stop ends delivery. It is safe to call more than once and from
	// inside the callback.
	Stop()
}

// Store is the document store contract consumed by the feed and the
// notification watchers.
type Store interface {
	// Get reads a single document, returning ErrNotFound if absent.
	Get(ctx context.Context, ref Ref) (Document, error)

	// Query evaluates q once.
	Query(ctx context.Context, q Query) ([]Document, error)

	// Watch opens a live query. The first delivery contains every
	// matching document as added.
	Watch(ctx context.Context, q Query, fn SnapshotFunc) (Registration, error)

	// Update atomically applies field updates to an existing document.
	Update(ctx context.Context, ref Ref, updates ...FieldUpdate) error

	// Apply is Update that also reports whether the document changed.
	Apply(ctx context.Context, ref Ref, updates ...FieldUpdate) (bool, error)

	// Add inserts data under a new random id.
	Add(ctx context.Context, collection string, data map[string]any) (Ref, error)

	// Create inserts data at ref, returning ErrAlreadyExists if a
	// document is already there.
	Create(ctx context.Context, ref Ref, data map[string]any) error

	// Set inserts or replaces the document at ref.
	Set(ctx context.Context, ref Ref, data map[string]any) error

	Close() error
}
