package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a local SQLite database. Documents are
// JSON bodies keyed by (collection, id); live queries are re-evaluated
// whenever their collection is written, locally or by another process
// publishing on the configured Notifier.
type SQLiteStore struct {
	db       *sqlx.DB
	origin   string
	clock    func() time.Time
	log      *logrus.Entry
	notifier Notifier
	resync   time.Duration
	hub      *hub

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithClock overrides the clock used for relative time filters.
func WithClock(clock func() time.Time) Option {
	return func(s *SQLiteStore) { s.clock = clock }
}

// WithResyncInterval makes every live query re-deliver its full result
// set every d, even when nothing was written.
func WithResyncInterval(d time.Duration) Option {
	return func(s *SQLiteStore) { s.resync = d }
}

// WithNotifier shares change signals with other processes.
func WithNotifier(n Notifier) Option {
	return func(s *SQLiteStore) { s.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(log *logrus.Entry) Option {
	return func(s *SQLiteStore) { s.log = log }
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// SQLite allows one writer; a single connection also keeps an
	// in-memory database alive for the lifetime of the store.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("executing %q: %w", pragma, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &SQLiteStore{
		db:     db,
		origin: uuid.New().String(),
		clock:  time.Now,
		log:    logrus.WithField("component", "store"),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = newHub(s)

	if err := s.runMigrations(); err != nil {
		cancel()
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	if s.resync > 0 {
		s.wg.Add(1)
		go s.resyncLoop()
	}
	if s.notifier != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.notifier.Subscribe(s.ctx, s.handleRemoteChange)
		}()
	}

	return s, nil
}

// Close stops every live query and closes the database connection.
func (s *SQLiteStore) Close() error {
	s.cancel()
	s.hub.stopAll()
	s.wg.Wait()
	return s.db.Close()
}

// Origin identifies this store instance on the change bus.
func (s *SQLiteStore) Origin() string {
	return s.origin
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// docRow is the scan target for documents rows.
type docRow struct {
	ID      string `db:"id"`
	Data    string `db:"data"`
	Version int64  `db:"version"`
}

func (r docRow) document(collection string) (Document, error) {
	data, err := decodeData(r.Data)
	if err != nil {
		return Document{}, fmt.Errorf("decoding %s/%s: %w", collection, r.ID, err)
	}
	return Document{
		Ref:     Doc(collection, r.ID),
		Data:    data,
		Version: r.Version,
	}, nil
}

// Get reads a single document.
func (s *SQLiteStore) Get(ctx context.Context, ref Ref) (Document, error) {
	var row docRow
	err := s.db.GetContext(ctx, &row,
		"SELECT id, data, version FROM documents WHERE collection = ? AND id = ?",
		ref.Collection, ref.ID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, fmt.Errorf("getting %s: %w", ref, ErrNotFound)
	}
	if err != nil {
		return Document{}, fmt.Errorf("getting %s: %w", ref, err)
	}
	return row.document(ref.Collection)
}

// Query evaluates q once against the current clock.
func (s *SQLiteStore) Query(ctx context.Context, q Query) ([]Document, error) {
	query, args, err := q.compile(s.clock())
	if err != nil {
		return nil, err
	}

	var rows []docRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("querying %s: %w", q.Collection, err)
	}

	docs := make([]Document, 0, len(rows))
	for _, r := range rows {
		doc, err := r.document(q.Collection)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Watch opens a live query.
func (s *SQLiteStore) Watch(
	ctx context.Context,
	q Query,
	fn SnapshotFunc,
) (Registration, error) {
	if s.ctx.Err() != nil {
		return nil, ErrClosed
	}
	// Reject malformed queries up front instead of on every delivery.
	if _, _, err := q.compile(s.clock()); err != nil {
		return nil, err
	}
	return s.hub.register(ctx, q, fn), nil
}

// Update atomically applies updates to an existing document.
func (s *SQLiteStore) Update(ctx context.Context, ref Ref, updates ...FieldUpdate) error {
	_, err := s.Apply(ctx, ref, updates...)
	return err
}

// Apply is Update that also reports whether the document changed. The
// check and the write share one transaction.
func (s *SQLiteStore) Apply(ctx context.Context, ref Ref, updates ...FieldUpdate) (bool, error) {
	if len(updates) == 0 {
		return false, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var row docRow
	err = tx.GetContext(ctx, &row,
		"SELECT id, data, version FROM documents WHERE collection = ? AND id = ?",
		ref.Collection, ref.ID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("updating %s: %w", ref, ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", ref, err)
	}

	data, err := decodeData(row.Data)
	if err != nil {
		return false, err
	}
	changed, err := applyUpdates(data, updates)
	if err != nil {
		return false, fmt.Errorf("updating %s: %w", ref, err)
	}
	if !changed {
		return false, nil
	}

	raw, err := encodeData(data)
	if err != nil {
		return false, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE documents SET data = ?, version = version + 1, updated_at = ?
		WHERE collection = ? AND id = ?`,
		raw, time.Now().UTC(), ref.Collection, ref.ID,
	)
	if err != nil {
		return false, fmt.Errorf("updating %s: %w", ref, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing %s: %w", ref, err)
	}

	s.changed(ref.Collection)
	return true, nil
}

// Add inserts data under a new random id.
func (s *SQLiteStore) Add(
	ctx context.Context,
	collection string,
	data map[string]any,
) (Ref, error) {
	ref := Doc(collection, uuid.New().String())
	if err := s.Create(ctx, ref, data); err != nil {
		return Ref{}, err
	}
	return ref, nil
}

// Create inserts data at ref unless a document already exists there.
func (s *SQLiteStore) Create(ctx context.Context, ref Ref, data map[string]any) error {
	raw, err := encodeData(data)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data, version, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT (collection, id) DO NOTHING`,
		ref.Collection, ref.ID, raw, now, now,
	)
	if err != nil {
		return fmt.Errorf("creating %s: %w", ref, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("creating %s: %w", ref, err)
	}
	if n == 0 {
		return fmt.Errorf("creating %s: %w", ref, ErrAlreadyExists)
	}

	s.changed(ref.Collection)
	return nil
}

// Set inserts or replaces the document at ref.
func (s *SQLiteStore) Set(ctx context.Context, ref Ref, data map[string]any) error {
	raw, err := encodeData(data)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data, version, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET
			data = excluded.data,
			version = documents.version + 1,
			updated_at = excluded.updated_at`,
		ref.Collection, ref.ID, raw, now, now,
	)
	if err != nil {
		return fmt.Errorf("setting %s: %w", ref, err)
	}

	s.changed(ref.Collection)
	return nil
}

// changed signals local live queries and, if configured, other processes.
func (s *SQLiteStore) changed(collection string) {
	s.hub.markDirty(collection)

	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(s.ctx, s.origin, collection); err != nil {
		s.log.WithError(err).WithField("collection", collection).
			Warn("publishing change signal")
	}
}

// handleRemoteChange marks live queries dirty for writes made elsewhere.
func (s *SQLiteStore) handleRemoteChange(origin, collection string) {
	if origin == s.origin {
		return
	}
	s.log.WithFields(logrus.Fields{
		"origin":     origin,
		"collection": collection,
	}).Debug("remote change")
	s.hub.markDirty(collection)
}

// resyncLoop periodically forces every live query to re-deliver.
func (s *SQLiteStore) resyncLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.resync)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.hub.resyncAll()
		}
	}
}

// Resync forces every live query to re-deliver its full result set.
func (s *SQLiteStore) Resync() {
	s.hub.resyncAll()
}
