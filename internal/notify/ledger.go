package notify

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/nhle/taskfeed/internal/store"
)

// Ledger is the in-process half of notification dedup: the keys a watcher
// has already handled since it started. It only saves redundant writes;
// the markers persisted on source records decide whether a subject was
// notified.
type Ledger struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{keys: make(map[string]struct{})}
}

// Seen reports whether key was marked.
func (l *Ledger) Seen(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.keys[key]
	return ok
}

// Mark records key as handled.
func (l *Ledger) Mark(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys[key] = struct{}{}
}

// Reset forgets every key.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = make(map[string]struct{})
}

// Len returns the number of marked keys.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}

// LedgerKey builds the composite key "<kind>_<recordID>" or
// "<kind>_<recordID>_<subjectID>".
func LedgerKey(kind Kind, recordID string, subjectID ...string) string {
	parts := append([]string{string(kind), recordID}, subjectID...)
	return strings.Join(parts, "_")
}

// AlreadyNotified reports whether the marker array field of doc records
// subject. The snapshot carrying doc is current, so no extra read is
// needed.
func AlreadyNotified(doc store.Document, field, subject string) bool {
	return doc.Contains(field, subject)
}

var notificationNamespace = uuid.MustParse("3d9a6c1e-52f4-4b8e-9c0d-7e1f2a3b4c5d")

// NotificationID derives the id of the notification a watcher writes for
// (kind, recordID, subjectID). Every device computes the same id, so a
// create-if-absent write can never produce a second record.
func NotificationID(kind Kind, recordID, subjectID string) string {
	return uuid.NewSHA1(notificationNamespace, []byte(LedgerKey(kind, recordID, subjectID))).String()
}
