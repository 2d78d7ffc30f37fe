package notify

import (
	"context"

	"github.com/nhle/taskfeed/internal/model"
	"github.com/nhle/taskfeed/internal/store"
)

// NewManualInviteWatcher forwards unread manual invitations addressed to
// the user to the alert sink, once per notification while the watcher
// runs. The record already exists, so nothing is written.
func NewManualInviteWatcher(deps Deps) *Watcher {
	query := func(userID string) store.Query {
		return store.Collection(model.CollectionNotifications).
			Where(model.FieldTargetUserID, store.OpEqual, userID).
			Where(model.FieldType, store.OpEqual, string(model.NotificationManualInvite)).
			Where(model.FieldIsRead, store.OpEqual, false)
	}

	handle := func(_ context.Context, c *cycle, snap store.Snapshot) error {
		for _, doc := range snap.Added() {
			key := LedgerKey(KindManualInvite, doc.ID())
			if c.seen(key) {
				continue
			}
			c.mark(key)
			c.alert(doc.String(model.FieldTitle), doc.String(model.FieldDescription))
		}
		return nil
	}

	return newWatcher(KindManualInvite, deps, query, handle)
}
