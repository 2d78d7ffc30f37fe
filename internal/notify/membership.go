package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/nhle/taskfeed/internal/model"
	"github.com/nhle/taskfeed/internal/store"
)

// membership describes a watcher that notifies a user once when they are
// added to the array field of a record someone else created.
type membership struct {
	kind       Kind
	collection string
	field      string
	marker     string
	event      func(doc store.Document) model.NotificationEvent
}

// NewAssignmentWatcher notifies the user about team tasks they were
// assigned to by someone else.
func NewAssignmentWatcher(deps Deps) *Watcher {
	return membership{
		kind:       KindAssignment,
		collection: model.CollectionTeamTasks,
		field:      model.FieldAssignees,
		marker:     model.FieldNotifiedUsers,
		event: func(doc store.Document) model.NotificationEvent {
			title := doc.String(model.FieldTitle)
			return model.NotificationEvent{
				Title:       "New task assignment",
				Description: fmt.Sprintf("You were assigned to %q", title),
				Type:        model.NotificationAssignment,
				TaskID:      doc.ID(),
				TaskTitle:   title,
				TeamID:      doc.String(model.FieldTeamID),
			}
		},
	}.watcher(deps)
}

// NewTeamInviteWatcher notifies the user about teams they were added to by
// someone else.
func NewTeamInviteWatcher(deps Deps) *Watcher {
	return membership{
		kind:       KindTeamInvite,
		collection: model.CollectionTeams,
		field:      model.FieldMembers,
		marker:     model.FieldNotifiedMembers,
		event: func(doc store.Document) model.NotificationEvent {
			name := doc.String(model.FieldName)
			if name == "" {
				name = doc.ID()
			}
			return model.NotificationEvent{
				Title:       "Team invitation",
				Description: fmt.Sprintf("You were added to team %q", name),
				Type:        model.NotificationTeamInvite,
				TeamID:      doc.ID(),
			}
		},
	}.watcher(deps)
}

func (m membership) watcher(deps Deps) *Watcher {
	query := func(userID string) store.Query {
		return store.Collection(m.collection).Where(m.field, store.OpArrayContains, userID)
	}
	return newWatcher(m.kind, deps, query, m.handle)
}

// handle reacts to added records only.
func (m membership) handle(ctx context.Context, c *cycle, snap store.Snapshot) error {
	var errs []error
	for _, doc := range snap.Added() {
		if err := m.handleDoc(ctx, c, doc); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m membership) handleDoc(ctx context.Context, c *cycle, doc store.Document) error {
	key := LedgerKey(m.kind, doc.ID(), c.user)
	if c.seen(key) {
		return nil
	}

	creator := doc.String(model.FieldCreatedBy)
	if creator == c.user {
		c.log.WithField("record", doc.ID()).Debug("skipping self-created record")
		c.mark(key)
		return nil
	}
	if AlreadyNotified(doc, m.marker, c.user) {
		c.mark(key)
		return nil
	}

	event := m.event(doc)
	event.ID = NotificationID(m.kind, doc.ID(), c.user)
	event.TargetUserID = c.user
	event.ActorUserID = creator
	event.CreatedAt = c.now()

	return c.notify(ctx, key, event, unionMarker(c.store(), doc.Ref, m.marker, c.user))
}
