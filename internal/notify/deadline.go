package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/nhle/taskfeed/internal/model"
	"github.com/nhle/taskfeed/internal/normalize"
	"github.com/nhle/taskfeed/internal/store"
)

// Bucket classifies how close a deadline is.
type Bucket int

const (
	BucketWithinHour Bucket = iota
	BucketWithinSixHours
	BucketWithinDay
)

func (b Bucket) String() string {
	switch b {
	case BucketWithinHour:
		return "<=1h"
	case BucketWithinSixHours:
		return "<=6h"
	default:
		return "<=24h"
	}
}

// DeadlineBucket returns the bucket for a deadline hoursLeft hours away.
func DeadlineBucket(hoursLeft float64) Bucket {
	switch {
	case hoursLeft <= 1:
		return BucketWithinHour
	case hoursLeft <= 6:
		return BucketWithinSixHours
	default:
		return BucketWithinDay
	}
}

// Message is the reminder text for a task titled title.
func (b Bucket) Message(title string) string {
	switch b {
	case BucketWithinHour:
		return fmt.Sprintf("%q is due within the hour", title)
	case BucketWithinSixHours:
		return fmt.Sprintf("%q is due in less than 6 hours", title)
	default:
		return fmt.Sprintf("%q is due within 24 hours", title)
	}
}

// NewDeadlineWatcher reminds the user once about each of their unfinished
// team tasks whose deadline is within the window. The live query is a
// relative window, so every re-delivery re-checks every task: a task
// entering the window is picked up by the next delivery.
func NewDeadlineWatcher(deps Deps) *Watcher {
	deps = deps.withDefaults()
	window := deps.DeadlineWindow
	query := func(userID string) store.Query {
		return store.Collection(model.CollectionTeamTasks).
			Where(model.FieldAssignees, store.OpArrayContains, userID).
			WithinNext(model.FieldDeadline, window)
	}

	handle := func(ctx context.Context, c *cycle, snap store.Snapshot) error {
		var errs []error
		for _, doc := range snap.Docs {
			if err := remind(ctx, c, doc, window.Hours()); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	return newWatcher(KindDeadline, deps, query, handle)
}

func remind(ctx context.Context, c *cycle, doc store.Document, maxHours float64) error {
	key := LedgerKey(KindDeadline, doc.ID(), c.user)
	if c.seen(key) {
		return nil
	}
	if !doc.Contains(model.FieldAssignees, c.user) {
		return nil
	}
	if v, ok := doc.Value(model.FieldStatus); ok && normalize.ParseStatus(v) == model.StatusDone {
		return nil
	}
	if AlreadyNotified(doc, model.FieldNotifiedDeadlineUsers, c.user) {
		c.mark(key)
		return nil
	}

	deadline, ok := doc.Time(model.FieldDeadline)
	if !ok {
		return nil
	}
	hoursLeft := deadline.Sub(c.now()).Hours()
	if hoursLeft < 0 || hoursLeft > maxHours {
		return nil
	}

	bucket := DeadlineBucket(hoursLeft)
	title := doc.String(model.FieldTitle)
	event := model.NotificationEvent{
		ID:           NotificationID(KindDeadline, doc.ID(), c.user),
		TargetUserID: c.user,
		Title:        "Deadline approaching",
		Description:  bucket.Message(title),
		Type:         model.NotificationDeadlineReminder,
		CreatedAt:    c.now(),
		TaskID:       doc.ID(),
		TaskTitle:    title,
		TeamID:       doc.String(model.FieldTeamID),
	}
	c.log.WithField("task", doc.ID()).WithField("bucket", bucket.String()).
		Debug("deadline reminder due")

	return c.notify(ctx, key, event,
		unionMarker(c.store(), doc.Ref, model.FieldNotifiedDeadlineUsers, c.user))
}
