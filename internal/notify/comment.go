package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/nhle/taskfeed/internal/model"
	"github.com/nhle/taskfeed/internal/store"
)

// NewCommentWatcher fans new comments on team tasks out to every member of
// the task's team except the author. Every watcher writes the durable
// notification records of all members; the per-member marker in
// comment_notifications is written by that member's own watcher, together
// with the local alert.
func NewCommentWatcher(deps Deps) *Watcher {
	query := func(string) store.Query {
		return store.Collection(model.CollectionComments)
	}
	return newWatcher(KindComment, deps, query, handleComments)
}

func handleComments(ctx context.Context, c *cycle, snap store.Snapshot) error {
	var errs []error
	for _, doc := range snap.Added() {
		if err := fanOut(ctx, c, doc); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func fanOut(ctx context.Context, c *cycle, comment store.Document) error {
	log := c.log.WithField("comment", comment.ID())

	taskID := comment.String(model.FieldTaskID)
	if taskID == "" {
		log.Debug("comment has no task")
		return nil
	}
	task, err := c.store().Get(ctx, store.Doc(model.CollectionTeamTasks, taskID))
	if errors.Is(err, store.ErrNotFound) {
		log.WithField("task", taskID).Debug("comment task not found")
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolving task of comment %s: %w", comment.ID(), err)
	}

	teamID := task.String(model.FieldTeamID)
	if teamID == "" {
		return nil
	}
	team, err := c.store().Get(ctx, store.Doc(model.CollectionTeams, teamID))
	if errors.Is(err, store.ErrNotFound) {
		log.WithField("team", teamID).Debug("comment team not found")
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolving team of comment %s: %w", comment.ID(), err)
	}

	if !team.Contains(model.FieldMembers, c.user) {
		return nil
	}

	author := comment.String(model.FieldAuthorID)
	var errs []error
	for _, member := range team.Strings(model.FieldMembers) {
		if member == author {
			continue
		}
		if err := notifyMember(ctx, c, comment, task, member); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func notifyMember(ctx context.Context, c *cycle, comment, task store.Document, member string) error {
	key := LedgerKey(KindComment, comment.ID(), member)
	if c.seen(key) || !c.active() {
		return nil
	}

	taskTitle := task.String(model.FieldTitle)
	event := model.NotificationEvent{
		ID:           NotificationID(KindComment, comment.ID(), member),
		TargetUserID: member,
		Title:        "New comment",
		Description:  fmt.Sprintf("New comment on %q: %s", taskTitle, comment.String(model.FieldText)),
		Type:         model.NotificationComment,
		CreatedAt:    c.now(),
		TaskID:       task.ID(),
		TaskTitle:    taskTitle,
		TeamID:       task.String(model.FieldTeamID),
		ActorUserID:  comment.String(model.FieldAuthorID),
	}

	if member != c.user {
		if _, err := c.create(ctx, event); err != nil {
			return err
		}
		c.mark(key)
		return nil
	}

	markerRef := store.Doc(model.CollectionCommentNotifications, comment.ID()+"_"+member)
	_, err := c.store().Get(ctx, markerRef)
	if err == nil {
		c.mark(key)
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("reading marker %s: %w", markerRef, err)
	}

	if _, err := c.create(ctx, event); err != nil {
		return err
	}
	err = c.store().Create(ctx, markerRef, map[string]any{
		model.FieldCommentID: comment.ID(),
		model.FieldMemberID:  member,
		model.FieldCreatedAt: c.now(),
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		// Another device of the same user got there first.
		c.mark(key)
		return nil
	}
	if err != nil {
		return fmt.Errorf("writing marker %s: %w", markerRef, err)
	}

	c.mark(key)
	c.alert(event.Title, event.Description)
	return nil
}
