package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/taskfeed/internal/model"
	"github.com/nhle/taskfeed/internal/store"
	"github.com/nhle/taskfeed/internal/theme"
)

func notificationsCmd(opts *rootOptions) *cobra.Command {
	var (
		user     string
		all      bool
		markRead bool
	)

	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "List notifications addressed to a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(opts)
			if err != nil {
				return err
			}
			defer e.Close()

			docs, err := listNotifications(cmd.Context(), e.store, user, all)
			if err != nil {
				return err
			}
			printNotifications(cmd.OutOrStdout(), docs)

			if markRead {
				return markNotificationsRead(cmd.Context(), e.store, docs)
			}
			return nil
		},
	}

	addUserFlag(cmd, &user)
	cmd.Flags().BoolVar(&all, "all", false, "include notifications already read")
	cmd.Flags().BoolVar(&markRead, "mark-read", false, "mark the listed notifications as read")
	return cmd
}

// listNotifications returns the notifications of user, newest first.
func listNotifications(ctx context.Context, s store.Store, user string, all bool) ([]store.Document, error) {
	q := store.Collection(model.CollectionNotifications).
		Where(model.FieldTargetUserID, store.OpEqual, user)
	if !all {
		q = q.Where(model.FieldIsRead, store.OpEqual, false)
	}

	docs, err := s.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}

	sort.SliceStable(docs, func(i, j int) bool {
		ti, _ := docs[i].Time(model.FieldCreatedAt)
		tj, _ := docs[j].Time(model.FieldCreatedAt)
		return ti.After(tj)
	})
	return docs, nil
}

func markNotificationsRead(ctx context.Context, s store.Store, docs []store.Document) error {
	for _, doc := range docs {
		if doc.Bool(model.FieldIsRead) {
			continue
		}
		ref := store.Doc(model.CollectionNotifications, doc.ID())
		if err := s.Update(ctx, ref, store.Set(model.FieldIsRead, true)); err != nil {
			return fmt.Errorf("marking %s read: %w", ref, err)
		}
	}
	return nil
}

func printNotifications(out io.Writer, docs []store.Document) {
	fmt.Fprintln(out, theme.HeaderStyle.Render(fmt.Sprintf("%d notifications", len(docs))))
	for _, doc := range docs {
		kind := model.NotificationType(doc.String(model.FieldType))
		line := fmt.Sprintf("%s %s",
			theme.NotificationStyle(kind).Render(string(kind)),
			doc.String(model.FieldTitle),
		)
		if desc := doc.String(model.FieldDescription); desc != "" {
			line += ": " + desc
		}
		if at, ok := doc.Time(model.FieldCreatedAt); ok {
			line += " " + theme.MutedStyle.Render(at.Local().Format(time.DateTime))
		}
		if !doc.Bool(model.FieldIsRead) {
			line = "● " + line
		} else {
			line = "  " + line
		}
		fmt.Fprintln(out, line)
	}
}
