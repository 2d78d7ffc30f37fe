package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/nhle/taskfeed/internal/alert"
	"github.com/nhle/taskfeed/internal/app"
	"github.com/nhle/taskfeed/internal/engine"
	"github.com/nhle/taskfeed/internal/model"
	"github.com/nhle/taskfeed/internal/theme"
	"github.com/nhle/taskfeed/internal/ui/tasklist"
)

func watchCmd(opts *rootOptions) *cobra.Command {
	var (
		user  string
		plain bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the merged task feed and raise alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			e, err := openEnv(opts)
			if err != nil {
				return err
			}
			defer e.Close()

			if plain {
				return watchPlain(ctx, e, user, cmd.OutOrStdout(), cmd.ErrOrStderr())
			}
			return watchInteractive(ctx, e, user)
		},
	}

	addUserFlag(cmd, &user)
	cmd.Flags().BoolVar(&plain, "plain", false, "print each update instead of the interactive view")
	return cmd
}

func engineOptions(e *env) engine.Options {
	return engine.Options{
		DeadlineWindow: e.cfg.Notify.DeadlineWindow(),
		Log:            e.entry("engine"),
	}
}

// watchPlain prints every merged list to out and alerts to alerts until
// ctx is done.
func watchPlain(ctx context.Context, e *env, user string, out, alerts io.Writer) error {
	sink := alert.NewTerminalSink(alerts, e.cfg.Alerts.Buffer, e.entry("alert"))
	defer sink.Close()

	eng := engine.New(e.store, sink, engineOptions(e))
	f, err := eng.Start(ctx, user)
	if err != nil {
		return err
	}
	defer eng.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case tasks, ok := <-f.Updates():
			if !ok {
				return nil
			}
			printTasks(out, tasks, time.Now())
		}
	}
}

func watchInteractive(ctx context.Context, e *env, user string) error {
	e.quiet()

	queue := app.NewAlertQueue(e.cfg.Alerts.Buffer, e.entry("alert"))
	eng := engine.New(e.store, queue, engineOptions(e))
	f, err := eng.Start(ctx, user)
	if err != nil {
		return err
	}
	defer eng.Stop()

	m := app.New(app.Options{
		UserID:   user,
		Feed:     f,
		Alerts:   queue,
		Statuses: eng.Statuses,
		Resync:   e.store.Resync,
	})
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("running watch view: %w", err)
	}
	return nil
}

func printTasks(out io.Writer, tasks []model.Task, now time.Time) {
	fmt.Fprintln(out, theme.HeaderStyle.Render(fmt.Sprintf("%d tasks", len(tasks))))
	for _, t := range tasks {
		fmt.Fprintln(out, tasklist.RenderTask(t, now))
	}
}
