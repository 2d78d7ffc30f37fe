package main

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/taskfeed/internal/feed"
	"github.com/nhle/taskfeed/internal/normalize"
)

func tasksCmd(opts *rootOptions) *cobra.Command {
	var (
		user   string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Print the merged task list once",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(opts)
			if err != nil {
				return err
			}
			defer e.Close()

			agg := feed.NewAggregator(e.store, normalize.NewTeamNames(e.store), e.entry("feed"))
			tasks, err := agg.Load(cmd.Context(), user)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(tasks)
			}
			printTasks(cmd.OutOrStdout(), tasks, time.Now())
			return nil
		},
	}

	addUserFlag(cmd, &user)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print tasks as JSON")
	return cmd
}
