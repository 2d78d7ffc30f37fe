// Command taskfeed shows a user's merged task feed and raises local alerts
// for new assignments, team invitations, comments and approaching deadlines.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nhle/taskfeed/internal/model"
)

var version = "dev"

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	debug      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "taskfeed",
		Short:         "Real-time task feed and notifications",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", model.DefaultConfigPath(), "config file")
	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(
		watchCmd(opts),
		tasksCmd(opts),
		notificationsCmd(opts),
		secretCmd(),
	)
	return rootCmd
}

// addUserFlag registers the required --user flag on cmd.
func addUserFlag(cmd *cobra.Command, user *string) {
	cmd.Flags().StringVarP(user, "user", "u", "", "signed-in user id")
	_ = cmd.MarkFlagRequired("user")
}
