package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nhle/taskfeed/internal/credential"
)

func secretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage secrets kept in the system keyring",
	}

	setCmd := &cobra.Command{
		Use:   "set-redis-password",
		Short: "Read the Redis password from stdin and store it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("reading password: %w", err)
			}
			password := strings.TrimRight(line, "\r\n")
			if password == "" {
				return fmt.Errorf("empty password")
			}

			creds, err := credential.Open()
			if err != nil {
				return err
			}
			return creds.Set(credential.RedisPasswordKey, password)
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete-redis-password",
		Short: "Remove the stored Redis password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := credential.Open()
			if err != nil {
				return err
			}
			return creds.Delete(credential.RedisPasswordKey)
		},
	}

	cmd.AddCommand(setCmd, deleteCmd)
	return cmd
}
