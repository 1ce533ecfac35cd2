package main

import (
	"errors"
	"fmt"

	"oficiogen/backend/internal/store"

	"github.com/spf13/cobra"
)

func newResetCmd(e env, opts *rootOptions) *cobra.Command {
	var sessions, usageRecord bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete a profile's persisted sessions and/or usage record",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !sessions && !usageRecord {
				return errors.New("nothing to reset: pass --sessions and/or --usage")
			}

			return withStore(e, opts, func(s *store.Store) error {
				out := cmd.OutOrStdout()
				if sessions {
					s.Delete(cmd.Context(), store.ChatsKey(opts.profile))
					fmt.Fprintln(out, "Sessions deleted")
				}
				if usageRecord {
					s.Delete(cmd.Context(), store.SubscriptionKey(opts.profile))
					fmt.Fprintln(out, "Usage record deleted")
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&sessions, "sessions", false, "Delete the chat sessions")
	cmd.Flags().BoolVar(&usageRecord, "usage", false, "Delete the usage record")
	return cmd
}
