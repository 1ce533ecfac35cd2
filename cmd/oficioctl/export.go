package main

import (
	"fmt"

	"oficiogen/backend/internal/models"
	"oficiogen/backend/internal/store"

	"github.com/spf13/cobra"
)

func newExportCmd(e env, opts *rootOptions) *cobra.Command {
	var (
		sessionID string
		copyOut   bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Print the latest generated document of a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(e, opts, func(s *store.Store) error {
				sessions, _ := store.Load[[]models.ChatSession](cmd.Context(), s, store.ChatsKey(opts.profile))

				sess, err := findSession(sessions, sessionID)
				if err != nil {
					return err
				}

				msg, ok := sess.LastMessage(models.RoleAssistant)
				if !ok {
					return fmt.Errorf("session %s has no generated document", sess.ID)
				}

				fmt.Fprintln(cmd.OutOrStdout(), msg.Content)

				if copyOut {
					if err := e.copy(msg.Content); err != nil {
						return fmt.Errorf("failed to copy to clipboard: %w", err)
					}
					fmt.Fprintln(cmd.ErrOrStderr(), "Copied to clipboard")
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session id or unique id prefix")
	cmd.Flags().BoolVar(&copyOut, "copy", false, "Also copy the document to the clipboard")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}
