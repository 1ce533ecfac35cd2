package main

import (
	"fmt"
	"strings"
	"time"

	"oficiogen/backend/internal/models"
	"oficiogen/backend/internal/store"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newSessionsCmd(e env, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List a profile's chat sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(e, opts, func(s *store.Store) error {
				sessions, _ := store.Load[[]models.ChatSession](cmd.Context(), s, store.ChatsKey(opts.profile))
				out := cmd.OutOrStdout()

				if len(sessions) == 0 {
					fmt.Fprintf(out, "No sessions found for profile %s\n", opts.profile)
					return nil
				}

				fmt.Fprintf(out, "Showing %d session(s)\n\n", len(sessions))
				for i, sess := range sessions {
					fmt.Fprintf(out, "[%d] %s\n", i+1, sess.ID)
					fmt.Fprintf(out, "    %s\n", sess.Title)
					fmt.Fprintf(out, "    %s, updated %s\n",
						plural(len(sess.Messages), "message"),
						humanize.Time(time.UnixMilli(sess.UpdatedAt)),
					)
				}
				return nil
			})
		},
	}
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return humanize.Comma(int64(n)) + " " + noun + "s"
}

// findSession looks a session up by id or unambiguous id prefix
func findSession(sessions []models.ChatSession, id string) (models.ChatSession, error) {
	var match []models.ChatSession
	for _, s := range sessions {
		if s.ID == id {
			return s, nil
		}
		if strings.HasPrefix(s.ID, id) {
			match = append(match, s)
		}
	}

	switch len(match) {
	case 0:
		return models.ChatSession{}, fmt.Errorf("session %s not found", id)
	case 1:
		return match[0], nil
	default:
		return models.ChatSession{}, fmt.Errorf("session prefix %s is ambiguous (%d matches)", id, len(match))
	}
}
