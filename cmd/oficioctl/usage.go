package main

import (
	"fmt"
	"time"

	"oficiogen/backend/internal/models"
	"oficiogen/backend/internal/store"
	"oficiogen/backend/internal/usage"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newUsageCmd(e env, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Show a profile's subscription, applying the weekly reset",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(e, opts, func(s *store.Store) error {
				tracker := usage.NewTracker(usage.Options{
					Store: s,
					Key:   store.SubscriptionKey(opts.profile),
				})
				sub := tracker.Load(cmd.Context())

				reset := time.UnixMilli(sub.LastResetTimestamp)
				next := reset.Add(time.Duration(models.WeekMillis) * time.Millisecond)

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Plan:        %s\n", sub.Plan)
				fmt.Fprintf(out, "Generations: %s this week\n", humanize.Comma(int64(sub.GenerationsCount)))
				fmt.Fprintf(out, "Last reset:  %s\n", humanize.Time(reset))
				fmt.Fprintf(out, "Next reset:  %s\n", humanize.Time(next))
				return nil
			})
		},
	}
}
