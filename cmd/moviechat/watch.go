package main

import (
	"github.com/spf13/cobra"

	"moviechat/internal/app/chat"
	"moviechat/internal/app/movie"
)

func watchCmd(a *app) *cobra.Command {
	var signIn bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print catalog changes as they are broadcast",
		Long: "Watch opens the public connection and prints every added movie and rating change.\n" +
			"With --login the chat connection is opened too, so presence and room notices are printed as well.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if signIn {
				if err := a.signIn(ctx); err != nil {
					return err
				}
				defer a.service.Close()
			}

			out := &console{out: cmd.OutOrStdout()}
			var notify chat.Notifier = out
			if !signIn {
				notify = nil
			}

			session := a.newSession(notify)
			stop, err := movie.Watch(session.Bus(), movie.Handlers{
				OnAdded: func(m movie.Movie) {
					out.printf("added   %s  %s (%s)\n", m.ID, m.Title, m.ReleaseDate)
				},
				OnRatingUpdated: func(u movie.RatingUpdate) {
					out.printf("rated   %s  %.2f from %d rating(s)\n", u.MovieID, u.AverageRating, u.RatingsCount)
				},
			})
			if err != nil {
				return err
			}
			defer stop()

			if err := session.Start(ctx); err != nil {
				return err
			}
			defer session.Close()

			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().BoolVar(&signIn, "login", false, "also open the chat connection with the configured account")

	return cmd
}
