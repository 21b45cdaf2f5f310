package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"moviechat/internal/app/movie"
	"moviechat/internal/app/user"
)

func table(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func moviesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "movies",
		Short: "Browse and rate the catalog",
	}

	cmd.AddCommand(moviesListCmd(a), moviesGetCmd(a), moviesRateCmd(a), moviesCreateCmd(a))
	return cmd
}

func moviesListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List movies, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			movies, err := a.client.Movies(cmd.Context())
			if err != nil {
				return err
			}

			tw := table(cmd.OutOrStdout())
			fmt.Fprintln(tw, "ID\tTITLE\tRELEASED\tRATING\tVOTES")
			for _, m := range movies {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%d\n", m.ID, m.Title, m.ReleaseDate, m.AverageRating, len(m.Ratings))
			}
			return tw.Flush()
		},
	}
}

func moviesGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one movie",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.client.Movie(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n", m.Title, m.ReleaseDate)
			fmt.Fprintf(out, "genre:  %s\n", strings.Join(m.Genre, ", "))
			fmt.Fprintf(out, "rating: %.2f from %d rating(s)\n", m.AverageRating, len(m.Ratings))
			fmt.Fprintf(out, "poster: %s\n\n%s\n", m.ImageURL, m.Description)
			return nil
		},
	}
}

func moviesRateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rate <id> <value>",
		Short: fmt.Sprintf("Rate a movie from %d to %d", movie.MinRating, movie.MaxRating),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("rating %q is not a number", args[1])
			}
			if err := movie.ValidateRating(value); err != nil {
				return err
			}

			if err := a.signIn(cmd.Context()); err != nil {
				return err
			}
			defer a.service.Close()

			m, err := a.client.RateMovie(cmd.Context(), args[0], value)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now rated %.2f\n", m.Title, m.AverageRating)
			return nil
		},
	}
}

func moviesCreateCmd(a *app) *cobra.Command {
	var req movie.CreateRequest

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Add a movie to the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := req.Validate(); err != nil {
				return err
			}

			if err := a.signIn(cmd.Context()); err != nil {
				return err
			}
			defer a.service.Close()

			m, err := a.client.CreateMovie(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\n", m.Title, m.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Title, "title", "", "movie title")
	cmd.Flags().StringVar(&req.Description, "description", "", "short synopsis")
	cmd.Flags().StringVar(&req.ReleaseDate, "released", "", "release date, e.g. 1995-12-15")
	cmd.Flags().StringSliceVar(&req.Genre, "genre", nil, "genres, comma separated")
	cmd.Flags().StringVar(&req.ImageURL, "image", "", "absolute poster URL")

	return cmd
}

func usersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "users [query]",
		Short: "List accounts, optionally filtered by name or e-mail",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.signIn(cmd.Context()); err != nil {
				return err
			}
			defer a.service.Close()

			users, err := a.client.Users(cmd.Context())
			if err != nil {
				return err
			}

			query := ""
			if len(args) == 1 {
				query = args[0]
			}

			tw := table(cmd.OutOrStdout())
			fmt.Fprintln(tw, "ID\tNAME\tEMAIL")
			for _, u := range user.Filter(users, query) {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", u.ID, u.Name, u.Email)
			}
			return tw.Flush()
		},
	}
}

func roomsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rooms",
		Short: "List the rooms you belong to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.signIn(cmd.Context()); err != nil {
				return err
			}
			defer a.service.Close()

			rooms, err := a.client.Rooms(cmd.Context())
			if err != nil {
				return err
			}

			tw := table(cmd.OutOrStdout())
			fmt.Fprintln(tw, "ID\tNAME\tMEMBERS\tDESCRIPTION")
			for _, r := range rooms {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", r.ID, r.Name, len(r.Members), r.Description)
			}
			return tw.Flush()
		},
	}
}
