/*
Package main is the MovieChat command line client.

It signs in against the REST backend and either drives a chat session interactively, watches
the live catalog feed, or runs one-shot catalog and room commands.
*/
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"moviechat/internal/app/api"
	"moviechat/internal/app/auth"
	"moviechat/internal/configs"
	"moviechat/internal/pkg/logx"
)

// app holds what every subcommand needs once configuration is loaded.
type app struct {
	cfg     *configs.ClientConfig
	store   *auth.Store
	client  *api.Client
	service *auth.Service

	envFile  string
	email    string
	password string
	verbose  bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:          "moviechat",
		Short:        "Chat and browse the movie catalog from the terminal",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}

	cmd.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "environment file to load before reading the environment")
	cmd.PersistentFlags().StringVar(&a.email, "email", "", "account e-mail (default: $CHAT_EMAIL)")
	cmd.PersistentFlags().StringVar(&a.password, "password", "", "account password (default: $CHAT_PASSWORD)")
	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log transport and REST activity")

	cmd.AddCommand(
		chatCmd(a),
		watchCmd(a),
		moviesCmd(a),
		usersCmd(a),
		roomsCmd(a),
		registerCmd(a),
	)

	return cmd
}

func (a *app) setup() error {
	if err := configs.LoadDotEnv(a.envFile); err != nil {
		return err
	}

	cfg, err := configs.LoadClientConfig()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	a.cfg = cfg

	if a.email == "" {
		a.email = cfg.Email
	}
	if a.password == "" {
		a.password = cfg.Password
	}

	logx.InitGlobalLogger(cfg.IsDevelopment())
	if a.verbose {
		logx.SetOutput(os.Stderr)
	} else {
		logx.SetOutput(io.Discard)
	}

	a.store = auth.NewStore()
	a.client = api.New(cfg.APIURL, a.store)
	a.service = auth.NewService(a.client, a.store)
	return nil
}

// signIn logs in with the configured account and keeps the token fresh until ctx is done.
func (a *app) signIn(ctx context.Context) error {
	if a.email == "" || a.password == "" {
		return fmt.Errorf("no account configured: pass --email and --password or set CHAT_EMAIL and CHAT_PASSWORD")
	}

	if _, err := a.service.Login(ctx, a.email, a.password); err != nil {
		return fmt.Errorf("sign in: %w", err)
	}

	a.service.Start(ctx)
	return nil
}

func registerCmd(a *app) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account with --email and --password",
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := a.service.Register(cmd.Context(), name, a.email, a.password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s <%s> (%s)\n", u.Name, u.Email, u.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}
