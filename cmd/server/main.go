package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/huddle-server/internal/app"
	"github.com/vovakirdan/huddle-server/internal/auth"
	"github.com/vovakirdan/huddle-server/internal/config"
	"github.com/vovakirdan/huddle-server/internal/log"
	"github.com/vovakirdan/huddle-server/internal/store/sqlite"
)

type rootOptions struct {
	configPath string
	addr       string
	dbPath     string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	serve := newServeCmd(opts)
	root := &cobra.Command{
		Use:           "huddle-server",
		Short:         "Huddle real-time group messaging server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to config.yaml")
	flags.StringVar(&opts.addr, "addr", "", "HTTP listen address")
	flags.StringVar(&opts.dbPath, "db", "", "SQLite database path")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(serve, newMigrateCmd(opts), newTokenCmd(opts))
	return root
}

// load resolves configuration and builds the logger it asks for.
func load(opts *rootOptions) (*config.Config, *zerolog.Logger, error) {
	bootstrap := log.New("info")

	cfg, path, err := config.Load(bootstrap, opts.configPath)
	if err != nil {
		return nil, nil, err
	}
	cfg.UpdateFrom(config.Config{
		Addr:         opts.addr,
		DatabasePath: opts.dbPath,
		LogLevel:     opts.logLevel,
	})

	logger := log.New(cfg.LogLevel)
	logger.Debug().Str("config_path", path).Msg("configuration loaded")
	return &cfg, logger, nil
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := load(opts)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(cfg, logger)
			if err != nil {
				return err
			}

			logger.Info().Str("addr", cfg.Addr).Msg("starting huddle server")
			if err := application.Run(ctx); err != nil {
				return fmt.Errorf("server exited with error: %w", err)
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema and exit",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, logger, err := load(opts)
			if err != nil {
				return err
			}

			st, err := sqlite.New(cfg.DatabasePath)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			logger.Info().Str("db_path", cfg.DatabasePath).Msg("schema is up to date")
			return st.Close()
		},
	}
}

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print an access token for an existing user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := load(opts)
			if err != nil {
				return err
			}

			st, err := sqlite.New(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			user, err := st.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
			if err != nil {
				return fmt.Errorf("lookup %s: %w", email, err)
			}
			token, err := auth.NewService(st, app.JWTConfig(cfg)).IssueToken(user)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email of the user to mint a token for")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
