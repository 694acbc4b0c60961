package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"

	"github.com/prperemyshlev/photo-enhancer/internal/config"
	"github.com/prperemyshlev/photo-enhancer/internal/repository"
	"github.com/prperemyshlev/photo-enhancer/internal/retry"
	"github.com/prperemyshlev/photo-enhancer/pkg/database"
	"github.com/prperemyshlev/photo-enhancer/pkg/observability"
)

// adminConfig is the subset of the server configuration the CLI needs
type adminConfig struct {
	Postgres config.PostgresConfig `env:",prefix=POSTGRES_"`
	Retry    config.RetryConfig    `env:",prefix=RETRY_"`
	Env      string                `env:"ENV,default=development"`
}

// env holds what withEnv opened for one command
type env struct {
	db     *database.Postgres
	repos  *repository.Repositories
	policy retry.Policy
}

var (
	enabledFlag bool
	jsonFlag    bool
)

var rootCmd = &cobra.Command{
	Use:   "photo-enhancer-admin",
	Short: "Operator tools for the photo enhancer",
	Long: `Operator tools for the photo enhancer database.

Connection settings come from the same POSTGRES_ variables as the server.

Examples:
  photo-enhancer-admin migrate
  photo-enhancer-admin users list
  photo-enhancer-admin users free-access 4f1c2d8e-... --enabled=true
  photo-enhancer-admin tokens prune`,
	SilenceUsage: true,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	Args:  cobra.NoArgs,
	RunE: withEnv(func(cmd *cobra.Command, e *env, _ []string) error {
		version, err := e.db.Migrate()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Schema is at version %d\n", version)
		return nil
	}),
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Inspect and manage user accounts",
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users with usage and payment totals",
	Args:  cobra.NoArgs,
	RunE: withEnv(func(cmd *cobra.Command, e *env, _ []string) error {
		return listUsers(cmd.Context(), cmd.OutOrStdout(), e.repos.User, e.policy, jsonFlag)
	}),
}

var freeAccessCmd = &cobra.Command{
	Use:   "free-access <user-id>",
	Short: "Grant or revoke free downloads for a user",
	Args:  cobra.ExactArgs(1),
	RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
		return setFreeAccess(cmd.Context(), cmd.OutOrStdout(), e.repos.User, e.policy, args[0], enabledFlag)
	}),
}

var tokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "Maintain refresh tokens",
}

var tokensPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete expired refresh tokens",
	Args:  cobra.NoArgs,
	RunE: withEnv(func(cmd *cobra.Command, e *env, _ []string) error {
		return pruneTokens(cmd.Context(), cmd.OutOrStdout(), e.repos.Token, e.policy)
	}),
}

func init() {
	usersListCmd.Flags().BoolVar(&jsonFlag, "json", false, "Print users as JSON")
	freeAccessCmd.Flags().BoolVar(&enabledFlag, "enabled", true, "Whether free access is granted")

	usersCmd.AddCommand(usersListCmd, freeAccessCmd)
	tokensCmd.AddCommand(tokensPruneCmd)
	rootCmd.AddCommand(migrateCmd, usersCmd, tokensCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// withEnv loads configuration and opens the database around run
func withEnv(run func(cmd *cobra.Command, e *env, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var cfg adminConfig
		if err := envconfig.Process(ctx, &cfg); err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		logger, err := observability.InitLogger(cfg.Env)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		db, err := database.NewPostgres(ctx, cfg.Postgres.DSN())
		if err != nil {
			return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		defer db.Close()

		return run(cmd, &env{
			db:     db,
			repos:  repository.NewRepositories(db),
			policy: retry.PolicyFromConfig(cfg.Retry, logger),
		}, args)
	}
}
