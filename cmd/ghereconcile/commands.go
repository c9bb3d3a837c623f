package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	githubadapter "github.com/ericfisherdev/ghereconcile/internal/adapter/driven/github"
	"github.com/ericfisherdev/ghereconcile/internal/adapter/driven/sqlstore"
	"github.com/ericfisherdev/ghereconcile/internal/application"
	"github.com/ericfisherdev/ghereconcile/internal/config"
	"github.com/ericfisherdev/ghereconcile/internal/domain/model"
)

// app holds what every subcommand needs once PersistentPreRunE has run.
type app struct {
	guid      string
	org       string
	localUser string

	cfg *config.Config
	db  *sqlstore.DB
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "ghereconcile",
		Short: "Repair GitHub Enterprise data left incomplete by a bulk migration",
		Long: `ghereconcile reads the source repositories of a finished GitHub Enterprise
migration and restores what the import dropped: pull request reviews and their
comments, review request and assignment events, contribution timestamps and
branch protection rules.

Every command can be rerun after an interruption; reviews resume after the last
pull request that was fully committed.`,
		SilenceUsage:       true,
		PersistentPreRunE:  a.setup,
		PersistentPostRunE: a.teardown,
	}

	root.PersistentFlags().StringVar(&a.guid, "guid", "", "migration guid (overrides GHERECONCILE_MIGRATION_GUID)")
	root.PersistentFlags().StringVar(&a.org, "org", "", "source organization (overrides GHERECONCILE_ORGANIZATION)")

	complete := &cobra.Command{
		Use:   "complete",
		Short: "Restore feature options, branch protection and pull request reviews",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.service(true)
			if err != nil {
				return err
			}
			return svc.Complete(cmd.Context())
		},
	}
	complete.Flags().StringVar(&a.localUser, "local-user", "", "local account recorded as creator of protection rules (overrides GHERECONCILE_LOCAL_USER)")

	fixEvents := &cobra.Command{
		Use:   "fix-events",
		Short: "Correct imported assignment and review request events and contribution times",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.service(false)
			if err != nil {
				return err
			}
			return svc.FixEvents(cmd.Context())
		},
	}

	forks := &cobra.Command{
		Use:   "forks",
		Short: "List source forks and the local accounts that would own them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.service(true)
			if err != nil {
				return err
			}
			reports, err := svc.AuditForks(cmd.Context())
			printForks(cmd, reports)
			return err
		},
	}

	all := &cobra.Command{
		Use:   "all",
		Short: "Run complete, then fix-events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.service(true)
			if err != nil {
				return err
			}
			completeErr := svc.Complete(cmd.Context())
			if err := cmd.Context().Err(); err != nil {
				return err
			}
			return errors.Join(completeErr, svc.FixEvents(cmd.Context()))
		},
	}
	all.Flags().StringVar(&a.localUser, "local-user", "", "local account recorded as creator of protection rules (overrides GHERECONCILE_LOCAL_USER)")

	root.AddCommand(complete, fixEvents, forks, all)
	return root
}

// setup loads configuration, configures logging and opens the target database.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	// 1. Optional .env next to the binary; real environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	// 2. Flags override the environment.
	overrides := map[string]string{
		"GHERECONCILE_MIGRATION_GUID": a.guid,
		"GHERECONCILE_ORGANIZATION":   a.org,
		"GHERECONCILE_LOCAL_USER":     a.localUser,
	}
	for key, v := range overrides {
		if v == "" {
			continue
		}
		if err := os.Setenv(key, v); err != nil {
			return err
		}
	}

	// 3. Load configuration (fail fast on missing required env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))
	slog.Info("config loaded",
		"command", cmd.Name(),
		"migration", cfg.MigrationGUID,
		"organization", cfg.Organization,
		"db_driver", cfg.DBDriver,
		"pace", cfg.PaceInterval,
	)

	// 4. Open the target database and apply the schema this tool owns.
	db, err := sqlstore.Open(cmd.Context(), cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return err
	}
	if err := sqlstore.RunMigrations(db.Writer, cfg.DBDriver); err != nil {
		_ = db.Close()
		return err
	}
	a.db = db
	slog.Info("database ready", "driver", cfg.DBDriver)

	return nil
}

func (a *app) teardown(_ *cobra.Command, _ []string) error {
	if a.db == nil {
		return nil
	}
	if err := a.db.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
	return nil
}

// service wires the stores and, when withSource is set, the source client.
func (a *app) service(withSource bool) (*application.MigrationService, error) {
	stores := application.Stores{
		Correlations: sqlstore.NewCorrelationRepo(a.db),
		Repos:        sqlstore.NewRepoRepo(a.db),
		Reviews:      sqlstore.NewReviewRepo(a.db),
		Events:       sqlstore.NewEventRepo(a.db),
		Timestamps:   sqlstore.NewTimestampRepo(a.db),
		Protection:   sqlstore.NewProtectionRepo(a.db),
	}

	cfg := a.cfg
	svcCfg := application.MigrationConfig{
		MigrationID:  cfg.MigrationGUID,
		Organization: cfg.Organization,
		LocalUser:    cfg.LocalUser,
		Refs:         model.SourceRefs{Base: cfg.SourceWebURL},
		Reviews: application.ReviewReconcilerConfig{
			Since:     cfg.ReviewsSince,
			Pace:      cfg.PaceInterval,
			EmptyPace: cfg.EmptyPaceInterval,
		},
		ContributionOffset: cfg.ContributionOffset,
		ImportDate:         cfg.ImportDate,
		MaxRateLimitWait:   cfg.MaxRateLimitWait,
	}

	if !withSource {
		return application.NewMigrationService(nil, stores, svcCfg), nil
	}

	source, err := a.sourceClient()
	if err != nil {
		return nil, err
	}
	return application.NewMigrationService(source, stores, svcCfg), nil
}

func (a *app) sourceClient() (*githubadapter.Client, error) {
	cfg := a.cfg
	if !cfg.HasSourceCredentials() {
		return nil, errors.New("set GHERECONCILE_GITHUB_TOKEN or GHERECONCILE_GITHUB_USERNAME to read the source")
	}

	creds := githubadapter.Credentials{
		Token:    cfg.GitHubToken,
		Username: cfg.GitHubUsername,
		Password: cfg.GitHubPassword,
	}

	if creds.Token == "" && creds.Password == "" {
		password, err := prompt(fmt.Sprintf("Password for %s: ", creds.Username))
		if err != nil {
			return nil, fmt.Errorf("reading password: %w", err)
		}
		creds.Password = password
	}
	if cfg.GitHubTwoFactor {
		creds.TwoFactor = func() (string, error) { return prompt("Two-factor code: ") }
	}

	client, err := githubadapter.NewClient(creds, cfg.GitHubBaseURL, githubadapter.WithRetryMaxElapsed(cfg.SourceRetryMaxElapsed))
	if err != nil {
		return nil, err
	}
	slog.Info("source client created", "username", cfg.GitHubUsername, "base_url", cfg.GitHubBaseURL)
	return client, nil
}

// prompt reads a secret from the terminal without echo.
func prompt(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("stdin is not a terminal")
	}

	fmt.Fprint(os.Stderr, label)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr) // newline after input
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func printForks(cmd *cobra.Command, reports []application.ForkReport) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "REPOSITORY\tFORK\tOWNER\tLOCAL USER ID")
	for _, r := range reports {
		local := "-"
		if r.LocalUserID != 0 {
			local = fmt.Sprint(r.LocalUserID)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Repository, r.Fork, r.OwnerLogin, local)
	}
	_ = w.Flush()
}
