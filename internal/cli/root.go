// Package cli implements the signoff command line interface. The CLI
// operates directly on the local store; it is the operator-facing
// counterpart to the signoffd HTTP API.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mbakke/signoff/internal/config"
	"github.com/mbakke/signoff/internal/db"
	"github.com/mbakke/signoff/internal/logging"
	"github.com/mbakke/signoff/internal/notify"
	"github.com/mbakke/signoff/internal/workflow"
)

var (
	flagConfigFile string
	flagDBPath     string
	flagActor      string
)

var rootCmd = &cobra.Command{
	Use:   "signoff",
	Short: "Approval workflow management",
	Long:  "signoff manages approval requests: create them, decide them, and inspect their state.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(logging.Config{Level: "warn", Format: "console"})
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigFile, "config", "", "config file (default is $HOME/.config/signoff/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", "", "database path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagActor, "as", "", "acting user id")
}

// Execute runs the CLI.
func Execute(version string) error {
	rootCmd.Version = version
	return rootCmd.Execute()
}

func loadConfig() (*config.Config, error) {
	loader := config.NewLoader()
	if flagConfigFile != "" {
		loader.SetConfigFile(flagConfigFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	if flagDBPath != "" {
		cfg.Database.Path = flagDBPath
	}
	return cfg, nil
}

func openDatabase(ctx context.Context) (*db.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	database, err := db.Open(cfg.Database.Path, db.Options{
		MaxConnections: cfg.Database.MaxConnections,
		BusyTimeoutMs:  cfg.Database.BusyTimeoutMs,
	})
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx); err != nil {
		_ = database.Close()
		return nil, err
	}
	return database, nil
}

// openEngine opens the store and wires an engine with log-only
// notifications; CLI invocations should not send email.
func openEngine(ctx context.Context) (*workflow.Engine, *db.DB, error) {
	database, err := openDatabase(ctx)
	if err != nil {
		return nil, nil, err
	}

	// No publisher: a one-shot CLI process has no subscribers to serve.
	dispatcher := notify.NewDispatcher(notify.NewLogNotifier(logging.Component("notify")), logging.Component("notify"))
	engine := workflow.NewEngine(database, dispatcher, nil, logging.Component("workflow"))
	return engine, database, nil
}

// requireActor resolves the acting user: the --as flag wins, then the
// saved CLI context.
func requireActor() (string, error) {
	if flagActor != "" {
		return flagActor, nil
	}

	saved, err := config.DefaultContextStore().Load()
	if err == nil && saved.HasUser() {
		return saved.UserID, nil
	}
	return "", fmt.Errorf("no acting user: pass --as <user id> or run 'signoff use <user id>'")
}
