package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/benaskins/keychainctl/internal/audit"
	"github.com/benaskins/keychainctl/internal/config"
	"github.com/benaskins/keychainctl/internal/keychain"
	"github.com/benaskins/keychainctl/internal/security"
	"github.com/benaskins/keychainctl/internal/vault"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:               "keychainctl",
	Short:             "Manage macOS keychains and their generic passwords",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: teardown,
}

var (
	configPath   string
	jsonOut      bool
	verbose      bool
	securityPath string
)

// Swapped out by tests.
var (
	newRunner = func(path string) security.Runner { return security.NewExecRunner(path) }
	newVault  = func() vault.Store { return vault.NewSystemStore() }
)

// env is what every command works against, built once per invocation.
type env struct {
	cfg   *config.Config
	store *keychain.AuditedStore
	vault vault.Store
	audit *audit.Logger
}

var app *env

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "Config file")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Print machine-readable JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log every security invocation")
	rootCmd.PersistentFlags().StringVar(&securityPath, "security", "", "Path to the security tool (overrides config)")
}

func setup(cmd *cobra.Command, args []string) error {
	teardown(cmd, args)

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolving home directory: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg.ApplyDefaults(home)
	if securityPath != "" {
		cfg.SecurityPath = securityPath
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	level, _ := cfg.Level()
	slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))

	for _, p := range []string{cfg.AuditLog, cfg.MetadataPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0700); err != nil {
			return fmt.Errorf("creating %s: %w", filepath.Dir(p), err)
		}
	}

	auditLog, err := audit.NewLogger(cfg.AuditLog)
	if err != nil {
		return err
	}
	meta, err := keychain.NewMetadataStore(cfg.MetadataPath)
	if err != nil {
		auditLog.Close()
		return err
	}

	client := keychain.New(keychain.Config{Runner: newRunner(cfg.SecurityPath)})
	app = &env{
		cfg:   cfg,
		store: keychain.NewAuditedStore(client, auditLog, meta, "cli"),
		vault: newVault(),
		audit: auditLog,
	}
	return nil
}

func teardown(cmd *cobra.Command, args []string) {
	if app != nil {
		app.audit.Close()
		app = nil
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		printError(os.Stderr, err)
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}
