// Package cli provides the command-line interface for the memory price
// monitor.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"memwatch/internal/config"
	"memwatch/internal/logging"
	"memwatch/internal/security"
	"memwatch/internal/store"
)

// Version information
var (
	Version   = "0.1.0"
	BuildDate = "2026-01-20"
)

// App holds the application dependencies.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	// openStore opens the configured history store.
	openStore func(cfg *config.Config, logger zerolog.Logger) (store.HistoryStore, error)
}

func defaultOpenStore(cfg *config.Config, logger zerolog.Logger) (store.HistoryStore, error) {
	return store.Open(cfg.Storage.Backend, cfg.HistoryPath(), logger)
}

// NewRootCmd creates the root command for the CLI. Configuration is loaded
// from the --config directory before any subcommand runs.
func NewRootCmd() *cobra.Command {
	app := &App{
		Logger:    zerolog.Nop(),
		openStore: defaultOpenStore,
	}
	return newRootCmd(app)
}

func newRootCmd(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "memwatch",
		Short: "Memory price monitor",
		Long: `memwatch tracks DDR4/DDR5 channel-market prices from ChinaFlashMarket (CFM).

Each run fetches the current price list, compares it with the stored history,
and sends a report of rising and falling products.

Environment:
  SMTP_SERVER      SMTP server (default smtp.qq.com)
  SMTP_PORT        SMTP port (default 465)
  SMTP_EMAIL       Sender address and SMTP user
  SMTP_PASSWORD    SMTP password or app token
  RECIPIENT_EMAIL  Report recipients, comma separated`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.init(cmd)
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/memwatch)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newMonitorCmd(app))
	rootCmd.AddCommand(newTrendCmd(app))
	rootCmd.AddCommand(newHistoryCmd(app))
	rootCmd.AddCommand(newExportCmd(app))
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	addHelpCommands(rootCmd, app)

	return rootCmd
}

// init loads configuration and builds the logger unless they were provided.
func (app *App) init(cmd *cobra.Command) error {
	debug, _ := cmd.Flags().GetBool("debug")

	if app.Config == nil {
		dir, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(dir)
		if err != nil {
			return err
		}
		app.Config = cfg

		logCfg := logging.LogConfig{
			Level:      cfg.Logging.Level,
			Console:    true,
			File:       cfg.Logging.File,
			FilePath:   cfg.LogPath(),
			MaxSize:    cfg.Logging.MaxSize,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAge:     cfg.Logging.MaxAge,
			Out:        cmd.ErrOrStderr(),
		}
		app.Logger = logging.NewLoggerWithConfig(logCfg)
	}

	if debug {
		logging.SetDebugLevel()
		app.Logger = app.Logger.Level(zerolog.DebugLevel)
	}
	return nil
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := NewRootCmd()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("memwatch v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			cfg := redacted(app.Config)
			if output.IsJSON() {
				return output.JSON(cfg)
			}
			showConfig(output, cfg)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"config_dir": app.Config.Dir,
					"data_dir":   app.Config.Data.Dir,
					"history":    app.Config.HistoryPath(),
				})
			}
			output.Println(app.Config.Dir)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	return cmd
}

// redacted returns a copy of cfg with secrets masked.
func redacted(cfg *config.Config) *config.Config {
	c := *cfg
	c.Notifications.Email.Password = security.MaskCredential(c.Notifications.Email.Password)
	c.Notifications.Telegram.BotToken = security.MaskCredential(c.Notifications.Telegram.BotToken)
	c.Notifications.Webhook.URL = security.MaskSecrets(c.Notifications.Webhook.URL)
	return &c
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Storage")
	output.Printf("  Config dir:      %s\n", cfg.Dir)
	output.Printf("  Data dir:        %s\n", cfg.Data.Dir)
	output.Printf("  Backend:         %s\n", cfg.Storage.Backend)
	output.Printf("  History:         %s\n", cfg.HistoryPath())
	output.Printf("  Delta strategy:  %s\n", cfg.Tracker.DeltaStrategy)
	output.Println()

	output.Bold("Source")
	output.Printf("  Timeout:         %s\n", cfg.Source.Timeout)
	output.Printf("  Max retries:     %d\n", cfg.Source.MaxRetries)
	output.Printf("  Fallback:        %v\n", cfg.Source.Fallback)
	for _, p := range cfg.Source.Pages {
		output.Printf("  Page:            %s (%s)\n", p.Category, p.URL)
	}
	output.Println()

	output.Bold("Notifications")
	output.Printf("  Level:           %s\n", cfg.Notifications.Level)
	output.Printf("  Email:           %v (%s:%d)\n", cfg.Notifications.Email.Enabled,
		cfg.Notifications.Email.SMTPHost, cfg.Notifications.Email.SMTPPort)
	output.Printf("  Email to:        %s\n", cfg.Notifications.Email.To)
	output.Printf("  Webhook:         %v\n", cfg.Notifications.Webhook.Enabled)
	output.Printf("  Telegram:        %v\n", cfg.Notifications.Telegram.Enabled)
	output.Println()

	output.Bold("Metrics")
	textfile := cfg.Metrics.Textfile
	if textfile == "" {
		textfile = "(disabled)"
	}
	output.Printf("  Textfile:        %s\n", textfile)
}
