// Package cli implements the restbridge command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/i2y/restbridge/configs"
)

// version is overridden at build time with -ldflags "-X github.com/i2y/restbridge/internal/cli.version=...".
var version = "0.1.0"

// Execute runs the restbridge CLI.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

type globalFlags struct {
	configFile string
	logLevel   string
}

// NewRootCmd constructs the root command so tests can exercise the CLI easily.
func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}
	cmd := &cobra.Command{
		Use:           "restbridge",
		Short:         "Invoke declaratively configured REST operations",
		Long:          "restbridge turns declarative REST operation definitions into validated, schema-driven HTTP calls, exposed as MCP tools, an admin API and commands.",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "Definitions file path or github:// URL (overrides RESTBRIDGE_CONFIG_FILE)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides RESTBRIDGE_LOG_LEVEL)")

	for _, sub := range []*cobra.Command{
		newServeCmd(flags),
		newInvokeCmd(flags),
		newSchemaCmd(flags),
		newListCmd(flags),
		newImportCmd(flags),
	} {
		cmd.AddCommand(sub)
	}
	// Convert Cobra flag errors (like unknown flags) into usage errors that also show the help text.
	setFlagErrors(cmd)
	return cmd
}

func setFlagErrors(cmd *cobra.Command) {
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return newUsageError(fmt.Sprintf("%v\n\n%s", err, c.UsageString()))
	})
	for _, sub := range cmd.Commands() {
		setFlagErrors(sub)
	}
}

// loadConfig applies the global flag overrides and loads the configuration.
func (f *globalFlags) loadConfig(ctx context.Context) (*configs.Config, error) {
	if f.configFile != "" {
		if err := os.Setenv("RESTBRIDGE_CONFIG_FILE", f.configFile); err != nil {
			return nil, err
		}
	}
	cfg, err := configs.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	return cfg, nil
}

func newLogger(w io.Writer, cfg *configs.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.ParsedLogLevel()}))
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return newUsageError(fmt.Sprintf("accepts %d arg(s), received %d\n\n%s", n, len(args), cmd.UsageString()))
		}
		return nil
	}
}
