// Package cli implements the authstore-admin command line tool.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/turtacn/authstore/internal/bootstrap"
	"github.com/turtacn/authstore/internal/config"
	"github.com/turtacn/authstore/internal/infrastructure/monitoring"
	"github.com/turtacn/authstore/pkg/logger"
)

// BuildFunc assembles the service graph for a loaded configuration.
type BuildFunc func(ctx context.Context, cfg *config.Config, log logger.Logger) (*bootstrap.Components, error)

// app is the state shared by every subcommand of one invocation.
type app struct {
	build      BuildFunc
	configPath string
	components *bootstrap.Components
}

// NewRootCommand returns the `authstore-admin` command tree.
// NewRootCommand 返回 `authstore-admin` 命令树。
func NewRootCommand(build BuildFunc) *cobra.Command {
	a := &app{build: build}

	rootCmd := &cobra.Command{
		Use:   "authstore-admin",
		Short: "A CLI tool for administering the authorization store and its signing keys.",
		Long: `authstore-admin performs administrative tasks against the authorization store,
such as listing and rotating signing keys and inspecting or revoking authorizations.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.open,
		PersistentPostRun: a.close,
	}
	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "path to the configuration file")

	rootCmd.AddCommand(newKeyCommand(a), newRecordCommand(a))
	return rootCmd
}

// open loads the configuration and wires the services before a subcommand runs.
func (a *app) open(cmd *cobra.Command, _ []string) error {
	if !cmd.Runnable() {
		return nil
	}
	bootLog, err := monitoring.NewZapLogger(&config.LogConfig{Level: "warn", Format: "console", OutputPath: "stderr"})
	if err != nil {
		return err
	}
	cfg, err := config.NewLoader(a.configPath, bootLog).Load()
	if err != nil {
		return err
	}
	// Command output goes to stdout, so logs are kept on stderr.
	logCfg := cfg.Log
	logCfg.OutputPath = "stderr"
	log, err := monitoring.NewZapLogger(&logCfg)
	if err != nil {
		return err
	}
	a.components, err = a.build(cmd.Context(), cfg, log.WithComponent("cli"))
	return err
}

func (a *app) close(cmd *cobra.Command, _ []string) {
	if a.components != nil {
		a.components.Close(context.Background())
		a.components = nil
	}
}

// traced runs fn inside a span named after the command.
func (a *app) traced(cmd *cobra.Command, fn func(ctx context.Context) error) error {
	ctx, span := a.components.Tracing.StartSpan(cmd.Context(), "cli."+cmd.CommandPath(),
		attribute.String("cli.command", cmd.Name()))
	err := fn(ctx)
	a.components.Tracing.EndSpan(span, err)
	return err
}

// Execute is the main entry point for the CLI application.
// It parses the command-line arguments and runs the selected command. If an error
// occurs, it prints the error and exits.
// Execute 是 CLI 应用程序的主入口点。
// 它解析命令行参数并执行相应的命令。如果发生错误，它会打印错误并退出。
func Execute() {
	if err := NewRootCommand(bootstrap.Build).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
