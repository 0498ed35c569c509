package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/kalambet/podio/internal/config"
)

var version = "dev"

var (
	outputFormat string
	noColor      bool
	logLevel     = new(slog.LevelVar)
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "podio",
		Short:         "Command line client for the Podio user and profile API",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("no-color") {
				noColor = os.Getenv("NO_COLOR") != "" || !isTerminal(os.Stderr)
			}
			switch outputFormat {
			case "", "json", "yaml":
				return nil
			default:
				return fmt.Errorf("invalid --output %q: want json or yaml", outputFormat)
			}
		},
	}

	root.PersistentFlags().StringVarP(&outputFormat, "output", "o", "", "output format: json or yaml (default from output.format)")
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable coloured status output")

	root.AddCommand(
		newUserCmd(),
		newStatusCmd(),
		newProfileCmd(),
		newPropertyCmd(),
		newContactsCmd(),
		newConfigCmd(),
		newSandboxCmd(),
		newMCPCmd(),
	)
	return root
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// loadConfig loads configuration and applies its log level and output
// format unless overridden on the command line.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		logLevel.Set(slog.LevelDebug)
	case "warn", "warning":
		logLevel.Set(slog.LevelWarn)
	case "error":
		logLevel.Set(slog.LevelError)
	default:
		logLevel.Set(slog.LevelInfo)
	}

	if outputFormat == "" {
		outputFormat = cfg.Output.Format
	}
	return cfg, nil
}
