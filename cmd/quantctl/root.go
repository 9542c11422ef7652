package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"QuantLens/pkg/config"
	applogger "QuantLens/pkg/logger"
)

var version = "dev"

// env carries what every subcommand needs once flags are parsed.
type env struct {
	cfg *config.Config
	l   *applogger.Logger
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
		e          env
	)
	root := &cobra.Command{
		Use:           "quantctl",
		Short:         "Offline options and earnings-sentiment analytics",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if configPath != "" {
				e.cfg, err = config.Load(configPath)
			} else {
				e.cfg, err = config.Default()
			}
			if err != nil {
				return err
			}
			e.cfg.Logging.Output = "stderr"
			e.cfg.Logging.Format = "console"
			if logLevel != "" {
				e.cfg.Logging.Level = logLevel
			}
			e.l, err = applogger.New(&e.cfg.Logging)
			return err
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (defaults apply when empty)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level")

	root.AddCommand(
		priceCmd(&e),
		surfaceCmd(&e),
		pinCmd(&e),
		backtestCmd(&e),
		versionCmd(),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		// Overrides the root hook so version works without a config.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "quantctl", version)
			return err
		},
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readJSON decodes a file, or stdin when path is "-".
func readJSON(path string, v interface{}) error {
	var (
		b   []byte
		err error
	)
	if path == "-" {
		b, err = io.ReadAll(os.Stdin)
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
