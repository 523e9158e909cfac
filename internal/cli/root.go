// Package cli provides command-line interface commands for pkgverify.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/libreseed/pkgverify/internal/config"
	"github.com/libreseed/pkgverify/internal/logging"
	"github.com/libreseed/pkgverify/pkg/validation"
)

// flagKeys maps command flags to the configuration keys they override.
var flagKeys = map[string]string{
	"log-level":     "log.level",
	"log-format":    "log.format",
	"mode":          "verify.mode",
	"workers":       "verify.workers",
	"strict":        "verify.strict_regular_files",
	"max-read-rate": "verify.max_read_bytes_per_sec",
	"debounce":      "watch.debounce",
	"format":        "output.format",
	"report-file":   "output.report_file",

	"listen":              "serve.listen",
	"root":                "serve.root",
	"requests-per-minute": "serve.requests_per_minute",
}

// app holds the state shared by all commands of one invocation.
type app struct {
	v       *viper.Viper
	cfgFile string

	cfg    *config.Config
	logger *zap.Logger
	runID  string
}

// NewRootCommand builds the command tree with its own configuration instance.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New(), logger: zap.NewNop()}

	rootCmd := &cobra.Command{
		Use:   "pkgverify",
		Short: "pkgverify - verify extracted packages against their manifest",
		Long: `pkgverify checks that an extracted conda package directory still matches
the files its metadata declares.

It supports:
  - info/paths.json manifests with sizes and sha256 digests
  - very old packages that only carry info/files
  - stop-on-first or collect-all reporting, with parallel hashing
  - watching a package and re-verifying it on every change
  - serving verification requests over HTTP`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initialize(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.logger.Sync()
		},
	}

	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is ./pkgverify.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format (json, console)")

	rootCmd.AddCommand(
		newVerifyCmd(a),
		newInspectCmd(a),
		newWatchCmd(a),
		newServeCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := NewRootCommand().ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return ExitUsage
}

// initialize reads the configuration, binds the flags of cmd and builds the logger.
func (a *app) initialize(cmd *cobra.Command) error {
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		a.v.AddConfigPath(".")
		a.v.SetConfigName("pkgverify")
		a.v.SetConfigType("yaml")
	}

	a.v.SetEnvPrefix(config.EnvPrefix)
	a.v.SetEnvKeyReplacer(config.EnvKeyReplacer)
	a.v.AutomaticEnv()

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if key, ok := flagKeys[f.Name]; ok && bindErr == nil {
			bindErr = a.v.BindPFlag(key, f)
		}
	})
	if bindErr != nil {
		return fmt.Errorf("failed to bind flags: %w", bindErr)
	}

	cfg, err := config.LoadConfig(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := logging.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.runID = logging.NewRunID()
	a.logger = logging.WithRunID(logger, a.runID)

	if used := a.v.ConfigFileUsed(); used != "" {
		a.logger.Debug("using config file", zap.String("path", used))
	}
	return nil
}

// validationOptions translates the configuration into verifier options.
func (a *app) validationOptions() ([]validation.Option, error) {
	mode, err := validation.ParseMode(a.cfg.Verify.Mode)
	if err != nil {
		return nil, err
	}
	return []validation.Option{
		validation.WithMode(mode),
		validation.WithWorkers(a.cfg.Verify.Workers),
		validation.WithStrictRegularFiles(a.cfg.Verify.StrictRegularFiles),
		validation.WithReadLimit(a.cfg.Verify.MaxReadBytesPerSec),
		validation.WithLogger(a.logger),
	}, nil
}

// addVerifyFlags registers the flags shared by commands that run the verifier.
func addVerifyFlags(cmd *cobra.Command) {
	cmd.Flags().String("mode", "stop-first", "report the first failure (stop-first) or all of them (collect-all)")
	cmd.Flags().Int("workers", 1, "number of entries checked concurrently")
	cmd.Flags().Bool("strict", false, "require hardlink entries to be regular files")
	cmd.Flags().Int64("max-read-rate", 0, "maximum bytes per second read while hashing (0 = unlimited)")
	cmd.Flags().String("format", "text", "output format (text, json, yaml)")
}
