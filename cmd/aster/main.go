package main

import (
	"fmt"
	"os"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"

	"github.com/Ramsey-B/aster/config"
)

const programName = "aster"

var globalFlags = struct {
	debug    bool
	envFiles []string
}{}

// newLogger builds the zap-backed logger. --debug overrides LOG_LEVEL.
func newLogger(cfg *config.Config) (ectologger.Logger, func(), error) {
	level := cfg.LogLevel
	if globalFlags.debug {
		level = "debug"
	}
	atomicLevel, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	zapConfig := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.Level = atomicLevel

	zapLogger, err := zapConfig.Build(zap.Fields(
		zap.String("service", cfg.AppName),
		zap.String("version", cfg.AppVersion),
	))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}

	logger := zapadapter.NewZapEctoLogger(zapLogger, nil)
	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		logger.Debugf(format, args...)
	})); err != nil {
		logger.WithError(err).Warn("Failed to set GOMAXPROCS")
	}

	return logger, func() { _ = zapLogger.Sync() }, nil
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.FromContext(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", programName, cfg.AppVersion)
			return nil
		},
	}
}

func main() {
	rootCmd := &cobra.Command{
		Use:          programName,
		Short:        "Refreshes the satellite catalog behind a human approval gate",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().
		BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")
	rootCmd.PersistentFlags().
		StringSliceVar(&globalFlags.envFiles, "env-file", []string{".env", ".env.local"}, "env files to load when present")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(globalFlags.envFiles...)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cmd.SetContext(config.WithContext(cmd.Context(), cfg))
		return nil
	}

	rootCmd.AddCommand(runCommand())
	rootCmd.AddCommand(refreshCommand())
	rootCmd.AddCommand(approveCommand())
	rootCmd.AddCommand(promoteCommand())
	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(migrateCommand())
	rootCmd.AddCommand(versionCommand())

	if err := rootCmd.Execute(); err != nil {
		// cobra has already printed the error
		os.Exit(1)
	}
}
