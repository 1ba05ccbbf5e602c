// Package main provides the entry point for the rawlayer dataset generator.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/TFMV/rawlayer/config"
	"github.com/TFMV/rawlayer/logger"
	"github.com/TFMV/rawlayer/pkg/core"
	"github.com/TFMV/rawlayer/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

// app is the state shared by the subcommands.
type app struct {
	configPath string
	cfg        *config.Config
	log        *zap.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:   "rawlayer",
		Short: "rawlayer generates deterministic synthetic SaaS raw-layer datasets",
		Long: `rawlayer generates a deterministic synthetic dataset of a multi-tenant SaaS
business (orgs, users, products, orders, payments and events) with controlled
data-quality anomalies, and writes it as Parquet, Arrow IPC, NDJSON or into DuckDB.

The same seed, scale and anomaly rates always produce the same rows.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Sync()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "YAML configuration file")
	pf.String("log-level", "info", "Log level (debug, info, warn, error)")
	pf.String("log-file", "rawlayer.log", "JSON log file, empty to disable")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version of rawlayer",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			info := version.Get()
			cmd.Printf("rawlayer %s (built %s, %s)\n", info.Version, info.BuildDate, info.GoVersion)
		},
	})
	rootCmd.AddCommand(
		newGenerateCommand(a),
		newAuditCommand(a),
		newSchemaCommand(),
		newInspectCommand(),
		newPresetsCommand(),
		newServeCommand(a),
	)
	return rootCmd
}

// load resolves the configuration from the config file, RAWLAYER_* environment
// variables and the flags of cmd that were set, then initializes logging.
func (a *app) load(cmd *cobra.Command, flags map[string]string, extra func(v *viper.Viper) error) error {
	v := config.New()
	if a.configPath != "" {
		v.SetConfigFile(a.configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", a.configPath, err)
		}
	}

	bound := map[string]string{"log.level": "log-level", "log.file": "log-file"}
	for key, name := range flags {
		bound[key] = name
	}
	for key, name := range bound {
		if err := v.BindPFlag(key, cmd.Flag(name)); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	if extra != nil {
		if err := extra(v); err != nil {
			return err
		}
	}

	cfg, err := config.FromViper(v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger.ResetLogger()
	logger.SetConsole(cmd.ErrOrStderr())
	logger.SetLogPath(cfg.Log.File)
	if err := logger.SetLevel(cfg.Log.Level); err != nil {
		return &core.ConfigError{Field: "log.level", Value: cfg.Log.Level, Message: err.Error()}
	}
	a.log = logger.GetLogger()
	return nil
}

// mergeMap adds m to the map held under key, replacing entries with the same name.
func mergeMap[V any](v *viper.Viper, key string, m map[string]V) {
	if len(m) == 0 {
		return
	}
	merged := map[string]any{}
	for k, val := range v.GetStringMap(key) {
		merged[k] = val
	}
	for k, val := range m {
		merged[k] = val
	}
	v.Set(key, merged)
}
