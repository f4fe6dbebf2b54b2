// Package cli implements the Cobra-based command-line interface for
// scanweave: one-shot scans, browsing persisted results, and watch mode
// for recurring sweeps.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/scanweave/scanweave/internal/config"
	"github.com/scanweave/scanweave/internal/logging"
)

var (
	cfgFile string
	verbose bool
)

// Build information - these will be set by ldflags during build.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "scanweave",
	Short: "Concurrent network scan orchestrator",
	Long: `Scanweave orchestrates an external network scanning engine across many
targets at once: it validates and expands targets, fans them out over a
bounded worker pool with retry and backoff, interprets the engine's XML
output, and aggregates results for querying and export.`,
	Version: getVersion(),
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./scanweave.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	if err := viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose")); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to bind verbose flag: %v\n", err)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("scanweave")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("SCANWEAVE")

	setConfigDefaults()

	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}

	initLogging()
}

// setConfigDefaults sets default values for configuration.
func setConfigDefaults() {
	def := config.Default()

	viper.SetDefault("engine.binary_path", def.Engine.BinaryPath)

	viper.SetDefault("scanning.worker_pool_size", def.Scanning.WorkerPoolSize)
	viper.SetDefault("scanning.queue_size", def.Scanning.QueueSize)
	viper.SetDefault("scanning.default_mode", def.Scanning.DefaultMode)
	viper.SetDefault("scanning.default_ports", def.Scanning.DefaultPorts)
	viper.SetDefault("scanning.job_timeout", def.Scanning.JobTimeout)
	viper.SetDefault("scanning.max_cidr_hosts", def.Scanning.MaxCIDRHosts)
	viper.SetDefault("scanning.retry.max_retries", def.Scanning.Retry.MaxRetries)
	viper.SetDefault("scanning.retry.retry_delay", def.Scanning.Retry.RetryDelay)
	viper.SetDefault("scanning.retry.backoff_multiplier", def.Scanning.Retry.BackoffMultiplier)

	viper.SetDefault("store.persist", def.Store.Persist)
	viper.SetDefault("store.path", def.Store.Path)

	viper.SetDefault("logging.level", def.Logging.Level)
	viper.SetDefault("logging.format", def.Logging.Format)
	viper.SetDefault("logging.output", def.Logging.Output)
}

// loadConfig loads the effective configuration for a command run.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.ConfigFileUsed())
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// getVersion returns the version string.
func getVersion() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime)
}

// SetVersion sets the version information (called from main).
func SetVersion(v, c, bt string) {
	version = v
	commit = c
	buildTime = bt
	rootCmd.Version = getVersion()
}

// initLogging initializes structured logging based on configuration.
func initLogging() {
	cfg, err := loadConfig()
	if err != nil {
		logging.SetDefault(logging.NewDefault())
		return
	}

	logConfig := logging.Config{
		Level:     logging.LogLevel(cfg.Logging.Level),
		Format:    logging.LogFormat(cfg.Logging.Format),
		Output:    cfg.Logging.Output,
		AddSource: cfg.Logging.Level == "debug",
	}

	logger, err := logging.New(logConfig)
	if err != nil {
		logger = logging.NewDefault()
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logging: %v\n", err)
	}

	logging.SetDefault(logger)
}
