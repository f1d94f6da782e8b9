package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
	logger  *slog.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "testguard",
	Short: "Hang-tolerant supervising test runner",
	Long: `Testguard wraps an underlying per-assembly test execution engine and
turns it into a reliable, hang-tolerant, history-aware runner.

It discovers tests, batches them into a prefix tree bounded by a
per-batch size ceiling, runs batches concurrently under wall-clock and
idle-output guards, and recursively subdivides any batch that hangs
until every offending test is isolated to a singleton.`,
	Version: "0.1.0",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogger()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./testguard.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("testguard")
	}

	viper.SetEnvPrefix("TESTGUARD")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// initLogger sets up the global logger based on verbosity
func initLogger() {
	level := slog.LevelInfo
	if verbose || viper.GetBool("verbose") {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	handler := slog.NewTextHandler(os.Stderr, opts)
	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// watchAndRerun wires viper.WatchConfig to re-invoke run whenever the
// config file changes, gated behind --watch. viper.WatchConfig only
// starts a background fsnotify goroutine and returns immediately, so
// watchAndRerun itself blocks until the process receives an interrupt —
// otherwise the caller would return right after registering the
// watcher and the process would exit before it ever fired.
func watchAndRerun(run func()) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		slog.Info("config changed, re-running", "file", e.Name)
		run()
	})
	viper.WatchConfig()

	slog.Info("watching for config changes", "file", viper.ConfigFileUsed())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	signal.Stop(sigCh)
}
