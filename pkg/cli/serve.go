package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/logwire/logwire/pkg/agent"
	"github.com/logwire/logwire/pkg/config"
	"github.com/logwire/logwire/pkg/logging"
)

// defaultConfigPath is used when neither --config nor LOGWIRE_CONFIG is set.
const defaultConfigPath = "logwire.yaml"

const defaultShutdownTimeout = 30 * time.Second

type serveFlags struct {
	configPath      string
	logLevel        string
	logFormat       string
	logFile         string
	metricsAddr     string
	storagePath     string
	shutdownTimeout time.Duration
}

var sf serveFlags

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the configured listeners and route incoming messages",
	Long: `Serve binds every configured TCP listener and forwards each delimited message
to the outputs of the first route whose pattern matches the listener's tag.

On SIGINT or SIGTERM listeners stop accepting, open connections are closed
after their pending output drains, input counters are persisted and the
process exits.`,
	Example: `  logwire serve --config logwire.yaml
  logwire serve -c logwire.yaml --log-level debug --metrics-addr :9102`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd, &sf)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&sf.configPath, "config", "c", "", "Config file path (default $LOGWIRE_CONFIG or logwire.yaml)")
	serveCmd.Flags().StringVar(&sf.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	serveCmd.Flags().StringVar(&sf.logFormat, "log-format", "", "Log format: text or json")
	serveCmd.Flags().StringVar(&sf.logFile, "log-file", "", "Also write JSON logs to this file")
	serveCmd.Flags().StringVar(&sf.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	serveCmd.Flags().StringVar(&sf.storagePath, "storage", "", "State file path")
	serveCmd.Flags().DurationVar(&sf.shutdownTimeout, "shutdown-timeout", defaultShutdownTimeout, "Maximum time to wait for connections to drain")
	rootCmd.AddCommand(serveCmd)
}

func configPath(flag string) string {
	if flag != "" {
		return flag
	}
	if p := os.Getenv(config.EnvConfigPath); p != "" {
		return p
	}
	return defaultConfigPath
}

func loadServeConfig(f *serveFlags) (*config.Config, error) {
	cfg, err := config.Load(configPath(f.configPath))
	if err != nil {
		return nil, err
	}

	overridden := false
	if f.logLevel != "" {
		cfg.Log.Level, overridden = f.logLevel, true
	}
	if f.logFormat != "" {
		cfg.Log.Format, overridden = f.logFormat, true
	}
	if f.logFile != "" {
		cfg.Log.File = f.logFile
	}
	if f.metricsAddr != "" {
		cfg.Metrics.Addr, overridden = f.metricsAddr, true
	}
	if f.storagePath != "" {
		cfg.Storage.Path, overridden = f.storagePath, true
	}
	if overridden {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, f *serveFlags) error {
	cfg, err := loadServeConfig(f)
	if err != nil {
		return err
	}
	if len(cfg.Listeners) == 0 {
		return fmt.Errorf("no listeners configured")
	}

	log, logCloser, err := logging.Open(logging.Config{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Format: logging.ParseFormat(cfg.Log.Format),
		Output: cmd.ErrOrStderr(),
		File:   cfg.Log.File,
	})
	if err != nil {
		return err
	}
	defer logCloser.Close()

	ctx := cmd.Context()
	a, err := agent.New(ctx, cfg, agent.WithLogger(log), agent.WithStdout(cmd.OutOrStdout()))
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		return err
	}
	for _, in := range a.Inputs() {
		log.Info("listening", "input", in.ID(), "addr", in.Listener().Addr().String())
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	// Wait for shutdown signal
	select {
	case sig := <-sigChan:
		log.Info("shutting down", "signal", sig.String())
	case <-ctx.Done():
		log.Info("shutting down", "reason", ctx.Err())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), f.shutdownTimeout)
	defer cancel()
	if err := a.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
