package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Ning0612/filesync/internal/config"
	"github.com/Ning0612/filesync/internal/domain"
	"github.com/Ning0612/filesync/internal/logger"
)

var (
	configPath string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "filesync",
	Short: "Peer-to-peer directory synchronization daemon",
	Long: `filesync keeps named local directories ("remotes") in sync with a fixed
set of peers. Every host serves its remotes over TCP and periodically pulls
newer files from its peers; the newest modification time wins.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: search ., ./configs, ~/.config/filesync)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text, json")

	rootCmd.AddCommand(runCmd, syncCmd, indexCmd, historyCmd, statusCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	logger.Shutdown()
	if err != nil {
		if errors.Is(err, domain.ErrConfigNotFound) {
			fmt.Fprintln(os.Stderr, "hint: pass --config or create config.yaml in ~/.config/filesync")
		}
		os.Exit(1)
	}
}

// loadConfig reads the config and initializes the global logger with any
// --log-level / --log-format overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}

	if err := logger.Init(cfg.LoggerConfig()); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, nil
}
