package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ning0612/filesync/internal/lock"
	"github.com/Ning0612/filesync/internal/logger"
	"github.com/Ning0612/filesync/internal/service"
	"github.com/Ning0612/filesync/internal/state"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Serve remotes and update them every update_interval minutes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		fileLock, err := lock.NewFileLock(cfg.StateDir)
		if err != nil {
			return err
		}
		if err := fileLock.Acquire("run"); err != nil {
			return err
		}
		defer fileLock.Release()

		stateMgr, err := state.NewManager(cfg.StateDir)
		if err != nil {
			return fmt.Errorf("failed to open state: %w", err)
		}

		daemon, err := service.NewDaemonService(cfg, service.Options{State: stateMgr})
		if err != nil {
			stateMgr.Close()
			return err
		}
		defer daemon.Close()

		ctx := cmd.Context()
		if err := daemon.Start(ctx); err != nil {
			return err
		}

		// stops on SIGINT/SIGTERM, or when the server dies
		waitErr := make(chan error, 1)
		go func() { waitErr <- daemon.Wait() }()

		select {
		case <-ctx.Done():
			logger.Get().Info("shutting down")
		case err := <-waitErr:
			if err != nil {
				logger.Get().Error("request server failed", "error", err)
			}
		}
		return daemon.Stop()
	},
}
