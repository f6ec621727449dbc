package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ning0612/filesync/internal/lock"
	"github.com/Ning0612/filesync/internal/progress"
	"github.com/Ning0612/filesync/internal/service"
	"github.com/Ning0612/filesync/internal/state"
)

var syncCmd = &cobra.Command{
	Use:   "sync [remote...]",
	Short: "Run one update cycle now, without serving",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		fileLock, err := lock.NewFileLock(cfg.StateDir)
		if err != nil {
			return err
		}
		if err := fileLock.Acquire("sync"); err != nil {
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

		reports, syncErr := daemon.SyncOnce(cmd.Context(), args)
		out := cmd.OutOrStdout()
		for _, r := range reports {
			fmt.Fprintf(out, "%s: %s, %d installed (%s), %d/%d peers\n",
				r.Remote, r.Status, len(r.Installed), progress.FormatBytes(r.BytesFetched),
				r.PeersQueried-len(r.Excluded), r.PeersQueried)
			for _, f := range r.Installed {
				fmt.Fprintf(out, "  %s <- %s\n", f.Path, f.PeerAlias)
			}
		}
		return syncErr
	},
}
