package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ning0612/filesync/internal/lock"
	"github.com/Ning0612/filesync/internal/state"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether a filesync process holds this state directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		fileLock, err := lock.NewFileLock(cfg.StateDir)
		if err != nil {
			return err
		}
		if holder, err := fileLock.GetHolder(); err == nil {
			fmt.Fprintf(out, "running: %s (PID %d on %s since %s)\n",
				holder.Command, holder.PID, holder.Hostname, holder.StartTime.Format(time.RFC3339))
		} else {
			fmt.Fprintln(out, "not running")
		}

		mgr, err := state.NewManager(cfg.StateDir)
		if err != nil {
			return err
		}
		defer mgr.Close()

		for _, name := range cfg.RemoteNames() {
			last, err := mgr.GetLastSuccess(name)
			if err != nil {
				return err
			}
			if last == nil {
				fmt.Fprintf(out, "%s: never synced\n", name)
				continue
			}
			fmt.Fprintf(out, "%s: last success %s (%d files)\n",
				name, last.EndTime.Local().Format(time.DateTime), last.FilesInstalled)
		}
		return nil
	},
}
