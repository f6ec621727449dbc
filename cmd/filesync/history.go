package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ning0612/filesync/internal/progress"
	"github.com/Ning0612/filesync/internal/state"
)

var (
	historyRemote string
	historyLimit  int
	historyFiles  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent update cycles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		mgr, err := state.NewManager(cfg.StateDir)
		if err != nil {
			return err
		}
		defer mgr.Close()

		var records []state.CycleRecord
		if historyRemote != "" {
			records, err = mgr.GetHistory(historyRemote, historyLimit)
		} else {
			records, err = mgr.GetAllHistory(historyLimit)
		}
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STARTED\tREMOTE\tSTATUS\tPEERS\tFILES\tBYTES\tDURATION\tERROR")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%d\t%s\t%s\t%s\n",
				r.StartTime.Local().Format(time.DateTime),
				r.RemoteName,
				r.Status,
				r.PeersResponded, r.PeersQueried,
				r.FilesInstalled,
				progress.FormatBytes(r.BytesFetched),
				r.EndTime.Sub(r.StartTime).Round(time.Millisecond),
				r.Error,
			)
			if !historyFiles {
				continue
			}
			installs, err := mgr.GetInstalls(r.CycleID)
			if err != nil {
				return err
			}
			for _, in := range installs {
				backup := in.BackupPath
				if backup == "" {
					backup = "(new file)"
				}
				fmt.Fprintf(w, "\t  %s\tfrom %s\t\t\t\t\t%s\n", in.Path, in.PeerAlias, backup)
			}
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().StringVarP(&historyRemote, "remote", "r", "", "only show this remote")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of cycles")
	historyCmd.Flags().BoolVar(&historyFiles, "files", false, "list installed files and their backups")
}
