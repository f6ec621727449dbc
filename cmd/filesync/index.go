package main

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/Ning0612/filesync/internal/core/checksum"
	"github.com/Ning0612/filesync/internal/index"
	"github.com/Ning0612/filesync/internal/protocol"
)

var indexCmd = &cobra.Command{
	Use:   "index <remote>",
	Short: "Print a remote's local snapshot as served to peers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		rc, err := cfg.GetRemote(args[0])
		if err != nil {
			return err
		}
		hasher, err := checksum.New(cfg.Algorithm(), 0)
		if err != nil {
			return err
		}

		fs := afero.NewOsFs()
		idx := index.New(rc.LocalPath, index.Options{
			Fs:     fs,
			Hasher: hasher,
			Ignore: index.LoadIgnoreList(fs, rc.LocalPath, rc.Ignore),
		})
		if err := idx.Rebuild(cmd.Context()); err != nil {
			return err
		}
		snap, err := idx.Snapshot(cmd.Context())
		if err != nil {
			return err
		}
		data, err := protocol.EncodeSnapshot(snap)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}
