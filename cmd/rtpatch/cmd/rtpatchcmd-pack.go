// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"github.com/spf13/cobra"
)

var packCmd = &cobra.Command{
	Use:   "pack in out",
	Short: "convert a batch file between json, yaml and packed (.rtb) forms",
	Long:  `pack reads a batch in any supported form and writes it in the form named by the output extension.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runPackCmd,
}

func init() {
	rootCmd.AddCommand(packCmd)
}

func runPackCmd(cmd *cobra.Command, args []string) error {
	batch, err := readBatchFile(args[0])
	if err != nil {
		return err
	}
	err = writeBatchFile(args[1], batch)
	if err != nil {
		return err
	}
	WriteStdout("wrote %s (%d frames, %d diffs)\n", args[1], len(batch.ReferenceFrames), len(batch.UpdatedComponents))
	return nil
}
