// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/wavetermdev/rendertree/pkg/rtbuild"
)

var html2BatchComponentId uint64
var html2BatchOutput string

var html2BatchCmd = &cobra.Command{
	Use:   "html2batch [--component id] [-o out] file",
	Short: "build a single-prepend batch from an html file",
	Args:  cobra.ExactArgs(1),
	RunE:  runHtml2BatchCmd,
}

func init() {
	html2BatchCmd.Flags().Uint64VarP(&html2BatchComponentId, "component", "c", 1, "component id to prepend into")
	html2BatchCmd.Flags().StringVarP(&html2BatchOutput, "output", "o", "", "output file (.json, .yaml or .rtb), default stdout as json")
	rootCmd.AddCommand(html2BatchCmd)
}

func runHtml2BatchCmd(cmd *cobra.Command, args []string) error {
	htmlBytes, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading html file: %w", err)
	}
	batch, err := rtbuild.HTMLBatch(html2BatchComponentId, string(htmlBytes))
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	if html2BatchOutput != "" {
		return writeBatchFile(html2BatchOutput, batch)
	}
	barr, err := marshalBatchJson(batch)
	if err != nil {
		return err
	}
	WrappedStdout.Write(barr)
	return nil
}
