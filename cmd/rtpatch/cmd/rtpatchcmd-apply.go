// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	diffpatch "github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/cobra"
)

var applyRoots []string
var applyExpect string
var applyDump bool

var applyCmd = &cobra.Command{
	Use:   "apply [--root id=selector]... [--expect file] [--dump] file...",
	Short: "apply batch files in order and print the rendered html",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runApplyCmd,
}

func init() {
	applyCmd.Flags().StringArrayVarP(&applyRoots, "root", "r", nil, "root component as id=selector (repeatable)")
	applyCmd.Flags().StringVarP(&applyExpect, "expect", "e", "", "file holding the expected html")
	applyCmd.Flags().BoolVar(&applyDump, "dump", false, "print the node tree instead of html")
	rootCmd.AddCommand(applyCmd)
}

func runApplyCmd(cmd *cobra.Command, args []string) error {
	roots, err := parseRootArgs(applyRoots)
	if err != nil {
		return err
	}
	doc, err := makeRootedDocument(roots)
	if err != nil {
		return err
	}
	for _, fileName := range args {
		err = applyBatchFile(doc, fileName)
		if err != nil {
			return err
		}
	}
	if applyDump {
		WriteStdout("%s\n", doc.Dump())
	}
	rendered := doc.Render()
	if applyExpect == "" {
		if !applyDump {
			WriteStdout("%s\n", rendered)
		}
		return nil
	}
	expectBytes, err := os.ReadFile(applyExpect)
	if err != nil {
		return fmt.Errorf("reading expect file: %w", err)
	}
	expected := strings.TrimRight(string(expectBytes), "\r\n")
	if expected == rendered {
		WriteStdout("ok\n")
		return nil
	}
	WriteStdout("%s\n", formatRenderDiff(expected, rendered, getIsTty()))
	RtExitCode = 1
	return nil
}

// inline diff of expected vs actual.  deletions are [-..-], insertions {+..+}
func formatRenderDiff(expected string, actual string, useColor bool) string {
	dmp := diffpatch.New()
	diffs := dmp.DiffMain(expected, actual, false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	var buf strings.Builder
	for _, diff := range diffs {
		switch diff.Type {
		case diffpatch.DiffInsert:
			if useColor {
				buf.WriteString(color.GreenString("%s", diff.Text))
			} else {
				buf.WriteString("{+" + diff.Text + "+}")
			}
		case diffpatch.DiffDelete:
			if useColor {
				buf.WriteString(color.RedString("%s", diff.Text))
			} else {
				buf.WriteString("[-" + diff.Text + "-]")
			}
		case diffpatch.DiffEqual:
			buf.WriteString(diff.Text)
		}
	}
	return buf.String()
}
