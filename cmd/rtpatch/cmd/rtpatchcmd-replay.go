// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/wavetermdev/rendertree/pkg/batchlog"
)

var replayDump bool
var replayList bool

var replayCmd = &cobra.Command{
	Use:   "replay [--dump] sessionid",
	Short: "rebuild a session from the batch log and print its html",
	Args: func(cmd *cobra.Command, args []string) error {
		if replayList {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
	RunE: runReplayCmd,
}

func init() {
	replayCmd.Flags().BoolVar(&replayDump, "dump", false, "print the node tree instead of html")
	replayCmd.Flags().BoolVar(&replayList, "list", false, "list logged sessions")
	rootCmd.AddCommand(replayCmd)
}

func runReplayCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.DBPath() == "" {
		return fmt.Errorf("no batch log configured (dbname is empty)")
	}
	ctx := context.Background()
	store, err := batchlog.InitStore(ctx, cfg.DBPath())
	if err != nil {
		return fmt.Errorf("opening batch log: %w", err)
	}
	defer store.Close()
	if replayList {
		sessions, err := store.ListSessions(ctx)
		if err != nil {
			return err
		}
		for _, sess := range sessions {
			brokenStr := ""
			if sess.Broken {
				brokenStr = " (broken)"
			}
			WriteStdout("%s  batches:%d%s\n", sess.SessionId, sess.NumBatches, brokenStr)
		}
		return nil
	}
	doc, lastSeq, err := store.Replay(ctx, args[0])
	if err != nil {
		return err
	}
	if replayDump {
		WriteStdout("%s\n", doc.Dump())
	} else {
		WriteStdout("%s\n", doc.Render())
	}
	WriteStderr("replayed through seq %d\n", lastSeq)
	return nil
}
