// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/wavetermdev/rendertree/pkg/batchlog"
	"github.com/wavetermdev/rendertree/pkg/rtconfig"
	"github.com/wavetermdev/rendertree/pkg/rtserver"
)

var serveListenAddr string
var serveNoLog bool

var serveCmd = &cobra.Command{
	Use:   "serve [--listen addr] [--nolog]",
	Short: "run the render tree host server",
	Args:  cobra.NoArgs,
	RunE:  runServeCmd,
}

func init() {
	serveCmd.Flags().StringVarP(&serveListenAddr, "listen", "l", "", "listen address (overrides listenaddr setting)")
	serveCmd.Flags().BoolVar(&serveNoLog, "nolog", false, "keep sessions in memory only, no batch log")
	rootCmd.AddCommand(serveCmd)
}

func runServeCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if serveListenAddr != "" {
		cfg.ListenAddr = serveListenAddr
	}
	err = rtconfig.EnsureDataDir(cfg)
	if err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}
	lock, err := rtserver.LockDataDir(cfg.DataDir)
	if err != nil {
		return err
	}
	defer lock.Close()
	ctx, stopFn := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer stopFn()
	var store *batchlog.Store
	if !serveNoLog && cfg.DBPath() != "" {
		store, err = batchlog.InitStore(ctx, cfg.DBPath())
		if err != nil {
			return fmt.Errorf("opening batch log: %w", err)
		}
		defer store.Close()
	}
	srv := rtserver.MakeServer(cfg, store)
	listener, err := rtserver.MakeTCPListener(cfg.ListenAddr)
	if err != nil {
		return err
	}
	rtconfig.DevPrintf("[serve] config %#v\n", cfg)
	err = srv.Run(ctx, listener)
	if err != nil {
		return err
	}
	log.Printf("[serve] exited\n")
	return nil
}
