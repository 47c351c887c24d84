// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"io"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"
	"github.com/wavetermdev/rendertree/pkg/rtconfig"
	"golang.org/x/term"
)

var (
	rootCmd = &cobra.Command{
		Use:               "rtpatch",
		Short:             "apply render batches to a headless render tree",
		Long:              `rtpatch applies render batches (json, yaml or packed .rtb) to an in-memory render tree and prints the resulting HTML.  it can also host sessions over http/websocket.`,
		SilenceUsage:      true,
		PersistentPreRunE: preRunSetup,
	}
)

var WrappedStdout io.Writer = os.Stdout
var WrappedStderr io.Writer = os.Stderr
var RtExitCode int

var dataDirArg string
var devModeArg bool

func WriteStderr(fmtStr string, args ...interface{}) {
	WrappedStderr.Write([]byte(fmt.Sprintf(fmtStr, args...)))
}

func WriteStdout(fmtStr string, args ...interface{}) {
	WrappedStdout.Write([]byte(fmt.Sprintf(fmtStr, args...)))
}

func preRunSetup(cmd *cobra.Command, args []string) error {
	if devModeArg {
		rtconfig.SetDevMode(true)
	}
	return nil
}

func getDataDir() string {
	if dataDirArg != "" {
		return dataDirArg
	}
	return rtconfig.GetDefaultDataDir()
}

func loadConfig() (*rtconfig.Config, error) {
	cfg, err := rtconfig.LoadConfig(getDataDir())
	if err != nil {
		return nil, err
	}
	if devModeArg {
		cfg.DevMode = true
	}
	rtconfig.SetDevMode(cfg.DevMode)
	return cfg, nil
}

func getIsTty() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

type RunEFnType = func(*cobra.Command, []string) error

// Execute executes the root command.
func Execute() {
	defer func() {
		r := recover()
		if r != nil {
			WriteStderr("[panic] %v\n", r)
			debug.PrintStack()
			os.Exit(1)
		}
		os.Exit(RtExitCode)
	}()
	rootCmd.PersistentFlags().StringVarP(&dataDirArg, "datadir", "d", "", "data directory (default ~/.rtpatch)")
	rootCmd.PersistentFlags().BoolVar(&devModeArg, "dev", false, "enable dev mode logging")
	err := rootCmd.Execute()
	if err != nil {
		RtExitCode = 1
	}
}
