// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/launchdarkly/eventsource"
	"github.com/spf13/cobra"
	"github.com/wavetermdev/rendertree/pkg/rtserver"
)

var followCount int

var followCmd = &cobra.Command{
	Use:   "follow [-n count] url",
	Short: "print render events streamed by a running server",
	Long:  `follow connects to a session's event stream (http://host:port/api/session/<id>/events) and prints the html carried by each render event.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runFollowCmd,
}

func init() {
	followCmd.Flags().IntVarP(&followCount, "count", "n", 0, "exit after this many events (0 means follow forever)")
	rootCmd.AddCommand(followCmd)
}

func runFollowCmd(cmd *cobra.Command, args []string) error {
	ctx, stopFn := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopFn()
	return followEvents(ctx, args[0], followCount, func(event rtserver.RenderEvent) {
		if event.Broken {
			WriteStdout("-- seq:%d broken: %s\n", event.Seq, event.Error)
			return
		}
		WriteStdout("-- seq:%d\n%s\n", event.Seq, event.Html)
	})
}

func followEvents(ctx context.Context, url string, maxEvents int, handler func(rtserver.RenderEvent)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", rtserver.SSEContentType)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	decoder := eventsource.NewDecoder(resp.Body)
	numEvents := 0
	for {
		event, err := decoder.Decode()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading event stream: %w", err)
		}
		if event.Event() != rtserver.SSERenderEvent {
			continue
		}
		var renderEvent rtserver.RenderEvent
		err = json.Unmarshal([]byte(event.Data()), &renderEvent)
		if err != nil {
			return fmt.Errorf("decoding render event: %w", err)
		}
		handler(renderEvent)
		numEvents++
		if maxEvents > 0 && numEvents >= maxEvents {
			return nil
		}
	}
}
