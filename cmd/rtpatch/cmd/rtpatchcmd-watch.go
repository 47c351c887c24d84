// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/wavetermdev/rendertree/pkg/rtdoc"
)

var watchRoots []string

var watchCmd = &cobra.Command{
	Use:   "watch [--root id=selector]... dir",
	Short: "apply batch files as they appear in a directory",
	Long:  `watch applies the batch files already in dir in filename order, then applies each new batch file as it is written.  write files elsewhere and rename them into dir so a partial file is never read.  the html is printed after every batch.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runWatchCmd,
}

func init() {
	watchCmd.Flags().StringArrayVarP(&watchRoots, "root", "r", nil, "root component as id=selector (repeatable)")
	rootCmd.AddCommand(watchCmd)
}

type batchDirWatcher struct {
	Dir     string
	Doc     *rtdoc.Document
	Applied mapset.Set[string]
}

func makeBatchDirWatcher(dir string, doc *rtdoc.Document) *batchDirWatcher {
	return &batchDirWatcher{Dir: dir, Doc: doc, Applied: mapset.NewThreadUnsafeSet[string]()}
}

// pendingFiles returns the batch files not yet applied, sorted by name
func (bw *batchDirWatcher) pendingFiles() ([]string, error) {
	entries, err := os.ReadDir(bw.Dir)
	if err != nil {
		return nil, err
	}
	var rtn []string
	for _, entry := range entries {
		if entry.IsDir() || !isBatchFileName(entry.Name()) {
			continue
		}
		if bw.Applied.Contains(entry.Name()) {
			continue
		}
		// created but not yet written
		info, err := entry.Info()
		if err != nil || info.Size() == 0 {
			continue
		}
		rtn = append(rtn, entry.Name())
	}
	sort.Strings(rtn)
	return rtn, nil
}

// applyPending applies every pending file.  it stops at the first failure,
// a document that failed a batch is no longer trustworthy.
func (bw *batchDirWatcher) applyPending(onApply func(name string)) error {
	names, err := bw.pendingFiles()
	if err != nil {
		return err
	}
	for _, name := range names {
		bw.Applied.Add(name)
		err = applyBatchFile(bw.Doc, filepath.Join(bw.Dir, name))
		if err != nil {
			return err
		}
		if onApply != nil {
			onApply(name)
		}
	}
	return nil
}

func runWatchCmd(cmd *cobra.Command, args []string) error {
	roots, err := parseRootArgs(watchRoots)
	if err != nil {
		return err
	}
	doc, err := makeRootedDocument(roots)
	if err != nil {
		return err
	}
	bw := makeBatchDirWatcher(args[0], doc)
	printRender := func(name string) {
		WriteStdout("== %s\n%s\n", name, bw.Doc.Render())
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer watcher.Close()
	err = watcher.Add(bw.Dir)
	if err != nil {
		return fmt.Errorf("watching %s: %w", bw.Dir, err)
	}
	err = bw.applyPending(printRender)
	if err != nil {
		return err
	}
	ctx, stopFn := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopFn()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !isBatchFileName(event.Name) {
				continue
			}
			err = bw.applyPending(printRender)
			if err != nil {
				return err
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("[watch] watcher error: %v\n", err)
		}
	}
}
