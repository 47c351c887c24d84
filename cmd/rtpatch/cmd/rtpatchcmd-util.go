// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/wavetermdev/rendertree/pkg/batchlog"
	"github.com/wavetermdev/rendertree/pkg/rtdoc"
	"github.com/wavetermdev/rendertree/pkg/rtframe"
	"github.com/wavetermdev/rendertree/pkg/rtpack"
)

const (
	BatchExt_Json   = ".json"
	BatchExt_Yaml   = ".yaml"
	BatchExt_Yml    = ".yml"
	BatchExt_Packed = ".rtb"
)

func isBatchFileName(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case BatchExt_Json, BatchExt_Yaml, BatchExt_Yml, BatchExt_Packed:
		return true
	}
	return false
}

func parseBatchData(fileName string, data []byte) (*rtframe.RenderBatch, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case BatchExt_Json:
		return rtframe.ParseBatchJson(data)
	case BatchExt_Yaml, BatchExt_Yml:
		return rtframe.ParseBatchYaml(data)
	case BatchExt_Packed:
		return rtpack.UnmarshalBatch(data)
	}
	// unknown extension, sniff the magic
	if rtpack.IsPacked(data) {
		return rtpack.UnmarshalBatch(data)
	}
	return rtframe.ParseBatchJson(data)
}

func readBatchFile(fileName string) (*rtframe.RenderBatch, error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		return nil, fmt.Errorf("reading batch file: %w", err)
	}
	batch, err := parseBatchData(fileName, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fileName, err)
	}
	return batch, nil
}

func writeBatchFile(fileName string, batch *rtframe.RenderBatch) error {
	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(fileName)) {
	case BatchExt_Packed:
		data, err = rtpack.MarshalBatch(batch)
	case BatchExt_Yaml, BatchExt_Yml:
		data, err = marshalBatchJson(batch)
		if err == nil {
			data, err = yaml.JSONToYAML(data)
		}
	default:
		data, err = marshalBatchJson(batch)
	}
	if err != nil {
		return fmt.Errorf("encoding batch: %w", err)
	}
	return os.WriteFile(fileName, data, 0644)
}

func marshalBatchJson(batch *rtframe.RenderBatch) ([]byte, error) {
	barr, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(barr, '\n'), nil
}

// parses "id=selector" (selector defaults to "#root")
func parseRootArg(arg string) (batchlog.RootComponent, error) {
	idStr, selector, found := strings.Cut(arg, "=")
	if !found || selector == "" {
		selector = DefaultRootSelector
	}
	componentId, err := strconv.ParseUint(strings.TrimSpace(idStr), 10, 64)
	if err != nil {
		return batchlog.RootComponent{}, fmt.Errorf("invalid root %q: bad component id", arg)
	}
	return batchlog.RootComponent{ComponentId: componentId, Selector: selector}, nil
}

const DefaultRootComponentId = 1
const DefaultRootSelector = "#root"

// no --root flags means a single root, component 1
func parseRootArgs(args []string) ([]batchlog.RootComponent, error) {
	if len(args) == 0 {
		return []batchlog.RootComponent{{ComponentId: DefaultRootComponentId, Selector: DefaultRootSelector}}, nil
	}
	var rtn []batchlog.RootComponent
	for _, arg := range args {
		root, err := parseRootArg(arg)
		if err != nil {
			return nil, err
		}
		rtn = append(rtn, root)
	}
	return rtn, nil
}

func makeRootedDocument(roots []batchlog.RootComponent) (*rtdoc.Document, error) {
	doc := rtdoc.MakeDocument()
	for _, root := range roots {
		err := doc.AddRootComponent(root.ComponentId, root.Selector)
		if err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func applyBatchFile(doc *rtdoc.Document, fileName string) error {
	batch, err := readBatchFile(fileName)
	if err != nil {
		return err
	}
	err = doc.ApplyBatch(batch)
	if err != nil {
		return fmt.Errorf("applying %s: %w", fileName, err)
	}
	return nil
}
