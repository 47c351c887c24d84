// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"
	"github.com/wavetermdev/rendertree/pkg/rtconfig"
	"github.com/wavetermdev/rendertree/pkg/rtframe"
)

const RenderBatchSchemaFileName = "schema/renderbatch.json"
const SettingsSchemaFileName = "schema/settings.json"

func writeFileIfDifferent(fileName string, contents []byte) (bool, error) {
	oldContents, err := os.ReadFile(fileName)
	if err == nil && bytes.Equal(oldContents, contents) {
		return false, nil
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	err = os.MkdirAll(filepath.Dir(fileName), 0755)
	if err != nil {
		return false, err
	}
	err = os.WriteFile(fileName, contents, 0644)
	if err != nil {
		return false, err
	}
	return true, nil
}

func generateSchema(fileName string, v any) error {
	reflector := &jsonschema.Reflector{DoNotReference: false}
	schema := reflector.Reflect(v)
	jsonSchema, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %v", err)
	}
	written, err := writeFileIfDifferent(fileName, jsonSchema)
	if err != nil {
		return fmt.Errorf("failed to write schema: %v", err)
	}
	if !written {
		fmt.Fprintf(os.Stderr, "no changes to %s\n", fileName)
	}
	return nil
}

func main() {
	err := generateSchema(RenderBatchSchemaFileName, &rtframe.RenderBatchJson{})
	if err != nil {
		log.Fatalf("render batch schema error: %v", err)
	}
	err = generateSchema(SettingsSchemaFileName, &rtconfig.Config{})
	if err != nil {
		log.Fatalf("settings schema error: %v", err)
	}
}
