// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package panichandler

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func runWithPanic(val any) (rtnErr error) {
	defer func() {
		rtnErr = PanicHandler("test", recover())
	}()
	if val != nil {
		panic(val)
	}
	return nil
}

func TestPanicHandler(t *testing.T) {
	before := PanicCount()
	if err := runWithPanic(nil); err != nil {
		t.Errorf("no panic should give no error, got %v", err)
	}
	err := runWithPanic(io.EOF)
	if !errors.Is(err, io.EOF) {
		t.Errorf("error panics should be wrapped, got %v", err)
	}
	err = runWithPanic("boom")
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("expected boom error, got %v", err)
	}
	if PanicCount()-before != 2 {
		t.Errorf("expected 2 recorded panics, got %d", PanicCount()-before)
	}
}
