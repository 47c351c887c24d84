// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

// panics are only recovered at goroutine boundaries in the host (http handlers,
// websocket loops).  the patch engine itself never recovers.
package panichandler

import (
	"fmt"
	"log"
	"runtime/debug"
	"sync/atomic"
)

var panicCount atomic.Int64

func PanicCount() int64 {
	return panicCount.Load()
}

// PanicHandler logs recoverVal and converts it to an error (nil if there was no panic).
// call as: defer func() { err = panichandler.PanicHandler("name", recover()) }()
func PanicHandler(debugStr string, recoverVal any) error {
	if recoverVal == nil {
		return nil
	}
	panicCount.Add(1)
	log.Printf("[panic] in %s: %v\n", debugStr, recoverVal)
	debug.PrintStack()
	if err, ok := recoverVal.(error); ok {
		return fmt.Errorf("panic in %s: %w", debugStr, err)
	}
	return fmt.Errorf("panic in %s: %v", debugStr, recoverVal)
}

// LogPanic is PanicHandler for goroutines that have nowhere to return an error
func LogPanic(debugStr string, recoverVal any) {
	PanicHandler(debugStr, recoverVal)
}
