// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/wavetermdev/rendertree/cmd/rtpatch/cmd"
)

func main() {
	cmd.Execute()
}
