// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package rtpatch

import (
	"errors"
	"fmt"

	"github.com/wavetermdev/rendertree/pkg/rtframe"
	"github.com/wavetermdev/rendertree/pkg/rtnode"
)

// every error here is fatal to the batch being applied.  the producer is trusted,
// so nothing is retried or repaired locally.
var (
	ErrTypeMismatch                = errors.New("type mismatch")
	ErrIndexOutOfRange             = rtnode.ErrIndexOutOfRange
	ErrAttributeMustBeElementChild = errors.New("attribute frame must be an element child")
	ErrMalformedEventAttribute     = errors.New("malformed event attribute")
	ErrUnknownEditKind             = rtframe.ErrUnknownEditKind
	ErrUnknownFrameKind            = rtframe.ErrUnknownFrameKind
	ErrUnsupported                 = errors.New("unsupported")
	ErrCannotStepOut               = errors.New("cannot step out of the root container")
)

type PatchError struct {
	ComponentId uint64
	EditIndex   int
	EditType    rtframe.EditType
	Err         error
}

func (pe *PatchError) Error() string {
	return fmt.Sprintf("component %d, edit %d (%s): %v", pe.ComponentId, pe.EditIndex, pe.EditType, pe.Err)
}

func (pe *PatchError) Unwrap() error {
	return pe.Err
}

func typeMismatch(expected string, node rtnode.Node) error {
	if node == nil {
		return fmt.Errorf("%w: expected %s, got nil", ErrTypeMismatch, expected)
	}
	return fmt.Errorf("%w: expected %s, got %s", ErrTypeMismatch, expected, node.GetNodeType())
}

func frameMismatch(expected rtframe.FrameType, frame rtframe.Frame) error {
	return fmt.Errorf("%w: expected %s frame, got %s", ErrTypeMismatch, expected, frame.GetFrameType())
}
