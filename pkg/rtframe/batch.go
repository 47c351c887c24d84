// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package rtframe

import (
	"errors"
	"fmt"
)

var ErrFrameIndexOutOfRange = errors.New("reference frame index out of range")

type ComponentDiff struct {
	ComponentId uint64
	Edits       []Edit
}

// one renderer pass.  ReferenceFrames is shared by every diff in the batch.
type RenderBatch struct {
	UpdatedComponents       []ComponentDiff
	ReferenceFrames         []Frame
	DisposedComponentIds    []uint64
	DisposedEventHandlerIds []uint64
}

// FrameStore is a read-only view over a batch's reference frames
type FrameStore struct {
	frames []Frame
}

func MakeFrameStore(frames []Frame) *FrameStore {
	return &FrameStore{frames: frames}
}

func (b *RenderBatch) FrameStore() *FrameStore {
	return MakeFrameStore(b.ReferenceFrames)
}

func (fs *FrameStore) Len() int {
	return len(fs.frames)
}

func (fs *FrameStore) Get(idx int) (Frame, error) {
	if idx < 0 || idx >= len(fs.frames) {
		return nil, fmt.Errorf("%w: index %d, %d frames", ErrFrameIndexOutOfRange, idx, len(fs.frames))
	}
	frame := fs.frames[idx]
	if frame == nil {
		return nil, fmt.Errorf("%w: nil frame at index %d", ErrUnknownFrameKind, idx)
	}
	return frame, nil
}

// number of frames owned by frame (not counting itself).  the flattening loop
// skips this many frames after materializing frame.
func (fs *FrameStore) DescendantCount(frame Frame) uint32 {
	return DescendantCount(frame)
}

func DescendantCount(frame Frame) uint32 {
	stLen := SubtreeLength(frame)
	if stLen == 0 {
		return 0
	}
	return stLen - 1
}
