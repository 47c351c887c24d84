// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package rtbuild

import (
	"github.com/wavetermdev/rendertree/pkg/rtframe"
)

type BatchBuilder struct {
	batch *rtframe.RenderBatch
}

func MakeBatchBuilder() *BatchBuilder {
	return &BatchBuilder{batch: &rtframe.RenderBatch{}}
}

// AddFrames appends to the shared reference frames and returns the index of the first one
func (bb *BatchBuilder) AddFrames(frames ...rtframe.Frame) int {
	startIdx := len(bb.batch.ReferenceFrames)
	bb.batch.ReferenceFrames = append(bb.batch.ReferenceFrames, frames...)
	return startIdx
}

func (bb *BatchBuilder) AddDiff(componentId uint64, edits ...rtframe.Edit) {
	bb.batch.UpdatedComponents = append(bb.batch.UpdatedComponents, rtframe.ComponentDiff{ComponentId: componentId, Edits: edits})
}

func (bb *BatchBuilder) DisposeComponents(componentIds ...uint64) {
	bb.batch.DisposedComponentIds = append(bb.batch.DisposedComponentIds, componentIds...)
}

func (bb *BatchBuilder) DisposeEventHandlers(eventHandlerIds ...uint64) {
	bb.batch.DisposedEventHandlerIds = append(bb.batch.DisposedEventHandlerIds, eventHandlerIds...)
}

func (bb *BatchBuilder) Batch() *rtframe.RenderBatch {
	return bb.batch
}

// PrependBatch makes a batch that inserts frames at the start of componentId.
// the frames are wrapped in a region so any number of top level frames works
// with a single PrependFrame edit.
func PrependBatch(componentId uint64, frames []rtframe.Frame) *rtframe.RenderBatch {
	bb := MakeBatchBuilder()
	regionIdx := bb.AddFrames(&rtframe.RegionFrame{SubtreeLength: uint32(len(frames) + 1)})
	bb.AddFrames(frames...)
	bb.AddDiff(componentId, &rtframe.PrependFrameEdit{SiblingIndex: 0, ReferenceFrameIndex: regionIdx})
	return bb.Batch()
}
