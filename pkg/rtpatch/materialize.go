// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package rtpatch

import (
	"fmt"

	"github.com/wavetermdev/rendertree/pkg/rtframe"
	"github.com/wavetermdev/rendertree/pkg/rtnode"
)

// path is the chain of open containers, path[len(path)-1] is the parent.
// returns the number of nodes actually inserted into the parent.
func (in *Interpreter) insertFrame(path []rtnode.Container, childIndex int, frameIndex int) (int, error) {
	frame, err := in.frames.Get(frameIndex)
	if err != nil {
		return 0, err
	}
	parent := path[len(path)-1]
	switch f := frame.(type) {
	case *rtframe.ElementFrame:
		return in.insertElement(path, childIndex, frameIndex, f)

	case *rtframe.TextFrame:
		err = parent.InsertChild(childIndex, rtnode.MakeTextNode(f.Content))
		if err != nil {
			return 0, err
		}
		return 1, nil

	case *rtframe.AttributeFrame:
		return 0, fmt.Errorf("%w: %q at frame %d", ErrAttributeMustBeElementChild, f.Name, frameIndex)

	case *rtframe.ComponentFrame:
		// always a fresh node.  its children arrive as a separate diff for this id.
		compNode := rtnode.MakeComponentNode(f.ComponentId)
		if in.registry != nil {
			in.registry.RegisterComponent(compNode)
		}
		err = parent.InsertChild(childIndex, compNode)
		if err != nil {
			return 0, err
		}
		return 1, nil

	case *rtframe.RegionFrame:
		return in.insertFrameRange(path, childIndex, frameIndex+1, subtreeEnd(frameIndex, f.SubtreeLength))

	case *rtframe.ReferenceCaptureFrame:
		elem, ok := parent.(*rtnode.ElementNode)
		if !ok {
			return 0, fmt.Errorf("reference capture outside of an element: %w", typeMismatch("element", parent))
		}
		if f.ReferenceCaptureId != "" {
			elem.ReferenceCaptureId = f.ReferenceCaptureId
		}
		return 0, nil

	case *rtframe.MarkupFrame:
		err = parent.InsertChild(childIndex, rtnode.MakeMarkupGroup(f.Content))
		if err != nil {
			return 0, err
		}
		return 1, nil
	}
	return 0, fmt.Errorf("%w: %T at frame %d", ErrUnknownFrameKind, frame, frameIndex)
}

func (in *Interpreter) insertElement(path []rtnode.Container, childIndex int, frameIndex int, f *rtframe.ElementFrame) (int, error) {
	elem := rtnode.MakeElementNode(f.Tag)
	endIdx := subtreeEnd(frameIndex, f.SubtreeLength)
	descIdx := frameIndex + 1
	for ; descIdx < endIdx; descIdx++ {
		descFrame, err := in.frames.Get(descIdx)
		if err != nil {
			return 0, err
		}
		attr, ok := descFrame.(*rtframe.AttributeFrame)
		if !ok {
			break
		}
		err = in.applyAttribute(elem, attr)
		if err != nil {
			return 0, err
		}
	}
	err := path[len(path)-1].InsertChild(childIndex, elem)
	if err != nil {
		return 0, err
	}
	// full slice expression so the child path never aliases the caller's backing array
	elemPath := append(path[:len(path):len(path)], elem)
	if elem.TagIs(Tag_Option) {
		syncOptionWithSelect(path, elem)
	}
	if descIdx < endIdx {
		_, err = in.insertFrameRange(elemPath, 0, descIdx, endIdx)
		if err != nil {
			return 0, err
		}
	}
	return 1, nil
}

// the flattening loop.  frames already materialized recursively (descendants of
// elements, components, regions) are skipped at this level.
func (in *Interpreter) insertFrameRange(path []rtnode.Container, childIndex int, startIdx int, endIdx int) (int, error) {
	total := 0
	for idx := startIdx; idx < endIdx; idx++ {
		frame, err := in.frames.Get(idx)
		if err != nil {
			return total, err
		}
		numInserted, err := in.insertFrame(path, childIndex, idx)
		if err != nil {
			return total, err
		}
		childIndex += numInserted
		total += numInserted
		idx += int(in.frames.DescendantCount(frame))
	}
	return total, nil
}

func subtreeEnd(frameIndex int, subtreeLength uint32) int {
	if subtreeLength == 0 {
		return frameIndex + 1
	}
	return frameIndex + int(subtreeLength)
}
