// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package rtpack

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/wavetermdev/rendertree/pkg/rtframe"
)

const Magic = "RTB1"

var ErrBadMagic = errors.New("not a packed render batch")

var frameKindCodes = map[rtframe.FrameType]byte{
	rtframe.FrameType_Element:          1,
	rtframe.FrameType_Text:             2,
	rtframe.FrameType_Attribute:        3,
	rtframe.FrameType_Component:        4,
	rtframe.FrameType_Region:           5,
	rtframe.FrameType_ReferenceCapture: 6,
	rtframe.FrameType_Markup:           7,
}

var editKindCodes = map[rtframe.EditType]byte{
	rtframe.EditType_PrependFrame:         1,
	rtframe.EditType_RemoveFrame:          2,
	rtframe.EditType_SetAttribute:         3,
	rtframe.EditType_RemoveAttribute:      4,
	rtframe.EditType_UpdateText:           5,
	rtframe.EditType_UpdateMarkup:         6,
	rtframe.EditType_StepIn:               7,
	rtframe.EditType_StepOut:              8,
	rtframe.EditType_PermutationListEntry: 9,
	rtframe.EditType_PermutationListEnd:   10,
}

func packFrame(p *Packer, frame rtframe.Frame) error {
	if frame == nil {
		return fmt.Errorf("%w: nil frame", rtframe.ErrUnknownFrameKind)
	}
	code, ok := frameKindCodes[frame.GetFrameType()]
	if !ok {
		return fmt.Errorf("%w: %T", rtframe.ErrUnknownFrameKind, frame)
	}
	p.PackByte(code)
	switch f := frame.(type) {
	case *rtframe.ElementFrame:
		p.PackString(f.Tag)
		p.PackUint(uint64(f.SubtreeLength))
	case *rtframe.TextFrame:
		p.PackString(f.Content)
	case *rtframe.AttributeFrame:
		p.PackString(f.Name)
		p.PackOptString(f.Value)
		p.PackUint(f.EventHandlerId)
	case *rtframe.ComponentFrame:
		p.PackUint(f.ComponentId)
		p.PackUint(uint64(f.SubtreeLength))
	case *rtframe.RegionFrame:
		p.PackUint(uint64(f.SubtreeLength))
	case *rtframe.ReferenceCaptureFrame:
		p.PackString(f.ReferenceCaptureId)
	case *rtframe.MarkupFrame:
		p.PackString(f.Content)
	}
	return p.Error()
}

func unpackFrame(u *Unpacker) (rtframe.Frame, error) {
	code := u.UnpackByte("frame kind")
	if u.Err != nil {
		return nil, u.Err
	}
	var rtn rtframe.Frame
	switch code {
	case frameKindCodes[rtframe.FrameType_Element]:
		tag := u.UnpackString("element tag")
		rtn = &rtframe.ElementFrame{Tag: tag, SubtreeLength: uint32(u.UnpackUint("element subtree length"))}
	case frameKindCodes[rtframe.FrameType_Text]:
		rtn = &rtframe.TextFrame{Content: u.UnpackString("text content")}
	case frameKindCodes[rtframe.FrameType_Attribute]:
		name := u.UnpackString("attribute name")
		value := u.UnpackOptString("attribute value")
		rtn = &rtframe.AttributeFrame{Name: name, Value: value, EventHandlerId: u.UnpackUint("event handler id")}
	case frameKindCodes[rtframe.FrameType_Component]:
		componentId := u.UnpackUint("component id")
		rtn = &rtframe.ComponentFrame{ComponentId: componentId, SubtreeLength: uint32(u.UnpackUint("component subtree length"))}
	case frameKindCodes[rtframe.FrameType_Region]:
		rtn = &rtframe.RegionFrame{SubtreeLength: uint32(u.UnpackUint("region subtree length"))}
	case frameKindCodes[rtframe.FrameType_ReferenceCapture]:
		rtn = &rtframe.ReferenceCaptureFrame{ReferenceCaptureId: u.UnpackString("reference capture id")}
	case frameKindCodes[rtframe.FrameType_Markup]:
		rtn = &rtframe.MarkupFrame{Content: u.UnpackString("markup content")}
	default:
		return nil, fmt.Errorf("%w: code %d", rtframe.ErrUnknownFrameKind, code)
	}
	if u.Err != nil {
		return nil, u.Err
	}
	return rtn, nil
}

func packEdit(p *Packer, edit rtframe.Edit) error {
	if edit == nil {
		return fmt.Errorf("%w: nil edit", rtframe.ErrUnknownEditKind)
	}
	code, ok := editKindCodes[edit.GetEditType()]
	if !ok {
		return fmt.Errorf("%w: %T", rtframe.ErrUnknownEditKind, edit)
	}
	p.PackByte(code)
	switch e := edit.(type) {
	case *rtframe.PrependFrameEdit:
		p.PackInt(e.SiblingIndex)
		p.PackInt(e.ReferenceFrameIndex)
	case *rtframe.RemoveFrameEdit:
		p.PackInt(e.SiblingIndex)
	case *rtframe.SetAttributeEdit:
		p.PackInt(e.SiblingIndex)
		p.PackInt(e.ReferenceFrameIndex)
	case *rtframe.RemoveAttributeEdit:
		p.PackInt(e.SiblingIndex)
		p.PackString(e.AttributeName)
	case *rtframe.UpdateTextEdit:
		p.PackInt(e.SiblingIndex)
		p.PackInt(e.ReferenceFrameIndex)
	case *rtframe.UpdateMarkupEdit:
		p.PackInt(e.SiblingIndex)
		p.PackInt(e.ReferenceFrameIndex)
	case *rtframe.StepInEdit:
		p.PackInt(e.SiblingIndex)
	case *rtframe.PermutationListEntryEdit:
		p.PackInt(e.SiblingIndex)
		p.PackInt(e.MoveToSiblingIndex)
	}
	return p.Error()
}

func unpackEdit(u *Unpacker) (rtframe.Edit, error) {
	code := u.UnpackByte("edit kind")
	if u.Err != nil {
		return nil, u.Err
	}
	var rtn rtframe.Edit
	switch code {
	case editKindCodes[rtframe.EditType_PrependFrame]:
		siblingIndex := u.UnpackInt("sibling index")
		rtn = &rtframe.PrependFrameEdit{SiblingIndex: siblingIndex, ReferenceFrameIndex: u.UnpackInt("reference frame index")}
	case editKindCodes[rtframe.EditType_RemoveFrame]:
		rtn = &rtframe.RemoveFrameEdit{SiblingIndex: u.UnpackInt("sibling index")}
	case editKindCodes[rtframe.EditType_SetAttribute]:
		siblingIndex := u.UnpackInt("sibling index")
		rtn = &rtframe.SetAttributeEdit{SiblingIndex: siblingIndex, ReferenceFrameIndex: u.UnpackInt("reference frame index")}
	case editKindCodes[rtframe.EditType_RemoveAttribute]:
		siblingIndex := u.UnpackInt("sibling index")
		rtn = &rtframe.RemoveAttributeEdit{SiblingIndex: siblingIndex, AttributeName: u.UnpackString("attribute name")}
	case editKindCodes[rtframe.EditType_UpdateText]:
		siblingIndex := u.UnpackInt("sibling index")
		rtn = &rtframe.UpdateTextEdit{SiblingIndex: siblingIndex, ReferenceFrameIndex: u.UnpackInt("reference frame index")}
	case editKindCodes[rtframe.EditType_UpdateMarkup]:
		siblingIndex := u.UnpackInt("sibling index")
		rtn = &rtframe.UpdateMarkupEdit{SiblingIndex: siblingIndex, ReferenceFrameIndex: u.UnpackInt("reference frame index")}
	case editKindCodes[rtframe.EditType_StepIn]:
		rtn = &rtframe.StepInEdit{SiblingIndex: u.UnpackInt("sibling index")}
	case editKindCodes[rtframe.EditType_StepOut]:
		rtn = &rtframe.StepOutEdit{}
	case editKindCodes[rtframe.EditType_PermutationListEntry]:
		siblingIndex := u.UnpackInt("sibling index")
		rtn = &rtframe.PermutationListEntryEdit{SiblingIndex: siblingIndex, MoveToSiblingIndex: u.UnpackInt("move to sibling index")}
	case editKindCodes[rtframe.EditType_PermutationListEnd]:
		rtn = &rtframe.PermutationListEndEdit{}
	default:
		return nil, fmt.Errorf("%w: code %d", rtframe.ErrUnknownEditKind, code)
	}
	if u.Err != nil {
		return nil, u.Err
	}
	return rtn, nil
}

func packIds(p *Packer, ids []uint64) {
	p.PackUint(uint64(len(ids)))
	for _, id := range ids {
		p.PackUint(id)
	}
}

func unpackIds(u *Unpacker, name string) []uint64 {
	count := u.UnpackCount(name)
	if count == 0 {
		return nil
	}
	rtn := make([]uint64, 0, min(count, MaxPreallocCount))
	for i := 0; i < count && u.Err == nil; i++ {
		rtn = append(rtn, u.UnpackUint(name))
	}
	return rtn
}

// EncodeBatch writes the magic header followed by frames, diffs and disposal lists
func EncodeBatch(w io.Writer, batch *rtframe.RenderBatch) error {
	if batch == nil {
		return errors.New("nil render batch")
	}
	bw := bufio.NewWriter(w)
	p := MakePacker(bw)
	p.write([]byte(Magic))
	p.PackUint(uint64(len(batch.ReferenceFrames)))
	for idx, frame := range batch.ReferenceFrames {
		err := packFrame(p, frame)
		if err != nil {
			return fmt.Errorf("frame %d: %w", idx, err)
		}
	}
	p.PackUint(uint64(len(batch.UpdatedComponents)))
	for _, diff := range batch.UpdatedComponents {
		p.PackUint(diff.ComponentId)
		p.PackUint(uint64(len(diff.Edits)))
		for idx, edit := range diff.Edits {
			err := packEdit(p, edit)
			if err != nil {
				return fmt.Errorf("component %d edit %d: %w", diff.ComponentId, idx, err)
			}
		}
	}
	packIds(p, batch.DisposedComponentIds)
	packIds(p, batch.DisposedEventHandlerIds)
	if p.Err != nil {
		return p.Err
	}
	return bw.Flush()
}

func DecodeBatch(r io.Reader) (*rtframe.RenderBatch, error) {
	br, ok := r.(FullByteReader)
	if !ok {
		br = bufio.NewReader(r)
	}
	magicBuf := make([]byte, len(Magic))
	_, err := io.ReadFull(br, magicBuf)
	if err != nil || string(magicBuf) != Magic {
		return nil, ErrBadMagic
	}
	u := MakeUnpacker(br)
	batch := &rtframe.RenderBatch{}
	numFrames := u.UnpackCount("frame count")
	for i := 0; i < numFrames; i++ {
		frame, err := unpackFrame(u)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		batch.ReferenceFrames = append(batch.ReferenceFrames, frame)
	}
	numDiffs := u.UnpackCount("diff count")
	for i := 0; i < numDiffs; i++ {
		diff := rtframe.ComponentDiff{ComponentId: u.UnpackUint("component id")}
		numEdits := u.UnpackCount("edit count")
		for j := 0; j < numEdits; j++ {
			edit, err := unpackEdit(u)
			if err != nil {
				return nil, fmt.Errorf("component %d edit %d: %w", diff.ComponentId, j, err)
			}
			diff.Edits = append(diff.Edits, edit)
		}
		if u.Err != nil {
			return nil, u.Err
		}
		batch.UpdatedComponents = append(batch.UpdatedComponents, diff)
	}
	batch.DisposedComponentIds = unpackIds(u, "disposed component ids")
	batch.DisposedEventHandlerIds = unpackIds(u, "disposed event handler ids")
	if u.Err != nil {
		return nil, u.Err
	}
	return batch, nil
}

func MarshalBatch(batch *rtframe.RenderBatch) ([]byte, error) {
	var buf bytes.Buffer
	err := EncodeBatch(&buf, batch)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func UnmarshalBatch(data []byte) (*rtframe.RenderBatch, error) {
	return DecodeBatch(bytes.NewReader(data))
}

// IsPacked reports whether data starts with the packed batch header
func IsPacked(data []byte) bool {
	return bytes.HasPrefix(data, []byte(Magic))
}
