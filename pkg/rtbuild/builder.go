// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

// rtbuild produces frames the way a renderer would.  used by tests, fixtures and
// the command line tools; the patch engine never depends on it.
package rtbuild

import (
	"errors"
	"fmt"

	"github.com/wavetermdev/rendertree/pkg/rtframe"
)

// Builder accumulates frames; the first error is sticky
type Builder struct {
	frames    []rtframe.Frame
	openStack []int // indexes of open element/component/region frames
	err       error
}

func MakeBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) setErr(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *Builder) Err() error {
	return b.err
}

func (b *Builder) Len() int {
	return len(b.frames)
}

func (b *Builder) OpenElement(tag string) {
	b.openStack = append(b.openStack, len(b.frames))
	b.frames = append(b.frames, &rtframe.ElementFrame{Tag: tag})
}

func (b *Builder) CloseElement() {
	b.closeFrame(rtframe.FrameType_Element)
}

func (b *Builder) OpenComponent(componentId uint64) {
	b.openStack = append(b.openStack, len(b.frames))
	b.frames = append(b.frames, &rtframe.ComponentFrame{ComponentId: componentId})
}

func (b *Builder) CloseComponent() {
	b.closeFrame(rtframe.FrameType_Component)
}

func (b *Builder) AddComponent(componentId uint64) {
	b.OpenComponent(componentId)
	b.CloseComponent()
}

func (b *Builder) OpenRegion() {
	b.openStack = append(b.openStack, len(b.frames))
	b.frames = append(b.frames, &rtframe.RegionFrame{})
}

func (b *Builder) CloseRegion() {
	b.closeFrame(rtframe.FrameType_Region)
}

func (b *Builder) closeFrame(frameType rtframe.FrameType) {
	if len(b.openStack) == 0 {
		b.setErr(fmt.Errorf("close %s without open frame", frameType))
		return
	}
	openIdx := b.openStack[len(b.openStack)-1]
	b.openStack = b.openStack[:len(b.openStack)-1]
	subtreeLength := uint32(len(b.frames) - openIdx)
	switch f := b.frames[openIdx].(type) {
	case *rtframe.ElementFrame:
		if frameType == rtframe.FrameType_Element {
			f.SubtreeLength = subtreeLength
			return
		}
	case *rtframe.ComponentFrame:
		if frameType == rtframe.FrameType_Component {
			f.SubtreeLength = subtreeLength
			return
		}
	case *rtframe.RegionFrame:
		if frameType == rtframe.FrameType_Region {
			f.SubtreeLength = subtreeLength
			return
		}
	}
	b.setErr(fmt.Errorf("close %s does not match open %s frame at %d", frameType, b.frames[openIdx].GetFrameType(), openIdx))
}

// attributes must directly follow their element (or component) frame or another attribute
func (b *Builder) canAddAttribute() bool {
	if len(b.openStack) == 0 || len(b.frames) == 0 {
		return false
	}
	openIdx := b.openStack[len(b.openStack)-1]
	openType := b.frames[openIdx].GetFrameType()
	if openType != rtframe.FrameType_Element && openType != rtframe.FrameType_Component {
		return false
	}
	for idx := openIdx + 1; idx < len(b.frames); idx++ {
		if b.frames[idx].GetFrameType() != rtframe.FrameType_Attribute {
			return false
		}
	}
	return true
}

func (b *Builder) addAttributeFrame(attr *rtframe.AttributeFrame) {
	if !b.canAddAttribute() {
		b.setErr(fmt.Errorf("attribute %q must directly follow an element frame", attr.Name))
		return
	}
	b.frames = append(b.frames, attr)
}

func (b *Builder) AddAttribute(name string, value string) {
	b.addAttributeFrame(&rtframe.AttributeFrame{Name: name, Value: rtframe.StrPtr(value)})
}

func (b *Builder) AddNullAttribute(name string) {
	b.addAttributeFrame(&rtframe.AttributeFrame{Name: name})
}

func (b *Builder) AddEventHandler(name string, eventHandlerId uint64) {
	if eventHandlerId == 0 {
		b.setErr(errors.New("event handler id cannot be 0"))
		return
	}
	b.addAttributeFrame(&rtframe.AttributeFrame{Name: name, EventHandlerId: eventHandlerId})
}

func (b *Builder) AddText(text string) {
	b.frames = append(b.frames, &rtframe.TextFrame{Content: text})
}

func (b *Builder) AddMarkup(markup string) {
	b.frames = append(b.frames, &rtframe.MarkupFrame{Content: markup})
}

func (b *Builder) AddReferenceCapture(refId string) {
	b.frames = append(b.frames, &rtframe.ReferenceCaptureFrame{ReferenceCaptureId: refId})
}

func (b *Builder) Frames() ([]rtframe.Frame, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.openStack) > 0 {
		openIdx := b.openStack[len(b.openStack)-1]
		return nil, fmt.Errorf("unclosed %s frame at %d", b.frames[openIdx].GetFrameType(), openIdx)
	}
	return b.frames, nil
}
