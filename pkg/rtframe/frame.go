// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package rtframe

// frames are the flat records a renderer emits for a batch.  elements, components
// and regions own the frames that follow them (SubtreeLength counts the frame itself
// plus all of its descendants).

type FrameType string

const (
	FrameType_Element          FrameType = "element"
	FrameType_Text             FrameType = "text"
	FrameType_Attribute        FrameType = "attribute"
	FrameType_Component        FrameType = "component"
	FrameType_Region           FrameType = "region"
	FrameType_ReferenceCapture FrameType = "referencecapture"
	FrameType_Markup           FrameType = "markup"
)

func (ft FrameType) String() string {
	return string(ft)
}

var AllFrameTypes = []FrameType{
	FrameType_Element,
	FrameType_Text,
	FrameType_Attribute,
	FrameType_Component,
	FrameType_Region,
	FrameType_ReferenceCapture,
	FrameType_Markup,
}

type Frame interface {
	GetFrameType() FrameType
	isFrame()
}

type ElementFrame struct {
	Tag           string
	SubtreeLength uint32
}

type TextFrame struct {
	Content string
}

// EventHandlerId 0 means a plain attribute.  Value nil is a null attribute value.
type AttributeFrame struct {
	Name           string
	Value          *string
	EventHandlerId uint64
}

type ComponentFrame struct {
	ComponentId   uint64
	SubtreeLength uint32
}

// a region (fragment) groups frames without producing a node of its own
type RegionFrame struct {
	SubtreeLength uint32
}

type ReferenceCaptureFrame struct {
	ReferenceCaptureId string
}

type MarkupFrame struct {
	Content string
}

func (*ElementFrame) GetFrameType() FrameType          { return FrameType_Element }
func (*TextFrame) GetFrameType() FrameType             { return FrameType_Text }
func (*AttributeFrame) GetFrameType() FrameType        { return FrameType_Attribute }
func (*ComponentFrame) GetFrameType() FrameType        { return FrameType_Component }
func (*RegionFrame) GetFrameType() FrameType           { return FrameType_Region }
func (*ReferenceCaptureFrame) GetFrameType() FrameType { return FrameType_ReferenceCapture }
func (*MarkupFrame) GetFrameType() FrameType           { return FrameType_Markup }

func (*ElementFrame) isFrame()          {}
func (*TextFrame) isFrame()             {}
func (*AttributeFrame) isFrame()        {}
func (*ComponentFrame) isFrame()        {}
func (*RegionFrame) isFrame()           {}
func (*ReferenceCaptureFrame) isFrame() {}
func (*MarkupFrame) isFrame()           {}

// StrPtr is a convenience for building attribute frames
func StrPtr(s string) *string {
	return &s
}

func (af *AttributeFrame) ValueStr() string {
	if af.Value == nil {
		return ""
	}
	return *af.Value
}

func (af *AttributeFrame) IsEvent() bool {
	return af.EventHandlerId != 0
}

// returns the subtree length for frames that own descendants (0 otherwise)
func SubtreeLength(frame Frame) uint32 {
	switch f := frame.(type) {
	case *ElementFrame:
		return f.SubtreeLength
	case *ComponentFrame:
		return f.SubtreeLength
	case *RegionFrame:
		return f.SubtreeLength
	}
	return 0
}
