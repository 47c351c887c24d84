// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package rtframe

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/goccy/go-yaml"
)

var ErrUnknownFrameKind = errors.New("unknown frame kind")
var ErrUnknownEditKind = errors.New("unknown edit kind")

// wire forms.  every record is discriminated by "type".

type FrameJson struct {
	Type               FrameType `json:"type"`
	Tag                string    `json:"tag,omitempty"`
	Content            string    `json:"content,omitempty"`
	Name               string    `json:"name,omitempty"`
	Value              *string   `json:"value,omitempty"`
	EventHandlerId     uint64    `json:"eventhandlerid,omitempty"`
	ComponentId        uint64    `json:"componentid,omitempty"`
	SubtreeLength      uint32    `json:"subtreelength,omitempty"`
	ReferenceCaptureId string    `json:"referencecaptureid,omitempty"`
}

type EditJson struct {
	Type                EditType `json:"type"`
	SiblingIndex        int      `json:"siblingindex,omitempty"`
	ReferenceFrameIndex int      `json:"referenceframeindex,omitempty"`
	AttributeName       string   `json:"attributename,omitempty"`
	MoveToSiblingIndex  int      `json:"movetosiblingindex,omitempty"`
}

type ComponentDiffJson struct {
	ComponentId uint64     `json:"componentid"`
	Edits       []EditJson `json:"edits"`
}

type RenderBatchJson struct {
	UpdatedComponents       []ComponentDiffJson `json:"updatedcomponents"`
	ReferenceFrames         []FrameJson         `json:"referenceframes"`
	DisposedComponentIds    []uint64            `json:"disposedcomponentids,omitempty"`
	DisposedEventHandlerIds []uint64            `json:"disposedeventhandlerids,omitempty"`
}

func FrameToJson(frame Frame) (FrameJson, error) {
	switch f := frame.(type) {
	case *ElementFrame:
		return FrameJson{Type: FrameType_Element, Tag: f.Tag, SubtreeLength: f.SubtreeLength}, nil
	case *TextFrame:
		return FrameJson{Type: FrameType_Text, Content: f.Content}, nil
	case *AttributeFrame:
		return FrameJson{Type: FrameType_Attribute, Name: f.Name, Value: f.Value, EventHandlerId: f.EventHandlerId}, nil
	case *ComponentFrame:
		return FrameJson{Type: FrameType_Component, ComponentId: f.ComponentId, SubtreeLength: f.SubtreeLength}, nil
	case *RegionFrame:
		return FrameJson{Type: FrameType_Region, SubtreeLength: f.SubtreeLength}, nil
	case *ReferenceCaptureFrame:
		return FrameJson{Type: FrameType_ReferenceCapture, ReferenceCaptureId: f.ReferenceCaptureId}, nil
	case *MarkupFrame:
		return FrameJson{Type: FrameType_Markup, Content: f.Content}, nil
	}
	return FrameJson{}, fmt.Errorf("%w: %T", ErrUnknownFrameKind, frame)
}

func FrameFromJson(fj FrameJson) (Frame, error) {
	switch fj.Type {
	case FrameType_Element:
		return &ElementFrame{Tag: fj.Tag, SubtreeLength: fj.SubtreeLength}, nil
	case FrameType_Text:
		return &TextFrame{Content: fj.Content}, nil
	case FrameType_Attribute:
		return &AttributeFrame{Name: fj.Name, Value: fj.Value, EventHandlerId: fj.EventHandlerId}, nil
	case FrameType_Component:
		return &ComponentFrame{ComponentId: fj.ComponentId, SubtreeLength: fj.SubtreeLength}, nil
	case FrameType_Region:
		return &RegionFrame{SubtreeLength: fj.SubtreeLength}, nil
	case FrameType_ReferenceCapture:
		return &ReferenceCaptureFrame{ReferenceCaptureId: fj.ReferenceCaptureId}, nil
	case FrameType_Markup:
		return &MarkupFrame{Content: fj.Content}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFrameKind, fj.Type)
}

func EditToJson(edit Edit) (EditJson, error) {
	switch e := edit.(type) {
	case *PrependFrameEdit:
		return EditJson{Type: EditType_PrependFrame, SiblingIndex: e.SiblingIndex, ReferenceFrameIndex: e.ReferenceFrameIndex}, nil
	case *RemoveFrameEdit:
		return EditJson{Type: EditType_RemoveFrame, SiblingIndex: e.SiblingIndex}, nil
	case *SetAttributeEdit:
		return EditJson{Type: EditType_SetAttribute, SiblingIndex: e.SiblingIndex, ReferenceFrameIndex: e.ReferenceFrameIndex}, nil
	case *RemoveAttributeEdit:
		return EditJson{Type: EditType_RemoveAttribute, SiblingIndex: e.SiblingIndex, AttributeName: e.AttributeName}, nil
	case *UpdateTextEdit:
		return EditJson{Type: EditType_UpdateText, SiblingIndex: e.SiblingIndex, ReferenceFrameIndex: e.ReferenceFrameIndex}, nil
	case *UpdateMarkupEdit:
		return EditJson{Type: EditType_UpdateMarkup, SiblingIndex: e.SiblingIndex, ReferenceFrameIndex: e.ReferenceFrameIndex}, nil
	case *StepInEdit:
		return EditJson{Type: EditType_StepIn, SiblingIndex: e.SiblingIndex}, nil
	case *StepOutEdit:
		return EditJson{Type: EditType_StepOut}, nil
	case *PermutationListEntryEdit:
		return EditJson{Type: EditType_PermutationListEntry, SiblingIndex: e.SiblingIndex, MoveToSiblingIndex: e.MoveToSiblingIndex}, nil
	case *PermutationListEndEdit:
		return EditJson{Type: EditType_PermutationListEnd}, nil
	}
	return EditJson{}, fmt.Errorf("%w: %T", ErrUnknownEditKind, edit)
}

func EditFromJson(ej EditJson) (Edit, error) {
	switch ej.Type {
	case EditType_PrependFrame:
		return &PrependFrameEdit{SiblingIndex: ej.SiblingIndex, ReferenceFrameIndex: ej.ReferenceFrameIndex}, nil
	case EditType_RemoveFrame:
		return &RemoveFrameEdit{SiblingIndex: ej.SiblingIndex}, nil
	case EditType_SetAttribute:
		return &SetAttributeEdit{SiblingIndex: ej.SiblingIndex, ReferenceFrameIndex: ej.ReferenceFrameIndex}, nil
	case EditType_RemoveAttribute:
		return &RemoveAttributeEdit{SiblingIndex: ej.SiblingIndex, AttributeName: ej.AttributeName}, nil
	case EditType_UpdateText:
		return &UpdateTextEdit{SiblingIndex: ej.SiblingIndex, ReferenceFrameIndex: ej.ReferenceFrameIndex}, nil
	case EditType_UpdateMarkup:
		return &UpdateMarkupEdit{SiblingIndex: ej.SiblingIndex, ReferenceFrameIndex: ej.ReferenceFrameIndex}, nil
	case EditType_StepIn:
		return &StepInEdit{SiblingIndex: ej.SiblingIndex}, nil
	case EditType_StepOut:
		return &StepOutEdit{}, nil
	case EditType_PermutationListEntry:
		return &PermutationListEntryEdit{SiblingIndex: ej.SiblingIndex, MoveToSiblingIndex: ej.MoveToSiblingIndex}, nil
	case EditType_PermutationListEnd:
		return &PermutationListEndEdit{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEditKind, ej.Type)
}

func (b *RenderBatch) ToJson() (*RenderBatchJson, error) {
	rtn := &RenderBatchJson{
		UpdatedComponents:       make([]ComponentDiffJson, 0, len(b.UpdatedComponents)),
		ReferenceFrames:         make([]FrameJson, 0, len(b.ReferenceFrames)),
		DisposedComponentIds:    b.DisposedComponentIds,
		DisposedEventHandlerIds: b.DisposedEventHandlerIds,
	}
	for _, diff := range b.UpdatedComponents {
		diffJson := ComponentDiffJson{ComponentId: diff.ComponentId, Edits: make([]EditJson, 0, len(diff.Edits))}
		for idx, edit := range diff.Edits {
			ej, err := EditToJson(edit)
			if err != nil {
				return nil, fmt.Errorf("component %d edit %d: %w", diff.ComponentId, idx, err)
			}
			diffJson.Edits = append(diffJson.Edits, ej)
		}
		rtn.UpdatedComponents = append(rtn.UpdatedComponents, diffJson)
	}
	for idx, frame := range b.ReferenceFrames {
		fj, err := FrameToJson(frame)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", idx, err)
		}
		rtn.ReferenceFrames = append(rtn.ReferenceFrames, fj)
	}
	return rtn, nil
}

func (bj *RenderBatchJson) ToBatch() (*RenderBatch, error) {
	rtn := &RenderBatch{
		DisposedComponentIds:    bj.DisposedComponentIds,
		DisposedEventHandlerIds: bj.DisposedEventHandlerIds,
	}
	for _, diffJson := range bj.UpdatedComponents {
		diff := ComponentDiff{ComponentId: diffJson.ComponentId}
		for idx, ej := range diffJson.Edits {
			edit, err := EditFromJson(ej)
			if err != nil {
				return nil, fmt.Errorf("component %d edit %d: %w", diffJson.ComponentId, idx, err)
			}
			diff.Edits = append(diff.Edits, edit)
		}
		rtn.UpdatedComponents = append(rtn.UpdatedComponents, diff)
	}
	for idx, fj := range bj.ReferenceFrames {
		frame, err := FrameFromJson(fj)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", idx, err)
		}
		rtn.ReferenceFrames = append(rtn.ReferenceFrames, frame)
	}
	return rtn, nil
}

func (b *RenderBatch) MarshalJSON() ([]byte, error) {
	bj, err := b.ToJson()
	if err != nil {
		return nil, err
	}
	return json.Marshal(bj)
}

func (b *RenderBatch) UnmarshalJSON(data []byte) error {
	var bj RenderBatchJson
	err := json.Unmarshal(data, &bj)
	if err != nil {
		return err
	}
	batch, err := bj.ToBatch()
	if err != nil {
		return err
	}
	*b = *batch
	return nil
}

func ParseBatchJson(data []byte) (*RenderBatch, error) {
	var batch RenderBatch
	err := json.Unmarshal(data, &batch)
	if err != nil {
		return nil, fmt.Errorf("parsing render batch: %w", err)
	}
	return &batch, nil
}

// yaml fixtures use the same keys as the json wire form
func ParseBatchYaml(data []byte) (*RenderBatch, error) {
	jsonData, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("converting yaml render batch: %w", err)
	}
	return ParseBatchJson(jsonData)
}
