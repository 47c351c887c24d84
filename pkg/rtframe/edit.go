// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package rtframe

type EditType string

const (
	EditType_PrependFrame         EditType = "prependframe"
	EditType_RemoveFrame          EditType = "removeframe"
	EditType_SetAttribute         EditType = "setattribute"
	EditType_RemoveAttribute      EditType = "removeattribute"
	EditType_UpdateText           EditType = "updatetext"
	EditType_UpdateMarkup         EditType = "updatemarkup"
	EditType_StepIn               EditType = "stepin"
	EditType_StepOut              EditType = "stepout"
	EditType_PermutationListEntry EditType = "permutationlistentry"
	EditType_PermutationListEnd   EditType = "permutationlistend"
)

func (et EditType) String() string {
	return string(et)
}

var AllEditTypes = []EditType{
	EditType_PrependFrame,
	EditType_RemoveFrame,
	EditType_SetAttribute,
	EditType_RemoveAttribute,
	EditType_UpdateText,
	EditType_UpdateMarkup,
	EditType_StepIn,
	EditType_StepOut,
	EditType_PermutationListEntry,
	EditType_PermutationListEnd,
}

// SiblingIndex is always relative to the base child index of the current depth.
// StepOut and PermutationListEnd carry no sibling index.
type Edit interface {
	GetEditType() EditType
	isEdit()
}

type PrependFrameEdit struct {
	SiblingIndex        int
	ReferenceFrameIndex int
}

type RemoveFrameEdit struct {
	SiblingIndex int
}

type SetAttributeEdit struct {
	SiblingIndex        int
	ReferenceFrameIndex int
}

type RemoveAttributeEdit struct {
	SiblingIndex  int
	AttributeName string
}

type UpdateTextEdit struct {
	SiblingIndex        int
	ReferenceFrameIndex int
}

type UpdateMarkupEdit struct {
	SiblingIndex        int
	ReferenceFrameIndex int
}

type StepInEdit struct {
	SiblingIndex int
}

type StepOutEdit struct{}

type PermutationListEntryEdit struct {
	SiblingIndex       int
	MoveToSiblingIndex int
}

type PermutationListEndEdit struct{}

func (*PrependFrameEdit) GetEditType() EditType         { return EditType_PrependFrame }
func (*RemoveFrameEdit) GetEditType() EditType          { return EditType_RemoveFrame }
func (*SetAttributeEdit) GetEditType() EditType         { return EditType_SetAttribute }
func (*RemoveAttributeEdit) GetEditType() EditType      { return EditType_RemoveAttribute }
func (*UpdateTextEdit) GetEditType() EditType           { return EditType_UpdateText }
func (*UpdateMarkupEdit) GetEditType() EditType         { return EditType_UpdateMarkup }
func (*StepInEdit) GetEditType() EditType               { return EditType_StepIn }
func (*StepOutEdit) GetEditType() EditType              { return EditType_StepOut }
func (*PermutationListEntryEdit) GetEditType() EditType { return EditType_PermutationListEntry }
func (*PermutationListEndEdit) GetEditType() EditType   { return EditType_PermutationListEnd }

func (*PrependFrameEdit) isEdit()         {}
func (*RemoveFrameEdit) isEdit()          {}
func (*SetAttributeEdit) isEdit()         {}
func (*RemoveAttributeEdit) isEdit()      {}
func (*UpdateTextEdit) isEdit()           {}
func (*UpdateMarkupEdit) isEdit()         {}
func (*StepInEdit) isEdit()               {}
func (*StepOutEdit) isEdit()              {}
func (*PermutationListEntryEdit) isEdit() {}
func (*PermutationListEndEdit) isEdit()   {}
