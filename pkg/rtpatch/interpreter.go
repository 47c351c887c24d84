// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

// rtpatch applies one component's edit sequence to the logical tree.
//
// The interpreter walks the edits with a cursor: a stack of open containers (the
// top is the current insertion point) and a base child index for the current
// depth.  Every sibling index in an edit is relative to that base.  Only the
// outermost depth keeps the caller supplied base; inner depths always start at 0.
package rtpatch

import (
	"fmt"

	"github.com/wavetermdev/rendertree/pkg/rtframe"
	"github.com/wavetermdev/rendertree/pkg/rtnode"
)

// Registry receives the bookkeeping side effects of materialization.  the Document
// implements it; a nil Registry is allowed.
type Registry interface {
	RegisterComponent(node *rtnode.ComponentNode)
	RegisterEventHandler(componentId uint64, desc rtnode.EventDescriptor)
}

// Permutation is one recorded PermutationListEntry, as absolute child indexes
type Permutation struct {
	From int
	To   int
}

// Interpreter holds the cursor for one edit sequence.  it can be reused across
// the diffs of a batch since ApplyEdits resets the cursor.
type Interpreter struct {
	frames            *rtframe.FrameStore
	registry          Registry
	componentId       uint64
	stack             []rtnode.Container
	initialChildIndex int
	childIndexAtDepth int
	permutations      []Permutation
}

// MakeInterpreter binds an interpreter to a batch's frames.  a nil store acts as empty.
func MakeInterpreter(frames *rtframe.FrameStore, registry Registry) *Interpreter {
	if frames == nil {
		frames = rtframe.MakeFrameStore(nil)
	}
	return &Interpreter{frames: frames, registry: registry}
}

// Depth is 0 at the root container
func (in *Interpreter) Depth() int {
	return len(in.stack) - 1
}

func (in *Interpreter) ChildIndexAtDepth() int {
	return in.childIndexAtDepth
}

// entries recorded since the last ApplyEdits
func (in *Interpreter) PendingPermutations() []Permutation {
	return in.permutations
}

func (in *Interpreter) curParent() rtnode.Container {
	return in.stack[len(in.stack)-1]
}

func (in *Interpreter) resolveIndex(siblingIndex int) int {
	return in.childIndexAtDepth + siblingIndex
}

// ApplyEdits runs edits against root.  cursor state is reset on every call.
func (in *Interpreter) ApplyEdits(root rtnode.Container, componentId uint64, edits []rtframe.Edit, initialChildIndex int) error {
	if root == nil {
		return fmt.Errorf("%w: nil root container", ErrTypeMismatch)
	}
	in.componentId = componentId
	in.stack = []rtnode.Container{root}
	in.initialChildIndex = initialChildIndex
	in.childIndexAtDepth = initialChildIndex
	in.permutations = nil
	for idx, edit := range edits {
		err := in.applyEdit(edit)
		if err != nil {
			var editType rtframe.EditType
			if edit != nil {
				editType = edit.GetEditType()
			}
			return &PatchError{ComponentId: componentId, EditIndex: idx, EditType: editType, Err: err}
		}
	}
	return nil
}

func (in *Interpreter) applyEdit(edit rtframe.Edit) error {
	switch e := edit.(type) {
	case *rtframe.PrependFrameEdit:
		_, err := in.insertFrame(in.stack, in.resolveIndex(e.SiblingIndex), e.ReferenceFrameIndex)
		return err

	case *rtframe.RemoveFrameEdit:
		_, err := in.curParent().RemoveChild(in.resolveIndex(e.SiblingIndex))
		return err

	case *rtframe.SetAttributeEdit:
		elem, err := in.resolveElement(e.SiblingIndex)
		if err != nil {
			return err
		}
		frame, err := in.frames.Get(e.ReferenceFrameIndex)
		if err != nil {
			return err
		}
		attr, ok := frame.(*rtframe.AttributeFrame)
		if !ok {
			return frameMismatch(rtframe.FrameType_Attribute, frame)
		}
		err = in.applyAttribute(elem, attr)
		if err != nil {
			return err
		}
		if attr.Name == rtnode.ValuePropKey && elem.TagIs(Tag_Option) {
			syncOptionWithSelect(in.stack, elem)
		}
		return nil

	case *rtframe.RemoveAttributeEdit:
		elem, err := in.resolveElement(e.SiblingIndex)
		if err != nil {
			return err
		}
		in.removeAttribute(elem, e.AttributeName)
		if e.AttributeName == rtnode.ValuePropKey && elem.TagIs(Tag_Option) {
			syncOptionWithSelect(in.stack, elem)
		}
		return nil

	case *rtframe.UpdateTextEdit:
		child, err := in.curParent().ChildAt(in.resolveIndex(e.SiblingIndex))
		if err != nil {
			return err
		}
		textNode, ok := child.(*rtnode.TextNode)
		if !ok {
			return typeMismatch("text node", child)
		}
		frame, err := in.frames.Get(e.ReferenceFrameIndex)
		if err != nil {
			return err
		}
		textFrame, ok := frame.(*rtframe.TextFrame)
		if !ok {
			return frameMismatch(rtframe.FrameType_Text, frame)
		}
		textNode.Text = textFrame.Content
		return nil

	case *rtframe.UpdateMarkupEdit:
		frame, err := in.frames.Get(e.ReferenceFrameIndex)
		if err != nil {
			return err
		}
		markupFrame, ok := frame.(*rtframe.MarkupFrame)
		if !ok {
			return frameMismatch(rtframe.FrameType_Markup, frame)
		}
		childIndex := in.resolveIndex(e.SiblingIndex)
		parent := in.curParent()
		_, err = parent.RemoveChild(childIndex)
		if err != nil {
			return err
		}
		return parent.InsertChild(childIndex, rtnode.MakeMarkupGroup(markupFrame.Content))

	case *rtframe.StepInEdit:
		child, err := in.curParent().ChildAt(in.resolveIndex(e.SiblingIndex))
		if err != nil {
			return err
		}
		container, ok := child.(rtnode.Container)
		if !ok {
			return typeMismatch("container", child)
		}
		in.stack = append(in.stack, container)
		in.childIndexAtDepth = 0
		return nil

	case *rtframe.StepOutEdit:
		if len(in.stack) <= 1 {
			return ErrCannotStepOut
		}
		in.stack[len(in.stack)-1] = nil
		in.stack = in.stack[:len(in.stack)-1]
		if in.Depth() == 0 {
			in.childIndexAtDepth = in.initialChildIndex
		} else {
			in.childIndexAtDepth = 0
		}
		return nil

	case *rtframe.PermutationListEntryEdit:
		in.permutations = append(in.permutations, Permutation{
			From: in.resolveIndex(e.SiblingIndex),
			To:   in.resolveIndex(e.MoveToSiblingIndex),
		})
		return nil

	case *rtframe.PermutationListEndEdit:
		// the recorded moves are never applied (reordering semantics are not defined here)
		return fmt.Errorf("%w: permutation list (%d entries)", ErrUnsupported, len(in.permutations))
	}
	if edit == nil {
		return fmt.Errorf("%w: nil edit", ErrUnknownEditKind)
	}
	return fmt.Errorf("%w: %T", ErrUnknownEditKind, edit)
}

func (in *Interpreter) resolveElement(siblingIndex int) (*rtnode.ElementNode, error) {
	child, err := in.curParent().ChildAt(in.resolveIndex(siblingIndex))
	if err != nil {
		return nil, err
	}
	elem, ok := child.(*rtnode.ElementNode)
	if !ok {
		return nil, typeMismatch("element", child)
	}
	return elem, nil
}

// ApplyEdits is a convenience for a single edit sequence with no registry
func ApplyEdits(frames *rtframe.FrameStore, root rtnode.Container, edits []rtframe.Edit) error {
	return MakeInterpreter(frames, nil).ApplyEdits(root, 0, edits, 0)
}
