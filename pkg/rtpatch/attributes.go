// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package rtpatch

import (
	"fmt"
	"strings"

	"github.com/wavetermdev/rendertree/pkg/rtframe"
	"github.com/wavetermdev/rendertree/pkg/rtnode"
)

const (
	Tag_Input    = "input"
	Tag_Select   = "select"
	Tag_Textarea = "textarea"
	Tag_Option   = "option"
	Tag_Optgroup = "optgroup"
)

const eventAttrPrefix = "on"

func propValue(val *string) any {
	if val == nil {
		return nil
	}
	return *val
}

func isValueTag(elem *rtnode.ElementNode) bool {
	return elem.TagIs(Tag_Input) || elem.TagIs(Tag_Select) || elem.TagIs(Tag_Textarea)
}

func (in *Interpreter) applyAttribute(elem *rtnode.ElementNode, attr *rtframe.AttributeFrame) error {
	if attr.IsEvent() {
		if !strings.HasPrefix(attr.Name, eventAttrPrefix) || len(attr.Name) <= len(eventAttrPrefix) {
			return fmt.Errorf("%w: %q (handler %d)", ErrMalformedEventAttribute, attr.Name, attr.EventHandlerId)
		}
		desc := rtnode.EventDescriptor{
			EventName:      attr.Name[len(eventAttrPrefix):],
			EventHandlerId: attr.EventHandlerId,
		}
		elem.Events[desc.EventName] = desc
		if in.registry != nil {
			in.registry.RegisterEventHandler(in.componentId, desc)
		}
		return nil
	}
	if tryApplySpecialProperty(elem, attr) {
		return nil
	}
	elem.SetAttr(attr.Name, attr.ValueStr())
	return nil
}

// value and checked live in the dom property namespace for form elements
func tryApplySpecialProperty(elem *rtnode.ElementNode, attr *rtframe.AttributeFrame) bool {
	switch attr.Name {
	case rtnode.ValuePropKey:
		if isValueTag(elem) {
			elem.Properties[rtnode.ValuePropKey] = propValue(attr.Value)
			if elem.TagIs(Tag_Select) {
				// options may not exist yet, keep the value around so they can pick it up
				elem.Properties[rtnode.SelectValuePropKey] = propValue(attr.Value)
				syncSelectOptions(elem)
			}
			return true
		}
		if elem.TagIs(Tag_Option) {
			if attr.Value != nil {
				elem.SetAttr(rtnode.ValuePropKey, *attr.Value)
			} else {
				elem.RemoveAttr(rtnode.ValuePropKey)
			}
			return true
		}
	case rtnode.CheckedPropKey:
		if elem.TagIs(Tag_Input) {
			elem.Properties[rtnode.CheckedPropKey] = propValue(attr.Value)
			return true
		}
	}
	return false
}

func (in *Interpreter) removeAttribute(elem *rtnode.ElementNode, name string) {
	if tryRemoveSpecialProperty(elem, name) {
		return
	}
	if strings.HasPrefix(name, eventAttrPrefix) && len(name) > len(eventAttrPrefix) {
		delete(elem.Events, name[len(eventAttrPrefix):])
	}
	elem.RemoveAttr(name)
}

func tryRemoveSpecialProperty(elem *rtnode.ElementNode, name string) bool {
	switch name {
	case rtnode.ValuePropKey:
		if isValueTag(elem) {
			delete(elem.Properties, rtnode.ValuePropKey)
			if elem.TagIs(Tag_Select) {
				delete(elem.Properties, rtnode.SelectValuePropKey)
				clearSelectOptions(elem)
			}
			return true
		}
		if elem.TagIs(Tag_Option) {
			elem.RemoveAttr(rtnode.ValuePropKey)
			return true
		}
	case rtnode.CheckedPropKey:
		if elem.TagIs(Tag_Input) {
			delete(elem.Properties, rtnode.CheckedPropKey)
			return true
		}
	}
	return false
}

// ancestors are searched nearest first, looking through optgroups only
func findSelectAncestor(ancestors []rtnode.Container) *rtnode.ElementNode {
	for i := len(ancestors) - 1; i >= 0; i-- {
		elem, ok := ancestors[i].(*rtnode.ElementNode)
		if !ok {
			return nil
		}
		if elem.TagIs(Tag_Select) {
			return elem
		}
		if !elem.TagIs(Tag_Optgroup) {
			return nil
		}
	}
	return nil
}

func syncOptionWithSelect(ancestors []rtnode.Container, option *rtnode.ElementNode) {
	selectElem := findSelectAncestor(ancestors)
	if selectElem == nil {
		return
	}
	syncOption(selectElem, option)
}

func syncOption(selectElem *rtnode.ElementNode, option *rtnode.ElementNode) {
	stashVal, ok := selectElem.Properties[rtnode.SelectValuePropKey]
	if !ok {
		return
	}
	stashStr, isStr := stashVal.(string)
	optionVal, hasVal := option.GetAttr(rtnode.ValuePropKey)
	setOptionSelected(option, isStr && hasVal && optionVal == stashStr)
}

func setOptionSelected(option *rtnode.ElementNode, selected bool) {
	if selected {
		option.Properties[rtnode.SelectedPropKey] = true
		option.SetAttr(rtnode.SelectedPropKey, "")
		return
	}
	delete(option.Properties, rtnode.SelectedPropKey)
	option.RemoveAttr(rtnode.SelectedPropKey)
}

func forEachOption(container rtnode.Container, fn func(option *rtnode.ElementNode)) {
	for _, child := range container.GetChildren() {
		elem, ok := child.(*rtnode.ElementNode)
		if !ok {
			continue
		}
		if elem.TagIs(Tag_Option) {
			fn(elem)
		} else if elem.TagIs(Tag_Optgroup) {
			forEachOption(elem, fn)
		}
	}
}

func syncSelectOptions(selectElem *rtnode.ElementNode) {
	forEachOption(selectElem, func(option *rtnode.ElementNode) {
		syncOption(selectElem, option)
	})
}

func clearSelectOptions(selectElem *rtnode.ElementNode) {
	forEachOption(selectElem, func(option *rtnode.ElementNode) {
		setOptionSelected(option, false)
	})
}
