// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

// logical document tree that render batches are applied to.  it stands in for a
// real presentation surface (a browser DOM), so it only keeps what the patch
// engine can observe: structure, attributes, dom properties and event registrations.
package rtnode

import (
	"errors"
	"fmt"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var ErrIndexOutOfRange = errors.New("child index out of range")

type NodeType string

const (
	NodeType_Text      NodeType = "text"
	NodeType_Markup    NodeType = "markup"
	NodeType_Element   NodeType = "element"
	NodeType_Component NodeType = "component"
	NodeType_Group     NodeType = "group"
)

// reserved property keys (never produced by attribute frames)
const (
	SelectValuePropKey = "#selectvalue"
	ValuePropKey       = "value"
	CheckedPropKey     = "checked"
	SelectedPropKey    = "selected"
)

type Node interface {
	GetNodeType() NodeType
}

type Container interface {
	Node
	GetChildren() []Node
	NumChildren() int
	ChildAt(idx int) (Node, error)
	InsertChild(idx int, child Node) error
	RemoveChild(idx int) (Node, error)
}

// ChildList is embedded by every container.  insertion order is significant.
type ChildList struct {
	Children []Node
}

func (cl *ChildList) GetChildren() []Node {
	return cl.Children
}

func (cl *ChildList) NumChildren() int {
	return len(cl.Children)
}

func (cl *ChildList) ChildAt(idx int) (Node, error) {
	if idx < 0 || idx >= len(cl.Children) {
		return nil, fmt.Errorf("%w: index %d, %d children", ErrIndexOutOfRange, idx, len(cl.Children))
	}
	return cl.Children[idx], nil
}

func (cl *ChildList) InsertChild(idx int, child Node) error {
	if idx < 0 || idx > len(cl.Children) {
		return fmt.Errorf("%w: insert at %d, %d children", ErrIndexOutOfRange, idx, len(cl.Children))
	}
	cl.Children = append(cl.Children, nil)
	copy(cl.Children[idx+1:], cl.Children[idx:])
	cl.Children[idx] = child
	return nil
}

// removes the child (and with it, its whole subtree)
func (cl *ChildList) RemoveChild(idx int) (Node, error) {
	if idx < 0 || idx >= len(cl.Children) {
		return nil, fmt.Errorf("%w: remove at %d, %d children", ErrIndexOutOfRange, idx, len(cl.Children))
	}
	removed := cl.Children[idx]
	copy(cl.Children[idx:], cl.Children[idx+1:])
	cl.Children[len(cl.Children)-1] = nil
	cl.Children = cl.Children[:len(cl.Children)-1]
	return removed, nil
}

type TextNode struct {
	Text string
}

// raw markup, always wrapped in a GroupNode so it can be replaced as a unit
type MarkupNode struct {
	Content string
}

type EventDescriptor struct {
	EventName      string `json:"eventname"`
	EventHandlerId uint64 `json:"eventhandlerid"`
}

type ElementNode struct {
	Tag                string
	Attributes         *orderedmap.OrderedMap[string, string]
	Properties         map[string]any
	Events             map[string]EventDescriptor
	ReferenceCaptureId string
	ChildList
}

// Selector is only set for root components
type ComponentNode struct {
	ComponentId uint64
	Selector    string
	ChildList
}

// synthetic grouping container (used to hold markup)
type GroupNode struct {
	ChildList
}

func (*TextNode) GetNodeType() NodeType      { return NodeType_Text }
func (*MarkupNode) GetNodeType() NodeType    { return NodeType_Markup }
func (*ElementNode) GetNodeType() NodeType   { return NodeType_Element }
func (*ComponentNode) GetNodeType() NodeType { return NodeType_Component }
func (*GroupNode) GetNodeType() NodeType     { return NodeType_Group }

func MakeTextNode(text string) *TextNode {
	return &TextNode{Text: text}
}

func MakeElementNode(tag string) *ElementNode {
	return &ElementNode{
		Tag:        tag,
		Attributes: orderedmap.New[string, string](),
		Properties: make(map[string]any),
		Events:     make(map[string]EventDescriptor),
	}
}

func MakeComponentNode(componentId uint64) *ComponentNode {
	return &ComponentNode{ComponentId: componentId}
}

func MakeRootComponentNode(componentId uint64, selector string) *ComponentNode {
	return &ComponentNode{ComponentId: componentId, Selector: selector}
}

func MakeMarkupGroup(content string) *GroupNode {
	return &GroupNode{ChildList: ChildList{Children: []Node{&MarkupNode{Content: content}}}}
}

func IsContainer(node Node) bool {
	_, ok := node.(Container)
	return ok
}

// tags compare case-insensitively (producers may send DIV or div)
func (e *ElementNode) TagIs(tag string) bool {
	return strings.EqualFold(e.Tag, tag)
}

func (e *ElementNode) GetAttr(name string) (string, bool) {
	return e.Attributes.Get(name)
}

func (e *ElementNode) SetAttr(name string, val string) {
	e.Attributes.Set(name, val)
}

func (e *ElementNode) RemoveAttr(name string) bool {
	_, present := e.Attributes.Delete(name)
	return present
}

func (e *ElementNode) AttrNames() []string {
	var rtn []string
	for pair := e.Attributes.Oldest(); pair != nil; pair = pair.Next() {
		rtn = append(rtn, pair.Key)
	}
	return rtn
}

func (e *ElementNode) GetProp(name string) (any, bool) {
	val, ok := e.Properties[name]
	return val, ok
}

func (e *ElementNode) GetEvent(eventName string) (EventDescriptor, bool) {
	desc, ok := e.Events[eventName]
	return desc, ok
}
