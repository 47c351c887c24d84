// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package rtnode

import (
	"sort"

	"github.com/sanity-io/litter"
)

// DumpNode is a flattened, printable snapshot of a node
type DumpNode struct {
	Type        NodeType
	Tag         string
	Text        string
	ComponentId uint64
	Selector    string
	Attrs       [][2]string
	Props       map[string]any
	Events      []EventDescriptor
	RefId       string
	Children    []*DumpNode
}

var dumpOptions = litter.Options{
	HidePrivateFields: true,
	HideZeroValues:    true,
	Compact:           false,
	StripPackageNames: true,
}

func MakeDumpNode(node Node) *DumpNode {
	if node == nil {
		return nil
	}
	rtn := &DumpNode{Type: node.GetNodeType()}
	switch n := node.(type) {
	case *TextNode:
		rtn.Text = n.Text
	case *MarkupNode:
		rtn.Text = n.Content
	case *ElementNode:
		rtn.Tag = n.Tag
		rtn.RefId = n.ReferenceCaptureId
		for pair := n.Attributes.Oldest(); pair != nil; pair = pair.Next() {
			rtn.Attrs = append(rtn.Attrs, [2]string{pair.Key, pair.Value})
		}
		if len(n.Properties) > 0 {
			rtn.Props = n.Properties
		}
		for _, desc := range n.Events {
			rtn.Events = append(rtn.Events, desc)
		}
		sort.Slice(rtn.Events, func(i, j int) bool {
			return rtn.Events[i].EventName < rtn.Events[j].EventName
		})
	case *ComponentNode:
		rtn.ComponentId = n.ComponentId
		rtn.Selector = n.Selector
	}
	if c, ok := node.(Container); ok {
		for _, child := range c.GetChildren() {
			rtn.Children = append(rtn.Children, MakeDumpNode(child))
		}
	}
	return rtn
}

// Dump pretty-prints the subtree rooted at node
func Dump(node Node) string {
	return dumpOptions.Sdump(MakeDumpNode(node))
}
