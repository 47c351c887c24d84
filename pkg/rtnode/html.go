// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package rtnode

import (
	"html"
	"strings"
)

// serializes the logical tree to markup for assertions and debugging.
// there is no void-element handling: a closing tag is written only when the
// element has children.

func RenderHTML(node Node) string {
	var buf strings.Builder
	WriteHTML(&buf, node)
	return buf.String()
}

func WriteHTML(buf *strings.Builder, node Node) {
	switch n := node.(type) {
	case nil:
		return
	case *TextNode:
		buf.WriteString(html.EscapeString(n.Text))
	case *MarkupNode:
		buf.WriteString(n.Content)
	case *ElementNode:
		tag := strings.ToLower(n.Tag)
		buf.WriteByte('<')
		buf.WriteString(tag)
		for pair := n.Attributes.Oldest(); pair != nil; pair = pair.Next() {
			buf.WriteByte(' ')
			buf.WriteString(pair.Key)
			buf.WriteString(`="`)
			buf.WriteString(html.EscapeString(pair.Value))
			buf.WriteByte('"')
		}
		buf.WriteByte('>')
		if len(n.Children) == 0 {
			return
		}
		writeChildrenHTML(buf, n.Children)
		buf.WriteString("</")
		buf.WriteString(tag)
		buf.WriteByte('>')
	case Container:
		writeChildrenHTML(buf, n.GetChildren())
	}
}

func writeChildrenHTML(buf *strings.Builder, children []Node) {
	for _, child := range children {
		WriteHTML(buf, child)
	}
}
