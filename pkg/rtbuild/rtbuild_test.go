// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package rtbuild

import (
	"reflect"
	"testing"

	"github.com/wavetermdev/rendertree/pkg/rtframe"
)

func TestBuilderSubtreeLengths(t *testing.T) {
	b := MakeBuilder()
	b.OpenElement("ul")
	b.AddAttribute("class", "list")
	b.OpenRegion()
	b.OpenElement("li")
	b.AddText("one")
	b.CloseElement()
	b.OpenElement("li")
	b.AddEventHandler("onclick", 4)
	b.AddText("two")
	b.CloseElement()
	b.CloseRegion()
	b.AddComponent(12)
	b.CloseElement()
	frames, err := b.Frames()
	if err != nil {
		t.Fatalf("builder error: %v", err)
	}
	want := []rtframe.Frame{
		&rtframe.ElementFrame{Tag: "ul", SubtreeLength: 9},
		&rtframe.AttributeFrame{Name: "class", Value: rtframe.StrPtr("list")},
		&rtframe.RegionFrame{SubtreeLength: 6},
		&rtframe.ElementFrame{Tag: "li", SubtreeLength: 2},
		&rtframe.TextFrame{Content: "one"},
		&rtframe.ElementFrame{Tag: "li", SubtreeLength: 3},
		&rtframe.AttributeFrame{Name: "onclick", EventHandlerId: 4},
		&rtframe.TextFrame{Content: "two"},
		&rtframe.ComponentFrame{ComponentId: 12, SubtreeLength: 1},
	}
	if !reflect.DeepEqual(frames, want) {
		for idx, frame := range frames {
			t.Logf("frame %d: %#v", idx, frame)
		}
		t.Fatalf("frames do not match")
	}
}

func TestBuilderErrors(t *testing.T) {
	b := MakeBuilder()
	b.OpenElement("div")
	b.AddText("x")
	b.AddAttribute("late", "1")
	b.CloseElement()
	if _, err := b.Frames(); err == nil {
		t.Errorf("expected error for attribute after child")
	}

	b = MakeBuilder()
	b.OpenRegion()
	b.CloseElement()
	if _, err := b.Frames(); err == nil {
		t.Errorf("expected error for mismatched close")
	}

	b = MakeBuilder()
	b.OpenElement("div")
	if _, err := b.Frames(); err == nil {
		t.Errorf("expected error for unclosed element")
	}

	b = MakeBuilder()
	b.OpenRegion()
	b.AddAttribute("x", "y")
	b.CloseRegion()
	if _, err := b.Frames(); err == nil {
		t.Errorf("expected error for attribute inside region")
	}
}

func TestFromHTML(t *testing.T) {
	frames, err := FromHTML(`
<div class="x" onclick="#handler:3" ref="#ref:main">
    hi
    <br>
    <rt:region><span>a</span>b</rt:region>
    <rt:component id="7"/>
    <!-- dropped -->
</div>`)
	if err != nil {
		t.Fatalf("FromHTML error: %v", err)
	}
	want := []rtframe.Frame{
		&rtframe.ElementFrame{Tag: "div", SubtreeLength: 11},
		&rtframe.AttributeFrame{Name: "class", Value: rtframe.StrPtr("x")},
		&rtframe.AttributeFrame{Name: "onclick", EventHandlerId: 3},
		&rtframe.ReferenceCaptureFrame{ReferenceCaptureId: "main"},
		&rtframe.TextFrame{Content: "hi"},
		&rtframe.ElementFrame{Tag: "br", SubtreeLength: 1},
		&rtframe.RegionFrame{SubtreeLength: 4},
		&rtframe.ElementFrame{Tag: "span", SubtreeLength: 2},
		&rtframe.TextFrame{Content: "a"},
		&rtframe.TextFrame{Content: "b"},
		&rtframe.ComponentFrame{ComponentId: 7, SubtreeLength: 1},
	}
	if !reflect.DeepEqual(frames, want) {
		for idx, frame := range frames {
			t.Logf("frame %d: %#v", idx, frame)
		}
		t.Fatalf("frames do not match")
	}
}

func TestFromHTMLErrors(t *testing.T) {
	badInputs := []string{
		`<div><span></div>`,
		`</div>`,
		`<div>`,
		`<!DOCTYPE html><div></div>`,
		`<div onclick="#handler:abc"></div>`,
		`<rt:component id="x"/>`,
	}
	for _, input := range badInputs {
		if _, err := FromHTML(input); err == nil {
			t.Errorf("expected error for %q", input)
		}
	}
}

func TestPrependBatch(t *testing.T) {
	batch, err := HTMLBatch(1, `<p>a</p><p>b</p>`)
	if err != nil {
		t.Fatalf("HTMLBatch error: %v", err)
	}
	if len(batch.UpdatedComponents) != 1 || len(batch.UpdatedComponents[0].Edits) != 1 {
		t.Fatalf("unexpected diffs: %#v", batch.UpdatedComponents)
	}
	region, ok := batch.ReferenceFrames[0].(*rtframe.RegionFrame)
	if !ok || region.SubtreeLength != 5 {
		t.Errorf("expected wrapping region of length 5, got %#v", batch.ReferenceFrames[0])
	}
}
