// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package rtdoc

import (
	"errors"
	"strings"
	"testing"

	"github.com/wavetermdev/rendertree/pkg/rtbuild"
	"github.com/wavetermdev/rendertree/pkg/rtframe"
	"github.com/wavetermdev/rendertree/pkg/rtpatch"
)

func TestApplySimpleBatch(t *testing.T) {
	doc := MakeDocument()
	if err := doc.AddRootComponent(1, "#app"); err != nil {
		t.Fatalf("add root: %v", err)
	}
	batch := &rtframe.RenderBatch{
		UpdatedComponents: []rtframe.ComponentDiff{
			{ComponentId: 1, Edits: []rtframe.Edit{&rtframe.PrependFrameEdit{SiblingIndex: 0, ReferenceFrameIndex: 0}}},
		},
		ReferenceFrames: []rtframe.Frame{
			&rtframe.ElementFrame{Tag: "DIV", SubtreeLength: 3},
			&rtframe.AttributeFrame{Name: "class", Value: rtframe.StrPtr("x")},
			&rtframe.TextFrame{Content: "hi"},
		},
	}
	if err := doc.ApplyBatch(batch); err != nil {
		t.Fatalf("apply batch: %v", err)
	}
	if got := doc.Render(); got != `<div class="x">hi</div>` {
		t.Errorf("render = %q", got)
	}
	if doc.BatchCount() != 1 {
		t.Errorf("batch count = %d", doc.BatchCount())
	}
	if !strings.Contains(doc.Dump(), "DIV") {
		t.Errorf("dump should mention the element tag:\n%s", doc.Dump())
	}
}

func TestDuplicateRootComponent(t *testing.T) {
	doc := MakeDocument()
	if err := doc.AddRootComponent(1, "#a"); err != nil {
		t.Fatalf("add root: %v", err)
	}
	err := doc.AddRootComponent(1, "#b")
	if !errors.Is(err, ErrDuplicateComponentId) {
		t.Errorf("expected ErrDuplicateComponentId, got %v", err)
	}
	if len(doc.RootComponents()) != 1 || doc.RootComponents()[0].Selector != "#a" {
		t.Errorf("first registration must be kept")
	}
}

func TestCreateComponentOnDemand(t *testing.T) {
	doc := MakeDocument()
	batch, err := rtbuild.HTMLBatch(7, `<p>floating</p>`)
	if err != nil {
		t.Fatalf("html batch: %v", err)
	}
	if err := doc.ApplyBatch(batch); err != nil {
		t.Fatalf("apply batch: %v", err)
	}
	comp := doc.GetComponent(7)
	if comp == nil || comp.NumChildren() != 1 {
		t.Fatalf("component 7 should exist with one child, got %#v", comp)
	}
	if doc.Render() != "" {
		t.Errorf("non-root components are not rendered from the roots")
	}
}

func TestNestedComponents(t *testing.T) {
	doc := MakeDocument()
	doc.AddRootComponent(1, "#app")
	bb := rtbuild.MakeBatchBuilder()
	b := rtbuild.MakeBuilder()
	b.OpenElement("section")
	b.AddComponent(2)
	b.CloseElement()
	b.AddText("child")
	frames, err := b.Frames()
	if err != nil {
		t.Fatalf("frames: %v", err)
	}
	start := bb.AddFrames(frames...)
	// parent diff first, then the child's content as its own diff
	bb.AddDiff(1, &rtframe.PrependFrameEdit{SiblingIndex: 0, ReferenceFrameIndex: start})
	bb.AddDiff(2, &rtframe.PrependFrameEdit{SiblingIndex: 0, ReferenceFrameIndex: start + 2})
	if err := doc.ApplyBatch(bb.Batch()); err != nil {
		t.Fatalf("apply batch: %v", err)
	}
	if got := doc.Render(); got != "<section>child</section>" {
		t.Errorf("render = %q", got)
	}
	if doc.NumComponents() != 2 {
		t.Errorf("expected 2 components, got %d", doc.NumComponents())
	}

	// materializing component 2 again replaces its index entry with a fresh, empty node
	bb = rtbuild.MakeBatchBuilder()
	start = bb.AddFrames(frames...)
	bb.AddDiff(1, &rtframe.RemoveFrameEdit{SiblingIndex: 0}, &rtframe.PrependFrameEdit{SiblingIndex: 0, ReferenceFrameIndex: start})
	if err := doc.ApplyBatch(bb.Batch()); err != nil {
		t.Fatalf("apply second batch: %v", err)
	}
	// the section still holds the (empty) component node
	if got := doc.Render(); got != "<section></section>" {
		t.Errorf("render = %q", got)
	}
	if doc.GetComponent(2).NumChildren() != 0 {
		t.Errorf("re-registered component should be empty")
	}
}

func TestDisposal(t *testing.T) {
	doc := MakeDocument()
	doc.AddRootComponent(1, "#app")
	batch, err := rtbuild.HTMLBatch(1, `<button onclick="#handler:9">go</button><rt:component id="3"/>`)
	if err != nil {
		t.Fatalf("html batch: %v", err)
	}
	if err := doc.ApplyBatch(batch); err != nil {
		t.Fatalf("apply batch: %v", err)
	}
	info, ok := doc.GetEventHandler(9)
	if !ok || info.ComponentId != 1 || info.EventName != "click" {
		t.Fatalf("event handler not indexed: %#v", info)
	}
	if doc.GetComponent(3) == nil {
		t.Fatalf("component 3 should be registered")
	}
	before := doc.Render()

	bb := rtbuild.MakeBatchBuilder()
	bb.DisposeComponents(3)
	bb.DisposeEventHandlers(9)
	if err := doc.ApplyBatch(bb.Batch()); err != nil {
		t.Fatalf("apply disposal batch: %v", err)
	}
	if doc.GetComponent(3) != nil || !doc.IsComponentDisposed(3) {
		t.Errorf("component 3 should be disposed")
	}
	if _, ok := doc.GetEventHandler(9); ok || !doc.IsEventHandlerDisposed(9) {
		t.Errorf("handler 9 should be disposed")
	}
	// disposal never touches the tree
	if got := doc.Render(); got != before {
		t.Errorf("render changed after disposal:\n got %s\nwant %s", got, before)
	}
}

func TestRenderOrder(t *testing.T) {
	doc := MakeDocument()
	doc.AddRootComponent(20, "#second")
	doc.AddRootComponent(10, "#first")
	bb := rtbuild.MakeBatchBuilder()
	aIdx := bb.AddFrames(&rtframe.TextFrame{Content: "a"})
	bIdx := bb.AddFrames(&rtframe.TextFrame{Content: "b"})
	bb.AddDiff(10, &rtframe.PrependFrameEdit{SiblingIndex: 0, ReferenceFrameIndex: aIdx})
	bb.AddDiff(20, &rtframe.PrependFrameEdit{SiblingIndex: 0, ReferenceFrameIndex: bIdx})
	if err := doc.ApplyBatch(bb.Batch()); err != nil {
		t.Fatalf("apply batch: %v", err)
	}
	if got := doc.Render(); got != "ba" {
		t.Errorf("roots should render in registration order, got %q", got)
	}
}

func TestApplyBatchError(t *testing.T) {
	doc := MakeDocument()
	doc.AddRootComponent(1, "#app")
	bb := rtbuild.MakeBatchBuilder()
	idx := bb.AddFrames(&rtframe.TextFrame{Content: "ok"})
	bb.AddDiff(1, &rtframe.PrependFrameEdit{SiblingIndex: 0, ReferenceFrameIndex: idx}, &rtframe.StepOutEdit{})
	err := doc.ApplyBatch(bb.Batch())
	if !errors.Is(err, rtpatch.ErrCannotStepOut) {
		t.Fatalf("expected ErrCannotStepOut, got %v", err)
	}
	var patchErr *rtpatch.PatchError
	if !errors.As(err, &patchErr) || patchErr.ComponentId != 1 || patchErr.EditIndex != 1 {
		t.Errorf("expected PatchError for component 1 edit 1, got %v", err)
	}
	// edits before the failure stay applied
	if doc.Render() != "ok" {
		t.Errorf("render = %q", doc.Render())
	}
	if err := doc.ApplyBatch(nil); err == nil {
		t.Errorf("nil batch should fail")
	}
}
