// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package rtdoc

import (
	"errors"
	"fmt"
	"log"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/emirpasic/gods/maps/linkedhashmap"
	"github.com/wavetermdev/rendertree/pkg/rtframe"
	"github.com/wavetermdev/rendertree/pkg/rtnode"
	"github.com/wavetermdev/rendertree/pkg/rtpatch"
)

var ErrDuplicateComponentId = errors.New("duplicate component id")

type EventHandlerInfo struct {
	ComponentId    uint64 `json:"componentid"`
	EventName      string `json:"eventname"`
	EventHandlerId uint64 `json:"eventhandlerid"`
}

// Document owns the root components and an index of every component (root or
// nested) by id.  it is not safe for concurrent use; hosts serialize batches
// per document.
type Document struct {
	roots                   *linkedhashmap.Map // componentId -> *rtnode.ComponentNode (registration order)
	components              map[uint64]*rtnode.ComponentNode
	eventHandlers           map[uint64]EventHandlerInfo
	disposedComponentIds    mapset.Set[uint64]
	disposedEventHandlerIds mapset.Set[uint64]
	batchCount              int
}

func MakeDocument() *Document {
	return &Document{
		roots:                   linkedhashmap.New(),
		components:              make(map[uint64]*rtnode.ComponentNode),
		eventHandlers:           make(map[uint64]EventHandlerInfo),
		disposedComponentIds:    mapset.NewThreadUnsafeSet[uint64](),
		disposedEventHandlerIds: mapset.NewThreadUnsafeSet[uint64](),
	}
}

func (d *Document) AddRootComponent(componentId uint64, selector string) error {
	if _, found := d.roots.Get(componentId); found {
		return fmt.Errorf("%w: %d", ErrDuplicateComponentId, componentId)
	}
	if _, found := d.components[componentId]; found {
		return fmt.Errorf("%w: %d", ErrDuplicateComponentId, componentId)
	}
	node := rtnode.MakeRootComponentNode(componentId, selector)
	d.roots.Put(componentId, node)
	d.components[componentId] = node
	return nil
}

// docRegistry receives materialization side effects from the interpreter
type docRegistry struct {
	doc *Document
}

func (r docRegistry) RegisterComponent(node *rtnode.ComponentNode) {
	// a repeated id overwrites the previous mapping
	r.doc.components[node.ComponentId] = node
}

func (r docRegistry) RegisterEventHandler(componentId uint64, desc rtnode.EventDescriptor) {
	r.doc.eventHandlers[desc.EventHandlerId] = EventHandlerInfo{
		ComponentId:    componentId,
		EventName:      desc.EventName,
		EventHandlerId: desc.EventHandlerId,
	}
}

func (d *Document) getOrCreateComponent(componentId uint64) *rtnode.ComponentNode {
	node := d.components[componentId]
	if node == nil {
		node = rtnode.MakeComponentNode(componentId)
		d.components[componentId] = node
	}
	return node
}

// ApplyBatch applies every component diff in order, then processes the disposal
// lists.  any error is fatal and may leave the document partially updated.
func (d *Document) ApplyBatch(batch *rtframe.RenderBatch) error {
	if batch == nil {
		return errors.New("nil render batch")
	}
	d.batchCount++
	interp := rtpatch.MakeInterpreter(batch.FrameStore(), docRegistry{doc: d})
	for _, diff := range batch.UpdatedComponents {
		node := d.getOrCreateComponent(diff.ComponentId)
		err := interp.ApplyEdits(node, diff.ComponentId, diff.Edits, 0)
		if err != nil {
			log.Printf("[rtdoc] batch %d failed: %v\n", d.batchCount, err)
			return fmt.Errorf("applying batch %d: %w", d.batchCount, err)
		}
	}
	// bookkeeping only, the producer already removed the nodes
	for _, componentId := range batch.DisposedComponentIds {
		delete(d.components, componentId)
		d.disposedComponentIds.Add(componentId)
	}
	for _, eventHandlerId := range batch.DisposedEventHandlerIds {
		delete(d.eventHandlers, eventHandlerId)
		d.disposedEventHandlerIds.Add(eventHandlerId)
	}
	return nil
}

func (d *Document) RootComponents() []*rtnode.ComponentNode {
	var rtn []*rtnode.ComponentNode
	for _, val := range d.roots.Values() {
		rtn = append(rtn, val.(*rtnode.ComponentNode))
	}
	return rtn
}

// returns nil if componentId is not (or no longer) registered
func (d *Document) GetComponent(componentId uint64) *rtnode.ComponentNode {
	return d.components[componentId]
}

func (d *Document) NumComponents() int {
	return len(d.components)
}

func (d *Document) GetEventHandler(eventHandlerId uint64) (EventHandlerInfo, bool) {
	info, ok := d.eventHandlers[eventHandlerId]
	return info, ok
}

func (d *Document) IsComponentDisposed(componentId uint64) bool {
	return d.disposedComponentIds.Contains(componentId)
}

func (d *Document) IsEventHandlerDisposed(eventHandlerId uint64) bool {
	return d.disposedEventHandlerIds.Contains(eventHandlerId)
}

func (d *Document) BatchCount() int {
	return d.batchCount
}

// Render serializes all root components in registration order
func (d *Document) Render() string {
	var buf strings.Builder
	for _, root := range d.RootComponents() {
		rtnode.WriteHTML(&buf, root)
	}
	return buf.String()
}

func (d *Document) Dump() string {
	var buf strings.Builder
	for _, root := range d.RootComponents() {
		buf.WriteString(rtnode.Dump(root))
		buf.WriteString("\n")
	}
	return buf.String()
}
