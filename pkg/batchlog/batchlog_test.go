// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package batchlog

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/wavetermdev/rendertree/pkg/rtbuild"
	"github.com/wavetermdev/rendertree/pkg/rtframe"
)

func initStore(t *testing.T) *Store {
	t.Logf("initializing db for %q", t.Name())
	ctx, cancelFn := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelFn()
	store, err := InitStore(ctx, "")
	if err != nil {
		if strings.Contains(err.Error(), "CGO_ENABLED=0") || strings.Contains(err.Error(), "requires cgo") {
			t.Skipf("batchlog tests require sqlite/cgo: %v", err)
		}
		t.Fatalf("error initializing batchlog: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func mustHTMLBatch(t *testing.T, componentId uint64, html string) *rtframe.RenderBatch {
	t.Helper()
	batch, err := rtbuild.HTMLBatch(componentId, html)
	if err != nil {
		t.Fatalf("html batch: %v", err)
	}
	return batch
}

func TestSessionLifecycle(t *testing.T) {
	store := initStore(t)
	ctx := context.Background()
	sessionId := uuid.NewString()
	roots := []RootComponent{{ComponentId: 1, Selector: "#app"}, {ComponentId: 2, Selector: "#side"}}
	if err := store.CreateSession(ctx, sessionId, roots); err != nil {
		t.Fatalf("create session: %v", err)
	}
	err := store.CreateSession(ctx, sessionId, roots)
	if !errors.Is(err, ErrSessionExists) {
		t.Errorf("expected ErrSessionExists, got %v", err)
	}
	sess, err := store.GetSession(ctx, sessionId)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if len(sess.Roots) != 2 || sess.Roots[1].Selector != "#side" || sess.Broken || sess.NumBatches != 0 {
		t.Errorf("bad session: %#v", sess)
	}
	if err := store.SetBroken(ctx, sessionId, true); err != nil {
		t.Fatalf("set broken: %v", err)
	}
	sess, _ = store.GetSession(ctx, sessionId)
	if !sess.Broken {
		t.Errorf("session should be broken")
	}
	sessions, err := store.ListSessions(ctx)
	if err != nil || len(sessions) != 1 {
		t.Fatalf("list sessions: %v %v", sessions, err)
	}
	if err := store.DeleteSession(ctx, sessionId); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	_, err = store.GetSession(ctx, sessionId)
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	if err := store.SetBroken(ctx, sessionId, false); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound from SetBroken, got %v", err)
	}
}

func TestAppendAndReplay(t *testing.T) {
	store := initStore(t)
	ctx := context.Background()
	sessionId := uuid.NewString()
	if err := store.CreateSession(ctx, sessionId, []RootComponent{{ComponentId: 1, Selector: "#app"}}); err != nil {
		t.Fatalf("create session: %v", err)
	}
	batches := []*rtframe.RenderBatch{
		mustHTMLBatch(t, 1, `<p class="a">first</p>`),
		mustHTMLBatch(t, 1, `<h1>title</h1>`),
	}
	for idx, batch := range batches {
		seq, err := store.AppendBatch(ctx, sessionId, batch)
		if err != nil {
			t.Fatalf("append batch: %v", err)
		}
		if seq != idx+1 {
			t.Errorf("expected seq %d, got %d", idx+1, seq)
		}
	}
	if _, err := store.AppendBatch(ctx, "no-such-session", batches[0]); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	entries, err := store.GetBatches(ctx, sessionId, 1)
	if err != nil {
		t.Fatalf("get batches: %v", err)
	}
	if len(entries) != 1 || entries[0].Seq != 2 {
		t.Fatalf("expected only seq 2, got %#v", entries)
	}
	doc, lastSeq, err := store.Replay(ctx, sessionId)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if lastSeq != 2 {
		t.Errorf("last seq = %d", lastSeq)
	}
	want := `<h1>title</h1><p class="a">first</p>`
	if got := doc.Render(); got != want {
		t.Errorf("replayed render:\n got %s\nwant %s", got, want)
	}
	sess, _ := store.GetSession(ctx, sessionId)
	if sess.NumBatches != 2 {
		t.Errorf("num batches = %d", sess.NumBatches)
	}
}

func TestReplayStopsAtBadBatch(t *testing.T) {
	store := initStore(t)
	ctx := context.Background()
	sessionId := uuid.NewString()
	store.CreateSession(ctx, sessionId, []RootComponent{{ComponentId: 1, Selector: "#app"}})
	store.AppendBatch(ctx, sessionId, mustHTMLBatch(t, 1, `<p>ok</p>`))
	bad := &rtframe.RenderBatch{UpdatedComponents: []rtframe.ComponentDiff{
		{ComponentId: 1, Edits: []rtframe.Edit{&rtframe.StepOutEdit{}}},
	}}
	store.AppendBatch(ctx, sessionId, bad)
	_, lastSeq, err := store.Replay(ctx, sessionId)
	if err == nil {
		t.Fatalf("replay should fail on the bad batch")
	}
	if lastSeq != 1 {
		t.Errorf("expected last good seq 1, got %d", lastSeq)
	}
}
