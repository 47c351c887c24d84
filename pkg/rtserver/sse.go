// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package rtserver

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/wavetermdev/rendertree/pkg/panichandler"
)

const (
	SSEContentType       = "text/event-stream"
	SSEStreamStartMsg    = ": stream-start\n\n"
	SSEKeepaliveMsg      = ": keepalive\n\n"
	SSEKeepaliveInterval = 15 * time.Second
	SSERenderEvent       = "render"
)

// writes one event.  data must not contain newlines (json.Marshal output never does).
func writeSSEEvent(w http.ResponseWriter, rc *http.ResponseController, eventType string, id int, data []byte) error {
	_, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, eventType, data)
	if err != nil {
		return err
	}
	return rc.Flush()
}

func writeRenderEvent(w http.ResponseWriter, rc *http.ResponseController, event RenderEvent) error {
	barr, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return writeSSEEvent(w, rc, SSERenderEvent, event.Seq, barr)
}

// handleEvents streams a render event with the current state, then one per applied batch
func (srv *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	defer func() {
		panichandler.LogPanic("sse events", recover())
	}()
	sess := srv.getSessionFromRequest(w, r)
	if sess == nil {
		return
	}
	subId, eventCh := sess.Subscribe()
	defer sess.Unsubscribe(subId)
	rc := http.NewResponseController(w)
	// streaming responses outlive any server write timeout
	rc.SetWriteDeadline(time.Time{})
	w.Header().Set(ContentTypeHeaderKey, SSEContentType)
	w.Header().Set(CacheControlHeaderKey, "no-cache, no-store, must-revalidate, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, SSEStreamStartMsg)
	err := writeRenderEvent(w, rc, sess.CurrentEvent())
	if err != nil {
		log.Printf("[rtserver] sse write error for session %s: %v\n", sess.SessionId, err)
		return
	}
	keepaliveTicker := time.NewTicker(SSEKeepaliveInterval)
	defer keepaliveTicker.Stop()
	for {
		select {
		case event := <-eventCh:
			err = writeRenderEvent(w, rc, event)
		case <-keepaliveTicker.C:
			_, err = fmt.Fprint(w, SSEKeepaliveMsg)
			if err == nil {
				err = rc.Flush()
			}
		case <-r.Context().Done():
			return
		case <-srv.doneCh:
			return
		}
		if err != nil {
			log.Printf("[rtserver] sse write error for session %s: %v\n", sess.SessionId, err)
			return
		}
	}
}
