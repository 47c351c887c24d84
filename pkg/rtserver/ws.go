// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package rtserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/wavetermdev/rendertree/pkg/panichandler"
	"github.com/wavetermdev/rendertree/pkg/rtconfig"
	"github.com/wavetermdev/rendertree/pkg/rtframe"
	"golang.org/x/mod/semver"
)

const wsReadWaitTimeout = 15 * time.Second
const wsWriteWaitTimeout = 10 * time.Second
const wsPingPeriodTickTime = 10 * time.Second
const wsInitialPingTime = 1 * time.Second
const wsOutputChSize = 100

const (
	WsMsg_Hello = "hello"
	WsMsg_Batch = "batch"
	WsMsg_Ping  = "ping"
	WsMsg_Pong  = "pong"
	WsMsg_Ack   = "ack"
	WsMsg_Error = "error"
)

type WsMessage struct {
	Type            string          `json:"type"`
	ReqId           string          `json:"reqid,omitempty"`
	ProtocolVersion string          `json:"protocolversion,omitempty"`
	Batch           json.RawMessage `json:"batch,omitempty"`
	Seq             int             `json:"seq,omitempty"`
	Error           string          `json:"error,omitempty"`
	STime           int64           `json:"stime,omitempty"`
}

var WebSocketUpgrader = websocket.Upgrader{
	ReadBufferSize:   4 * 1024,
	WriteBufferSize:  32 * 1024,
	HandshakeTimeout: 1 * time.Second,
	CheckOrigin:      func(r *http.Request) bool { return true },
}

// CheckProtocolVersion accepts any client version with the same major version
func CheckProtocolVersion(serverVersion string, clientVersion string) error {
	if !semver.IsValid(clientVersion) {
		return fmt.Errorf("invalid protocol version %q", clientVersion)
	}
	if semver.Major(clientVersion) != semver.Major(serverVersion) {
		return fmt.Errorf("incompatible protocol version %s, server speaks %s", clientVersion, serverVersion)
	}
	return nil
}

// per-connection state, only touched by the read loop
type wsConn struct {
	srv       *Server
	connId    string
	sessionId string
	helloDone bool
	outputCh  chan WsMessage
	writeDone chan struct{}
}

// drops msg once the write loop is gone
func (wc *wsConn) send(msg WsMessage) {
	select {
	case wc.outputCh <- msg:
	case <-wc.writeDone:
	}
}

func (wc *wsConn) sendError(reqId string, err error) {
	wc.send(WsMessage{Type: WsMsg_Error, ReqId: reqId, Error: err.Error()})
}

func (wc *wsConn) processMessage(ctx context.Context, msg WsMessage) {
	defer func() {
		err := panichandler.PanicHandler("ws processMessage", recover())
		if err != nil {
			wc.sendError(msg.ReqId, err)
		}
	}()
	switch msg.Type {
	case WsMsg_Hello:
		err := CheckProtocolVersion(wc.srv.Config.ProtocolVersion, msg.ProtocolVersion)
		if err != nil {
			wc.sendError(msg.ReqId, err)
			return
		}
		wc.helloDone = true
		wc.send(WsMessage{Type: WsMsg_Ack, ReqId: msg.ReqId, ProtocolVersion: wc.srv.Config.ProtocolVersion})
	case WsMsg_Batch:
		if !wc.helloDone {
			wc.sendError(msg.ReqId, fmt.Errorf("hello required before %s", WsMsg_Batch))
			return
		}
		batch, err := rtframe.ParseBatchJson(msg.Batch)
		if err != nil {
			wc.sendError(msg.ReqId, err)
			return
		}
		seq, err := wc.srv.ApplyBatch(ctx, wc.sessionId, batch)
		if err != nil {
			wc.sendError(msg.ReqId, err)
			return
		}
		wc.send(WsMessage{Type: WsMsg_Ack, ReqId: msg.ReqId, Seq: seq})
	default:
		wc.sendError(msg.ReqId, fmt.Errorf("unknown message type %q", msg.Type))
	}
}

// batches are processed inline so they apply in arrival order
func (wc *wsConn) readLoop(ctx context.Context, conn *websocket.Conn, closeCh chan any) {
	defer close(closeCh)
	conn.SetReadLimit(wc.srv.Config.MaxMessageBytes)
	conn.SetReadDeadline(time.Now().Add(wsReadWaitTimeout))
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			rtconfig.DevPrintf("[rtserver] ws %s read error: %v\n", wc.connId, err)
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsReadWaitTimeout))
		var msg WsMessage
		err = json.Unmarshal(message, &msg)
		if err != nil {
			wc.sendError("", fmt.Errorf("invalid message: %w", err))
			continue
		}
		switch msg.Type {
		case WsMsg_Pong:
			continue
		case WsMsg_Ping:
			wc.send(WsMessage{Type: WsMsg_Pong, ReqId: msg.ReqId, STime: time.Now().UnixMilli()})
			continue
		}
		wc.processMessage(ctx, msg)
	}
}

func writeWsMessage(conn *websocket.Conn, msg WsMessage) error {
	barr, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(wsWriteWaitTimeout))
	return conn.WriteMessage(websocket.TextMessage, barr)
}

func (wc *wsConn) writeLoop(conn *websocket.Conn, closeCh chan any) {
	defer close(wc.writeDone)
	ticker := time.NewTicker(wsInitialPingTime)
	defer ticker.Stop()
	initialPing := true
	for {
		select {
		case msg := <-wc.outputCh:
			err := writeWsMessage(conn, msg)
			if err != nil {
				conn.Close()
				log.Printf("[rtserver] ws %s write error: %v\n", wc.connId, err)
				return
			}
		case <-ticker.C:
			err := writeWsMessage(conn, WsMessage{Type: WsMsg_Ping, STime: time.Now().UnixMilli()})
			if err != nil {
				conn.Close()
				log.Printf("[rtserver] ws %s ping error: %v\n", wc.connId, err)
				return
			}
			if initialPing {
				initialPing = false
				ticker.Reset(wsPingPeriodTickTime)
			}
		case <-closeCh:
			return
		case <-wc.srv.doneCh:
			conn.Close()
			return
		}
	}
}

func (srv *Server) HandleWs(w http.ResponseWriter, r *http.Request) {
	err := srv.handleWsInternal(w, r)
	if err != nil {
		writeError(w, errorStatus(err), err)
	}
}

func (srv *Server) handleWsInternal(w http.ResponseWriter, r *http.Request) error {
	sessionId := r.URL.Query().Get("sessionid")
	if sessionId == "" {
		return fmt.Errorf("%w: sessionid is required", ErrSessionNotFound)
	}
	_, err := srv.GetSession(r.Context(), sessionId)
	if err != nil {
		return err
	}
	conn, err := WebSocketUpgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		log.Printf("[rtserver] websocket upgrade failed: %v\n", err)
		return nil
	}
	defer conn.Close()
	wc := &wsConn{
		srv:       srv,
		connId:    uuid.NewString(),
		sessionId: sessionId,
		outputCh:  make(chan WsMessage, wsOutputChSize),
		writeDone: make(chan struct{}),
	}
	log.Printf("[rtserver] new websocket connection: session:%s connid:%s\n", sessionId, wc.connId)
	ctx, cancelFn := context.WithCancel(context.Background())
	defer cancelFn()
	closeCh := make(chan any)
	wg := &sync.WaitGroup{}
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer func() {
			panichandler.LogPanic("ws readLoop", recover())
		}()
		wc.readLoop(ctx, conn, closeCh)
	}()
	go func() {
		defer wg.Done()
		defer func() {
			panichandler.LogPanic("ws writeLoop", recover())
		}()
		wc.writeLoop(conn, closeCh)
	}()
	wg.Wait()
	return nil
}
