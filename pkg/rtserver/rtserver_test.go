// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package rtserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wavetermdev/rendertree/pkg/batchlog"
	"github.com/wavetermdev/rendertree/pkg/rtbuild"
	"github.com/wavetermdev/rendertree/pkg/rtconfig"
	"github.com/wavetermdev/rendertree/pkg/rtframe"
	"github.com/wavetermdev/rendertree/pkg/rtpack"
)

func makeTestServer(t *testing.T, store *batchlog.Store) (*Server, *httptest.Server) {
	srv := MakeServer(rtconfig.DefaultConfig(), store)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return srv, ts
}

func initTestStore(t *testing.T) *batchlog.Store {
	store, err := batchlog.InitStore(context.Background(), "")
	if err != nil {
		if strings.Contains(err.Error(), "CGO_ENABLED=0") || strings.Contains(err.Error(), "requires cgo") {
			t.Skipf("batch log tests require sqlite/cgo: %v", err)
		}
		t.Fatalf("error initializing batch log: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func batchJson(t *testing.T, batch *rtframe.RenderBatch) []byte {
	t.Helper()
	barr, err := json.Marshal(batch)
	if err != nil {
		t.Fatalf("marshal batch: %v", err)
	}
	return barr
}

func htmlBatch(t *testing.T, componentId uint64, html string) *rtframe.RenderBatch {
	t.Helper()
	batch, err := rtbuild.HTMLBatch(componentId, html)
	if err != nil {
		t.Fatalf("html batch: %v", err)
	}
	return batch
}

func badBatch() *rtframe.RenderBatch {
	return &rtframe.RenderBatch{UpdatedComponents: []rtframe.ComponentDiff{
		{ComponentId: 1, Edits: []rtframe.Edit{&rtframe.StepOutEdit{}}},
	}}
}

func doRequest(t *testing.T, method string, url string, contentType string, body []byte) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if contentType != "" {
		req.Header.Set(ContentTypeHeaderKey, contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, respBody
}

func createTestSession(t *testing.T, baseUrl string) string {
	t.Helper()
	status, body := doRequest(t, http.MethodPost, baseUrl+"/api/session", ContentTypeJson, []byte(`{"roots":[{"componentid":1,"selector":"#app"}]}`))
	if status != http.StatusOK {
		t.Fatalf("create session: %d %s", status, body)
	}
	var resp CreateSessionResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.SessionId == "" {
		t.Fatalf("bad create session response %s: %v", body, err)
	}
	return resp.SessionId
}

func postBatch(t *testing.T, baseUrl string, sessionId string, batch *rtframe.RenderBatch) (int, []byte) {
	return doRequest(t, http.MethodPost, baseUrl+"/api/session/"+sessionId+"/batch", ContentTypeJson, batchJson(t, batch))
}

func TestSessionHttpFlow(t *testing.T) {
	_, ts := makeTestServer(t, nil)
	sessionId := createTestSession(t, ts.URL)
	status, body := postBatch(t, ts.URL, sessionId, htmlBatch(t, 1, `<div class="x">hi</div>`))
	if status != http.StatusOK || !strings.Contains(string(body), `"seq":1`) {
		t.Fatalf("post batch: %d %s", status, body)
	}
	status, body = doRequest(t, http.MethodGet, ts.URL+"/api/session/"+sessionId+"/render", "", nil)
	if status != http.StatusOK || string(body) != `<div class="x">hi</div>` {
		t.Errorf("render: %d %q", status, body)
	}
	status, _ = postBatch(t, ts.URL, sessionId, badBatch())
	if status != http.StatusUnprocessableEntity {
		t.Errorf("bad batch should give 422, got %d", status)
	}
	status, _ = postBatch(t, ts.URL, sessionId, htmlBatch(t, 1, `<p>more</p>`))
	if status != http.StatusConflict {
		t.Errorf("broken session should give 409, got %d", status)
	}
	status, body = doRequest(t, http.MethodGet, ts.URL+"/api/session/"+sessionId, "", nil)
	var info SessionInfo
	if err := json.Unmarshal(body, &info); err != nil || status != http.StatusOK {
		t.Fatalf("session info: %d %s", status, body)
	}
	if !info.Broken || info.Seq != 1 || info.BatchCount != 2 {
		t.Errorf("bad session info: %#v", info)
	}
	status, _ = doRequest(t, http.MethodPost, ts.URL+"/api/session/"+sessionId+"/resync", "", nil)
	if status != http.StatusNotImplemented {
		t.Errorf("resync without a batch log should give 501, got %d", status)
	}
	status, _ = doRequest(t, http.MethodGet, ts.URL+"/api/session/nope/render", "", nil)
	if status != http.StatusNotFound {
		t.Errorf("unknown session should give 404, got %d", status)
	}
}

func TestCreateSessionErrors(t *testing.T) {
	_, ts := makeTestServer(t, nil)
	status, _ := doRequest(t, http.MethodPost, ts.URL+"/api/session", ContentTypeJson, []byte(`{"roots":[{"componentid":1},{"componentid":1}]}`))
	if status != http.StatusBadRequest {
		t.Errorf("duplicate roots should give 400, got %d", status)
	}
	status, _ = doRequest(t, http.MethodPost, ts.URL+"/api/session", ContentTypeJson, []byte(`{roots`))
	if status != http.StatusBadRequest {
		t.Errorf("bad json should give 400, got %d", status)
	}
}

func TestBatchContentTypes(t *testing.T) {
	_, ts := makeTestServer(t, nil)
	sessionId := createTestSession(t, ts.URL)
	packed, err := rtpack.MarshalBatch(htmlBatch(t, 1, `<b>packed</b>`))
	if err != nil {
		t.Fatalf("pack batch: %v", err)
	}
	status, body := doRequest(t, http.MethodPost, ts.URL+"/api/session/"+sessionId+"/batch", ContentTypeBinary, packed)
	if status != http.StatusOK {
		t.Fatalf("binary batch: %d %s", status, body)
	}
	yamlBatch := `
updatedcomponents:
  - componentid: 1
    edits:
      - type: prependframe
        siblingindex: 0
        referenceframeindex: 0
referenceframes:
  - type: text
    content: "yaml "
`
	status, body = doRequest(t, http.MethodPost, ts.URL+"/api/session/"+sessionId+"/batch", ContentTypeYaml, []byte(yamlBatch))
	if status != http.StatusOK {
		t.Fatalf("yaml batch: %d %s", status, body)
	}
	_, body = doRequest(t, http.MethodGet, ts.URL+"/api/session/"+sessionId+"/render", "", nil)
	if string(body) != "yaml <b>packed</b>" {
		t.Errorf("render = %q", body)
	}
	status, _ = doRequest(t, http.MethodPost, ts.URL+"/api/session/"+sessionId+"/batch", "text/csv", []byte("a,b"))
	if status != http.StatusBadRequest {
		t.Errorf("unsupported content type should give 400, got %d", status)
	}
}

func TestResyncWithBatchLog(t *testing.T) {
	store := initTestStore(t)
	srv, ts := makeTestServer(t, store)
	sessionId := createTestSession(t, ts.URL)
	postBatch(t, ts.URL, sessionId, htmlBatch(t, 1, `<p>one</p>`))
	status, _ := postBatch(t, ts.URL, sessionId, badBatch())
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", status)
	}
	status, body := doRequest(t, http.MethodPost, ts.URL+"/api/session/"+sessionId+"/resync", "", nil)
	if status != http.StatusOK || !strings.Contains(string(body), `"seq":1`) {
		t.Fatalf("resync: %d %s", status, body)
	}
	status, body = postBatch(t, ts.URL, sessionId, htmlBatch(t, 1, `<p>zero</p>`))
	if status != http.StatusOK || !strings.Contains(string(body), `"seq":2`) {
		t.Fatalf("post after resync: %d %s", status, body)
	}
	// a fresh server restores the session from the log
	srv2 := MakeServer(srv.Config, store)
	sess, err := srv2.GetSession(context.Background(), sessionId)
	if err != nil {
		t.Fatalf("restore session: %v", err)
	}
	if got := sess.Render(); got != "<p>zero</p><p>one</p>" {
		t.Errorf("restored render = %q", got)
	}
}

func TestRestoreBrokenSession(t *testing.T) {
	store := initTestStore(t)
	srv, ts := makeTestServer(t, store)
	sessionId := createTestSession(t, ts.URL)
	postBatch(t, ts.URL, sessionId, htmlBatch(t, 1, `<p>one</p>`))
	status, _ := postBatch(t, ts.URL, sessionId, badBatch())
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", status)
	}
	ctx := context.Background()
	srv2 := MakeServer(srv.Config, store)
	sess, err := srv2.GetSession(ctx, sessionId)
	if err != nil {
		t.Fatalf("restore session: %v", err)
	}
	if info := sess.Info(); !info.Broken || info.BrokenError != RestoredBrokenMsg {
		t.Errorf("restored session should be broken with a reason, got %#v", info)
	}
	_, err = srv2.ApplyBatch(ctx, sessionId, htmlBatch(t, 1, `<p>two</p>`))
	if !errors.Is(err, ErrSessionBroken) || !strings.HasSuffix(err.Error(), RestoredBrokenMsg) {
		t.Errorf("expected broken error with reason, got %v", err)
	}
}

func dialWs(t *testing.T, ts *httptest.Server, sessionId string) *websocket.Conn {
	t.Helper()
	wsUrl := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?sessionid=" + sessionId
	conn, _, err := websocket.DefaultDialer.Dial(wsUrl, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
	})
	return conn
}

func wsRoundTrip(t *testing.T, conn *websocket.Conn, msg WsMessage) WsMessage {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write ws message: %v", err)
	}
	for {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var resp WsMessage
		if err := conn.ReadJSON(&resp); err != nil {
			t.Fatalf("read ws message: %v", err)
		}
		if resp.Type == WsMsg_Ping {
			continue
		}
		return resp
	}
}

func TestWebsocketProtocol(t *testing.T) {
	_, ts := makeTestServer(t, nil)
	sessionId := createTestSession(t, ts.URL)
	conn := dialWs(t, ts, sessionId)
	batchMsg := WsMessage{Type: WsMsg_Batch, ReqId: "b1", Batch: batchJson(t, htmlBatch(t, 1, `<i>ws</i>`))}

	resp := wsRoundTrip(t, conn, batchMsg)
	if resp.Type != WsMsg_Error || resp.ReqId != "b1" {
		t.Errorf("batch before hello should fail, got %#v", resp)
	}
	resp = wsRoundTrip(t, conn, WsMessage{Type: WsMsg_Hello, ProtocolVersion: "v2.0.0"})
	if resp.Type != WsMsg_Error {
		t.Errorf("major version mismatch should fail, got %#v", resp)
	}
	resp = wsRoundTrip(t, conn, WsMessage{Type: WsMsg_Hello, ProtocolVersion: "v1.4.2"})
	if resp.Type != WsMsg_Ack || resp.ProtocolVersion != rtconfig.ProtocolVersion {
		t.Errorf("hello should be acked, got %#v", resp)
	}
	resp = wsRoundTrip(t, conn, WsMessage{Type: WsMsg_Ping})
	if resp.Type != WsMsg_Pong {
		t.Errorf("expected pong, got %#v", resp)
	}
	resp = wsRoundTrip(t, conn, batchMsg)
	if resp.Type != WsMsg_Ack || resp.Seq != 1 {
		t.Errorf("expected ack for seq 1, got %#v", resp)
	}
	resp = wsRoundTrip(t, conn, WsMessage{Type: "bogus", ReqId: "x"})
	if resp.Type != WsMsg_Error || resp.ReqId != "x" {
		t.Errorf("unknown type should fail, got %#v", resp)
	}
	_, body := doRequest(t, http.MethodGet, ts.URL+"/api/session/"+sessionId+"/render", "", nil)
	if string(body) != "<i>ws</i>" {
		t.Errorf("render = %q", body)
	}
}

func TestWebsocketUnknownSession(t *testing.T) {
	_, ts := makeTestServer(t, nil)
	wsUrl := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?sessionid=missing"
	_, resp, err := websocket.DefaultDialer.Dial(wsUrl, nil)
	if err == nil {
		t.Fatalf("dial should fail for an unknown session")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 response, got %#v", resp)
	}
}

func readSSEEvent(t *testing.T, reader *bufio.Reader) RenderEvent {
	t.Helper()
	var eventType string
	var data string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read sse: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if eventType == SSERenderEvent {
				var event RenderEvent
				if err := json.Unmarshal([]byte(data), &event); err != nil {
					t.Fatalf("bad event data %q: %v", data, err)
				}
				return event
			}
			eventType, data = "", ""
		case strings.HasPrefix(line, "event: "):
			eventType = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestSSEEvents(t *testing.T) {
	srv, ts := makeTestServer(t, nil)
	sessionId := createTestSession(t, ts.URL)
	ctx, cancelFn := context.WithCancel(context.Background())
	defer cancelFn()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/session/"+sessionId+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("events request: %v", err)
	}
	defer resp.Body.Close()
	if resp.Header.Get(ContentTypeHeaderKey) != SSEContentType {
		t.Fatalf("bad content type %q", resp.Header.Get(ContentTypeHeaderKey))
	}
	reader := bufio.NewReader(resp.Body)
	event := readSSEEvent(t, reader)
	if event.Seq != 0 || event.Html != "" {
		t.Errorf("initial event should be empty, got %#v", event)
	}
	if _, err := srv.ApplyBatch(ctx, sessionId, htmlBatch(t, 1, `<em>live</em>`)); err != nil {
		t.Fatalf("apply batch: %v", err)
	}
	event = readSSEEvent(t, reader)
	if event.Seq != 1 || event.Html != "<em>live</em>" || event.SessionId != sessionId {
		t.Errorf("bad render event: %#v", event)
	}
}

func TestCheckProtocolVersion(t *testing.T) {
	if err := CheckProtocolVersion("v1.0.0", "v1.9.3"); err != nil {
		t.Errorf("same major should pass: %v", err)
	}
	if err := CheckProtocolVersion("v1.0.0", "v0.9.0"); err == nil {
		t.Errorf("different major should fail")
	}
	if err := CheckProtocolVersion("v1.0.0", "1.0.0"); err == nil {
		t.Errorf("non-semver should fail")
	}
}

func TestRunShutdown(t *testing.T) {
	srv := MakeServer(rtconfig.DefaultConfig(), nil)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancelFn := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() {
		runErr <- srv.Run(ctx, listener)
	}()
	status, _ := doRequest(t, http.MethodGet, "http://"+listener.Addr().String()+"/api/sessions", "", nil)
	if status != http.StatusOK {
		t.Errorf("list sessions: %d", status)
	}
	cancelFn()
	select {
	case err := <-runErr:
		if err != nil {
			t.Errorf("run returned %v", err)
		}
	case <-time.After(ShutdownTimeout + time.Second):
		t.Fatalf("server did not shut down")
	}
}

func TestLockDataDir(t *testing.T) {
	dir := t.TempDir()
	lock, err := LockDataDir(dir)
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}
	if _, err := LockDataDir(dir); err == nil {
		t.Errorf("second lock should fail")
	}
	lock.Close()
	lock2, err := LockDataDir(dir)
	if err != nil {
		t.Fatalf("lock after release: %v", err)
	}
	lock2.Close()
}
