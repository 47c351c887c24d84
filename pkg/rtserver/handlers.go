// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package rtserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/wavetermdev/rendertree/pkg/batchlog"
	"github.com/wavetermdev/rendertree/pkg/panichandler"
	"github.com/wavetermdev/rendertree/pkg/rtdoc"
	"github.com/wavetermdev/rendertree/pkg/rtframe"
	"github.com/wavetermdev/rendertree/pkg/rtpack"
	"github.com/wavetermdev/rendertree/pkg/rtpatch"
)

type WebFnType = func(http.ResponseWriter, *http.Request)

const (
	CacheControlHeaderKey     = "Cache-Control"
	CacheControlHeaderNoCache = "no-cache"

	ContentTypeHeaderKey = "Content-Type"
	ContentTypeJson      = "application/json"
	ContentTypeYaml      = "application/yaml"
	ContentTypeBinary    = "application/octet-stream"
	ContentTypeHtml      = "text/html; charset=utf-8"
	ContentTypeText      = "text/plain; charset=utf-8"
)

type CreateSessionRequest struct {
	Roots []batchlog.RootComponent `json:"roots"`
}

type CreateSessionResponse struct {
	SessionId string `json:"sessionid"`
}

type SeqResponse struct {
	Seq int `json:"seq"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func (srv *Server) Router() *mux.Router {
	gr := mux.NewRouter()
	gr.HandleFunc("/api/sessions", webFnWrap(srv.handleListSessions)).Methods(http.MethodGet)
	gr.HandleFunc("/api/session", webFnWrap(srv.handleCreateSession)).Methods(http.MethodPost)
	gr.HandleFunc("/api/session/{id}", webFnWrap(srv.handleSessionInfo)).Methods(http.MethodGet)
	gr.HandleFunc("/api/session/{id}/render", webFnWrap(srv.handleRender)).Methods(http.MethodGet)
	gr.HandleFunc("/api/session/{id}/dump", webFnWrap(srv.handleDump)).Methods(http.MethodGet)
	gr.HandleFunc("/api/session/{id}/batch", webFnWrap(srv.handleBatch)).Methods(http.MethodPost)
	gr.HandleFunc("/api/session/{id}/resync", webFnWrap(srv.handleResync)).Methods(http.MethodPost)
	gr.HandleFunc("/api/session/{id}/events", srv.handleEvents).Methods(http.MethodGet)
	gr.HandleFunc("/ws", srv.HandleWs)
	return gr
}

func webFnWrap(fn WebFnType) WebFnType {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			err := panichandler.PanicHandler(fmt.Sprintf("%s %s", r.Method, r.URL.Path), recover())
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
			}
		}()
		w.Header().Set(CacheControlHeaderKey, CacheControlHeaderNoCache)
		fn(w, r)
	}
}

func writeJson(w http.ResponseWriter, status int, data any) {
	barr, err := json.Marshal(data)
	if err != nil {
		http.Error(w, fmt.Sprintf("error serializing response: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set(ContentTypeHeaderKey, ContentTypeJson)
	w.WriteHeader(status)
	w.Write(barr)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJson(w, status, ErrorResponse{Error: err.Error()})
}

// maps engine and store errors to http statuses
func errorStatus(err error) int {
	var patchErr *rtpatch.PatchError
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrSessionBroken):
		return http.StatusConflict
	case errors.Is(err, rtdoc.ErrDuplicateComponentId):
		return http.StatusBadRequest
	case errors.As(err, &maxBytesErr):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &patchErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrNoBatchLog):
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}

func (srv *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(http.MaxBytesReader(w, r.Body, srv.Config.MaxMessageBytes))
}

// ParseBatchBody decodes a batch according to its content type (json when unspecified)
func ParseBatchBody(contentType string, body []byte) (*rtframe.RenderBatch, error) {
	mediaType := ContentTypeJson
	if contentType != "" {
		var err error
		mediaType, _, err = mime.ParseMediaType(contentType)
		if err != nil {
			return nil, fmt.Errorf("bad content type %q: %w", contentType, err)
		}
	}
	switch mediaType {
	case ContentTypeJson:
		return rtframe.ParseBatchJson(body)
	case ContentTypeYaml, "application/x-yaml", "text/yaml":
		return rtframe.ParseBatchYaml(body)
	case ContentTypeBinary:
		return rtpack.UnmarshalBatch(body)
	}
	return nil, fmt.Errorf("unsupported content type %q", mediaType)
}

func (srv *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if srv.Store == nil {
		var rtn []SessionInfo
		for _, sessionId := range srv.Sessions.Keys() {
			if sess := srv.Sessions.Get(sessionId); sess != nil {
				rtn = append(rtn, sess.Info())
			}
		}
		writeJson(w, http.StatusOK, rtn)
		return
	}
	sessions, err := srv.Store.ListSessions(r.Context())
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJson(w, http.StatusOK, sessions)
}

func (srv *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	body, err := srv.readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req CreateSessionRequest
	err = json.Unmarshal(body, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	sess, err := srv.CreateSession(r.Context(), req.Roots)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJson(w, http.StatusOK, CreateSessionResponse{SessionId: sess.SessionId})
}

func (srv *Server) getSessionFromRequest(w http.ResponseWriter, r *http.Request) *Session {
	sess, err := srv.GetSession(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, errorStatus(err), err)
		return nil
	}
	return sess
}

func (srv *Server) handleSessionInfo(w http.ResponseWriter, r *http.Request) {
	sess := srv.getSessionFromRequest(w, r)
	if sess == nil {
		return
	}
	writeJson(w, http.StatusOK, sess.Info())
}

func (srv *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	sess := srv.getSessionFromRequest(w, r)
	if sess == nil {
		return
	}
	w.Header().Set(ContentTypeHeaderKey, ContentTypeHtml)
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, sess.Render())
}

func (srv *Server) handleDump(w http.ResponseWriter, r *http.Request) {
	sess := srv.getSessionFromRequest(w, r)
	if sess == nil {
		return
	}
	w.Header().Set(ContentTypeHeaderKey, ContentTypeText)
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, sess.Dump())
}

func (srv *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	body, err := srv.readBody(w, r)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	batch, err := ParseBatchBody(r.Header.Get(ContentTypeHeaderKey), body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	seq, err := srv.ApplyBatch(r.Context(), mux.Vars(r)["id"], batch)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJson(w, http.StatusOK, SeqResponse{Seq: seq})
}

func (srv *Server) handleResync(w http.ResponseWriter, r *http.Request) {
	seq, err := srv.Resync(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJson(w, http.StatusOK, SeqResponse{Seq: seq})
}
