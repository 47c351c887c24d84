// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

// rtserver hosts documents for remote producers.  batches arrive over http or a
// websocket, are applied under the session lock, logged to the batch log and
// announced to sse subscribers.
package rtserver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/alexflint/go-filemutex"
	"github.com/google/uuid"
	"github.com/wavetermdev/rendertree/pkg/batchlog"
	"github.com/wavetermdev/rendertree/pkg/rtconfig"
	"github.com/wavetermdev/rendertree/pkg/rtframe"
	"golang.org/x/sync/errgroup"
)

const HttpReadHeaderTimeout = 5 * time.Second
const HttpMaxHeaderBytes = 60000
const ShutdownTimeout = 5 * time.Second
const DataDirLockFile = "rtpatch.lock"

var ErrSessionNotFound = batchlog.ErrSessionNotFound
var ErrSessionBroken = errors.New("session is broken, resync required")

// reported for sessions restored broken, the log keeps only the flag
const RestoredBrokenMsg = "restored broken from batch log"
var ErrNoBatchLog = errors.New("no batch log configured")

type Server struct {
	Config   *rtconfig.Config
	Store    *batchlog.Store // optional
	Sessions *SessionMap

	doneOnce sync.Once
	doneCh   chan struct{}
}

func MakeServer(cfg *rtconfig.Config, store *batchlog.Store) *Server {
	if cfg == nil {
		cfg = rtconfig.DefaultConfig()
	}
	return &Server{
		Config:   cfg,
		Store:    store,
		Sessions: MakeSessionMap(),
		doneCh:   make(chan struct{}),
	}
}

func (srv *Server) closeDone() {
	srv.doneOnce.Do(func() {
		close(srv.doneCh)
	})
}

func (srv *Server) CreateSession(ctx context.Context, roots []batchlog.RootComponent) (*Session, error) {
	sess, err := makeSession(uuid.NewString(), roots)
	if err != nil {
		return nil, err
	}
	if srv.Store != nil {
		err = srv.Store.CreateSession(ctx, sess.SessionId, roots)
		if err != nil {
			return nil, fmt.Errorf("logging session: %w", err)
		}
	}
	srv.Sessions.Set(sess)
	log.Printf("[rtserver] created session %s (%d roots)\n", sess.SessionId, len(roots))
	return sess, nil
}

// GetSession returns a live session, rebuilding it from the batch log if this
// process has not seen it yet
func (srv *Server) GetSession(ctx context.Context, sessionId string) (*Session, error) {
	if sess := srv.Sessions.Get(sessionId); sess != nil {
		return sess, nil
	}
	if srv.Store == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionId)
	}
	info, err := srv.Store.GetSession(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	sess, err := makeSession(sessionId, info.Roots)
	if err != nil {
		return nil, err
	}
	doc, lastSeq, err := srv.Store.Replay(ctx, sessionId)
	if err != nil {
		log.Printf("[rtserver] cannot restore session %s: %v\n", sessionId, err)
		sess.broken = true
		sess.brokenErr = err.Error()
	} else {
		sess.doc = doc
		sess.lastSeq = lastSeq
		sess.broken = info.Broken
		if sess.broken {
			sess.brokenErr = RestoredBrokenMsg
		}
	}
	return srv.Sessions.GetOrSet(sess), nil
}

func (srv *Server) markBrokenLocked(ctx context.Context, sess *Session, err error) {
	sess.broken = true
	sess.brokenErr = err.Error()
	log.Printf("[rtserver] session %s broken: %v\n", sess.SessionId, err)
	if srv.Store != nil {
		storeErr := srv.Store.SetBroken(ctx, sess.SessionId, true)
		if storeErr != nil {
			log.Printf("[rtserver] cannot mark session %s broken in batch log: %v\n", sess.SessionId, storeErr)
		}
	}
}

// ApplyBatch applies batch to the session's document and returns its sequence
// number.  a failed batch breaks the session until Resync.
func (srv *Server) ApplyBatch(ctx context.Context, sessionId string, batch *rtframe.RenderBatch) (int, error) {
	sess, err := srv.GetSession(ctx, sessionId)
	if err != nil {
		return 0, err
	}
	sess.lock.Lock()
	defer sess.lock.Unlock()
	if sess.broken {
		return 0, fmt.Errorf("%w: %s", ErrSessionBroken, sess.brokenErr)
	}
	err = sess.doc.ApplyBatch(batch)
	if err != nil {
		srv.markBrokenLocked(ctx, sess, err)
		sess.publish(sess.renderEventLocked())
		return 0, err
	}
	seq := sess.lastSeq + 1
	if srv.Store != nil {
		seq, err = srv.Store.AppendBatch(ctx, sessionId, batch)
		if err != nil {
			// the document moved ahead of the log
			srv.markBrokenLocked(ctx, sess, err)
			return 0, fmt.Errorf("logging batch: %w", err)
		}
	}
	sess.lastSeq = seq
	rtconfig.DevPrintf("[rtserver] session %s applied batch %d\n", sessionId, seq)
	sess.publish(sess.renderEventLocked())
	return seq, nil
}

// Resync rebuilds the session's document from the batch log and clears the broken flag
func (srv *Server) Resync(ctx context.Context, sessionId string) (int, error) {
	if srv.Store == nil {
		return 0, ErrNoBatchLog
	}
	sess, err := srv.GetSession(ctx, sessionId)
	if err != nil {
		return 0, err
	}
	sess.lock.Lock()
	defer sess.lock.Unlock()
	doc, lastSeq, err := srv.Store.Replay(ctx, sessionId)
	if err != nil {
		return 0, err
	}
	err = srv.Store.SetBroken(ctx, sessionId, false)
	if err != nil {
		return 0, err
	}
	sess.doc = doc
	sess.lastSeq = lastSeq
	sess.broken = false
	sess.brokenErr = ""
	log.Printf("[rtserver] session %s resynced at seq %d\n", sessionId, lastSeq)
	sess.publish(sess.renderEventLocked())
	return lastSeq, nil
}

func MakeTCPListener(serverAddr string) (net.Listener, error) {
	rtn, err := net.Listen("tcp", serverAddr)
	if err != nil {
		return nil, fmt.Errorf("error creating listener at %v: %v", serverAddr, err)
	}
	log.Printf("[rtserver] listening on %s\n", rtn.Addr())
	return rtn, nil
}

// Run serves on listener until ctx is canceled or the server fails
func (srv *Server) Run(ctx context.Context, listener net.Listener) error {
	httpServer := &http.Server{
		ReadHeaderTimeout: HttpReadHeaderTimeout,
		MaxHeaderBytes:    HttpMaxHeaderBytes,
		Handler:           srv.Router(),
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := httpServer.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		// streaming handlers watch doneCh, Shutdown would otherwise wait on them
		srv.closeDone()
		shutdownCtx, cancelFn := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancelFn()
		log.Printf("[rtserver] shutting down\n")
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// LockDataDir takes an exclusive lock so only one server uses a data dir
func LockDataDir(dataDir string) (*filemutex.FileMutex, error) {
	lockFileName := filepath.Join(dataDir, DataDirLockFile)
	log.Printf("[rtserver] acquiring lock on %s\n", lockFileName)
	m, err := filemutex.New(lockFileName)
	if err != nil {
		return nil, fmt.Errorf("filemutex new error: %w", err)
	}
	err = m.TryLock()
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("data dir %s is in use: %w", dataDir, err)
	}
	return m, nil
}
