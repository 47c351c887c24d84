// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

// batchlog persists every successfully applied render batch per session so a
// host can rebuild a document after a fatal patch error.
package batchlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/wavetermdev/rendertree/pkg/rtdoc"
	"github.com/wavetermdev/rendertree/pkg/rtframe"
)

var ErrSessionNotFound = errors.New("session not found")
var ErrSessionExists = errors.New("session already exists")

type RootComponent struct {
	ComponentId uint64 `json:"componentid"`
	Selector    string `json:"selector"`
}

type Session struct {
	SessionId  string          `json:"sessionid"`
	CreatedTs  int64           `json:"createdts"`
	Roots      []RootComponent `json:"roots"`
	Broken     bool            `json:"broken"`
	NumBatches int             `json:"numbatches"`
}

type BatchEntry struct {
	SessionId string               `json:"sessionid"`
	Seq       int                  `json:"seq"`
	Ts        int64                `json:"ts"`
	Batch     *rtframe.RenderBatch `json:"batch"`
}

type sessionRow struct {
	SessionId  string `db:"sessionid"`
	CreatedTs  int64  `db:"createdts"`
	Roots      string `db:"roots"`
	Broken     int    `db:"broken"`
	NumBatches int    `db:"numbatches"`
}

type batchRow struct {
	SessionId string `db:"sessionid"`
	Seq       int    `db:"seq"`
	Ts        int64  `db:"ts"`
	Batch     string `db:"batch"`
}

func (row *sessionRow) toSession() (*Session, error) {
	rtn := &Session{
		SessionId:  row.SessionId,
		CreatedTs:  row.CreatedTs,
		Broken:     row.Broken != 0,
		NumBatches: row.NumBatches,
	}
	err := json.Unmarshal([]byte(row.Roots), &rtn.Roots)
	if err != nil {
		return nil, fmt.Errorf("session %s: bad roots: %w", row.SessionId, err)
	}
	return rtn, nil
}

func (row *batchRow) toEntry() (*BatchEntry, error) {
	batch, err := rtframe.ParseBatchJson([]byte(row.Batch))
	if err != nil {
		return nil, fmt.Errorf("session %s batch %d: %w", row.SessionId, row.Seq, err)
	}
	return &BatchEntry{SessionId: row.SessionId, Seq: row.Seq, Ts: row.Ts, Batch: batch}, nil
}

const sessionSelect = `SELECT s.sessionid, s.createdts, s.roots, s.broken,
  (SELECT count(*) FROM rt_batch b WHERE b.sessionid = s.sessionid) AS numbatches
  FROM rt_session s`

func (s *Store) CreateSession(ctx context.Context, sessionId string, roots []RootComponent) error {
	if roots == nil {
		roots = []RootComponent{}
	}
	rootsJson, err := json.Marshal(roots)
	if err != nil {
		return fmt.Errorf("marshaling roots: %w", err)
	}
	return WithTx(ctx, s, func(tx *TxWrap) error {
		query := `SELECT sessionid FROM rt_session WHERE sessionid = ?`
		if tx.Exists(query, sessionId) {
			return fmt.Errorf("%w: %s", ErrSessionExists, sessionId)
		}
		query = `INSERT INTO rt_session (sessionid, createdts, roots, broken) VALUES (?, ?, ?, 0)`
		tx.Exec(query, sessionId, time.Now().UnixMilli(), string(rootsJson))
		return nil
	})
}

func (s *Store) GetSession(ctx context.Context, sessionId string) (*Session, error) {
	return WithTxRtn(ctx, s, func(tx *TxWrap) (*Session, error) {
		var row sessionRow
		query := sessionSelect + ` WHERE s.sessionid = ?`
		found := tx.Get(&row, query, sessionId)
		if !found {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionId)
		}
		return row.toSession()
	})
}

// ListSessions returns all sessions, oldest first
func (s *Store) ListSessions(ctx context.Context) ([]*Session, error) {
	return WithTxRtn(ctx, s, func(tx *TxWrap) ([]*Session, error) {
		var rows []*sessionRow
		query := sessionSelect + ` ORDER BY s.createdts, s.sessionid`
		tx.Select(&rows, query)
		var rtn []*Session
		for _, row := range rows {
			sess, err := row.toSession()
			if err != nil {
				return nil, err
			}
			rtn = append(rtn, sess)
		}
		return rtn, nil
	})
}

func (s *Store) SetBroken(ctx context.Context, sessionId string, broken bool) error {
	brokenVal := 0
	if broken {
		brokenVal = 1
	}
	return WithTx(ctx, s, func(tx *TxWrap) error {
		query := `SELECT sessionid FROM rt_session WHERE sessionid = ?`
		if !tx.Exists(query, sessionId) {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionId)
		}
		tx.Exec(`UPDATE rt_session SET broken = ? WHERE sessionid = ?`, brokenVal, sessionId)
		return nil
	})
}

func (s *Store) DeleteSession(ctx context.Context, sessionId string) error {
	return WithTx(ctx, s, func(tx *TxWrap) error {
		tx.Exec(`DELETE FROM rt_batch WHERE sessionid = ?`, sessionId)
		tx.Exec(`DELETE FROM rt_session WHERE sessionid = ?`, sessionId)
		return nil
	})
}

// AppendBatch stores batch as the next entry for sessionId and returns its seq (starting at 1)
func (s *Store) AppendBatch(ctx context.Context, sessionId string, batch *rtframe.RenderBatch) (int, error) {
	if batch == nil {
		return 0, errors.New("nil render batch")
	}
	batchJson, err := json.Marshal(batch)
	if err != nil {
		return 0, fmt.Errorf("marshaling batch: %w", err)
	}
	return WithTxRtn(ctx, s, func(tx *TxWrap) (int, error) {
		query := `SELECT sessionid FROM rt_session WHERE sessionid = ?`
		if !tx.Exists(query, sessionId) {
			return 0, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionId)
		}
		query = `SELECT COALESCE(max(seq), 0) FROM rt_batch WHERE sessionid = ?`
		seq := tx.GetInt(query, sessionId) + 1
		query = `INSERT INTO rt_batch (sessionid, seq, ts, batch) VALUES (?, ?, ?, ?)`
		tx.Exec(query, sessionId, seq, time.Now().UnixMilli(), string(batchJson))
		return seq, nil
	})
}

// GetBatches returns the batches for sessionId with seq > afterSeq, in seq order
func (s *Store) GetBatches(ctx context.Context, sessionId string, afterSeq int) ([]*BatchEntry, error) {
	return WithTxRtn(ctx, s, func(tx *TxWrap) ([]*BatchEntry, error) {
		var rows []*batchRow
		query := `SELECT sessionid, seq, ts, batch FROM rt_batch WHERE sessionid = ? AND seq > ? ORDER BY seq`
		tx.Select(&rows, query, sessionId, afterSeq)
		var rtn []*BatchEntry
		for _, row := range rows {
			entry, err := row.toEntry()
			if err != nil {
				return nil, err
			}
			rtn = append(rtn, entry)
		}
		return rtn, nil
	})
}

// Replay rebuilds the session's document from its roots and logged batches.
// returns the document and the last applied seq.
func (s *Store) Replay(ctx context.Context, sessionId string) (*rtdoc.Document, int, error) {
	sess, err := s.GetSession(ctx, sessionId)
	if err != nil {
		return nil, 0, err
	}
	entries, err := s.GetBatches(ctx, sessionId, 0)
	if err != nil {
		return nil, 0, err
	}
	doc := rtdoc.MakeDocument()
	for _, root := range sess.Roots {
		err = doc.AddRootComponent(root.ComponentId, root.Selector)
		if err != nil {
			return nil, 0, err
		}
	}
	lastSeq := 0
	for _, entry := range entries {
		err = doc.ApplyBatch(entry.Batch)
		if err != nil {
			return nil, lastSeq, fmt.Errorf("replaying session %s seq %d: %w", sessionId, entry.Seq, err)
		}
		lastSeq = entry.Seq
	}
	log.Printf("[batchlog] replayed session %s, %d batches\n", sessionId, len(entries))
	return doc, lastSeq, nil
}
