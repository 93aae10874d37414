// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package state persists per-user editing sessions. Each user has one
// record, overwritten on every save: the client treats the server as a
// durable cache, not a history.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/TrajectoryStudio/services/studio/datatypes"
	"github.com/AleutianAI/TrajectoryStudio/services/studio/storage/badger"
)

// ErrNoSession indicates the user has no saved session.
var ErrNoSession = errors.New("no saved session")

// Store reads and writes session snapshots in BadgerDB.
type Store struct {
	db *badger.DB
}

func NewStore(db *badger.DB) *Store {
	return &Store{db: db}
}

func sessionKey(userID string) []byte {
	return []byte("session:" + userID)
}

// Save overwrites the user's session snapshot.
func (s *Store) Save(ctx context.Context, userID string, st *datatypes.SessionState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return s.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
		return txn.Set(sessionKey(userID), data)
	})
}

// Load returns the user's saved session, or ErrNoSession.
func (s *Store) Load(ctx context.Context, userID string) (*datatypes.SessionState, error) {
	var st datatypes.SessionState
	err := s.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		item, err := txn.Get(sessionKey(userID))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return ErrNoSession
		}
		if err != nil {
			return fmt.Errorf("read session: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &st)
		})
	})
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// Clear deletes the user's saved session. Clearing a missing session
// is not an error.
func (s *Store) Clear(ctx context.Context, userID string) error {
	return s.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
		return txn.Delete(sessionKey(userID))
	})
}
