// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/TrajectoryStudio/services/studio/storage/badger"
)

// User is a stored account. PasswordHash is a bcrypt hash and never
// leaves the server.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// userRecord is the on-disk shape; unlike User it carries the hash.
type userRecord struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

var (
	ErrUserExists   = errors.New("user with this email already exists")
	ErrUserNotFound = errors.New("user not found")
)

// UserStore persists accounts in BadgerDB under two keys per user:
// user:id:<id> holds the record, user:email:<email> points at the id.
type UserStore struct {
	db *badger.DB
}

func NewUserStore(db *badger.DB) *UserStore {
	return &UserStore{db: db}
}

func userIDKey(id string) []byte   { return []byte("user:id:" + id) }
func userEmailKey(e string) []byte { return []byte("user:email:" + e) }

// CreateUser inserts a new account. Both keys are written in one
// transaction so a crash cannot leave a dangling email pointer.
func (s *UserStore) CreateUser(ctx context.Context, u User) error {
	rec := userRecord{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}

	return s.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
		_, err := txn.Get(userEmailKey(u.Email))
		if err == nil {
			return ErrUserExists
		}
		if !errors.Is(err, badgerdb.ErrKeyNotFound) {
			return fmt.Errorf("check existing user: %w", err)
		}
		if err := txn.Set(userIDKey(u.ID), data); err != nil {
			return fmt.Errorf("store user: %w", err)
		}
		if err := txn.Set(userEmailKey(u.Email), []byte(u.ID)); err != nil {
			return fmt.Errorf("store email index: %w", err)
		}
		return nil
	})
}

// GetUserByEmail resolves the email index and loads the record.
func (s *UserStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var id string
	err := s.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		item, err := txn.Get(userEmailKey(email))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return ErrUserNotFound
		}
		if err != nil {
			return fmt.Errorf("read email index: %w", err)
		}
		return item.Value(func(val []byte) error {
			id = string(val)
			return nil
		})
	})
	if err != nil {
		return User{}, err
	}
	return s.GetUserByID(ctx, id)
}

// GetUserByID loads the record for an id.
func (s *UserStore) GetUserByID(ctx context.Context, id string) (User, error) {
	var rec userRecord
	err := s.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		item, err := txn.Get(userIDKey(id))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return ErrUserNotFound
		}
		if err != nil {
			return fmt.Errorf("read user: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return User{}, err
	}
	return User{
		ID:           rec.ID,
		Email:        rec.Email,
		PasswordHash: rec.PasswordHash,
		CreatedAt:    rec.CreatedAt,
	}, nil
}
