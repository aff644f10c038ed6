// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists completion records in BadgerDB.
//
// One record per (user identity, verify token), namespaced by user so
// per-user counts are a prefix scan. Badger transactions provide the
// atomic single-key read-modify-write that the at-most-one-verification
// guarantee depends on: two concurrent verifications of the same token
// conflict at commit time, and the loser re-reads the ground truth the
// winner wrote. Operations on different keys never block each other.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/AleutianAI/AleutianComplete/services/completion/datatypes"
	"github.com/dgraph-io/badger/v4"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrDuplicateRecord is returned by Create when the key already
	// exists. Never expected under correct token generation, but the
	// contract is explicit for testability.
	ErrDuplicateRecord = errors.New("completion record already exists")

	// ErrUnknownToken is returned by Update when no record matches the
	// (user, token) key.
	ErrUnknownToken = errors.New("unknown verify token")

	// ErrAlreadyVerified is returned by Update when the record already
	// carries ground truth.
	ErrAlreadyVerified = errors.New("verify token already used")
)

// =============================================================================
// Configuration
// =============================================================================

// Config holds configuration for the record store.
type Config struct {
	// Path is the directory for BadgerDB files.
	// Required unless InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	// Default: true for production, false for testing.
	SyncWrites bool

	// ReadOnly opens the store without write access. Used by offline
	// reporting tools scanning a store directory.
	ReadOnly bool

	// Logger is the logger for BadgerDB operations.
	// If nil, BadgerDB's internal logging is disabled.
	Logger *slog.Logger

	// SurveyMinCount is the record count at which survey prompting
	// starts. Default: 100.
	SurveyMinCount int

	// SurveyInterval is the record-count interval between survey
	// prompts. Default: 50.
	SurveyInterval int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		SyncWrites:     true,
		SurveyMinCount: 100,
		SurveyInterval: 50,
	}
}

// InMemoryConfig returns configuration optimized for testing.
func InMemoryConfig() Config {
	cfg := DefaultConfig()
	cfg.InMemory = true
	cfg.SyncWrites = false
	return cfg
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// =============================================================================
// Store
// =============================================================================

// Store is the completion record store.
//
// # Thread Safety
//
// Safe for concurrent use. Badger serializes conflicting same-key
// commits; cross-key operations proceed independently.
type Store struct {
	db             *badger.DB
	surveyMinCount int
	surveyInterval int
}

// Open creates and opens the record store.
//
// Description:
//
//	Opens BadgerDB at the configured path, or in memory when InMemory is
//	set, creating the directory as needed.
//
// Outputs:
//
//	*Store - The opened store. Caller must call Close() when done.
//	error - Non-nil if the path is missing or the database fails to open.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.ReadOnly {
		opts = opts.WithReadOnly(true)
	}
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}

	surveyMin := cfg.SurveyMinCount
	if surveyMin <= 0 {
		surveyMin = DefaultConfig().SurveyMinCount
	}
	surveyInterval := cfg.SurveyInterval
	if surveyInterval <= 0 {
		surveyInterval = DefaultConfig().SurveyInterval
	}

	return &Store{
		db:             db,
		surveyMinCount: surveyMin,
		surveyInterval: surveyInterval,
	}, nil
}

// OpenInMemory opens an in-memory store for testing.
func OpenInMemory() (*Store, error) {
	return Open(InMemoryConfig())
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// recordKey builds the namespaced key for one record.
func recordKey(user, token string) []byte {
	return []byte("completion/" + user + "/" + token)
}

// userPrefix builds the scan prefix for one user's records.
func userPrefix(user string) []byte {
	return []byte("completion/" + user + "/")
}

// Create writes a new completion record and evaluates survey cadence.
//
// # Description
//
// Fails with ErrDuplicateRecord if the (user, token) key already exists.
// A commit conflict is treated the same way: it means a concurrent
// create of the identical key, which correct token generation rules out.
//
// Survey eligibility is derived, not stored separately: inside the same
// transaction the user's record count (including the record being
// created) is checked against the prompt cadence, the verdict is stamped
// into the record's survey flag, and both persist atomically.
//
// # Inputs
//
//   - ctx: Context for cancellation checks.
//   - user: User identity namespace.
//   - token: Verify token, or the internal record id for filtered
//     requests.
//   - record: The record to persist. Its SurveyFlag is overwritten.
//
// # Outputs
//
//   - bool: Whether the user is due a survey prompt.
//   - error: ErrDuplicateRecord, context error, or a wrapped storage
//     failure.
func (s *Store) Create(ctx context.Context, user, token string, record *datatypes.CompletionRecord) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("context cancelled: %w", err)
	}

	key := recordKey(user, token)
	survey := false

	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return ErrDuplicateRecord
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("check existing record: %w", err)
		}

		count := 1 // the record being created
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = userPrefix(user)
		it := txn.NewIterator(opts)
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		it.Close()

		survey = count >= s.surveyMinCount && count%s.surveyInterval == 0
		record.SurveyFlag = survey

		value, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal completion record: %w", err)
		}
		return txn.Set(key, value)
	})
	if errors.Is(err, badger.ErrConflict) {
		return false, ErrDuplicateRecord
	}
	if err != nil {
		return false, err
	}
	return survey, nil
}

// Update applies the verification patch to a record exactly once.
//
// # Description
//
// Atomically reads the record, rejects absent records with
// ErrUnknownToken and already-verified ones with ErrAlreadyVerified,
// merges the patch, and writes the record back. Records of requests
// that skipped dispatch never had their token disclosed, so they are
// reported as unknown rather than revealed. A manual trigger dispatches
// even when the arm predicate filters, and those records verify
// normally.
//
// Two concurrent calls with the same key cannot both succeed: the loser
// of the commit conflict retries, reads the winner's ground truth, and
// fails with ErrAlreadyVerified.
//
// # Outputs
//
//   - *datatypes.CompletionRecord: The record as it was before the patch.
//   - error: ErrUnknownToken, ErrAlreadyVerified, context error, or a
//     wrapped storage failure.
func (s *Store) Update(ctx context.Context, user, token string, patch datatypes.VerifyPatch) (*datatypes.CompletionRecord, error) {
	key := recordKey(user, token)

	// Retry commit conflicts: the re-read observes the winning write.
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("context cancelled: %w", err)
		}

		var previous datatypes.CompletionRecord
		err := s.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(key)
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrUnknownToken
			}
			if err != nil {
				return fmt.Errorf("read record: %w", err)
			}
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &previous)
			}); err != nil {
				return fmt.Errorf("decode record: %w", err)
			}

			if !previous.Dispatched {
				return ErrUnknownToken
			}
			if previous.Verified() {
				return ErrAlreadyVerified
			}

			updated := previous
			updated.ChosenPrediction = patch.ChosenPrediction
			updated.GroundTruth = patch.GroundTruth
			value, err := json.Marshal(&updated)
			if err != nil {
				return fmt.Errorf("marshal record: %w", err)
			}
			return txn.Set(key, value)
		})
		if errors.Is(err, badger.ErrConflict) && attempt < 3 {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &previous, nil
	}
}

// Get reads one record.
func (s *Store) Get(ctx context.Context, user, token string) (*datatypes.CompletionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	var record datatypes.CompletionRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(user, token))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrUnknownToken
		}
		if err != nil {
			return fmt.Errorf("read record: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// CountForUser returns the number of records stored for a user.
//
// Keys-only prefix scan; values are not fetched.
func (s *Store) CountForUser(ctx context.Context, user string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("context cancelled: %w", err)
	}

	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = userPrefix(user)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count records for user: %w", err)
	}
	return count, nil
}

// ShouldPromptSurvey reports whether the user is due a survey prompt at
// their current record count.
//
// True exactly when the count has reached the minimum and sits on the
// prompt interval. Create evaluates the same cadence atomically at
// record-creation time; this query form serves tests and tooling.
func (s *Store) ShouldPromptSurvey(ctx context.Context, user string) (bool, error) {
	count, err := s.CountForUser(ctx, user)
	if err != nil {
		return false, err
	}
	return count >= s.surveyMinCount && count%s.surveyInterval == 0, nil
}

// ForEach iterates records, optionally restricted to one user.
//
// # Description
//
// Invoked by the offline scoring pipeline over stored records; never in
// the request path. The callback receives the owning user, the record
// key token, and the decoded record. Returning an error stops iteration
// and propagates.
func (s *Store) ForEach(ctx context.Context, user string, fn func(user, token string, record *datatypes.CompletionRecord) error) error {
	prefix := []byte("completion/")
	if user != "" {
		prefix = userPrefix(user)
	}

	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("context cancelled: %w", err)
			}
			item := it.Item()
			key := string(item.Key())
			parts := strings.SplitN(strings.TrimPrefix(key, "completion/"), "/", 2)
			if len(parts) != 2 {
				slog.Warn("skipping malformed record key", "key", key)
				continue
			}

			var record datatypes.CompletionRecord
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			}); err != nil {
				return fmt.Errorf("decode record %s: %w", key, err)
			}
			if err := fn(parts[0], parts[1], &record); err != nil {
				return err
			}
		}
		return nil
	})
}
