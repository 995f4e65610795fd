// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store provides the external persistence adapters consumed by the
// Settings Resolver and by callers recording Scene Scores / Enhancement
// Outcomes (the work-order store of §6). Two implementations ship: an
// in-memory map for tests/embedded use, and a BadgerDB-backed store for
// durability, mirroring the teacher's own choice of BadgerDB as embedded
// infrastructure storage (services/trace/agent/routing/router_cache.go)
// over a networked document store for small, latency-sensitive keyed data.
package store

import (
	"encoding/json"
	"fmt"
	"sync"

	dgbadger "github.com/dgraph-io/badger/v4"
)

// MemoryStore implements settings.Store with a process-local map. Safe for
// concurrent use; intended for tests and short-lived embedded callers that
// do not need durability.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]any // projectID -> path -> value
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string]any)}
}

func (m *MemoryStore) ReadAll(projectID string) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]any, len(m.data[projectID]))
	for k, v := range m.data[projectID] {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryStore) WriteOne(projectID, path string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[projectID] == nil {
		m.data[projectID] = make(map[string]any)
	}
	m.data[projectID][path] = value
	return nil
}

// BadgerStore implements settings.Store durably atop an embedded BadgerDB
// instance. Keys are namespaced "settings/v1/{projectID}/{path}" so project
// and global ("" projectID) values never collide, matching the teacher's
// versioned-prefix key layout in router_cache.go.
type BadgerStore struct {
	db *dgbadger.DB
}

const badgerKeyPrefix = "settings/v1/"

// OpenBadgerStore opens (creating if absent) a BadgerDB at dir.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	opts := dgbadger.DefaultOptions(dir).WithLogger(nil)
	db, err := dgbadger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: opening badger db at %q: %w", dir, err)
	}
	return &BadgerStore{db: db}, nil
}

// Close releases the underlying BadgerDB handle.
func (b *BadgerStore) Close() error {
	return b.db.Close()
}

func badgerPrefix(projectID string) []byte {
	return []byte(badgerKeyPrefix + projectID + "/")
}

func badgerKey(projectID, path string) []byte {
	return []byte(badgerKeyPrefix + projectID + "/" + path)
}

func (b *BadgerStore) ReadAll(projectID string) (map[string]any, error) {
	out := make(map[string]any)
	prefix := badgerPrefix(projectID)
	err := b.db.View(func(txn *dgbadger.Txn) error {
		it := txn.NewIterator(dgbadger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := string(item.Key())
			path := key[len(prefix):]
			if err := item.Value(func(val []byte) error {
				var v any
				if err := json.Unmarshal(val, &v); err != nil {
					return fmt.Errorf("decoding value for %q: %w", path, err)
				}
				out[path] = v
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: reading project %q: %w", projectID, err)
	}
	return out, nil
}

func (b *BadgerStore) WriteOne(projectID, path string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("store: encoding value for %q: %w", path, err)
	}
	err = b.db.Update(func(txn *dgbadger.Txn) error {
		return txn.Set(badgerKey(projectID, path), raw)
	})
	if err != nil {
		return fmt.Errorf("store: writing %q for project %q: %w", path, projectID, err)
	}
	return nil
}

// WorkOrderRecord is a persisted Scene Score or Enhancement Outcome, keyed
// by scene_id. The work-order store does not require read-your-writes
// consistency per §6. Records are appended rather than overwritten; see Put.
type WorkOrderRecord struct {
	SceneID   string          `json:"scene_id"`
	Kind      string          `json:"kind"` // "scene_score" | "enhancement_outcome"
	Payload   json.RawMessage `json:"payload"`
	CreatedAt int64           `json:"created_at_unix_ms"`
}

// WorkOrderStore persists WorkOrderRecords. The BadgerStore above implements
// it directly since both are simple keyed-blob stores.
type WorkOrderStore interface {
	Put(record WorkOrderRecord) error
	Get(sceneID string) ([]WorkOrderRecord, error)
}

const workOrderKeyPrefix = "workorder/v1/"

// Put appends a work-order record, keyed by scene_id + kind + timestamp so
// multiple records per scene (e.g. repeated analyze calls) are all retained.
func (b *BadgerStore) Put(record WorkOrderRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("store: encoding work order for %q: %w", record.SceneID, err)
	}
	key := fmt.Sprintf("%s%s/%s/%d", workOrderKeyPrefix, record.SceneID, record.Kind, record.CreatedAt)
	return b.db.Update(func(txn *dgbadger.Txn) error {
		return txn.Set([]byte(key), raw)
	})
}

// Get returns every record stored for sceneID, in storage order.
func (b *BadgerStore) Get(sceneID string) ([]WorkOrderRecord, error) {
	var out []WorkOrderRecord
	prefix := []byte(fmt.Sprintf("%s%s/", workOrderKeyPrefix, sceneID))
	err := b.db.View(func(txn *dgbadger.Txn) error {
		it := txn.NewIterator(dgbadger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec WorkOrderRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: reading work orders for %q: %w", sceneID, err)
	}
	return out, nil
}

// MemoryWorkOrderStore is the in-memory counterpart for tests.
type MemoryWorkOrderStore struct {
	mu      sync.RWMutex
	records map[string][]WorkOrderRecord
}

func NewMemoryWorkOrderStore() *MemoryWorkOrderStore {
	return &MemoryWorkOrderStore{records: make(map[string][]WorkOrderRecord)}
}

func (m *MemoryWorkOrderStore) Put(record WorkOrderRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.SceneID] = append(m.records[record.SceneID], record)
	return nil
}

func (m *MemoryWorkOrderStore) Get(sceneID string) ([]WorkOrderRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]WorkOrderRecord, len(m.records[sceneID]))
	copy(out, m.records[sceneID])
	return out, nil
}
