// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_WriteOneThenReadAllIsolatesByProject(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.WriteOne("demo", "router.quality_tier", "premium"))
	require.NoError(t, s.WriteOne("", "router.quality_tier", "minimal"))

	demo, err := s.ReadAll("demo")
	require.NoError(t, err)
	assert.Equal(t, "premium", demo["router.quality_tier"])

	global, err := s.ReadAll("")
	require.NoError(t, err)
	assert.Equal(t, "minimal", global["router.quality_tier"])
}

func TestMemoryStore_ReadAllOfUnknownProjectIsEmptyNotError(t *testing.T) {
	s := NewMemoryStore()
	all, err := s.ReadAll("never-written")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestMemoryWorkOrderStore_PutAppendsRecordsForScene(t *testing.T) {
	s := NewMemoryWorkOrderStore()
	require.NoError(t, s.Put(WorkOrderRecord{SceneID: "s1", Kind: "scene_score", Payload: json.RawMessage(`{"overall":90}`), CreatedAt: 1}))
	require.NoError(t, s.Put(WorkOrderRecord{SceneID: "s1", Kind: "enhancement_outcome", Payload: json.RawMessage(`{"fixes":2}`), CreatedAt: 2}))
	require.NoError(t, s.Put(WorkOrderRecord{SceneID: "s2", Kind: "scene_score", Payload: json.RawMessage(`{"overall":80}`), CreatedAt: 3}))

	got, err := s.Get("s1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "scene_score", got[0].Kind)
	assert.Equal(t, "enhancement_outcome", got[1].Kind)
}

func TestMemoryWorkOrderStore_GetOfUnknownSceneIsEmptyNotError(t *testing.T) {
	s := NewMemoryWorkOrderStore()
	got, err := s.Get("never-seen")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBadgerStore_SettingsRoundTripAndProjectIsolation(t *testing.T) {
	db, err := OpenBadgerStore(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.WriteOne("demo", "enhancement.action_prompt_threshold", 72.0))
	require.NoError(t, db.WriteOne("", "enhancement.action_prompt_threshold", 65.0))

	demo, err := db.ReadAll("demo")
	require.NoError(t, err)
	assert.Equal(t, 72.0, demo["enhancement.action_prompt_threshold"])

	global, err := db.ReadAll("")
	require.NoError(t, err)
	assert.Equal(t, 65.0, global["enhancement.action_prompt_threshold"])
}

func TestBadgerStore_WorkOrdersPersistAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	db, err := OpenBadgerStore(dir)
	require.NoError(t, err)
	require.NoError(t, db.Put(WorkOrderRecord{SceneID: "s1", Kind: "scene_score", Payload: json.RawMessage(`{"overall":88}`), CreatedAt: 100}))
	require.NoError(t, db.Close())

	reopened, err := OpenBadgerStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get("s1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(100), got[0].CreatedAt)
}
