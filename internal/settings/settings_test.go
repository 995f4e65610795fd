// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftquality/craftengine/internal/errs"
	"github.com/craftquality/craftengine/internal/store"
)

func testSpecs() []Spec {
	return []Spec{
		{Path: "enhancement.action_prompt_threshold", Kind: KindNumber, Default: 70.0, Min: 0, Max: 100},
		{Path: "router.quality_tier", Kind: KindString, Default: "balanced", Choices: []string{"minimal", "balanced", "premium"}},
		{Path: "tournament.structure_variants_enabled", Kind: KindBool, Default: true},
		{Path: "patterns.forbidden_constructs", Kind: KindList, ElementKind: KindString, Default: []any{}},
	}
}

func newTestResolver() (*Resolver, *store.MemoryStore, *store.MemoryStore) {
	projectStore := store.NewMemoryStore()
	globalStore := store.NewMemoryStore()
	return New(testSpecs(), projectStore, globalStore), projectStore, globalStore
}

func TestGet_FallsBackToCompiledDefaultWhenUnset(t *testing.T) {
	r, _, _ := newTestResolver()
	v, err := r.Get("router.quality_tier", "demo")
	require.NoError(t, err)
	assert.Equal(t, "balanced", v)
}

func TestGet_UnknownPathIsInvalidSetting(t *testing.T) {
	r, _, _ := newTestResolver()
	_, err := r.Get("no.such.path", "demo")
	require.Error(t, err)
	assert.Equal(t, errs.KindInvalidSetting, errs.KindOf(err))
}

func TestGet_ProjectTierWinsOverGlobalAndDefault(t *testing.T) {
	r, _, globalStore := newTestResolver()
	require.NoError(t, globalStore.WriteOne("", "enhancement.action_prompt_threshold", 60.0))
	require.NoError(t, r.Set("enhancement.action_prompt_threshold", 85.0, ScopeProject, "demo"))

	v, err := r.GetNumber("enhancement.action_prompt_threshold", "demo")
	require.NoError(t, err)
	assert.Equal(t, 85.0, v)

	// A different project still sees the global tier, not demo's override.
	other, err := r.GetNumber("enhancement.action_prompt_threshold", "other-project")
	require.NoError(t, err)
	assert.Equal(t, 60.0, other)
}

func TestSet_RejectsOutOfRangeNumber(t *testing.T) {
	r, _, _ := newTestResolver()
	err := r.Set("enhancement.action_prompt_threshold", 150.0, ScopeGlobal, "")
	require.Error(t, err)
	assert.Equal(t, errs.KindInvalidSetting, errs.KindOf(err))
}

func TestSet_RejectsValueOutsideChoices(t *testing.T) {
	r, _, _ := newTestResolver()
	err := r.Set("router.quality_tier", "ultra", ScopeGlobal, "")
	require.Error(t, err)
}

func TestSet_RejectsWrongType(t *testing.T) {
	r, _, _ := newTestResolver()
	err := r.Set("tournament.structure_variants_enabled", "yes", ScopeGlobal, "")
	require.Error(t, err)
}

func TestSet_ProjectScopeRequiresProjectID(t *testing.T) {
	r, _, _ := newTestResolver()
	err := r.Set("router.quality_tier", "premium", ScopeProject, "")
	require.Error(t, err)
}

func TestSet_PublishesChangeEventToSubscribers(t *testing.T) {
	r, _, _ := newTestResolver()
	ch := r.Subscribe(1)

	require.NoError(t, r.Set("router.quality_tier", "premium", ScopeGlobal, ""))

	select {
	case ev := <-ch:
		assert.Equal(t, "router.quality_tier", ev.Path)
		assert.Equal(t, ScopeGlobal, ev.Scope)
		assert.Equal(t, "premium", ev.Value)
	default:
		t.Fatal("expected a ChangeEvent to be published")
	}
}

func TestPaths_ReturnsSortedRegisteredPaths(t *testing.T) {
	r, _, _ := newTestResolver()
	paths := r.Paths()
	assert.Len(t, paths, 4)
	for i := 1; i < len(paths); i++ {
		assert.LessOrEqual(t, paths[i-1], paths[i])
	}
}

func TestGetList_ValidatesElementKind(t *testing.T) {
	r, _, _ := newTestResolver()
	err := r.Set("patterns.forbidden_constructs", []any{"suddenly", 5}, ScopeGlobal, "")
	require.Error(t, err)

	require.NoError(t, r.Set("patterns.forbidden_constructs", []any{"suddenly", "somehow"}, ScopeGlobal, ""))
	got, err := r.GetList("patterns.forbidden_constructs", "")
	require.NoError(t, err)
	assert.Equal(t, []any{"suddenly", "somehow"}, got)
}
