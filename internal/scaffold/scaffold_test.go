// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scaffold

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftquality/craftengine/internal/llmtransport"
	"github.com/craftquality/craftengine/internal/research"
	"github.com/craftquality/craftengine/internal/voicebundle"
)

func draftServer(t *testing.T, beatsText string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := json.Marshal(map[string]any{
			"message": map[string]string{"role": "assistant", "content": beatsText},
			"done":    true,
		})
		w.Header().Set("content-type", "application/json")
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testState() ProjectState {
	return ProjectState{
		ChapterID:            "ch1",
		SceneIndex:           3,
		BeatSheet:            []string{"arrive", "confront", "leave"},
		CharacterDossiers:    []string{"Mira: wary, precise"},
		PriorSceneContinuity: []string{"Mira's hand is still bandaged."},
		WorldRules:           []string{"No magic above the waterline."},
	}
}

func testIntent() Intent {
	return Intent{Title: "The Landing", Phase: "setup", POV: "Mira", WordTarget: 1200, Summary: "Mira lands and confronts the harbor master."}
}

func TestDraft_AssemblesMechanicalFieldsAndSplitsBeatsFromLLMText(t *testing.T) {
	srv := draftServer(t, "Mira steps onto the dock.\nThe harbor master blocks her path.\nShe walks past him anyway.")
	transport := llmtransport.New("", "", "", srv.URL, llmtransport.RetryPolicy{MaxAttempts: 1})
	g := New(transport, nil)

	sc, err := g.Draft(context.Background(), "local-model", testState(), testIntent())
	require.NoError(t, err)

	assert.Equal(t, "ch1", sc.ChapterID)
	assert.Equal(t, 3, sc.SceneIndex)
	assert.Equal(t, "The Landing", sc.Title)
	assert.Equal(t, 1200, sc.WordTarget)
	assert.Len(t, sc.Beats, 3)
	assert.Equal(t, []string{"Mira's hand is still bandaged."}, sc.ContinuityChecklist)
	assert.Equal(t, 70.0, sc.SuccessCriteria["min_tier_score"])
}

func TestDraft_PropagatesTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	transport := llmtransport.New("", "", "", srv.URL, llmtransport.RetryPolicy{MaxAttempts: 1})
	g := New(transport, nil)

	_, err := g.Draft(context.Background(), "local-model", testState(), testIntent())
	require.Error(t, err)
}

type stubResearch struct {
	passages []research.Passage
	err      error
}

func (s stubResearch) Query(ctx context.Context, handle, text string) ([]research.Passage, error) {
	return s.passages, s.err
}

func TestEnrich_AppendsReturnedPassagesToSourceEnrichment(t *testing.T) {
	g := New(nil, stubResearch{passages: []research.Passage{
		{Source: "harbor-archive", Text: "Tidal harbors flood twice daily."},
		{Source: "linguistics-notes", Text: "\"Harbor master\" is a formal title here."},
	}})
	sc := &Scaffold{Title: "The Landing", Beats: []string{"arrive"}}

	got := g.Enrich(context.Background(), sc, "harbor-handle")
	assert.Contains(t, got.SourceEnrichment, "[harbor-archive] Tidal harbors flood twice daily.")
	assert.Contains(t, got.SourceEnrichment, "[linguistics-notes]")
}

func TestEnrich_IsNonFatalOnResearchQueryError(t *testing.T) {
	g := New(nil, stubResearch{err: errors.New("research backend unavailable")})
	sc := &Scaffold{Title: "The Landing", Beats: []string{"arrive"}}

	got := g.Enrich(context.Background(), sc, "harbor-handle")
	assert.Equal(t, "", got.SourceEnrichment, "a failed research query must leave SourceEnrichment empty, not error out")
}

func TestGenerate_SkipsEnrichmentWhenHandleIsEmpty(t *testing.T) {
	srv := draftServer(t, "one beat only")
	transport := llmtransport.New("", "", "", srv.URL, llmtransport.RetryPolicy{MaxAttempts: 1})
	g := New(transport, stubResearch{passages: nil})

	sc, err := g.Generate(context.Background(), "local-model", testState(), testIntent(), "")
	require.NoError(t, err)
	assert.Equal(t, "", sc.SourceEnrichment)
}

func TestValidate_RejectsNonPositiveWordTarget(t *testing.T) {
	b, err := voicebundle.Parse([]byte(`simile_policy: "allow"
phase_profiles:
  - phase_name: "setup"
`))
	require.NoError(t, err)
	sc := &Scaffold{WordTarget: 0, Beats: []string{"a"}, Phase: "setup"}
	assert.Error(t, sc.Validate(b))
}

func TestValidate_RejectsEmptyBeats(t *testing.T) {
	b, err := voicebundle.Parse([]byte(`simile_policy: "allow"
phase_profiles:
  - phase_name: "setup"
`))
	require.NoError(t, err)
	sc := &Scaffold{WordTarget: 500, Beats: nil, Phase: "setup"}
	assert.Error(t, sc.Validate(b))
}

func TestValidate_RejectsUnknownPhase(t *testing.T) {
	b, err := voicebundle.Parse([]byte(`simile_policy: "allow"
phase_profiles:
  - phase_name: "setup"
`))
	require.NoError(t, err)
	sc := &Scaffold{WordTarget: 500, Beats: []string{"a"}, Phase: "climax"}
	assert.Error(t, sc.Validate(b))
}

func TestValidate_AcceptsAWellFormedScaffold(t *testing.T) {
	b, err := voicebundle.Parse([]byte(`simile_policy: "allow"
phase_profiles:
  - phase_name: "setup"
`))
	require.NoError(t, err)
	sc := &Scaffold{WordTarget: 500, Beats: []string{"a"}, Phase: "setup"}
	assert.NoError(t, sc.Validate(b))
}
