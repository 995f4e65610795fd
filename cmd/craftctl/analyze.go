// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	analyzeProject string
	analyzeModel   string
	analyzeScene   string
	analyzePhase   string
)

// sceneScore mirrors analyzer.SceneScore for decoding; craftctl never
// imports internal packages, only talks to craftd over HTTP.
type sceneScore struct {
	Overall        float64                    `json:"overall"`
	CategoryScores map[string]categoryScore   `json:"category_scores"`
	Violations     []violation                `json:"violations"`
	Tier           string                     `json:"tier"`
	PhaseFlags     []string                   `json:"phase_flags,omitempty"`
	ModelUsed      string                     `json:"model_used"`
	WallTimeMS     int64                      `json:"wall_time_ms"`
	LowConfidence  bool                       `json:"low_confidence,omitempty"`
}

type categoryScore struct {
	Awarded float64 `json:"awarded"`
	Max     float64 `json:"max"`
	Notes   string  `json:"notes,omitempty"`
}

type violation struct {
	LineIndex    int    `json:"line_index"`
	Severity     string `json:"severity"`
	PatternID    string `json:"pattern_id"`
	Excerpt      string `json:"excerpt"`
	SuggestedFix string `json:"suggested_fix,omitempty"`
}

var tierStyles = map[string]lipgloss.Style{
	"A":            lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A")).Bold(true),
	"A-":           lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A")),
	"B+":           lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC107")),
	"B":            lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC107")),
	"needs_rework": lipgloss.NewStyle().Foreground(lipgloss.Color("#e53935")).Bold(true),
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Score a scene file against the project's Voice Bundle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}

		var score sceneScore
		err = postJSON("/analyze", map[string]any{
			"project_id": analyzeProject,
			"scene_id":   analyzeScene,
			"model_id":   analyzeModel,
			"text":       string(text),
			"phase":      analyzePhase,
		}, &score)
		if err != nil {
			return err
		}

		printScore(score)
		return nil
	},
}

func printScore(s sceneScore) {
	tierStyle, ok := tierStyles[s.Tier]
	if !ok {
		tierStyle = lipgloss.NewStyle()
	}

	fmt.Printf("Overall: %.1f  Tier: %s  Model: %s\n", s.Overall, tierStyle.Render(s.Tier), s.ModelUsed)
	if s.LowConfidence {
		fmt.Println(lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC107")).Render("(low confidence — one or more LLM-judged categories were indeterminate)"))
	}
	fmt.Println()

	categories := make([]string, 0, len(s.CategoryScores))
	for name := range s.CategoryScores {
		categories = append(categories, name)
	}
	sort.Strings(categories)
	for _, name := range categories {
		c := s.CategoryScores[name]
		fmt.Printf("  %-28s %5.1f / %-5.1f %s\n", name, c.Awarded, c.Max, c.Notes)
	}

	if len(s.PhaseFlags) > 0 {
		fmt.Println()
		fmt.Println("Phase flags:", strings.Join(s.PhaseFlags, ", "))
	}

	if len(s.Violations) == 0 {
		return
	}
	fmt.Println()
	fmt.Println("Violations:")
	for _, v := range s.Violations {
		fmt.Printf("  line %-4d [%s] %s: %q\n", v.LineIndex, v.Severity, v.PatternID, v.Excerpt)
		if v.SuggestedFix != "" {
			fmt.Printf("    suggested: %s\n", v.SuggestedFix)
		}
	}
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeProject, "project", "", "project ID (required)")
	analyzeCmd.Flags().StringVar(&analyzeModel, "model", "", "judge model ID (required)")
	analyzeCmd.Flags().StringVar(&analyzeScene, "scene-id", "cli-scene", "scene ID to key the persisted work order")
	analyzeCmd.Flags().StringVar(&analyzePhase, "phase", "", "declared narrative phase, for the deterministic forbidden-construct check")
	analyzeCmd.MarkFlagRequired("project")
	analyzeCmd.MarkFlagRequired("model")
}
