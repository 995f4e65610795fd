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
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var (
	tournamentProject     string
	tournamentModel       string
	tournamentTasksPath   string
	tournamentScaffoldPath string
	tournamentPhase       string
	tournamentConcurrency int
)

// cliTask is the friendly on-disk task format; wireTask matches the JSON
// shape tournament.Task decodes from (its fields carry no json tags, so the
// wire key is the exported Go field name).
type cliTask struct {
	ModelID  string `json:"model_id"`
	Strategy string `json:"strategy"`
}

type wireTask struct {
	ModelID  string
	Strategy string
}

type wireVariant struct {
	ID       string
	ModelID  string
	Strategy string
	Text     string
	Score    *sceneScore
	WallTime time.Duration
	Err      *wireError
}

// wireError decodes the JSON object craftd writes for a failed Variant's
// error (errs.Error's exported fields); null when the variant succeeded.
type wireError struct {
	Message string
}

var rowStyle = lipgloss.NewStyle().PaddingLeft(1).PaddingRight(1)
var headerStyle = rowStyle.Bold(true).Underline(true)

var tournamentCmd = &cobra.Command{
	Use:   "tournament",
	Short: "Run a multi-model tournament and watch variants score live",
	RunE: func(cmd *cobra.Command, args []string) error {
		rawTasks, err := os.ReadFile(tournamentTasksPath)
		if err != nil {
			return fmt.Errorf("reading tasks file %s: %w", tournamentTasksPath, err)
		}
		var cliTasks []cliTask
		if err := json.Unmarshal(rawTasks, &cliTasks); err != nil {
			return fmt.Errorf("parsing tasks file: %w", err)
		}
		tasks := make([]wireTask, len(cliTasks))
		for i, t := range cliTasks {
			tasks[i] = wireTask{ModelID: t.ModelID, Strategy: t.Strategy}
		}

		scaffoldPrompt, err := os.ReadFile(tournamentScaffoldPath)
		if err != nil {
			return fmt.Errorf("reading scaffold file %s: %w", tournamentScaffoldPath, err)
		}

		payload, err := json.Marshal(map[string]any{
			"project_id":               tournamentProject,
			"scoring_model_id":         tournamentModel,
			"tasks":                    tasks,
			"scaffold_prompt":          string(scaffoldPrompt),
			"phase":                    tournamentPhase,
			"concurrency_per_provider": tournamentConcurrency,
		})
		if err != nil {
			return fmt.Errorf("encoding tournament request: %w", err)
		}

		wsURL := strings.Replace(serverURL, "http://", "ws://", 1)
		wsURL = strings.Replace(wsURL, "https://", "wss://", 1)
		wsURL += "/tournament/stream?payload=" + url.QueryEscape(string(payload))

		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			return fmt.Errorf("connecting to tournament stream: %w", err)
		}
		defer conn.Close()

		fmt.Println(headerStyle.Render(fmt.Sprintf("%-24s %-16s %7s %6s %s", "MODEL", "STRATEGY", "OVERALL", "TIER", "STATUS")))
		for {
			var v wireVariant
			if err := conn.ReadJSON(&v); err != nil {
				break
			}
			printVariantRow(v)
		}
		return nil
	},
}

func printVariantRow(v wireVariant) {
	status := "ok"
	overall := ""
	tier := ""
	if v.Err != nil {
		status = errorStyle.Render("error: " + v.Err.Message)
	} else if v.Score != nil {
		overall = fmt.Sprintf("%.1f", v.Score.Overall)
		style, ok := tierStyles[v.Score.Tier]
		if !ok {
			style = lipgloss.NewStyle()
		}
		tier = style.Render(v.Score.Tier)
	}
	fmt.Println(rowStyle.Render(fmt.Sprintf("%-24s %-16s %7s %6s %s", v.ModelID, v.Strategy, overall, tier, status)))
}

func init() {
	tournamentCmd.Flags().StringVar(&tournamentProject, "project", "", "project ID (required)")
	tournamentCmd.Flags().StringVar(&tournamentModel, "model", "", "scoring model ID (required)")
	tournamentCmd.Flags().StringVar(&tournamentTasksPath, "tasks", "", "path to a JSON array of {model_id, strategy} tasks (required)")
	tournamentCmd.Flags().StringVar(&tournamentScaffoldPath, "scaffold", "", "path to the scaffold prompt text file (required)")
	tournamentCmd.Flags().StringVar(&tournamentPhase, "phase", "", "declared narrative phase, for the deterministic forbidden-construct check")
	tournamentCmd.Flags().IntVar(&tournamentConcurrency, "concurrency", 4, "per-provider concurrency bound")
	tournamentCmd.MarkFlagRequired("project")
	tournamentCmd.MarkFlagRequired("model")
	tournamentCmd.MarkFlagRequired("tasks")
	tournamentCmd.MarkFlagRequired("scaffold")
}
