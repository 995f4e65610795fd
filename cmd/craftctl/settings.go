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
	"net/url"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Inspect and edit the Settings Resolver",
}

var settingsGetProject string

var settingsGetCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "Resolve a dotted setting path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var value any
		q := "/settings?path=" + url.QueryEscape(args[0])
		if settingsGetProject != "" {
			q += "&project_id=" + url.QueryEscape(settingsGetProject)
		}
		if err := getJSON(q, &value); err != nil {
			return err
		}
		fmt.Printf("%s = %v\n", args[0], value)
		return nil
	},
}

// settingsSetCmd interactively prompts for a path, value, scope, and project
// via huh forms, then writes it through craftd.
var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Interactively write a setting",
	RunE: func(cmd *cobra.Command, args []string) error {
		var path, rawValue, scope, projectID string
		scopeOptions := []huh.Option[string]{
			huh.NewOption("project", "project"),
			huh.NewOption("global", "global"),
		}

		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Setting path").
					Placeholder("enhancement.action_prompt_threshold").
					Value(&path),
				huh.NewInput().
					Title("New value").
					Placeholder("85").
					Value(&rawValue),
				huh.NewSelect[string]().
					Title("Scope").
					Options(scopeOptions...).
					Value(&scope),
				huh.NewInput().
					Title("Project ID (blank for global)").
					Value(&projectID),
			),
		)
		if err := form.Run(); err != nil {
			return err
		}

		value := parseSettingValue(rawValue)
		err := postJSON("/settings", map[string]any{
			"path":       path,
			"value":      value,
			"scope":      scope,
			"project_id": projectID,
		}, nil)
		if err != nil {
			return err
		}

		successStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A")).Bold(true)
		fmt.Println(successStyle.Render("✔"), "updated", path)
		return nil
	},
}

// parseSettingValue interprets raw CLI/form input as bool, number, or
// string, matching the Settings Resolver's typed Spec validation rather
// than sending every value as a string.
func parseSettingValue(raw string) any {
	if raw == "true" || raw == "false" {
		return raw == "true"
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return n
	}
	return raw
}

func init() {
	settingsGetCmd.Flags().StringVar(&settingsGetProject, "project", "", "project ID (empty resolves global/default only)")
	settingsCmd.AddCommand(settingsGetCmd, settingsSetCmd)
}
