// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command craftctl is the administrative CLI for a running craftd server:
// interactive settings editing, one-shot scene analysis, and a live
// tournament-progress display.
//
// Usage:
//
//	craftctl settings get scoring.tier.a_threshold --project demo
//	craftctl settings set
//	craftctl analyze scene.txt --project demo --model claude-haiku-4-5-20251001
//	craftctl tournament --project demo --model claude-haiku-4-5-20251001 --tasks tasks.json --scaffold scaffold.txt
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var serverURL string

var errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#e53935")).Bold(true)

var rootCmd = &cobra.Command{
	Use:   "craftctl",
	Short: "Administrative CLI for the Craft Quality Engine",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("CRAFTD_URL", "http://localhost:8090/v1/craft"), "craftd base URL")
	rootCmd.AddCommand(settingsCmd, analyzeCmd, tournamentCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error:"), err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
