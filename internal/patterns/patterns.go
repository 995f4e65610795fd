// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package patterns implements the Pattern Library: compiled anti-pattern
// regex sets, metaphor-domain lexicons with fractional token attribution,
// and simile detectors with contextual windowing, all compiled from the
// active Voice Bundle. Recompile swaps in a newer bundle or options; nothing
// in this package watches for bundle or settings changes itself.
//
// Grounded on other_examples pkg-ml-scorer_config.go's keyword-weight
// scanner (tokenize -> per-keyword weight lookup -> aggregate score) and the
// teacher's sync.RWMutex-guarded hot-swappable config pattern used for the
// egress TokenBudget/RateLimiter maps.
package patterns

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/craftquality/craftengine/internal/voicebundle"
)

// MatchKind classifies an entry in a Scan result.
type MatchKind string

const (
	KindAntiPattern MatchKind = "anti_pattern"
	KindMetaphor    MatchKind = "metaphor"
	KindSimile      MatchKind = "simile"
)

// Match is one ordered hit, with stable line/column indexing (1-based line,
// 0-based column within the line) so reporting is deterministic across runs.
type Match struct {
	Kind        MatchKind
	PatternID   string // anti_pattern description, domain name, or "simile"
	Severity    voicebundle.Severity
	Line        int
	Col         int
	Text        string
	DomainName  string  // set for KindMetaphor
	Fraction    float64 // fractional attribution for ambiguous metaphor tokens; 1.0 for unambiguous
}

var simileMarkers = []string{"like", "as if", "as though", "resembled", "resembling"}

// idiomaticSimileExceptions excludes common non-figurative uses of "like"
// (e.g. "I like", "would like to") from the conservative simile scan.
var idiomaticSimileExceptions = regexp.MustCompile(`(?i)\b(I|we|you|they|he|she)\s+('?d\s+)?like\b|\blike\s+to\b|\bfeel\s+like\b`)

// Library is the compiled, scan-ready form of one Voice Bundle.
type Library struct {
	mu sync.RWMutex

	antiPatterns []voicebundle.AntiPattern
	domains      []voicebundle.MetaphorDomain
	similePolicy voicebundle.SimilePolicy
	simileLimitN int

	densitySuppressionThreshold float64
	contextWindow               int
}

// Options configures density-based simile suppression and the idiom context
// window; the caller supplies the values at construction time.
type Options struct {
	SimileDensitySuppressionThreshold float64
	SimileContextWindow               int
}

// Compile builds a Library from a Voice Bundle snapshot and options.
func Compile(b *voicebundle.Bundle, opts Options) *Library {
	l := &Library{
		antiPatterns:                b.AntiPatterns,
		domains:                     b.MetaphorDomains,
		similePolicy:                b.SimilePolicy,
		simileLimitN:                b.SimileLimitN,
		densitySuppressionThreshold: opts.SimileDensitySuppressionThreshold,
		contextWindow:               opts.SimileContextWindow,
	}
	return l
}

// Recompile atomically swaps this Library's compiled state for a newer
// Voice Bundle/options pair, used on a change-event callback.
func (l *Library) Recompile(b *voicebundle.Bundle, opts Options) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.antiPatterns = b.AntiPatterns
	l.domains = b.MetaphorDomains
	l.similePolicy = b.SimilePolicy
	l.simileLimitN = b.SimileLimitN
	l.densitySuppressionThreshold = opts.SimileDensitySuppressionThreshold
	l.contextWindow = opts.SimileContextWindow
}

// lineOffsets returns the starting byte offset of each line in text (1-indexed
// access via lineOffsets[lineNum-1]) to translate a match's byte index into
// a (line, col) pair.
func lineOffsets(text string) []int {
	offsets := []int{0}
	for i, r := range text {
		if r == '\n' {
			offsets = append(offsets, i+1)
		}
	}
	return offsets
}

func lineCol(offsets []int, idx int) (line, col int) {
	line = sort.Search(len(offsets), func(i int) bool { return offsets[i] > idx }) - 1
	if line < 0 {
		line = 0
	}
	return line + 1, idx - offsets[line]
}

// ScanAntiPatterns returns every anti-pattern hit, case-insensitive with
// word-boundary semantics enforced by the compiled regex itself (§4.2).
func (l *Library) ScanAntiPatterns(text string) []Match {
	l.mu.RLock()
	defer l.mu.RUnlock()

	offsets := lineOffsets(text)
	var out []Match
	for _, ap := range l.antiPatterns {
		re := ap.AntiPatternRegexp()
		if re == nil {
			continue
		}
		for _, loc := range re.FindAllStringIndex(text, -1) {
			line, col := lineCol(offsets, loc[0])
			out = append(out, Match{
				Kind:      KindAntiPattern,
				PatternID: ap.Description,
				Severity:  ap.Severity,
				Line:      line,
				Col:       col,
				Text:      text[loc[0]:loc[1]],
			})
		}
	}
	return out
}

// tokenize splits text into lowercase word tokens with their byte offsets.
func tokenize(text string) (tokens []string, offsets []int) {
	var b strings.Builder
	start := -1
	for i, r := range text {
		if unicode.IsLetter(r) || r == '\'' {
			if start < 0 {
				start = i
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		if start >= 0 {
			tokens = append(tokens, b.String())
			offsets = append(offsets, start)
			b.Reset()
			start = -1
		}
	}
	if start >= 0 {
		tokens = append(tokens, b.String())
		offsets = append(offsets, start)
	}
	return tokens, offsets
}

// MetaphorReport summarizes per-domain saturation for one scan.
type MetaphorReport struct {
	Matches       []Match
	DomainPercent map[string]float64
}

// ScanMetaphors tokenizes text and attributes each token to every metaphor
// domain whose lexicon contains it. An ambiguous token (matching N domains)
// attributes 1/N of a hit to each, per §4.2/§9. Domain percentage is the sum
// of fractional attributions divided by total token count.
func (l *Library) ScanMetaphors(text string) MetaphorReport {
	l.mu.RLock()
	defer l.mu.RUnlock()

	tokens, byteOffsets := tokenize(text)
	offsets := lineOffsets(text)
	report := MetaphorReport{DomainPercent: make(map[string]float64, len(l.domains))}
	if len(tokens) == 0 || len(l.domains) == 0 {
		return report
	}

	domainTotals := make(map[string]float64, len(l.domains))
	for i, tok := range tokens {
		var hitDomains []string
		for _, d := range l.domains {
			if d.HasKeyword(tok) {
				hitDomains = append(hitDomains, d.Name)
			}
		}
		if len(hitDomains) == 0 {
			continue
		}
		fraction := 1.0 / float64(len(hitDomains))
		line, col := lineCol(offsets, byteOffsets[i])
		for _, dn := range hitDomains {
			domainTotals[dn] += fraction
			report.Matches = append(report.Matches, Match{
				Kind:       KindMetaphor,
				PatternID:  dn,
				DomainName: dn,
				Line:       line,
				Col:        col,
				Text:       tok,
				Fraction:   fraction,
			})
		}
	}

	for dn, total := range domainTotals {
		report.DomainPercent[dn] = total / float64(len(tokens))
	}
	return report
}

// ScanSimiles conservatively counts every simile-marker candidate (skipping
// an idiomatic "like" recognized within the context window), then reports
// the candidates only when their density (candidates per word) exceeds a
// configurable threshold; at or below it the result is empty.
func (l *Library) ScanSimiles(text string) []Match {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.similePolicy == voicebundle.SimileAllow {
		return nil
	}

	offsets := lineOffsets(text)
	lower := strings.ToLower(text)
	var candidates []Match
	for _, marker := range simileMarkers {
		start := 0
		for {
			idx := strings.Index(lower[start:], marker)
			if idx < 0 {
				break
			}
			abs := start + idx
			start = abs + len(marker)

			windowStart := abs - l.contextWindow
			if windowStart < 0 {
				windowStart = 0
			}
			windowEnd := abs + len(marker) + l.contextWindow
			if windowEnd > len(text) {
				windowEnd = len(text)
			}
			window := text[windowStart:windowEnd]
			if marker == "like" && idiomaticSimileExceptions.MatchString(window) {
				continue
			}

			line, col := lineCol(offsets, abs)
			candidates = append(candidates, Match{
				Kind:      KindSimile,
				PatternID: "simile",
				Line:      line,
				Col:       col,
				Text:      text[abs : abs+len(marker)],
			})
		}
	}

	if len(candidates) == 0 {
		return nil
	}

	wordCount := strings.Fields(text)
	density := float64(len(candidates)) / float64(maxInt(len(wordCount), 1))
	if density <= l.densitySuppressionThreshold {
		return nil
	}
	return candidates
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Scan runs every detector and returns a single ordered, deterministic
// match list: anti-pattern, metaphor and simile hits sorted together by
// (line asc, col asc), with hits at the same position kept in that
// detector order.
func (l *Library) Scan(text string) []Match {
	all := append([]Match{}, l.ScanAntiPatterns(text)...)
	metaphor := l.ScanMetaphors(text)
	all = append(all, metaphor.Matches...)
	all = append(all, l.ScanSimiles(text)...)

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Line != all[j].Line {
			return all[i].Line < all[j].Line
		}
		return all[i].Col < all[j].Col
	})
	return all
}
