// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package voicebundle loads, validates, and hot-reloads the per-project
// Voice Bundle: the complete style contract consumed by the Analyzer and
// Enhancement Engine. The core ships no domain-specific craft rules as code
// (§9) — every anti-pattern, metaphor domain, and phase profile lives in this
// YAML document.
//
// Grounded on other_examples pkg-ml-scorer's config.go (YAML-driven
// keyword-weight config with validation on load and a file-watch reload
// path) and the teacher's own fsnotify-based config watching pattern.
package voicebundle

import (
	"fmt"
	"os"
	"regexp"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/craftquality/craftengine/internal/errs"
	"github.com/craftquality/craftengine/internal/obs"
)

// SimilePolicy is the allowed-simile-usage enum.
type SimilePolicy string

const (
	SimileForbid SimilePolicy = "forbid"
	SimileLimit  SimilePolicy = "limit" // paired with a numeric N, see Bundle.SimileLimitN
	SimileAllow  SimilePolicy = "allow"
)

// Severity classifies an anti-pattern entry's scoring weight.
type Severity string

const (
	SeverityZeroTolerance Severity = "zero_tolerance"
	SeverityFormulaic     Severity = "formulaic"
	SeverityAdvisory      Severity = "advisory"
)

// AntiPattern is one banned construction.
type AntiPattern struct {
	Pattern     string   `yaml:"pattern"`
	Description string   `yaml:"description"`
	Severity    Severity `yaml:"severity"`

	compiled *regexp.Regexp
}

// MetaphorDomain is one named figurative-language lexicon with a saturation
// cap.
type MetaphorDomain struct {
	Name          string   `yaml:"name"`
	Keywords      []string `yaml:"keywords"`
	MaxPercentage float64  `yaml:"max_percentage"`

	keywordSet map[string]bool
}

// PhaseProfile declares the allowed/forbidden register for one narrative
// phase. Phases are totally ordered; Order is assigned by document position.
type PhaseProfile struct {
	PhaseName            string   `yaml:"phase_name"`
	AllowedTechnicalVocab []string `yaml:"allowed_technical_vocab"`
	ForbiddenConstructs   []string `yaml:"forbidden_constructs"`
	Order                 int      `yaml:"-"`
}

// Bundle is the fully parsed and validated Voice Bundle.
type Bundle struct {
	GoldStandard    string           `yaml:"gold_standard"`
	AntiPatterns    []AntiPattern    `yaml:"anti_patterns"`
	MetaphorDomains []MetaphorDomain `yaml:"metaphor_domains"`
	SimilePolicyRaw string           `yaml:"simile_policy"`
	POV             string           `yaml:"pov"`
	Tense           string           `yaml:"tense"`
	PhaseProfiles   []PhaseProfile   `yaml:"phase_profiles"`

	SimilePolicy SimilePolicy `yaml:"-"`
	SimileLimitN int          `yaml:"-"`
}

// Parse decodes and validates raw YAML into a Bundle. Invariants enforced
// per §3: metaphor-domain caps in (0,1]; every anti-pattern regex
// individually compiles; phases are totally ordered (assigned by position,
// duplicates rejected).
func Parse(raw []byte) (*Bundle, error) {
	var b Bundle
	if err := yaml.Unmarshal(raw, &b); err != nil {
		return nil, errs.Wrap(errs.KindVoiceBundleInvalid, err, "parsing voice bundle yaml")
	}

	if err := parseSimilePolicy(&b); err != nil {
		return nil, err
	}

	for i := range b.AntiPatterns {
		ap := &b.AntiPatterns[i]
		compiled, err := regexp.Compile(`(?i)\b(?:` + ap.Pattern + `)\b`)
		if err != nil {
			return nil, errs.New(errs.KindVoiceBundleInvalid,
				"anti_patterns[%d] pattern %q does not compile: %v", i, ap.Pattern, err)
		}
		ap.compiled = compiled
		switch ap.Severity {
		case SeverityZeroTolerance, SeverityFormulaic, SeverityAdvisory:
		default:
			return nil, errs.New(errs.KindVoiceBundleInvalid,
				"anti_patterns[%d] has unknown severity %q", i, ap.Severity)
		}
	}

	seenDomain := make(map[string]bool, len(b.MetaphorDomains))
	for i := range b.MetaphorDomains {
		d := &b.MetaphorDomains[i]
		if d.MaxPercentage <= 0 || d.MaxPercentage > 1 {
			return nil, errs.New(errs.KindVoiceBundleInvalid,
				"metaphor_domains[%d] %q max_percentage %v must be in (0, 1]", i, d.Name, d.MaxPercentage)
		}
		if seenDomain[d.Name] {
			return nil, errs.New(errs.KindVoiceBundleInvalid, "duplicate metaphor domain %q", d.Name)
		}
		seenDomain[d.Name] = true
		d.keywordSet = make(map[string]bool, len(d.Keywords))
		for _, kw := range d.Keywords {
			d.keywordSet[kw] = true
		}
	}

	seenPhase := make(map[string]bool, len(b.PhaseProfiles))
	for i := range b.PhaseProfiles {
		p := &b.PhaseProfiles[i]
		if seenPhase[p.PhaseName] {
			return nil, errs.New(errs.KindVoiceBundleInvalid, "duplicate phase %q", p.PhaseName)
		}
		seenPhase[p.PhaseName] = true
		p.Order = i
	}

	return &b, nil
}

func parseSimilePolicy(b *Bundle) error {
	switch {
	case b.SimilePolicyRaw == string(SimileForbid):
		b.SimilePolicy = SimileForbid
	case b.SimilePolicyRaw == string(SimileAllow):
		b.SimilePolicy = SimileAllow
	case len(b.SimilePolicyRaw) > len("limit:") && b.SimilePolicyRaw[:6] == "limit:":
		b.SimilePolicy = SimileLimit
		var n int
		if _, err := fmt.Sscanf(b.SimilePolicyRaw[6:], "%d", &n); err != nil || n < 0 {
			return errs.New(errs.KindVoiceBundleInvalid, "invalid simile_policy %q", b.SimilePolicyRaw)
		}
		b.SimileLimitN = n
	default:
		return errs.New(errs.KindVoiceBundleInvalid, "unknown simile_policy %q", b.SimilePolicyRaw)
	}
	return nil
}

// AntiPatternRegexp exposes the compiled matcher for an anti-pattern entry.
func (a *AntiPattern) AntiPatternRegexp() *regexp.Regexp { return a.compiled }

// HasKeyword reports whether a lowercase token belongs to this domain's
// lexicon.
func (d *MetaphorDomain) HasKeyword(token string) bool { return d.keywordSet[token] }

// PhaseByName looks up a phase profile, reporting whether it exists.
func (b *Bundle) PhaseByName(name string) (PhaseProfile, bool) {
	for _, p := range b.PhaseProfiles {
		if p.PhaseName == name {
			return p, true
		}
	}
	return PhaseProfile{}, false
}

// Store hot-reloads a Voice Bundle from disk whenever fsnotify reports a
// write to or creation of the file,
// grounded on the teacher's fsnotify-based config watch. Readers call
// Current() for a consistent snapshot; Subscribe() receives a notification
// on every successful reload so the Pattern Library can recompile.
type Store struct {
	path string

	mu      sync.RWMutex
	current *Bundle

	subMu       sync.Mutex
	subscribers []chan struct{}

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// Load reads and validates the bundle at path, then starts an fsnotify
// watch for subsequent changes. Callers must call Close when done.
func Load(path string) (*Store, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.KindVoiceBundleInvalid, err, "reading voice bundle %q", path)
	}
	b, err := Parse(raw)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, err, "starting voice bundle watcher")
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, errs.Wrap(errs.KindInternal, err, "watching voice bundle %q", path)
	}

	s := &Store{path: path, current: b, watcher: watcher, done: make(chan struct{})}
	go s.watchLoop()
	return s, nil
}

// Current returns the most recently loaded, valid Bundle.
func (s *Store) Current() *Bundle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Subscribe registers a channel notified (non-blocking, best-effort) after
// every successful reload.
func (s *Store) Subscribe(buf int) <-chan struct{} {
	ch := make(chan struct{}, buf)
	s.subMu.Lock()
	s.subscribers = append(s.subscribers, ch)
	s.subMu.Unlock()
	return ch
}

func (s *Store) publish() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *Store) watchLoop() {
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			s.reload()
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			obs.Logger().Warn("voice bundle watch error", "path", s.path, "error", err)
		}
	}
}

func (s *Store) reload() {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		obs.Logger().Warn("voice bundle reload: read failed", "path", s.path, "error", err)
		return
	}
	b, err := Parse(raw)
	if err != nil {
		obs.Logger().Warn("voice bundle reload: validation failed, keeping previous bundle", "path", s.path, "error", err)
		return
	}
	s.mu.Lock()
	s.current = b
	s.mu.Unlock()
	obs.Logger().Info("voice bundle reloaded", "path", s.path)
	s.publish()
}

// Close stops the filesystem watch.
func (s *Store) Close() error {
	close(s.done)
	return s.watcher.Close()
}
