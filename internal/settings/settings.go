// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package settings implements the Settings Resolver: a three-tier
// (project -> global -> default) typed configuration lookup keyed by dotted
// paths, with type/range/choice validation on write and a change-event feed
// for cache invalidation by dependents (Pattern Library, Model Router).
//
// Grounded on services/trace/agent/providers/config.go's ResolveOllamaURL,
// which already implements a tiered env-var resolution (explicit var ->
// deprecated var -> hardcoded default); this package generalizes that same
// "first defined value wins" shape from two tiers to three and from
// environment variables to an arbitrary path-keyed store.
package settings

import (
	"fmt"
	"sort"
	"sync"

	"github.com/craftquality/craftengine/internal/errs"
)

// Scope identifies which tier a value is written to.
type Scope string

const (
	ScopeProject Scope = "project"
	ScopeGlobal  Scope = "global"
)

// Kind describes the validated type of a setting.
type Kind string

const (
	KindBool   Kind = "bool"
	KindNumber Kind = "number"
	KindString Kind = "string"
	KindList   Kind = "list"
)

// Spec declares the type, default, and validation rule for one dotted path.
// Every path the resolver knows about must have a Spec registered at build
// time; Specs are the typed-configuration-structure replacement for the
// teacher's ad hoc string-keyed lookups (§9 redesign flag).
type Spec struct {
	Path        string
	Kind        Kind
	Default     any
	Choices     []string // valid values when Kind == KindString and non-empty
	Min, Max    float64  // inclusive range when Kind == KindNumber and Max > Min
	ElementKind Kind      // element type when Kind == KindList
}

// Store is the external persistence boundary the spec requires:
// {read_all, write_one}. Durability is the Store implementation's concern;
// the Resolver only orchestrates tiered lookup and validation.
type Store interface {
	ReadAll(projectID string) (map[string]any, error)
	WriteOne(projectID, path string, value any) error
}

// ChangeEvent is emitted on every successful Set, letting the Pattern
// Library and Model Router invalidate caches keyed by path.
type ChangeEvent struct {
	ProjectID string
	Path      string
	Scope     Scope
	Value     any
}

// Resolver implements the three-tier lookup and typed validation.
//
// Thread Safety: safe for concurrent reads; writes for a given project are
// serialized via a per-project lock, matching the spec's "writes serialized
// per project" requirement.
type Resolver struct {
	specs map[string]Spec

	projectStore Store
	globalStore  Store

	mu          sync.RWMutex
	projectLock map[string]*sync.Mutex

	subMu       sync.Mutex
	subscribers []chan ChangeEvent
}

// New builds a Resolver from a fixed set of Specs and the project/global
// stores. Both stores may be the same Store instance scoped by project_id
// convention (e.g. "" for global).
func New(specs []Spec, projectStore, globalStore Store) *Resolver {
	m := make(map[string]Spec, len(specs))
	for _, s := range specs {
		m[s.Path] = s
	}
	return &Resolver{
		specs:        m,
		projectStore: projectStore,
		globalStore:  globalStore,
		projectLock:  make(map[string]*sync.Mutex),
	}
}

// Subscribe registers a channel that receives every ChangeEvent. The caller
// owns draining it; Subscribe never blocks Set (sends are non-blocking and
// drop on a full channel, matching a best-effort cache-invalidation feed).
func (r *Resolver) Subscribe(buf int) <-chan ChangeEvent {
	ch := make(chan ChangeEvent, buf)
	r.subMu.Lock()
	r.subscribers = append(r.subscribers, ch)
	r.subMu.Unlock()
	return ch
}

func (r *Resolver) publish(ev ChangeEvent) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for _, ch := range r.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Get resolves path in strict precedence order: project value, then global,
// then the compiled-in default. projectID == "" skips the project tier.
func (r *Resolver) Get(path string, projectID string) (any, error) {
	spec, ok := r.specs[path]
	if !ok {
		return nil, errs.New(errs.KindInvalidSetting, "unknown setting path %q", path)
	}

	if projectID != "" && r.projectStore != nil {
		all, err := r.projectStore.ReadAll(projectID)
		if err != nil {
			return nil, errs.Wrap(errs.KindInternal, err, "reading project settings for %q", projectID)
		}
		if v, ok := all[path]; ok {
			return v, nil
		}
	}

	if r.globalStore != nil {
		all, err := r.globalStore.ReadAll("")
		if err != nil {
			return nil, errs.Wrap(errs.KindInternal, err, "reading global settings")
		}
		if v, ok := all[path]; ok {
			return v, nil
		}
	}

	return spec.Default, nil
}

// GetBool, GetNumber, GetString, GetList are typed convenience wrappers.
func (r *Resolver) GetBool(path, projectID string) (bool, error) {
	v, err := r.Get(path, projectID)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, errs.New(errs.KindInvalidSetting, "setting %q is not a bool", path)
	}
	return b, nil
}

func (r *Resolver) GetNumber(path, projectID string) (float64, error) {
	v, err := r.Get(path, projectID)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	default:
		return 0, errs.New(errs.KindInvalidSetting, "setting %q is not a number", path)
	}
}

func (r *Resolver) GetString(path, projectID string) (string, error) {
	v, err := r.Get(path, projectID)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", errs.New(errs.KindInvalidSetting, "setting %q is not a string", path)
	}
	return s, nil
}

func (r *Resolver) GetList(path, projectID string) ([]any, error) {
	v, err := r.Get(path, projectID)
	if err != nil {
		return nil, err
	}
	l, ok := v.([]any)
	if !ok {
		return nil, errs.New(errs.KindInvalidSetting, "setting %q is not a list", path)
	}
	return l, nil
}

// Set validates and writes value at the given scope. Validation never
// silently coerces: a type, choice, or range mismatch fails with
// InvalidSetting and the write does not occur.
func (r *Resolver) Set(path string, value any, scope Scope, projectID string) error {
	spec, ok := r.specs[path]
	if !ok {
		return errs.New(errs.KindInvalidSetting, "unknown setting path %q", path)
	}
	if err := validate(spec, value); err != nil {
		return err
	}

	var store Store
	switch scope {
	case ScopeProject:
		if projectID == "" {
			return errs.New(errs.KindInvalidSetting, "project scope requires a project_id")
		}
		store = r.projectStore
	case ScopeGlobal:
		store = r.globalStore
	default:
		return errs.New(errs.KindInvalidSetting, "unknown scope %q", scope)
	}
	if store == nil {
		return errs.New(errs.KindInternal, "no store configured for scope %q", scope)
	}

	lock := r.lockFor(projectID)
	lock.Lock()
	defer lock.Unlock()

	key := projectID
	if scope == ScopeGlobal {
		key = ""
	}
	if err := store.WriteOne(key, path, value); err != nil {
		return errs.Wrap(errs.KindInternal, err, "writing setting %q", path)
	}

	r.publish(ChangeEvent{ProjectID: projectID, Path: path, Scope: scope, Value: value})
	return nil
}

func (r *Resolver) lockFor(projectID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.projectLock[projectID]
	if !ok {
		l = &sync.Mutex{}
		r.projectLock[projectID] = l
	}
	return l
}

// Paths returns every registered dotted path in sorted order, useful for UI
// enumeration and documentation generation.
func (r *Resolver) Paths() []string {
	paths := make([]string, 0, len(r.specs))
	for p := range r.specs {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func validate(spec Spec, value any) error {
	switch spec.Kind {
	case KindBool:
		if _, ok := value.(bool); !ok {
			return errs.New(errs.KindInvalidSetting, "%q expects a bool, got %T", spec.Path, value)
		}
	case KindNumber:
		n, ok := toFloat(value)
		if !ok {
			return errs.New(errs.KindInvalidSetting, "%q expects a number, got %T", spec.Path, value)
		}
		if spec.Max > spec.Min && (n < spec.Min || n > spec.Max) {
			return errs.New(errs.KindInvalidSetting, "%q value %v out of range [%v, %v]", spec.Path, n, spec.Min, spec.Max)
		}
	case KindString:
		s, ok := value.(string)
		if !ok {
			return errs.New(errs.KindInvalidSetting, "%q expects a string, got %T", spec.Path, value)
		}
		if len(spec.Choices) > 0 && !contains(spec.Choices, s) {
			return errs.New(errs.KindInvalidSetting, "%q value %q not in allowed set %v", spec.Path, s, spec.Choices)
		}
	case KindList:
		l, ok := value.([]any)
		if !ok {
			return errs.New(errs.KindInvalidSetting, "%q expects a list, got %T", spec.Path, value)
		}
		for i, el := range l {
			if err := validateElement(spec, el); err != nil {
				return errs.New(errs.KindInvalidSetting, "%q element %d: %v", spec.Path, i, err)
			}
		}
	default:
		return errs.New(errs.KindInvalidSetting, "%q has unknown kind %q", spec.Path, spec.Kind)
	}
	return nil
}

func validateElement(spec Spec, el any) error {
	switch spec.ElementKind {
	case KindString, "":
		if _, ok := el.(string); !ok {
			return fmt.Errorf("expects string element, got %T", el)
		}
	case KindNumber:
		if _, ok := toFloat(el); !ok {
			return fmt.Errorf("expects numeric element, got %T", el)
		}
	case KindBool:
		if _, ok := el.(bool); !ok {
			return fmt.Errorf("expects bool element, got %T", el)
		}
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
