// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tools provides the verified filesystem tool layer: path guarding,
// atomic mutations, post-condition verification, and the tool registry the
// orchestrator dispatches through.
package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PathGuard enforces the filesystem sandbox: every inbound path must resolve
// inside one of the allowed roots, and a second deny-list blocks destructive
// operations on protected targets even when the allow-list passes.
type PathGuard struct {
	allowedRoots   []string
	protectedPaths map[string]struct{}
	home           string
}

// NewPathGuard builds the default guard: user home plus /tmp.
func NewPathGuard() (*PathGuard, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user home: %w", err)
	}
	home, err = canonicalize(home)
	if err != nil {
		return nil, fmt.Errorf("canonicalize user home: %w", err)
	}
	tmp, err := canonicalize("/tmp")
	if err != nil {
		return nil, fmt.Errorf("canonicalize /tmp: %w", err)
	}
	return NewPathGuardWithRoots(home, []string{home, tmp}), nil
}

// NewPathGuardWithRoots builds a guard with explicit roots. Tests use this to
// sandbox the guard inside a temp directory.
func NewPathGuardWithRoots(home string, roots []string) *PathGuard {
	protected := map[string]struct{}{
		"/":             {},
		"/Users":        {},
		"/System":       {},
		"/Library":      {},
		"/Applications": {},
		"/etc":          {},
		"/usr":          {},
		"/var":          {},
		home:            {},
	}
	return &PathGuard{
		allowedRoots:   roots,
		protectedPaths: protected,
		home:           home,
	}
}

// Home returns the canonical user home the guard was built with.
func (g *PathGuard) Home() string { return g.home }

// EnsureAllowed expands, canonicalizes and validates a path against the
// allow-list. Returns the canonical path, or an error before any I/O when
// the path lies outside every allowed root.
func (g *PathGuard) EnsureAllowed(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("empty path")
	}
	expanded := g.ExpandHome(path)
	resolved, err := canonicalize(expanded)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	for _, root := range g.allowedRoots {
		if resolved == root || strings.HasPrefix(resolved, root+string(filepath.Separator)) {
			return resolved, nil
		}
	}
	return "", fmt.Errorf("path %s is outside allowed roots", resolved)
}

// IsProtected reports whether destructive operations on the path are blocked
// by the deny-list.
func (g *PathGuard) IsProtected(resolved string) bool {
	_, ok := g.protectedPaths[resolved]
	return ok
}

// ExpandHome rewrites a leading "~" to the user's home directory.
func (g *PathGuard) ExpandHome(path string) string {
	if path == "~" {
		return g.home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(g.home, path[2:])
	}
	return path
}

// ShortPath renders a path with the home prefix replaced by "~" for display.
func (g *PathGuard) ShortPath(path string) string {
	if path == g.home {
		return "~"
	}
	if strings.HasPrefix(path, g.home+string(filepath.Separator)) {
		return "~" + path[len(g.home):]
	}
	return path
}

// canonicalize makes the path absolute, cleans it, and follows symlinks on
// the longest existing ancestor so that a not-yet-created target still gets
// a canonical parent.
func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	abs = filepath.Clean(abs)

	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}

	// The target does not exist yet. Resolve the deepest existing ancestor
	// and re-append the remainder.
	dir, base := filepath.Split(abs)
	dir = filepath.Clean(dir)
	if dir == abs {
		return abs, nil
	}
	resolvedDir, err := canonicalize(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedDir, base), nil
}
