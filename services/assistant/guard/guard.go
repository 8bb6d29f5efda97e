// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package guard blocks hallucinated action confirmations.
//
// The model must never claim a filesystem action happened unless a verified
// tool result attests to it. On turns where no tool ran, every model reply
// passes through the guard: if it matches a claim pattern and no safe
// clause neutralizes it within the same sentence, the reply is replaced
// with a fixed clarification prompt.
//
// The pattern set is baked into the binary via go:embed so it cannot be
// tampered with on the host filesystem.
package guard

import (
	_ "embed"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ClarificationPrompt replaces any blocked reply.
const ClarificationPrompt = "I need more information to complete that action. " +
	"Could you specify the exact file path or which file you mean?"

//go:embed claim_patterns.yaml
var claimPatternData []byte

type patternSpec struct {
	ID          string `yaml:"id"`
	Priority    int    `yaml:"priority"`
	Description string `yaml:"description"`
	Pattern     string `yaml:"pattern"`
}

type patternFile struct {
	ClaimPatterns   []patternSpec `yaml:"claim_patterns"`
	SafePatterns    []patternSpec `yaml:"safe_patterns"`
	ContrastPattern string        `yaml:"contrast_pattern"`
}

type compiledPattern struct {
	id       string
	priority int
	re       *regexp.Regexp
}

// Guard holds the compiled claim and safe patterns.
type Guard struct {
	claims   []compiledPattern
	safes    []compiledPattern
	contrast *regexp.Regexp
}

// New compiles the embedded pattern file. It performs:
//  1. Unmarshal of the embedded YAML.
//  2. Compilation of every regex.
//  3. Priority sort of the claim patterns (highest first).
//
// Returns an error if the embedded YAML is malformed or a regex is invalid.
func New() (*Guard, error) {
	var file patternFile
	if err := yaml.Unmarshal(claimPatternData, &file); err != nil {
		return nil, fmt.Errorf("unmarshal embedded claim patterns: %w", err)
	}
	claims, err := compileAll(file.ClaimPatterns)
	if err != nil {
		return nil, err
	}
	safes, err := compileAll(file.SafePatterns)
	if err != nil {
		return nil, err
	}
	contrast, err := regexp.Compile(file.ContrastPattern)
	if err != nil {
		return nil, fmt.Errorf("compile contrast pattern: %w", err)
	}
	sort.SliceStable(claims, func(i, j int) bool {
		return claims[i].priority > claims[j].priority
	})
	return &Guard{claims: claims, safes: safes, contrast: contrast}, nil
}

func compileAll(specs []patternSpec) ([]compiledPattern, error) {
	out := make([]compiledPattern, 0, len(specs))
	for _, spec := range specs {
		re, err := regexp.Compile(spec.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compile pattern %s: %w", spec.ID, err)
		}
		out = append(out, compiledPattern{id: spec.ID, priority: spec.Priority, re: re})
	}
	return out, nil
}

// Finding reports the claim pattern that tripped the guard.
type Finding struct {
	PatternID string
	Matched   string
}

// Inspect reports whether the text contains a hallucinated action claim.
//
// A claim is neutralized when a safe clause appears before it with no
// sentence boundary in between ("I can't delete that" is honest); a claim
// introduced by a contrast word ("...but I've deleted it") is never
// neutralized.
func (g *Guard) Inspect(text string) (*Finding, bool) {
	lower := strings.ToLower(text)

	var finding *Finding
	for _, claim := range g.claims {
		if m := claim.re.FindString(lower); m != "" {
			finding = &Finding{PatternID: claim.id, Matched: m}
			break
		}
	}
	if finding == nil {
		return nil, false
	}

	if g.contrast.MatchString(lower) {
		return finding, true
	}

	claimPos := strings.Index(lower, finding.Matched)
	for _, safe := range g.safes {
		loc := safe.re.FindStringIndex(lower)
		if loc == nil {
			continue
		}
		if claimPos < loc[0] {
			// A safe clause after the claim does not negate it.
			continue
		}
		between := lower[loc[0]:claimPos]
		if !strings.ContainsAny(between, ".!") {
			return nil, false
		}
	}
	return finding, true
}

// Validate checks a model reply. Text accompanying a real tool result is
// trusted and bypasses the guard. Returns the reply to show the user, the
// finding when one tripped, and whether the reply was replaced.
func (g *Guard) Validate(response string, toolExecuted bool) (string, *Finding, bool) {
	if toolExecuted {
		return response, nil, false
	}
	if finding, bad := g.Inspect(response); bad {
		return ClarificationPrompt, finding, true
	}
	return response, nil, false
}
