// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Reference resolver: maps utterances like "it", "the second one", or
// "report.pdf" to tracked entities with graded confidence.
package conversation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/AleutianAI/AleutianAssistant/services/assistant/datatypes"
)

// The resolution pipeline is ordered; the first stage that fires decides:
// explicit path, ordinal over the current selection, pronoun, recency
// phrase, partial name match.

var filePronouns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bit\b`),
	regexp.MustCompile(`(?i)\bthat\b`),
	regexp.MustCompile(`(?i)\bthis\b`),
	regexp.MustCompile(`(?i)\bthe file\b`),
	regexp.MustCompile(`(?i)\bquel file\b`),
	regexp.MustCompile(`(?i)\bquesto\b`),
	regexp.MustCompile(`(?i)\bquello\b`),
}

var folderPronouns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bthe folder\b`),
	regexp.MustCompile(`(?i)\bthe directory\b`),
	regexp.MustCompile(`(?i)\bthat folder\b`),
	regexp.MustCompile(`(?i)\bla cartella\b`),
	regexp.MustCompile(`(?i)\bla directory\b`),
}

type ordinalPattern struct {
	re    *regexp.Regexp
	index int // -1 means "last"
}

var ordinalPatterns = []ordinalPattern{
	{regexp.MustCompile(`(?i)\b(the )?(first|1st|primo)\b`), 0},
	{regexp.MustCompile(`(?i)\b(the )?(second|2nd|secondo)\b`), 1},
	{regexp.MustCompile(`(?i)\b(the )?(third|3rd|terzo)\b`), 2},
	{regexp.MustCompile(`(?i)\b(the )?(fourth|4th|quarto)\b`), 3},
	{regexp.MustCompile(`(?i)\b(the )?(fifth|5th|quinto)\b`), 4},
	{regexp.MustCompile(`(?i)\b(the )?(last|ultimo)\b`), -1},
}

var recentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(the one|that one)\s*(we|you|i)?\s*(just|recently)?\s*(created|made|opened|read|viewed|listed)\b`),
	regexp.MustCompile(`(?i)\b(just|recently)\s*(created|made|opened|read|viewed)\b`),
	regexp.MustCompile(`(?i)\b(new|nuovo)\s*(file|folder|cartella)\b`),
}

var (
	absolutePathRe = regexp.MustCompile(`["']?(/[^\s"']+)["']?`)
	homePathRe     = regexp.MustCompile(`["']?(~/[^\s"']+)["']?`)
	quotedNameRe   = regexp.MustCompile(`["']([^"']+)["']`)
	extensionRe    = regexp.MustCompile(`\b([\w.-]+\.[a-zA-Z0-9]{1,6})\b`)
	theNameRe      = regexp.MustCompile(`(?i)(?:the|file|folder|il|la)\s+([a-zA-Z0-9_.-]+)`)
)

// nameStopwords are filtered out of "the X" name candidates.
var nameStopwords = map[string]struct{}{
	"it": {}, "that": {}, "this": {}, "one": {}, "first": {}, "second": {},
	"third": {}, "last": {}, "file": {}, "folder": {}, "directory": {},
	"new": {}, "old": {}, "just": {}, "created": {},
}

// Resolver maps user utterances to tracked entities.
type Resolver struct {
	store *Store
}

// NewResolver builds a resolver over the entity store.
func NewResolver(store *Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve runs the ordered resolution pipeline for one utterance.
//
// # Inputs
//
//   - conversationID: the conversation scope for entity lookups.
//   - utterance: the user's message.
//   - preferredKind: bias toward files or folders ("" for no preference).
//   - isDestructive: when true, HIGH pronoun results are downgraded to
//     MEDIUM with the score scaled by 0.9. Explicit paths and ordinals are
//     never downgraded.
//
// # Outputs
//
//   - *datatypes.ResolvedReference: never nil; Confidence "none" when no
//     stage matched.
//   - error: storage failures only.
func (r *Resolver) Resolve(conversationID, utterance string,
	preferredKind datatypes.EntityKind, isDestructive bool) (*datatypes.ResolvedReference, error) {

	lower := strings.ToLower(strings.TrimSpace(utterance))

	// 1. Explicit path wins outright.
	if path := ExtractExplicitPath(utterance); path != "" {
		entity, err := r.store.GetByPath(conversationID, path)
		if err != nil {
			return nil, err
		}
		if entity != nil {
			return &datatypes.ResolvedReference{
				Entity:     entity,
				Confidence: datatypes.ConfidenceHigh,
				Score:      1.0,
				Reason:     "Explicit path found in message",
			}, nil
		}
		// Mentioned but untracked; still authoritative.
		return &datatypes.ResolvedReference{
			Confidence: datatypes.ConfidenceHigh,
			Score:      1.0,
			Reason:     fmt.Sprintf("Explicit path: %s", path),
		}, nil
	}

	// 2. Ordinal over the current selection.
	if ref, err := r.resolveOrdinal(conversationID, lower); err != nil {
		return nil, err
	} else if ref != nil {
		return ref, nil
	}

	// 3. Pronouns against the last-active pointers.
	ref, err := r.resolvePronoun(conversationID, lower, preferredKind)
	if err != nil {
		return nil, err
	}
	if ref.Entity != nil {
		if isDestructive && ref.Confidence == datatypes.ConfidenceHigh {
			ref.Confidence = datatypes.ConfidenceMedium
			ref.Score *= 0.9
			ref.Reason += " (destructive - verify)"
		}
		return ref, nil
	}
	if ref.Confidence == datatypes.ConfidenceAmbiguous {
		return ref, nil
	}

	// 4. Recency phrases.
	if ref, err := r.resolveRecent(conversationID, lower, preferredKind); err != nil {
		return nil, err
	} else if ref.Entity != nil {
		return ref, nil
	}

	// 5. Partial name matching.
	if ref, err := r.resolveByName(conversationID, lower, preferredKind); err != nil {
		return nil, err
	} else if ref.Entity != nil || len(ref.Alternatives) > 0 {
		return ref, nil
	}

	return &datatypes.ResolvedReference{
		Confidence: datatypes.ConfidenceNone,
		Reason:     "No matching entity found",
	}, nil
}

// ExtractExplicitPath pulls an absolute or ~/ path out of an utterance,
// or "" when none is present.
func ExtractExplicitPath(utterance string) string {
	if m := absolutePathRe.FindStringSubmatch(utterance); m != nil {
		return m[1]
	}
	if m := homePathRe.FindStringSubmatch(utterance); m != nil {
		return m[1]
	}
	return ""
}

// HasOrdinal reports whether the utterance contains an ordinal reference
// and which selection index it names (-1 for "last").
func HasOrdinal(utterance string) (int, bool) {
	lower := strings.ToLower(utterance)
	for _, p := range ordinalPatterns {
		if p.re.MatchString(lower) {
			return p.index, true
		}
	}
	return 0, false
}

func (r *Resolver) resolveOrdinal(conversationID, utterance string) (*datatypes.ResolvedReference, error) {
	index, ok := HasOrdinal(utterance)
	if !ok {
		return nil, nil
	}
	selection, err := r.store.CurrentSelection(conversationID)
	if err != nil {
		return nil, err
	}
	if selection == nil {
		return &datatypes.ResolvedReference{
			Confidence: datatypes.ConfidenceLow,
			Score:      0.3,
			Reason:     "Ordinal used but no selection context",
		}, nil
	}
	items, err := r.store.SelectionItems(conversationID, selection.ID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return &datatypes.ResolvedReference{
			Confidence: datatypes.ConfidenceLow,
			Score:      0.3,
			Reason:     "Selection exists but contains no items",
		}, nil
	}
	if index < 0 {
		index = len(items) + index
	}
	if index >= 0 && index < len(items) {
		return &datatypes.ResolvedReference{
			Entity:       items[index],
			Confidence:   datatypes.ConfidenceHigh,
			Score:        0.95,
			Reason:       fmt.Sprintf("Ordinal reference to item %d in selection", index+1),
			Alternatives: items,
		}, nil
	}
	return &datatypes.ResolvedReference{
		Confidence:   datatypes.ConfidenceLow,
		Score:        0.3,
		Reason:       fmt.Sprintf("Ordinal %d out of range (only %d items)", index+1, len(items)),
		Alternatives: items,
	}, nil
}

func (r *Resolver) resolvePronoun(conversationID, utterance string,
	preferredKind datatypes.EntityKind) (*datatypes.ResolvedReference, error) {

	isFileRef := matchesAny(filePronouns, utterance)
	isFolderRef := matchesAny(folderPronouns, utterance)

	targetKind := preferredKind
	if isFileRef && !isFolderRef {
		targetKind = datatypes.KindFile
	} else if isFolderRef && !isFileRef {
		targetKind = datatypes.KindFolder
	}

	switch targetKind {
	case datatypes.KindFolder:
		entity, err := r.store.LastActiveFolder(conversationID)
		if err != nil {
			return nil, err
		}
		if entity != nil {
			return &datatypes.ResolvedReference{
				Entity:     entity,
				Confidence: datatypes.ConfidenceHigh,
				Score:      0.9,
				Reason:     "Pronoun resolved to last active folder",
			}, nil
		}
	case datatypes.KindFile:
		entity, err := r.store.LastActiveFile(conversationID)
		if err != nil {
			return nil, err
		}
		if entity != nil {
			return &datatypes.ResolvedReference{
				Entity:     entity,
				Confidence: datatypes.ConfidenceHigh,
				Score:      0.9,
				Reason:     "Pronoun resolved to last active file",
			}, nil
		}
	}

	// No kind-specific hit: file pointer, then folder pointer.
	entity, err := r.store.LastActiveFile(conversationID)
	if err != nil {
		return nil, err
	}
	if entity != nil {
		return &datatypes.ResolvedReference{
			Entity:     entity,
			Confidence: datatypes.ConfidenceMedium,
			Score:      0.7,
			Reason:     "Pronoun resolved to last active file (no explicit kind)",
		}, nil
	}
	entity, err = r.store.LastActiveFolder(conversationID)
	if err != nil {
		return nil, err
	}
	if entity != nil {
		return &datatypes.ResolvedReference{
			Entity:     entity,
			Confidence: datatypes.ConfidenceMedium,
			Score:      0.6,
			Reason:     "Pronoun resolved to last active folder (no explicit kind)",
		}, nil
	}

	// Fall back to the current selection.
	selection, err := r.store.CurrentSelection(conversationID)
	if err != nil {
		return nil, err
	}
	if selection != nil {
		items, err := r.store.SelectionItems(conversationID, selection.ID)
		if err != nil {
			return nil, err
		}
		if len(items) == 1 {
			return &datatypes.ResolvedReference{
				Entity:       items[0],
				Confidence:   datatypes.ConfidenceMedium,
				Score:        0.6,
				Reason:       "Pronoun resolved to only item in selection",
				Alternatives: items,
			}, nil
		}
		if len(items) > 1 {
			return &datatypes.ResolvedReference{
				Confidence:   datatypes.ConfidenceAmbiguous,
				Score:        0.4,
				Reason:       "Pronoun ambiguous within current selection",
				Alternatives: items,
			}, nil
		}
	}

	return &datatypes.ResolvedReference{
		Confidence: datatypes.ConfidenceNone,
		Reason:     "No active entity for pronoun resolution",
	}, nil
}

func (r *Resolver) resolveRecent(conversationID, utterance string,
	preferredKind datatypes.EntityKind) (*datatypes.ResolvedReference, error) {

	if !matchesAny(recentPatterns, utterance) {
		return &datatypes.ResolvedReference{
			Confidence: datatypes.ConfidenceNone,
			Reason:     "No recent entity matches",
		}, nil
	}
	recent, err := r.store.All(conversationID, preferredKind, 1)
	if err != nil {
		return nil, err
	}
	if len(recent) == 0 {
		return &datatypes.ResolvedReference{
			Confidence: datatypes.ConfidenceNone,
			Reason:     "No recent entity matches",
		}, nil
	}
	return &datatypes.ResolvedReference{
		Entity:       recent[0],
		Confidence:   datatypes.ConfidenceHigh,
		Score:        0.9,
		Reason:       "Resolved to most recent entity",
		Alternatives: recent,
	}, nil
}

func (r *Resolver) resolveByName(conversationID, utterance string,
	preferredKind datatypes.EntityKind) (*datatypes.ResolvedReference, error) {

	names := ExtractNames(utterance)
	if len(names) == 0 {
		return &datatypes.ResolvedReference{
			Confidence: datatypes.ConfidenceNone,
			Reason:     "No identifiable name in utterance",
		}, nil
	}

	entities, err := r.store.All(conversationID, preferredKind, 0)
	if err != nil {
		return nil, err
	}

	type scored struct {
		entity *datatypes.Entity
		score  float64
	}
	var matches []scored
	for _, name := range names {
		for _, entity := range entities {
			if entity.Kind == datatypes.KindSelection {
				continue
			}
			if score := NameMatchScore(name, entity.DisplayName); score > 0 {
				matches = append(matches, scored{entity, score})
			}
		}
	}
	if len(matches) == 0 {
		return &datatypes.ResolvedReference{
			Confidence: datatypes.ConfidenceNone,
			Reason:     fmt.Sprintf("No entity matches name(s): %s", strings.Join(names, ", ")),
		}, nil
	}

	// Stable sort by score descending, keeping the recency order All gave
	// us for equal scores.
	for i := 1; i < len(matches); i++ {
		for j := i; j > 0 && matches[j].score > matches[j-1].score; j-- {
			matches[j], matches[j-1] = matches[j-1], matches[j]
		}
	}

	best := matches[0]
	alternatives := make([]*datatypes.Entity, 0, len(matches))
	for _, m := range matches {
		alternatives = append(alternatives, m.entity)
	}

	// Two near-equal strong candidates is an ambiguity, not a pick.
	if len(matches) > 1 && matches[1].score > 0.7 && best.score-matches[1].score < 0.1 {
		return &datatypes.ResolvedReference{
			Confidence:   datatypes.ConfidenceAmbiguous,
			Score:        best.score,
			Reason:       "Multiple entities match equally well",
			Alternatives: alternatives,
		}, nil
	}

	ref := &datatypes.ResolvedReference{
		Entity:     best.entity,
		Confidence: datatypes.ConfidenceForScore(best.score),
		Score:      best.score,
		Reason:     fmt.Sprintf("Name match with score %.2f", best.score),
	}
	if len(alternatives) > 1 {
		ref.Alternatives = alternatives[1:]
	}
	return ref, nil
}

// ExtractNames pulls candidate file/folder names out of an utterance:
// quoted strings, tokens carrying an extension, and the token after
// "the/file/folder" (stopwords filtered).
func ExtractNames(utterance string) []string {
	seen := map[string]struct{}{}
	var names []string
	add := func(name string) {
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	for _, m := range quotedNameRe.FindAllStringSubmatch(utterance, -1) {
		add(m[1])
	}
	for _, m := range extensionRe.FindAllStringSubmatch(utterance, -1) {
		add(m[1])
	}
	for _, m := range theNameRe.FindAllStringSubmatch(utterance, -1) {
		if _, stop := nameStopwords[strings.ToLower(m[1])]; !stop {
			add(m[1])
		}
	}
	return names
}

// NameMatchScore scores a query against an entity display name.
// Exact=1.0, stem=0.95, prefix=0.85, substring=0.7, word overlap=0.5+.
func NameMatchScore(query, displayName string) float64 {
	queryLower := strings.ToLower(query)
	nameLower := strings.ToLower(displayName)
	stem := nameLower
	if idx := strings.LastIndex(nameLower, "."); idx > 0 {
		stem = nameLower[:idx]
	}

	switch {
	case queryLower == nameLower:
		return 1.0
	case queryLower == stem:
		return 0.95
	case strings.HasPrefix(nameLower, queryLower):
		return 0.85
	case strings.Contains(nameLower, queryLower):
		return 0.7
	}

	queryWords := fieldsSet(queryLower)
	nameWords := fieldsSet(strings.NewReplacer("-", " ", "_", " ").Replace(nameLower))
	if len(queryWords) == 0 {
		return 0.0
	}
	overlap := 0
	for w := range queryWords {
		if _, ok := nameWords[w]; ok {
			overlap++
		}
	}
	if overlap == 0 {
		return 0.0
	}
	return 0.5 + (float64(overlap)/float64(len(queryWords)))*0.3
}

func fieldsSet(s string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, w := range strings.Fields(s) {
		set[w] = struct{}{}
	}
	return set
}

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
