// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/AleutianAI/AleutianAssistant/services/assistant/conversation"
	"github.com/AleutianAI/AleutianAssistant/services/assistant/datatypes"
	"github.com/AleutianAI/AleutianAssistant/services/assistant/tools"
)

// ===== Rule patterns (English + Italian) =====

var organizePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:organizza|organize|ordina|riordina|sort)\b.{0,30}(?:file|cartell|folder|director)`),
	regexp.MustCompile(`(?i)\borganize\s+my\b`),
}

var deleteVerbRe = regexp.MustCompile(`(?i)\b(?:elimina|delete|rimuovi|remove|cancella)\b`)

var deleteAllRe = regexp.MustCompile(`(?i)\b(?:all|every|tutti|tutte)\b`)

// globTokenRe captures "*.tmp" style patterns and bare ".log files" mentions.
var globTokenRe = regexp.MustCompile(`(\*\.[a-zA-Z0-9]{1,6}|\*[\w.-]*\*?)`)
var dotExtRe = regexp.MustCompile(`(?i)\s(\.[a-zA-Z0-9]{1,6})\s+files?\b`)

var moveVerbRe = regexp.MustCompile(`(?i)\b(?:rinomina|rename|sposta|move)\b|\bcambia nome\b`)

// destination token after "to"/"in"/Italian "in"/"a"/"come".
var destNameRe = regexp.MustCompile(`(?i)\b(?:to|into|in|a|come)\s+["']?([\w][\w.-]*)["']?`)

var createDirPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:create|make|crea|nuova|new)\b.{0,30}(?:folder|directory|cartella)`),
}
var dirNameRe = regexp.MustCompile(`(?i)(?:folder|directory|cartella)\s+(?:called\s+|named\s+|chiamata\s+)?["']?([\w][\w.-]*)["']?`)

var writeFilePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:crea|create|scrivi|write|nuovo|new)\b.{0,30}\bfile\b`),
}

// content extraction for write_file, tried in order.
var contentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:contenuto|content|testo|text)\s*[:\s]\s*["'](.+?)["']`),
	regexp.MustCompile(`(?i)(?:contenuto|content|testo|text)\s+(.+?)$`),
	regexp.MustCompile(`(?i)\bcon\s+(?:contenuto\s+)?["'](.+?)["']`),
	regexp.MustCompile(`(?i)\bwith\s+(?:content\s+)?["'](.+?)["']`),
	regexp.MustCompile(`(?i)\bcon\s+(?:contenuto\s+)?(.+?)$`),
	regexp.MustCompile(`(?i)\bwith\s+(?:content\s+)?(.+?)$`),
}

var readPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:leggi|read|apri|open)\b.{0,30}(?:file|documento|/|~)`),
	regexp.MustCompile(`(?i)(?:cosa|what)\b.{0,20}(?:c'è|dice|says|contains)\b.{0,20}(?:file|dentro|nel)`),
	regexp.MustCompile(`(?i)(?:mostra|show)(?:\s+me)?\b.{0,20}(?:contents?|contenuto)\s+(?:of|di)\b`),
}

var listPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:quali|quanti|che|cosa|what|which|list|show|elenc)\S*.{0,30}(?:file|cartell|folder|director|contenut)`),
	regexp.MustCompile(`(?i)(?:file|cartell|folder|director)\S*.{0,30}(?:ci sono|c'è|there|exist|present|contien)`),
	regexp.MustCompile(`(?i)(?:mostra|dimmi|tell me|show me).{0,20}(?:file|cartell|folder)`),
	regexp.MustCompile(`(?i)(?:what'?s|cosa c'è)\s+(?:in|on|inside|sulla|nella|nei|dentro)\b`),
}

var searchPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:search|find|locate|cerca|trova)\b.{0,40}(?:file|\*|\.)`),
}

var sysInfoRe = regexp.MustCompile(`(?i)\b(?:system info|system information|informazioni (?:di |sul )?sistema|cpu|memory|memoria|disk space|spazio su disco|hostname)\b`)

// folderPronounRe lets "this folder" / "la cartella" fall back to the last
// active folder for directory-taking tools.
var dirPronounRe = regexp.MustCompile(`(?i)\b(?:this|that|the same|questa|quella)\s+(?:folder|directory|cartella)\b`)

// wellKnownFolders maps locale folder aliases onto home subdirectories.
var wellKnownFolders = []struct {
	re  *regexp.Regexp
	rel string
}{
	{regexp.MustCompile(`(?i)\b(?:downloads?|scaricati)\b`), "Downloads"},
	{regexp.MustCompile(`(?i)\b(?:documents?|documenti)\b`), "Documents"},
	{regexp.MustCompile(`(?i)\b(?:desktop|scrivania)\b`), "Desktop"},
	{regexp.MustCompile(`(?i)\bhome\s+(?:folder|directory|dir)\b`), ""},
}

// ===== Planner =====

// Planner classifies an utterance against a closed set of action families
// using ordered, named rules. Rules are tried in declaration order; the
// first rule that produces a plan wins. It never executes anything.
type Planner struct {
	ctx   *conversation.Context
	guard *tools.PathGuard
	home  string
	rules []plannerRule
}

type plannerRule struct {
	name string
	plan func(in *planInput) (*datatypes.Plan, error)
}

type planInput struct {
	conversationID string
	utterance      string
	lower          string
}

// NewPlanner builds the planner with its rule table. The home directory is
// resolved once; well-known folder aliases hang off it.
func NewPlanner(ctx *conversation.Context, guard *tools.PathGuard, home string) *Planner {
	p := &Planner{ctx: ctx, guard: guard, home: home}
	p.rules = []plannerRule{
		{"organize", p.planOrganize},
		{"delete_by_pattern", p.planDeleteByPattern},
		{"delete", p.planDelete},
		{"move_rename", p.planMove},
		{"create_directory", p.planCreateDirectory},
		{"write_file", p.planWriteFile},
		{"read_file", p.planRead},
		{"list_directory", p.planList},
		{"search_files", p.planSearch},
		{"system_info", p.planSystemInfo},
	}
	return p
}

// Plan runs the rule table over one utterance. A nil-producing table yields
// PlanNoAction, which sends the turn to a model.
func (p *Planner) Plan(conversationID, utterance string) (*datatypes.Plan, error) {
	in := &planInput{
		conversationID: conversationID,
		utterance:      utterance,
		lower:          strings.ToLower(utterance),
	}
	for _, rule := range p.rules {
		plan, err := rule.plan(in)
		if err != nil {
			return nil, err
		}
		if plan != nil {
			plan.RuleName = rule.name
			return plan, nil
		}
	}
	return &datatypes.Plan{Status: datatypes.PlanNoAction}, nil
}

// ===== Directory resolution =====

// resolveDirectory binds a directory argument: explicit path, then a
// well-known folder alias, then a named child of the last listed directory,
// then a folder pronoun against the last active folder.
func (p *Planner) resolveDirectory(in *planInput) string {
	if path := conversation.ExtractExplicitPath(in.utterance); path != "" {
		return p.guard.ExpandHome(path)
	}
	for _, known := range wellKnownFolders {
		if known.re.MatchString(in.lower) {
			return filepath.Join(p.home, known.rel)
		}
	}
	lastFolder, err := p.ctx.Store().LastActiveFolder(in.conversationID)
	if err == nil && lastFolder != nil {
		for _, name := range conversation.ExtractNames(in.utterance) {
			candidate := filepath.Join(lastFolder.AbsolutePath, name)
			if info, statErr := os.Stat(candidate); statErr == nil && info.IsDir() {
				return candidate
			}
		}
		if dirPronounRe.MatchString(in.lower) {
			return lastFolder.AbsolutePath
		}
	}
	return ""
}

// ===== Rules =====

func (p *Planner) planOrganize(in *planInput) (*datatypes.Plan, error) {
	if !matchAny(organizePatterns, in.lower) {
		return nil, nil
	}
	directory := p.resolveDirectory(in)
	if directory == "" {
		return &datatypes.Plan{
			Status:       datatypes.PlanNeedsClarification,
			ToolName:     "organize_files",
			MissingField: "directory",
		}, nil
	}
	return &datatypes.Plan{
		Status:   datatypes.PlanReady,
		ToolName: "organize_files",
		Params:   map[string]string{"directory": directory},
	}, nil
}

func (p *Planner) planDeleteByPattern(in *planInput) (*datatypes.Plan, error) {
	if !deleteVerbRe.MatchString(in.lower) {
		return nil, nil
	}
	pattern := extractGlob(in.utterance)
	if pattern == "" || !deleteAllRe.MatchString(in.lower) {
		return nil, nil
	}
	directory := p.resolveDirectory(in)
	if directory == "" {
		return &datatypes.Plan{
			Status:       datatypes.PlanNeedsClarification,
			ToolName:     "delete_by_pattern",
			MissingField: "directory",
		}, nil
	}
	return &datatypes.Plan{
		Status:      datatypes.PlanReady,
		ToolName:    "delete_by_pattern",
		Destructive: true,
		Params:      map[string]string{"directory": directory, "pattern": pattern},
	}, nil
}

func (p *Planner) planDelete(in *planInput) (*datatypes.Plan, error) {
	if !deleteVerbRe.MatchString(in.lower) {
		return nil, nil
	}
	if path := conversation.ExtractExplicitPath(in.utterance); path != "" {
		return &datatypes.Plan{
			Status:      datatypes.PlanReady,
			ToolName:    "delete_file",
			Destructive: true,
			Params:      map[string]string{"path": p.guard.ExpandHome(path)},
		}, nil
	}
	ref, err := p.ctx.Resolver().Resolve(in.conversationID, in.utterance, "", true)
	if err != nil {
		return nil, err
	}
	if plan := p.planFromReference(ref, "delete_file", "path", true); plan != nil {
		return plan, nil
	}
	// The delete intent is clear but no target resolved; asking beats
	// handing a destructive request to a model.
	return &datatypes.Plan{
		Status:       datatypes.PlanNeedsClarification,
		ToolName:     "delete_file",
		Destructive:  true,
		MissingField: "target",
	}, nil
}

func (p *Planner) planMove(in *planInput) (*datatypes.Plan, error) {
	if !moveVerbRe.MatchString(in.lower) {
		return nil, nil
	}

	// Two absolute paths bind source and destination directly.
	paths := absolutePaths(in.utterance)
	if len(paths) >= 2 {
		return movePlan(p.guard.ExpandHome(paths[0]), p.guard.ExpandHome(paths[1]), nil), nil
	}

	if len(paths) == 1 {
		source := p.guard.ExpandHome(paths[0])
		if dest := destinationFor(source, in.utterance); dest != "" {
			return movePlan(source, dest, nil), nil
		}
		return &datatypes.Plan{
			Status:       datatypes.PlanNeedsClarification,
			ToolName:     "move_file",
			Destructive:  true,
			MissingField: "destination",
			Params:       map[string]string{"source": source},
		}, nil
	}

	// No explicit path: resolve the source from conversation context.
	ref, err := p.ctx.Resolver().Resolve(in.conversationID, in.utterance, datatypes.KindFile, true)
	if err != nil {
		return nil, err
	}
	if ref.Entity == nil {
		if plan := p.planFromReference(ref, "move_file", "source", true); plan != nil {
			return plan, nil
		}
		return &datatypes.Plan{
			Status:       datatypes.PlanNeedsClarification,
			ToolName:     "move_file",
			Destructive:  true,
			MissingField: "source",
		}, nil
	}
	source := ref.Entity.AbsolutePath
	dest := destinationFor(source, in.utterance)
	if dest == "" {
		return &datatypes.Plan{
			Status:       datatypes.PlanNeedsClarification,
			ToolName:     "move_file",
			Destructive:  true,
			Reference:    ref,
			MissingField: "destination",
			Params:       map[string]string{"source": source},
		}, nil
	}
	return movePlan(source, dest, ref), nil
}

func (p *Planner) planCreateDirectory(in *planInput) (*datatypes.Plan, error) {
	if !matchAny(createDirPatterns, in.lower) {
		return nil, nil
	}
	// "make a new directory /tmp/test_dir" carries the full path.
	if path := conversation.ExtractExplicitPath(in.utterance); path != "" {
		return &datatypes.Plan{
			Status:   datatypes.PlanReady,
			ToolName: "create_directory",
			Params:   map[string]string{"path": p.guard.ExpandHome(path)},
		}, nil
	}
	name := ""
	if m := dirNameRe.FindStringSubmatch(in.utterance); m != nil {
		name = m[1]
	}
	if name == "" {
		return &datatypes.Plan{
			Status:       datatypes.PlanNeedsClarification,
			ToolName:     "create_directory",
			MissingField: "path",
		}, nil
	}
	parent := p.resolveDirectory(in)
	if parent == "" {
		parent = p.home
	}
	return &datatypes.Plan{
		Status:   datatypes.PlanReady,
		ToolName: "create_directory",
		Params:   map[string]string{"path": filepath.Join(parent, name)},
	}, nil
}

func (p *Planner) planWriteFile(in *planInput) (*datatypes.Plan, error) {
	if !matchAny(writeFilePatterns, in.lower) {
		return nil, nil
	}
	path := conversation.ExtractExplicitPath(in.utterance)
	if path == "" || !strings.Contains(filepath.Base(path), ".") {
		return &datatypes.Plan{
			Status:       datatypes.PlanNeedsClarification,
			ToolName:     "write_file",
			MissingField: "path",
		}, nil
	}
	content := ""
	for _, re := range contentPatterns {
		if m := re.FindStringSubmatch(in.utterance); m != nil {
			content = strings.TrimSpace(m[1])
			break
		}
	}
	return &datatypes.Plan{
		Status:   datatypes.PlanReady,
		ToolName: "write_file",
		Params: map[string]string{
			"path":    p.guard.ExpandHome(path),
			"content": content,
		},
	}, nil
}

func (p *Planner) planRead(in *planInput) (*datatypes.Plan, error) {
	if !matchAny(readPatterns, in.lower) {
		return nil, nil
	}
	// "show documents folder contents" is a listing, not a read.
	if strings.Contains(in.lower, "folder") || strings.Contains(in.lower, "cartella") ||
		strings.Contains(in.lower, "directory") {
		return nil, nil
	}
	if path := conversation.ExtractExplicitPath(in.utterance); path != "" {
		return &datatypes.Plan{
			Status:   datatypes.PlanReady,
			ToolName: "read_file",
			Params:   map[string]string{"path": p.guard.ExpandHome(path)},
		}, nil
	}
	ref, err := p.ctx.Resolver().Resolve(in.conversationID, in.utterance, datatypes.KindFile, false)
	if err != nil {
		return nil, err
	}
	return p.planFromReference(ref, "read_file", "path", false), nil
}

func (p *Planner) planList(in *planInput) (*datatypes.Plan, error) {
	if !matchAny(listPatterns, in.lower) {
		return nil, nil
	}
	directory := p.resolveDirectory(in)
	if directory == "" {
		return nil, nil
	}
	return &datatypes.Plan{
		Status:   datatypes.PlanReady,
		ToolName: "list_directory",
		Params:   map[string]string{"path": directory},
	}, nil
}

func (p *Planner) planSearch(in *planInput) (*datatypes.Plan, error) {
	if !matchAny(searchPatterns, in.lower) {
		return nil, nil
	}
	pattern := extractGlob(in.utterance)
	if pattern == "" {
		for _, name := range conversation.ExtractNames(in.utterance) {
			if strings.Contains(name, ".") {
				pattern = "*" + name + "*"
				break
			}
		}
	}
	if pattern == "" {
		return nil, nil
	}
	directory := p.resolveDirectory(in)
	if directory == "" {
		directory = p.home
	}
	return &datatypes.Plan{
		Status:   datatypes.PlanReady,
		ToolName: "search_files",
		Params:   map[string]string{"directory": directory, "pattern": pattern},
	}, nil
}

func (p *Planner) planSystemInfo(in *planInput) (*datatypes.Plan, error) {
	if !sysInfoRe.MatchString(in.lower) {
		return nil, nil
	}
	return &datatypes.Plan{
		Status:   datatypes.PlanReady,
		ToolName: "get_system_info",
		Params:   map[string]string{},
	}, nil
}

// ===== Helpers =====

// planFromReference turns a resolver result into a plan for a single-target
// tool. Returns nil when the reference carries nothing usable and the
// family should fall through.
func (p *Planner) planFromReference(ref *datatypes.ResolvedReference,
	toolName, param string, destructive bool) *datatypes.Plan {

	switch {
	case ref.Confidence == datatypes.ConfidenceAmbiguous && len(ref.Alternatives) > 0:
		return &datatypes.Plan{
			Status:       datatypes.PlanNeedsDisambiguation,
			ToolName:     toolName,
			Destructive:  destructive,
			Reference:    ref,
			Alternatives: ref.Alternatives,
			RebindParam:  param,
		}
	case ref.Entity != nil && ref.Confidence != datatypes.ConfidenceNone &&
		ref.Confidence != datatypes.ConfidenceLow:
		return &datatypes.Plan{
			Status:      datatypes.PlanReady,
			ToolName:    toolName,
			Destructive: destructive,
			Reference:   ref,
			Params:      map[string]string{param: ref.Entity.AbsolutePath},
		}
	case len(ref.Alternatives) > 0:
		// Low confidence with candidates (e.g. ordinal out of range): offer
		// them rather than guessing.
		return &datatypes.Plan{
			Status:       datatypes.PlanNeedsDisambiguation,
			ToolName:     toolName,
			Destructive:  destructive,
			Reference:    ref,
			Alternatives: ref.Alternatives,
			RebindParam:  param,
		}
	}
	return nil
}

func movePlan(source, destination string, ref *datatypes.ResolvedReference) *datatypes.Plan {
	return &datatypes.Plan{
		Status:      datatypes.PlanReady,
		ToolName:    "move_file",
		Destructive: true,
		Reference:   ref,
		Params:      map[string]string{"source": source, "destination": destination},
	}
}

// destinationFor extracts a rename/move destination for a known source:
// a token after to/in/a, the source's extension appended when the token has
// none, anchored in the source's directory.
func destinationFor(source, utterance string) string {
	sourceBase := filepath.Base(source)
	for _, m := range destNameRe.FindAllStringSubmatch(utterance, -1) {
		name := m[1]
		if name == sourceBase || strings.EqualFold(name, sourceBase) {
			continue
		}
		if isCommonWord(name) {
			continue
		}
		if !strings.Contains(name, ".") {
			if ext := filepath.Ext(sourceBase); ext != "" {
				name += ext
			}
		}
		return filepath.Join(filepath.Dir(source), name)
	}
	return ""
}

// isCommonWord filters prose tokens that destNameRe can over-capture.
func isCommonWord(token string) bool {
	switch strings.ToLower(token) {
	case "the", "a", "an", "my", "this", "that", "it", "file", "folder",
		"il", "la", "un", "una", "quel", "questo", "nuovo", "new":
		return true
	}
	return false
}

var anyPathRe = regexp.MustCompile(`["']?((?:/|~/)[^\s"']+)["']?`)

func absolutePaths(utterance string) []string {
	var paths []string
	for _, m := range anyPathRe.FindAllStringSubmatch(utterance, -1) {
		paths = append(paths, m[1])
	}
	return paths
}

func extractGlob(utterance string) string {
	if m := globTokenRe.FindStringSubmatch(utterance); m != nil {
		return m[1]
	}
	if m := dotExtRe.FindStringSubmatch(utterance); m != nil {
		return "*" + m[1]
	}
	return ""
}

func matchAny(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
