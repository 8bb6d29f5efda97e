// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Response formatter: turns tool results into short, JSON-free, fence-free
// user messages. Clean UX is the goal; the raw ToolResult stays on the API
// payload for programmatic consumers.
package engine

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/AleutianAI/AleutianAssistant/services/assistant/datatypes"
	"github.com/AleutianAI/AleutianAssistant/services/assistant/tools"
)

const (
	maxListItems = 8
	maxReadLines = 60
)

var (
	fencedBlockRe = regexp.MustCompile("(?is)```(?:json|tool)?\\s*.*?```")
	toolJSONRe    = regexp.MustCompile(`(?is)\{\s*"tool"[^}]*\}`)
	strayFenceRe  = regexp.MustCompile("`{3,}")
	blankRunsRe   = regexp.MustCompile(`\n{3,}`)
)

// Formatter renders tool results and prompts for the user.
type Formatter struct {
	guard *tools.PathGuard
}

// NewFormatter builds a formatter; the path guard supplies home-relative
// display paths.
func NewFormatter(guard *tools.PathGuard) *Formatter {
	return &Formatter{guard: guard}
}

func (f *Formatter) shortPath(path string) string {
	if path == "" {
		return path
	}
	return f.guard.ShortPath(path)
}

// FormatToolResult renders one tool result as user-facing text.
func (f *Formatter) FormatToolResult(result *datatypes.ToolResult) string {
	if result == nil {
		return "No tool result returned. Please retry."
	}
	if result.Action.IsMutation() && result.Verification == nil {
		return "Operation failed."
	}
	if result.Verification != nil && !result.Verification.Passed {
		return f.formatError(result, result.Verification.Details)
	}
	if result.Status == datatypes.StatusError {
		return f.formatError(result, "")
	}
	return f.formatSuccess(result)
}

// SanitizeText strips JSON/tool blocks and code fences from model output,
// keeping plain text only.
func SanitizeText(text string) string {
	cleaned := fencedBlockRe.ReplaceAllString(text, "")
	cleaned = toolJSONRe.ReplaceAllString(cleaned, "")
	cleaned = strayFenceRe.ReplaceAllString(cleaned, "")
	cleaned = blankRunsRe.ReplaceAllString(cleaned, "\n\n")
	return strings.TrimSpace(cleaned)
}

func (f *Formatter) formatSuccess(result *datatypes.ToolResult) string {
	switch output := result.Output.(type) {
	case datatypes.ListOutput:
		return f.renderList(output)
	case datatypes.ReadOutput:
		return f.renderRead(output)
	case datatypes.SearchOutput:
		return f.renderSearch(output)
	case datatypes.ShellOutput:
		return renderShell(output)
	case datatypes.InfoOutput:
		return renderInfo(output)
	}
	if result.Action.IsMutation() {
		return f.renderMutationSummary(result)
	}
	if result.MessageUser != "" {
		return result.MessageUser
	}
	return "Action completed."
}

func (f *Formatter) formatError(result *datatypes.ToolResult, overrideSummary string) string {
	summary := overrideSummary
	if summary == "" {
		summary = result.MessageUser
	}
	if summary == "" {
		summary = result.Error
	}
	if summary == "" {
		summary = "Operation failed."
	}
	var details []string
	if result.Error != "" && result.Error != summary {
		details = append(details, result.Error)
	}
	if result.Verification != nil && result.Verification.Details != summary {
		details = append(details, result.Verification.Details)
	}
	return joinSummary(summary, details)
}

func joinSummary(summary string, lines []string) string {
	var nonEmpty []string
	for _, line := range lines {
		if line != "" {
			nonEmpty = append(nonEmpty, line)
		}
	}
	if len(nonEmpty) == 0 {
		return summary
	}
	return summary + "\n" + strings.Join(nonEmpty, "\n")
}

func (f *Formatter) renderList(output datatypes.ListOutput) string {
	shortPath := f.shortPath(output.Path)
	if shortPath == "" {
		shortPath = "that folder"
	}
	summary := fmt.Sprintf("Found %d item(s) in %s:", len(output.Items), shortPath)
	var lines []string
	for _, item := range output.Items {
		if len(lines) >= maxListItems {
			break
		}
		sizeDisplay := ""
		if item.Type == "file" {
			sizeDisplay = ", " + humanSize(item.SizeBytes)
		}
		lines = append(lines, fmt.Sprintf("%d) %s (%s%s)", len(lines)+1, item.Name, item.Type, sizeDisplay))
	}
	if len(output.Items) > maxListItems {
		lines = append(lines, fmt.Sprintf("...and %d more", len(output.Items)-maxListItems))
	}
	return joinSummary(summary, lines)
}

func (f *Formatter) renderRead(output datatypes.ReadOutput) string {
	shortPath := f.shortPath(output.Path)
	if shortPath == "" {
		shortPath = "that file"
	}
	shown := output.Lines
	truncated := output.Truncated
	if len(shown) > maxReadLines {
		shown = shown[:maxReadLines]
		truncated = true
	}
	summary := fmt.Sprintf("Here are the first %d line(s) from %s:", len(shown), shortPath)
	if truncated {
		shown = append(append([]string{}, shown...), "... (truncated)")
	}
	return joinSummary(summary, shown)
}

func (f *Formatter) renderSearch(output datatypes.SearchOutput) string {
	summary := fmt.Sprintf("Found %d match(es).", output.Count)
	var lines []string
	for _, match := range output.Matches {
		if len(lines) >= maxListItems {
			break
		}
		lines = append(lines, fmt.Sprintf("%d) %s", len(lines)+1, f.shortPath(match)))
	}
	if output.Truncated || len(output.Matches) > maxListItems {
		lines = append(lines, "...and more (truncated)")
	}
	return joinSummary(summary, lines)
}

func renderShell(output datatypes.ShellOutput) string {
	text := strings.TrimSpace(output.Stdout)
	if text == "" {
		text = strings.TrimSpace(output.Stderr)
	}
	if text == "" {
		return "Command completed with no output."
	}
	return text
}

func renderInfo(output datatypes.InfoOutput) string {
	return fmt.Sprintf("%s/%s on %s, user %s, home %s",
		output.OS, output.Arch, output.Hostname, output.Username, output.HomeDir)
}

func (f *Formatter) renderMutationSummary(result *datatypes.ToolResult) string {
	var before, after string
	if len(result.BeforePaths) > 0 {
		before = result.BeforePaths[0]
	}
	if len(result.AfterPaths) > 0 {
		after = result.AfterPaths[0]
	}
	beforeName := filepath.Base(before)
	afterName := filepath.Base(after)
	beforeDir := filepath.Dir(before)
	afterDir := filepath.Dir(after)

	switch result.Action {
	case datatypes.ActionMove:
		if before != "" && after != "" && beforeDir == afterDir {
			return fmt.Sprintf("Renamed '%s' → '%s' in %s.", beforeName, afterName, f.shortPath(beforeDir))
		}
		return fmt.Sprintf("Moved '%s' to %s.", beforeName, f.shortPath(afterDir))
	case datatypes.ActionCopy:
		return fmt.Sprintf("Copied '%s' to %s.", beforeName, f.shortPath(afterDir))
	case datatypes.ActionDelete:
		// Pattern deletes carry several paths; the tool's own summary names
		// the pattern and count.
		if len(result.BeforePaths) != 1 && result.MessageUser != "" {
			return result.MessageUser
		}
		return fmt.Sprintf("Deleted '%s'.", beforeName)
	case datatypes.ActionWrite, datatypes.ActionAppend:
		return fmt.Sprintf("Wrote '%s' in %s.", afterName, f.shortPath(afterDir))
	case datatypes.ActionCreate:
		return fmt.Sprintf("Created folder '%s' in %s.", afterName, f.shortPath(afterDir))
	case datatypes.ActionOrganize:
		if result.MessageUser != "" {
			return result.MessageUser
		}
		return "Organized files."
	}
	if result.MessageUser != "" {
		return result.MessageUser
	}
	return "Action completed."
}

// FormatDisambiguation renders a numbered candidate list (capped at 5).
func (f *Formatter) FormatDisambiguation(alternatives []*datatypes.Entity, action string) string {
	if len(alternatives) == 0 {
		return "I couldn't find a matching file. Can you specify the path?"
	}
	if len(alternatives) == 1 {
		e := alternatives[0]
		return fmt.Sprintf("Did you mean %s (%s)? Reply yes or specify another file.",
			e.DisplayName, f.shortPath(e.AbsolutePath))
	}
	lines := []string{fmt.Sprintf("I found %d files. Which one do you want to %s?", len(alternatives), action)}
	for i, e := range alternatives {
		if i >= 5 {
			lines = append(lines, fmt.Sprintf("...and %d more", len(alternatives)-5))
			break
		}
		lines = append(lines, fmt.Sprintf("%d) %s (%s)", i+1, e.DisplayName, f.shortPath(e.AbsolutePath)))
	}
	lines = append(lines, "Reply with the number, or specify a path.")
	return strings.Join(lines, "\n")
}

// FormatConfirmationRequest renders the destructive-action prompt for a
// path, with an optional destination.
func (f *Formatter) FormatConfirmationRequest(path, action, destination string) string {
	verb := confirmationVerb(action)
	if destination != "" {
		return fmt.Sprintf("%s %s → %s? (yes/no)", verb, f.shortPath(path), f.shortPath(destination))
	}
	return fmt.Sprintf("%s %s? (yes/no)", verb, f.shortPath(path))
}

func confirmationVerb(action string) string {
	switch action {
	case "delete", "delete_file", "delete_by_pattern":
		return "Delete"
	case "move", "move_file":
		return "Move"
	case "rename":
		return "Rename"
	case "overwrite", "write_file":
		return "Overwrite"
	case "run_command":
		return "Run"
	}
	if action == "" {
		return "Confirm"
	}
	return strings.ToUpper(action[:1]) + action[1:]
}

// FormatClarification asks for the missing piece of a planned action.
func (f *Formatter) FormatClarification(toolName, missingField string) string {
	switch missingField {
	case "destination":
		return "What should the new name be?"
	case "source":
		return "Which file do you want to move?"
	case "target":
		return f.FormatNoMatch()
	case "path":
		if toolName == "create_directory" {
			return "What should the folder be called?"
		}
		return "Which file do you mean? Please give the path or name."
	}
	return "Can you give me a bit more detail so I can do that?"
}

// FormatNoMatch is the reply when no entity could be resolved.
func (f *Formatter) FormatNoMatch() string {
	return "I'm not sure which file you mean. Can you specify the path or name?"
}

// FormatToolUnavailable is the reply for a disabled or missing tool.
func (f *Formatter) FormatToolUnavailable(toolName string) string {
	if toolName != "" {
		return fmt.Sprintf("That action isn't available right now. (%s)", toolName)
	}
	return "That action isn't available right now."
}

func humanSize(sizeBytes int64) string {
	switch {
	case sizeBytes < 1024:
		return fmt.Sprintf("%d B", sizeBytes)
	case sizeBytes < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(sizeBytes)/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(sizeBytes)/1024/1024)
	}
}
