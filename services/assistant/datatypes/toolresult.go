// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains the structured tool execution outcome. The rest of the
// system trusts ToolResult; the model never produces one.
package datatypes

// =============================================================================
// Tool Result
// =============================================================================

// ToolStatus is the overall outcome of a tool execution.
type ToolStatus string

const (
	StatusSuccess ToolStatus = "success"
	StatusError   ToolStatus = "error"
)

// ToolAction is the closed set of semantic action tags a tool can report.
// The entity tracker and the response formatter switch on this tag.
type ToolAction string

const (
	ActionList     ToolAction = "list"
	ActionRead     ToolAction = "read"
	ActionWrite    ToolAction = "write"
	ActionAppend   ToolAction = "append"
	ActionMove     ToolAction = "move"
	ActionCopy     ToolAction = "copy"
	ActionDelete   ToolAction = "delete"
	ActionCreate   ToolAction = "create"
	ActionSearch   ToolAction = "search"
	ActionOrganize ToolAction = "organize"
	ActionShell    ToolAction = "shell"
	ActionInfo     ToolAction = "info"
)

// IsMutation reports whether the action changes the filesystem. Mutations
// must carry a Verification and its Passed field is authoritative.
func (a ToolAction) IsMutation() bool {
	switch a {
	case ActionWrite, ActionAppend, ActionMove, ActionCopy, ActionDelete,
		ActionCreate, ActionOrganize:
		return true
	}
	return false
}

// Verification is the post-condition check attached to every mutation.
type Verification struct {
	Passed  bool   `json:"passed"`
	Details string `json:"details"`
}

// ToolOutput is the closed tagged variant of action-specific payloads.
// Concrete types: ListOutput, ReadOutput, SearchOutput, ShellOutput,
// InfoOutput, OrganizeOutput. Mutations without a payload carry nil.
type ToolOutput interface {
	isToolOutput()
}

// ListItem is one child of a listed directory.
type ListItem struct {
	Name      string `json:"name"`
	Type      string `json:"type"` // "file" or "folder"
	SizeBytes int64  `json:"size_bytes"`
}

// ListOutput is the payload for action=list.
type ListOutput struct {
	Path  string     `json:"path"`
	Items []ListItem `json:"items"`
}

// ReadOutput is the payload for action=read.
type ReadOutput struct {
	Path      string   `json:"path"`
	Lines     []string `json:"lines"`
	Truncated bool     `json:"truncated"`
}

// SearchOutput is the payload for action=search.
type SearchOutput struct {
	Matches   []string `json:"matches"`
	Count     int      `json:"count"`
	Truncated bool     `json:"truncated"`
}

// ShellOutput is the payload for action=shell.
type ShellOutput struct {
	Command   string `json:"command"`
	ExitCode  int    `json:"exit_code"`
	Stdout    string `json:"stdout"`
	Stderr    string `json:"stderr"`
	Truncated bool   `json:"truncated"`
}

// InfoOutput is the payload for action=info (system information).
type InfoOutput struct {
	OS       string `json:"os"`
	Arch     string `json:"arch"`
	Hostname string `json:"hostname"`
	Username string `json:"username"`
	HomeDir  string `json:"home_dir"`
	WorkDir  string `json:"work_dir"`
}

// OrganizeOutput is the payload for action=organize.
type OrganizeOutput struct {
	Directory string         `json:"directory"`
	Moved     map[string]int `json:"moved"` // category -> file count
	Total     int            `json:"total"`
}

func (ListOutput) isToolOutput()     {}
func (ReadOutput) isToolOutput()     {}
func (SearchOutput) isToolOutput()   {}
func (ShellOutput) isToolOutput()    {}
func (InfoOutput) isToolOutput()     {}
func (OrganizeOutput) isToolOutput() {}

// ToolResult is the structured outcome of one tool execution.
//
// # Description
//
// Tools never return Go errors for domain failures; they report them here
// with Status=error. For any mutation the Verification field is present and
// authoritative: Passed=false forces Status=error regardless of what the
// underlying syscalls reported.
//
// # Fields
//
//   - Status: success or error.
//   - Action: semantic tag; the tracker and formatter switch on it.
//   - Output: action-specific payload (tagged variant, may be nil).
//   - Error: short message when Status=error.
//   - BeforePaths: paths that existed pre-op and are affected.
//   - AfterPaths: paths that exist post-op.
//   - Changed: union of before+after, for auditing.
//   - Verification: post-condition check, required for mutations.
//   - MessageUser: optional short human text from the tool itself.
type ToolResult struct {
	Status       ToolStatus    `json:"status"`
	Action       ToolAction    `json:"action"`
	Output       ToolOutput    `json:"output,omitempty"`
	Error        string        `json:"error,omitempty"`
	BeforePaths  []string      `json:"before_paths,omitempty"`
	AfterPaths   []string      `json:"after_paths,omitempty"`
	Changed      []string      `json:"changed,omitempty"`
	Verification *Verification `json:"verification,omitempty"`
	MessageUser  string        `json:"message_user,omitempty"`
}

// OK reports whether the result is a verified success. For mutations this
// requires Verification.Passed; read-only actions only need Status=success.
func (r *ToolResult) OK() bool {
	if r.Status != StatusSuccess {
		return false
	}
	if r.Action.IsMutation() {
		return r.Verification != nil && r.Verification.Passed
	}
	return true
}

// ErrorResult builds an error ToolResult for the given action.
func ErrorResult(action ToolAction, msg string) *ToolResult {
	return &ToolResult{Status: StatusError, Action: action, Error: msg}
}

// FinalizeChanged populates Changed as the deduplicated union of
// BeforePaths and AfterPaths.
func (r *ToolResult) FinalizeChanged() {
	seen := make(map[string]struct{}, len(r.BeforePaths)+len(r.AfterPaths))
	r.Changed = r.Changed[:0]
	for _, p := range r.BeforePaths {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			r.Changed = append(r.Changed, p)
		}
	}
	for _, p := range r.AfterPaths {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			r.Changed = append(r.Changed, p)
		}
	}
}
