// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Category groups tools on the API surface.
type Category string

const (
	CategoryFilesystem Category = "filesystem"
	CategoryShell      Category = "shell"
	CategorySystem     Category = "system"
)

// RiskLevel grades how much damage a tool can do.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Parameter describes one tool parameter. Every parameter is a primitive.
type Parameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // string, integer, boolean
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Default     string `json:"default,omitempty"`
}

// Spec is the descriptor for one tool exposed over the API and to the
// planner.
type Spec struct {
	Name                 string      `json:"name"`
	Description          string      `json:"description"`
	Category             Category    `json:"category"`
	RiskLevel            RiskLevel   `json:"risk_level"`
	RequiresConfirmation bool        `json:"requires_confirmation"`
	Enabled              bool        `json:"enabled"`
	Parameters           []Parameter `json:"parameters"`
}

// Registry holds the tool descriptors with their enabled flags. Enabled
// state is mutable at runtime via the API; reads are concurrent.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]*Spec
	order []string
}

// NewRegistry builds the registry with the full built-in tool set, all
// enabled.
func NewRegistry() *Registry {
	r := &Registry{specs: make(map[string]*Spec)}
	for _, spec := range builtinSpecs() {
		spec.Enabled = true
		r.specs[spec.Name] = spec
		r.order = append(r.order, spec.Name)
	}
	return r
}

// Get returns the spec for a tool name, or nil when unknown.
func (r *Registry) Get(name string) *Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.specs[name]
}

// IsEnabled reports whether the tool exists and is enabled.
func (r *Registry) IsEnabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[name]
	return ok && spec.Enabled
}

// SetEnabled flips the enabled flag; unknown names return an error.
func (r *Registry) SetEnabled(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	spec, ok := r.specs[name]
	if !ok {
		return fmt.Errorf("unknown tool: %s", name)
	}
	spec.Enabled = enabled
	return nil
}

// List returns all specs in registration order (copies, safe to serialize).
func (r *Registry) List() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Spec, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, *r.specs[name])
	}
	return out
}

// ValidateParams checks that every required parameter is present and no
// unknown parameter is supplied.
func (r *Registry) ValidateParams(name string, params map[string]string) error {
	spec := r.Get(name)
	if spec == nil {
		return fmt.Errorf("unknown tool: %s", name)
	}
	known := make(map[string]struct{}, len(spec.Parameters))
	for _, p := range spec.Parameters {
		known[p.Name] = struct{}{}
		if p.Required {
			if v, ok := params[p.Name]; !ok || strings.TrimSpace(v) == "" {
				return fmt.Errorf("tool %s: missing required parameter %q", name, p.Name)
			}
		}
	}
	var unknown []string
	for k := range params {
		if _, ok := known[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("tool %s: unknown parameter(s) %s", name, strings.Join(unknown, ", "))
	}
	return nil
}

// Prompt renders the enabled tools as a plain-text block for the model's
// system prompt.
func (r *Registry) Prompt() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var b strings.Builder
	b.WriteString("Available tools:\n")
	for _, name := range r.order {
		spec := r.specs[name]
		if !spec.Enabled {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", spec.Name, spec.Description)
		for _, p := range spec.Parameters {
			req := "optional"
			if p.Required {
				req = "required"
			}
			fmt.Fprintf(&b, "    %s (%s, %s): %s\n", p.Name, p.Type, req, p.Description)
		}
	}
	return b.String()
}

func builtinSpecs() []*Spec {
	return []*Spec{
		{
			Name:        "read_file",
			Description: "Read the contents of a text file",
			Category:    CategoryFilesystem,
			RiskLevel:   RiskLow,
			Parameters: []Parameter{
				{Name: "path", Type: "string", Description: "Path of the file to read", Required: true},
				{Name: "max_lines", Type: "integer", Description: "Maximum lines to return", Default: "100"},
			},
		},
		{
			Name:        "list_directory",
			Description: "List the contents of a directory",
			Category:    CategoryFilesystem,
			RiskLevel:   RiskLow,
			Parameters: []Parameter{
				{Name: "path", Type: "string", Description: "Directory to list", Required: true},
				{Name: "show_hidden", Type: "boolean", Description: "Include dotfiles", Default: "false"},
			},
		},
		{
			Name:        "write_file",
			Description: "Write or append text to a file (created if missing)",
			Category:    CategoryFilesystem,
			RiskLevel:   RiskMedium,
			Parameters: []Parameter{
				{Name: "path", Type: "string", Description: "Destination path", Required: true},
				{Name: "content", Type: "string", Description: "Text to write", Required: true},
				{Name: "append", Type: "boolean", Description: "Append instead of overwrite", Default: "false"},
			},
		},
		{
			Name:                 "move_file",
			Description:          "Move or rename a file or folder",
			Category:             CategoryFilesystem,
			RiskLevel:            RiskMedium,
			RequiresConfirmation: true,
			Parameters: []Parameter{
				{Name: "source", Type: "string", Description: "Current path", Required: true},
				{Name: "destination", Type: "string", Description: "New path", Required: true},
			},
		},
		{
			Name:        "copy_file",
			Description: "Copy a file or folder",
			Category:    CategoryFilesystem,
			RiskLevel:   RiskLow,
			Parameters: []Parameter{
				{Name: "source", Type: "string", Description: "Path to copy from", Required: true},
				{Name: "destination", Type: "string", Description: "Path to copy to", Required: true},
			},
		},
		{
			Name:                 "delete_file",
			Description:          "Delete a file, or a folder with its contents",
			Category:             CategoryFilesystem,
			RiskLevel:            RiskHigh,
			RequiresConfirmation: true,
			Parameters: []Parameter{
				{Name: "path", Type: "string", Description: "Path to delete", Required: true},
			},
		},
		{
			Name:                 "delete_by_pattern",
			Description:          "Delete files in a directory matching glob pattern(s), comma separated",
			Category:             CategoryFilesystem,
			RiskLevel:            RiskHigh,
			RequiresConfirmation: true,
			Parameters: []Parameter{
				{Name: "directory", Type: "string", Description: "Directory to delete from", Required: true},
				{Name: "pattern", Type: "string", Description: "Glob pattern(s), e.g. *.tmp,*.log", Required: true},
			},
		},
		{
			Name:        "create_directory",
			Description: "Create a new directory",
			Category:    CategoryFilesystem,
			RiskLevel:   RiskLow,
			Parameters: []Parameter{
				{Name: "path", Type: "string", Description: "Directory to create", Required: true},
			},
		},
		{
			Name:        "search_files",
			Description: "Search a directory for files matching a glob pattern",
			Category:    CategoryFilesystem,
			RiskLevel:   RiskLow,
			Parameters: []Parameter{
				{Name: "directory", Type: "string", Description: "Directory to search", Required: true},
				{Name: "pattern", Type: "string", Description: "Glob pattern, e.g. report*.pdf", Required: true},
				{Name: "max_results", Type: "integer", Description: "Maximum matches to return", Default: "50"},
			},
		},
		{
			Name:        "organize_files",
			Description: "Organize a directory's files into categorized subfolders (Code, Documents, Images, ...)",
			Category:    CategoryFilesystem,
			RiskLevel:   RiskMedium,
			Parameters: []Parameter{
				{Name: "directory", Type: "string", Description: "Directory to organize", Required: true},
			},
		},
		{
			Name:                 "run_command",
			Description:          "Execute a shell command and return its output",
			Category:             CategoryShell,
			RiskLevel:            RiskHigh,
			RequiresConfirmation: true,
			Parameters: []Parameter{
				{Name: "command", Type: "string", Description: "The shell command to execute", Required: true},
				{Name: "working_directory", Type: "string", Description: "Working directory for the command"},
				{Name: "timeout", Type: "integer", Description: "Timeout in seconds", Default: "30"},
			},
		},
		{
			Name:        "get_system_info",
			Description: "Report basic host information (OS, architecture, hostname, user)",
			Category:    CategorySystem,
			RiskLevel:   RiskLow,
			Parameters:  []Parameter{},
		},
	}
}
