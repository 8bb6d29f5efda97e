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
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/AleutianAI/AleutianAssistant/services/assistant/datatypes"
)

// Executor dispatches named tool invocations to the underlying
// implementations. It never returns a Go error or panics for domain
// failures; everything is reported through ToolResult.
type Executor struct {
	registry *Registry
	fileOps  *FileOps
	shell    *ShellRunner
	log      *slog.Logger
}

// NewExecutor wires the registry to the tool implementations.
func NewExecutor(registry *Registry, fileOps *FileOps, shell *ShellRunner, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{registry: registry, fileOps: fileOps, shell: shell, log: log}
}

// Registry exposes the executor's registry for the API surface.
func (e *Executor) Registry() *Registry { return e.registry }

// Execute runs one tool by name. Unknown tools, disabled tools and bad
// parameters produce status=error results.
func (e *Executor) Execute(ctx context.Context, name string, params map[string]string) *datatypes.ToolResult {
	spec := e.registry.Get(name)
	if spec == nil {
		return datatypes.ErrorResult(actionForTool(name), fmt.Sprintf("Unknown tool: %s", name))
	}
	if !spec.Enabled {
		return datatypes.ErrorResult(actionForTool(name), fmt.Sprintf("Tool is disabled: %s", name))
	}
	if err := e.registry.ValidateParams(name, params); err != nil {
		return datatypes.ErrorResult(actionForTool(name), err.Error())
	}

	start := time.Now()
	result := e.dispatch(ctx, name, params)
	e.log.Info("tool executed",
		"tool", name,
		"status", result.Status,
		"duration_ms", time.Since(start).Milliseconds())
	return result
}

func (e *Executor) dispatch(ctx context.Context, name string, params map[string]string) *datatypes.ToolResult {
	switch name {
	case "read_file":
		maxLines := intParam(params, "max_lines", DefaultReadMaxLines)
		return e.fileOps.ReadFile(params["path"], maxLines, DefaultReadMaxBytes)
	case "list_directory":
		return e.fileOps.ListDirectory(params["path"], boolParam(params, "show_hidden"))
	case "write_file":
		return e.fileOps.WriteFile(params["path"], params["content"], boolParam(params, "append"))
	case "move_file":
		return e.fileOps.MoveFile(params["source"], params["destination"])
	case "copy_file":
		return e.fileOps.CopyFile(params["source"], params["destination"])
	case "delete_file":
		return e.fileOps.DeleteFile(params["path"])
	case "delete_by_pattern":
		return e.fileOps.DeleteByPattern(params["directory"], params["pattern"])
	case "create_directory":
		return e.fileOps.CreateDirectory(params["path"])
	case "search_files":
		maxResults := intParam(params, "max_results", DefaultSearchMaxResults)
		return e.fileOps.SearchFiles(params["directory"], params["pattern"], maxResults)
	case "organize_files":
		return e.fileOps.OrganizeFiles(params["directory"])
	case "run_command":
		runner := e.shell
		if secs := intParam(params, "timeout", 0); secs > 0 {
			runner = NewShellRunner(time.Duration(secs)*time.Second, e.log)
		}
		return runner.Run(ctx, params["command"], params["working_directory"])
	case "get_system_info":
		return SystemInfo()
	}
	return datatypes.ErrorResult(actionForTool(name), fmt.Sprintf("Unknown tool: %s", name))
}

// actionForTool maps a tool name to its semantic action tag for error
// results produced before dispatch.
func actionForTool(name string) datatypes.ToolAction {
	switch name {
	case "read_file":
		return datatypes.ActionRead
	case "list_directory":
		return datatypes.ActionList
	case "write_file":
		return datatypes.ActionWrite
	case "move_file":
		return datatypes.ActionMove
	case "copy_file":
		return datatypes.ActionCopy
	case "delete_file", "delete_by_pattern":
		return datatypes.ActionDelete
	case "create_directory":
		return datatypes.ActionCreate
	case "search_files":
		return datatypes.ActionSearch
	case "organize_files":
		return datatypes.ActionOrganize
	case "run_command":
		return datatypes.ActionShell
	case "get_system_info":
		return datatypes.ActionInfo
	}
	return datatypes.ActionInfo
}

func intParam(params map[string]string, key string, fallback int) int {
	if v, ok := params[key]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func boolParam(params map[string]string, key string) bool {
	v, ok := params[key]
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
