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
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianAssistant/services/assistant/datatypes"
)

const (
	// DefaultShellTimeout bounds run_command execution.
	DefaultShellTimeout = 30 * time.Second
	// maxShellOutput truncates captured stdout/stderr.
	maxShellOutput = 10000
)

// blockedCommands are never executed, regardless of confirmation.
var blockedCommands = []string{
	"rm -rf /",
	"rm -rf ~",
	"rm -rf /*",
	"sudo rm",
	"mkfs",
	"dd if=",
	":(){:|:&};:",
	"chmod -r 777 /",
	"chown -r",
	"> /dev/sda",
	"mv ~ /dev/null",
}

// dangerousPatterns mark commands that require user confirmation.
var dangerousPatterns = []string{
	"sudo", "rm -rf", "rm -r", "chmod", "chown", "kill", "pkill",
	"killall", "shutdown", "reboot", "systemctl", "launchctl",
}

// ShellRunner executes shell commands with a kill-on-expiry timeout.
type ShellRunner struct {
	timeout time.Duration
	log     *slog.Logger
}

// NewShellRunner builds a runner; a non-positive timeout uses the default.
func NewShellRunner(timeout time.Duration, log *slog.Logger) *ShellRunner {
	if timeout <= 0 {
		timeout = DefaultShellTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &ShellRunner{timeout: timeout, log: log}
}

// BlockedReason reports why a command is unconditionally refused, or ""
// when it is allowed.
func BlockedReason(command string) string {
	lower := strings.ToLower(strings.TrimSpace(command))
	for _, blocked := range blockedCommands {
		if strings.Contains(lower, blocked) {
			return fmt.Sprintf("Command contains blocked pattern: %s", blocked)
		}
	}
	return ""
}

// IsDangerous reports whether the command requires confirmation before
// execution.
func IsDangerous(command string) bool {
	lower := strings.ToLower(command)
	for _, pattern := range dangerousPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// Run executes the command under /bin/sh with the runner's timeout; the
// child is killed on expiry. Output is truncated to 10k characters per
// stream.
func (s *ShellRunner) Run(ctx context.Context, command, workingDirectory string) *datatypes.ToolResult {
	if reason := BlockedReason(command); reason != "" {
		return datatypes.ErrorResult(datatypes.ActionShell,
			fmt.Sprintf("Command blocked for safety: %s", reason))
	}

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	s.log.Info("executing command", "command", command, "dir", workingDirectory)
	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", command)
	if workingDirectory != "" {
		cmd.Dir = workingDirectory
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return datatypes.ErrorResult(datatypes.ActionShell,
			fmt.Sprintf("Command timed out after %d seconds", int(s.timeout.Seconds())))
	}

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return datatypes.ErrorResult(datatypes.ActionShell, err.Error())
		}
	}

	out, outTrunc := truncateOutput(stdout.String())
	errOut, errTrunc := truncateOutput(stderr.String())
	result := &datatypes.ToolResult{
		Action: datatypes.ActionShell,
		Output: datatypes.ShellOutput{
			Command:   command,
			ExitCode:  exitCode,
			Stdout:    out,
			Stderr:    errOut,
			Truncated: outTrunc || errTrunc,
		},
		Verification: &datatypes.Verification{Passed: true, Details: "Command completed"},
	}
	if exitCode == 0 {
		result.Status = datatypes.StatusSuccess
	} else {
		result.Status = datatypes.StatusError
		result.Error = fmt.Sprintf("Command failed with exit code %d", exitCode)
	}
	return result
}

func truncateOutput(s string) (string, bool) {
	if len(s) <= maxShellOutput {
		return s, false
	}
	return s[:maxShellOutput] + "\n... (output truncated)", true
}
