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
	"os"
	"os/user"
	"runtime"

	"github.com/AleutianAI/AleutianAssistant/services/assistant/datatypes"
)

// SystemInfo reports basic host facts as a read-only tool result.
func SystemInfo() *datatypes.ToolResult {
	hostname, _ := os.Hostname()
	home, _ := os.UserHomeDir()
	cwd, _ := os.Getwd()
	username := "unknown"
	if u, err := user.Current(); err == nil {
		username = u.Username
	}

	return &datatypes.ToolResult{
		Status: datatypes.StatusSuccess,
		Action: datatypes.ActionInfo,
		Output: datatypes.InfoOutput{
			OS:       runtime.GOOS,
			Arch:     runtime.GOARCH,
			Hostname: hostname,
			Username: username,
			HomeDir:  home,
			WorkDir:  cwd,
		},
		Verification: &datatypes.Verification{Passed: true, Details: "Read-only operation"},
	}
}
