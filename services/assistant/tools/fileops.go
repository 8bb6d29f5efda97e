// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Verified filesystem operations. Each operation performs strict path
// resolution, guarded execution, and post-action verification, and reports
// everything through ToolResult rather than Go errors.
package tools

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/AleutianAI/AleutianAssistant/services/assistant/datatypes"
)

const (
	// DefaultReadMaxLines bounds read_file line output.
	DefaultReadMaxLines = 100
	// DefaultReadMaxBytes bounds the size of a readable file.
	DefaultReadMaxBytes = 10 * 1024 * 1024
	// DefaultSearchMaxResults bounds search_files matches.
	DefaultSearchMaxResults = 50
)

// FileOps is the guarded filesystem primitive layer.
type FileOps struct {
	guard *PathGuard
	log   *slog.Logger
}

// NewFileOps wires the primitives to a path guard.
func NewFileOps(guard *PathGuard, log *slog.Logger) *FileOps {
	if log == nil {
		log = slog.Default()
	}
	return &FileOps{guard: guard, log: log}
}

// Guard exposes the underlying path guard (the formatter shares it for
// home-relative display paths).
func (f *FileOps) Guard() *PathGuard { return f.guard }

// verificationFailure builds the uniform error result for a failed guard or
// post-condition: status=error, verification failed, details echoed to the
// user message.
func verificationFailure(details string, action datatypes.ToolAction, affected ...string) *datatypes.ToolResult {
	r := &datatypes.ToolResult{
		Status:       datatypes.StatusError,
		Action:       action,
		Error:        details,
		BeforePaths:  affected,
		Verification: &datatypes.Verification{Passed: false, Details: details},
		MessageUser:  details,
	}
	r.FinalizeChanged()
	return r
}

func permissionDeniedMessage(path string, err error) string {
	return fmt.Sprintf(
		"The OS blocked access to %s. Grant the assistant (or the terminal) full disk access and retry. (%v)",
		path, err)
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

// ===== Read-only operations =====

// ReadFile reads up to maxLines lines (and refuses files over maxBytes).
// Zero limits fall back to the defaults.
func (f *FileOps) ReadFile(path string, maxLines int, maxBytes int64) *datatypes.ToolResult {
	if maxLines <= 0 {
		maxLines = DefaultReadMaxLines
	}
	if maxBytes <= 0 {
		maxBytes = DefaultReadMaxBytes
	}
	target, err := f.guard.EnsureAllowed(path)
	if err != nil {
		return verificationFailure(err.Error(), datatypes.ActionRead, path)
	}
	info, err := os.Stat(target)
	if err != nil {
		if os.IsPermission(err) {
			return verificationFailure(permissionDeniedMessage(path, err), datatypes.ActionRead, path)
		}
		return verificationFailure(fmt.Sprintf("File not found: %s", target), datatypes.ActionRead, target)
	}
	if info.IsDir() {
		return verificationFailure(fmt.Sprintf("Not a file: %s", target), datatypes.ActionRead, target)
	}
	if info.Size() > maxBytes {
		return verificationFailure(
			fmt.Sprintf("File too large (%s). Maximum is %s", humanSize(info.Size()), humanSize(maxBytes)),
			datatypes.ActionRead, target)
	}

	file, err := os.Open(target)
	if err != nil {
		if os.IsPermission(err) {
			return verificationFailure(permissionDeniedMessage(path, err), datatypes.ActionRead, path)
		}
		return verificationFailure(fmt.Sprintf("Unexpected error reading %s: %v", path, err), datatypes.ActionRead, path)
	}
	defer file.Close()

	var lines []string
	truncated := false
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(lines) >= maxLines {
			truncated = true
			lines = append(lines, fmt.Sprintf("... (truncated at %d lines)", maxLines))
			break
		}
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return verificationFailure(fmt.Sprintf("Unexpected error reading %s: %v", path, err), datatypes.ActionRead, target)
	}

	return &datatypes.ToolResult{
		Status:       datatypes.StatusSuccess,
		Action:       datatypes.ActionRead,
		Output:       datatypes.ReadOutput{Path: target, Lines: lines, Truncated: truncated},
		Verification: &datatypes.Verification{Passed: true, Details: "Read-only operation"},
		MessageUser:  fmt.Sprintf("Read %d lines from %s", len(lines), target),
	}
}

// ListDirectory enumerates the directory's children sorted by name.
func (f *FileOps) ListDirectory(path string, showHidden bool) *datatypes.ToolResult {
	dir, err := f.guard.EnsureAllowed(path)
	if err != nil {
		return verificationFailure(err.Error(), datatypes.ActionList, path)
	}
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsPermission(err) {
			return verificationFailure(permissionDeniedMessage(path, err), datatypes.ActionList, path)
		}
		return verificationFailure(fmt.Sprintf("Directory not found: %s", dir), datatypes.ActionList, dir)
	}
	if !info.IsDir() {
		return verificationFailure(fmt.Sprintf("Not a directory: %s", dir), datatypes.ActionList, dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsPermission(err) {
			return verificationFailure(permissionDeniedMessage(path, err), datatypes.ActionList, path)
		}
		return verificationFailure(fmt.Sprintf("Unexpected error listing %s: %v", path, err), datatypes.ActionList, dir)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	items := make([]datatypes.ListItem, 0, len(entries))
	for _, entry := range entries {
		if !showHidden && strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		item := datatypes.ListItem{Name: entry.Name(), Type: "file"}
		if entry.IsDir() {
			item.Type = "folder"
		} else if fi, err := entry.Info(); err == nil {
			item.SizeBytes = fi.Size()
		}
		items = append(items, item)
	}

	return &datatypes.ToolResult{
		Status:       datatypes.StatusSuccess,
		Action:       datatypes.ActionList,
		Output:       datatypes.ListOutput{Path: dir, Items: items},
		Verification: &datatypes.Verification{Passed: true, Details: "Read-only operation"},
		MessageUser:  fmt.Sprintf("Found %d item(s) in %s", len(items), dir),
	}
}

// SearchFiles globs the directory for pattern, capped at maxResults.
func (f *FileOps) SearchFiles(directory, pattern string, maxResults int) *datatypes.ToolResult {
	if maxResults <= 0 {
		maxResults = DefaultSearchMaxResults
	}
	dir, err := f.guard.EnsureAllowed(directory)
	if err != nil {
		return verificationFailure(err.Error(), datatypes.ActionSearch, directory)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return verificationFailure(fmt.Sprintf("Directory not found: %s", dir), datatypes.ActionSearch, dir)
	}

	globbed, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return verificationFailure(fmt.Sprintf("Invalid pattern %q: %v", pattern, err), datatypes.ActionSearch, dir)
	}
	sort.Strings(globbed)
	truncated := false
	if len(globbed) > maxResults {
		globbed = globbed[:maxResults]
		truncated = true
	}

	return &datatypes.ToolResult{
		Status: datatypes.StatusSuccess,
		Action: datatypes.ActionSearch,
		Output: datatypes.SearchOutput{
			Matches:   globbed,
			Count:     len(globbed),
			Truncated: truncated,
		},
		Verification: &datatypes.Verification{Passed: true, Details: "Read-only operation"},
		MessageUser:  fmt.Sprintf("Found %d matching item(s)", len(globbed)),
	}
}

// ===== Mutations =====

// WriteFile writes content atomically: sibling temp file, fsync, rename over
// the target. With appendMode the existing bytes are merged first, so the
// rename still replaces the file in one step. Append on a missing file
// creates it.
func (f *FileOps) WriteFile(path, content string, appendMode bool) *datatypes.ToolResult {
	action := datatypes.ActionWrite
	if appendMode {
		action = datatypes.ActionAppend
	}
	target, err := f.guard.EnsureAllowed(path)
	if err != nil {
		return verificationFailure(err.Error(), action, path)
	}
	if f.guard.IsProtected(target) {
		return verificationFailure(fmt.Sprintf("Cannot overwrite protected path: %s", target), action, target)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return verificationFailure(fmt.Sprintf("Unexpected error writing %s: %v", path, err), action, target)
	}

	existedBefore := false
	combined := []byte(content)
	if info, err := os.Stat(target); err == nil && !info.IsDir() {
		existedBefore = true
		if appendMode {
			existing, err := os.ReadFile(target)
			if err != nil {
				return verificationFailure(fmt.Sprintf("Unexpected error writing %s: %v", path, err), action, target)
			}
			combined = append(existing, []byte(content)...)
		}
	}

	if err := atomicWrite(target, combined); err != nil {
		f.log.Error("write failed", "path", target, "error", err)
		if os.IsPermission(err) {
			return verificationFailure(permissionDeniedMessage(path, err), action, target)
		}
		return verificationFailure(fmt.Sprintf("Unexpected error writing %s: %v", path, err), action, target)
	}

	verification := VerifyWrite(target, combined)
	r := &datatypes.ToolResult{
		Action:       action,
		AfterPaths:   []string{target},
		Verification: &verification,
	}
	if existedBefore {
		r.BeforePaths = []string{target}
	}
	r.FinalizeChanged()
	if verification.Passed {
		r.Status = datatypes.StatusSuccess
		verb := "Wrote"
		if appendMode {
			verb = "Appended to"
		}
		r.MessageUser = fmt.Sprintf("%s %s (verified)", verb, target)
	} else {
		r.Status = datatypes.StatusError
		r.Error = verification.Details
		r.MessageUser = verification.Details
	}
	return r
}

// atomicWrite writes data to a sibling temp file, fsyncs it, and renames it
// over the target. A partial write never becomes the visible file.
func atomicWrite(target string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), ".write-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// MoveFile renames source to destination, creating the destination parent
// when missing.
func (f *FileOps) MoveFile(source, destination string) *datatypes.ToolResult {
	src, err := f.guard.EnsureAllowed(source)
	if err != nil {
		return verificationFailure(err.Error(), datatypes.ActionMove, source, destination)
	}
	dst, err := f.guard.EnsureAllowed(destination)
	if err != nil {
		return verificationFailure(err.Error(), datatypes.ActionMove, source, destination)
	}
	info, err := os.Stat(src)
	if err != nil {
		return verificationFailure(fmt.Sprintf("Source not found: %s", src), datatypes.ActionMove, src, dst)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return verificationFailure(fmt.Sprintf("Unexpected error moving file: %v", err), datatypes.ActionMove, src, dst)
	}

	expectedSize := int64(-1)
	if info.Mode().IsRegular() {
		expectedSize = info.Size()
	}
	if err := os.Rename(src, dst); err != nil {
		f.log.Error("move failed", "source", src, "destination", dst, "error", err)
		if os.IsPermission(err) {
			return verificationFailure(permissionDeniedMessage(source, err), datatypes.ActionMove, src, dst)
		}
		return verificationFailure(fmt.Sprintf("Unexpected error moving file: %v", err), datatypes.ActionMove, src, dst)
	}

	verification := VerifyMove(src, dst, expectedSize)
	r := &datatypes.ToolResult{
		Action:       datatypes.ActionMove,
		BeforePaths:  []string{src},
		AfterPaths:   []string{dst},
		Verification: &verification,
	}
	r.FinalizeChanged()
	if verification.Passed {
		r.Status = datatypes.StatusSuccess
		r.MessageUser = fmt.Sprintf("Moved %s to %s", filepath.Base(src), dst)
	} else {
		r.Status = datatypes.StatusError
		r.Error = verification.Details
		r.MessageUser = verification.Details
	}
	return r
}

// CopyFile copies a file (or directory tree) to destination.
func (f *FileOps) CopyFile(source, destination string) *datatypes.ToolResult {
	src, err := f.guard.EnsureAllowed(source)
	if err != nil {
		return verificationFailure(err.Error(), datatypes.ActionCopy, source, destination)
	}
	dst, err := f.guard.EnsureAllowed(destination)
	if err != nil {
		return verificationFailure(err.Error(), datatypes.ActionCopy, source, destination)
	}
	info, err := os.Stat(src)
	if err != nil {
		return verificationFailure(fmt.Sprintf("Source not found: %s", src), datatypes.ActionCopy, src, dst)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return verificationFailure(fmt.Sprintf("Unexpected error copying file: %v", err), datatypes.ActionCopy, src, dst)
	}

	expectedSize := int64(-1)
	if info.IsDir() {
		err = copyTree(src, dst)
	} else {
		expectedSize = info.Size()
		err = copyRegular(src, dst, info)
	}
	if err != nil {
		if os.IsPermission(err) {
			return verificationFailure(permissionDeniedMessage(source, err), datatypes.ActionCopy, src, dst)
		}
		return verificationFailure(fmt.Sprintf("Unexpected error copying file: %v", err), datatypes.ActionCopy, src, dst)
	}

	verification := VerifyCopy(src, dst, expectedSize)
	r := &datatypes.ToolResult{
		Action:       datatypes.ActionCopy,
		BeforePaths:  []string{src},
		AfterPaths:   []string{dst},
		Verification: &verification,
	}
	r.FinalizeChanged()
	if verification.Passed {
		r.Status = datatypes.StatusSuccess
		r.MessageUser = fmt.Sprintf("Copied %s to %s", filepath.Base(src), dst)
	} else {
		r.Status = datatypes.StatusError
		r.Error = verification.Details
		r.MessageUser = verification.Details
	}
	return r
}

func copyRegular(src, dst string, info os.FileInfo) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, info.Mode().Perm())
		}
		return copyRegular(path, target, info)
	})
}

// DeleteFile removes a file, or a directory with its whole subtree.
// Protected paths fail fast without touching disk.
func (f *FileOps) DeleteFile(path string) *datatypes.ToolResult {
	target, err := f.guard.EnsureAllowed(path)
	if err != nil {
		return verificationFailure(err.Error(), datatypes.ActionDelete, path)
	}
	if f.guard.IsProtected(target) {
		return verificationFailure(fmt.Sprintf("Cannot delete protected path: %s", target), datatypes.ActionDelete, target)
	}
	info, err := os.Lstat(target)
	if err != nil {
		return verificationFailure(fmt.Sprintf("Path not found: %s", target), datatypes.ActionDelete, target)
	}

	if info.IsDir() {
		err = os.RemoveAll(target)
	} else {
		err = os.Remove(target)
	}
	if err != nil {
		if os.IsPermission(err) {
			return verificationFailure(permissionDeniedMessage(path, err), datatypes.ActionDelete, target)
		}
		return verificationFailure(fmt.Sprintf("Unexpected error deleting %s: %v", path, err), datatypes.ActionDelete, target)
	}

	verification := VerifyDelete(target)
	r := &datatypes.ToolResult{
		Action:       datatypes.ActionDelete,
		BeforePaths:  []string{target},
		Verification: &verification,
	}
	r.FinalizeChanged()
	if verification.Passed {
		r.Status = datatypes.StatusSuccess
		r.MessageUser = fmt.Sprintf("Deleted %s", target)
	} else {
		r.Status = datatypes.StatusError
		r.Error = verification.Details
		r.MessageUser = verification.Details
	}
	return r
}

// DeleteByPattern removes every regular file in directory matching any of
// the comma-separated glob patterns, aggregating per-match outcomes.
// Overall success requires every match removed and none remaining.
func (f *FileOps) DeleteByPattern(directory, pattern string) *datatypes.ToolResult {
	dir, err := f.guard.EnsureAllowed(directory)
	if err != nil {
		return verificationFailure(err.Error(), datatypes.ActionDelete, directory)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return verificationFailure(fmt.Sprintf("Directory not found: %s", dir), datatypes.ActionDelete, dir)
	}

	var deleted, failures []string
	for _, pat := range strings.Split(pattern, ",") {
		pat = strings.TrimSpace(pat)
		if pat == "" {
			continue
		}
		matches, err := filepath.Glob(filepath.Join(dir, pat))
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", pat, err))
			continue
		}
		for _, match := range matches {
			info, err := os.Lstat(match)
			if err != nil || info.IsDir() {
				continue
			}
			if err := os.Remove(match); err != nil {
				failures = append(failures, fmt.Sprintf("%s: %v", filepath.Base(match), err))
				continue
			}
			if _, err := os.Lstat(match); err == nil {
				failures = append(failures, filepath.Base(match))
			} else {
				deleted = append(deleted, filepath.Base(match))
			}
		}
	}

	verification := datatypes.Verification{Passed: len(failures) == 0, Details: "All matching files removed"}
	if len(failures) > 0 {
		verification.Details = fmt.Sprintf("Failed to remove: %s", strings.Join(failures, ", "))
	}

	before := make([]string, 0, len(deleted))
	for _, name := range deleted {
		before = append(before, filepath.Join(dir, name))
	}
	r := &datatypes.ToolResult{
		Action:       datatypes.ActionDelete,
		BeforePaths:  before,
		Verification: &verification,
	}
	r.FinalizeChanged()
	if verification.Passed {
		r.Status = datatypes.StatusSuccess
		r.MessageUser = fmt.Sprintf("Deleted %d file(s) matching '%s'", len(deleted), pattern)
	} else {
		r.Status = datatypes.StatusError
		r.Error = verification.Details
		r.MessageUser = fmt.Sprintf("Could not delete some files: %s", verification.Details)
	}
	return r
}

// CreateDirectory creates a new directory (with parents). An existing path
// is an error; the operation does not coerce.
func (f *FileOps) CreateDirectory(path string) *datatypes.ToolResult {
	dir, err := f.guard.EnsureAllowed(path)
	if err != nil {
		return verificationFailure(err.Error(), datatypes.ActionCreate, path)
	}
	if _, err := os.Lstat(dir); err == nil {
		return verificationFailure(fmt.Sprintf("Path already exists: %s", dir), datatypes.ActionCreate, dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		if os.IsPermission(err) {
			return verificationFailure(permissionDeniedMessage(path, err), datatypes.ActionCreate, dir)
		}
		return verificationFailure(fmt.Sprintf("Unexpected error creating directory: %v", err), datatypes.ActionCreate, dir)
	}

	verification := VerifyCreateDir(dir)
	r := &datatypes.ToolResult{
		Action:       datatypes.ActionCreate,
		AfterPaths:   []string{dir},
		Verification: &verification,
	}
	r.FinalizeChanged()
	if verification.Passed {
		r.Status = datatypes.StatusSuccess
		r.MessageUser = fmt.Sprintf("Created folder %s", dir)
	} else {
		r.Status = datatypes.StatusError
		r.Error = verification.Details
		r.MessageUser = verification.Details
	}
	return r
}
