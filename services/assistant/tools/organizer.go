// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// File organizer: sorts a directory's files into categorized subfolders by
// extension and content keywords.
package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/AleutianAI/AleutianAssistant/services/assistant/datatypes"
)

type categoryRule struct {
	extensions []string
	keywords   []string
}

// categoryOrder keeps categorization deterministic (map iteration is not).
var categoryOrder = []string{
	"Code", "Documents", "Receipts", "Images", "Videos", "Audio", "Archives", "Data",
}

var categories = map[string]categoryRule{
	"Code": {
		extensions: []string{".py", ".js", ".ts", ".jsx", ".tsx", ".java", ".cpp", ".c", ".h", ".go", ".rs", ".rb", ".php", ".swift", ".kt"},
		keywords:   []string{"def ", "function ", "class ", "import ", "const ", "var ", "let ", "#include"},
	},
	"Documents": {
		extensions: []string{".txt", ".doc", ".docx", ".pdf", ".rtf", ".odt", ".md"},
		keywords:   []string{"meeting", "notes", "report", "letter", "memo", "dear ", "summary"},
	},
	"Receipts": {
		keywords: []string{"receipt", "invoice", "order", "payment", "total:", "$", "€", "amount due", "paid"},
	},
	"Images": {
		extensions: []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".svg", ".webp", ".ico", ".tiff"},
		keywords:   []string{"[image", "photo", "picture", "screenshot"},
	},
	"Videos": {
		extensions: []string{".mp4", ".mov", ".avi", ".mkv", ".webm", ".flv", ".wmv"},
	},
	"Audio": {
		extensions: []string{".mp3", ".wav", ".flac", ".aac", ".ogg", ".m4a"},
	},
	"Archives": {
		extensions: []string{".zip", ".tar", ".gz", ".rar", ".7z", ".bz2"},
	},
	"Data": {
		extensions: []string{".json", ".xml", ".csv", ".yaml", ".yml", ".sql", ".db"},
	},
}

// textExtensions are safe to sniff for content keywords.
var textExtensions = map[string]struct{}{
	".txt": {}, ".md": {}, ".py": {}, ".js": {}, ".ts": {},
	".json": {}, ".xml": {}, ".csv": {}, ".html": {}, ".css": {},
}

// CategorizeFile picks the category for a file from its extension, then a
// 1KB content sniff, then filename keywords. Unmatched files go to "Other".
func CategorizeFile(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	filename := strings.ToLower(filepath.Base(path))

	for _, cat := range categoryOrder {
		for _, e := range categories[cat].extensions {
			if ext == e {
				return cat
			}
		}
	}

	if _, ok := textExtensions[ext]; ok {
		if head := readHead(path, 1000); head != "" {
			lower := strings.ToLower(head)
			for _, cat := range categoryOrder {
				for _, kw := range categories[cat].keywords {
					if strings.Contains(lower, strings.ToLower(kw)) ||
						strings.Contains(filename, strings.ToLower(kw)) {
						return cat
					}
				}
			}
		}
	}

	for _, cat := range categoryOrder {
		for _, kw := range categories[cat].keywords {
			if strings.Contains(filename, strings.ToLower(kw)) {
				return cat
			}
		}
	}
	return "Other"
}

func readHead(path string, n int) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	buf := make([]byte, n)
	read, _ := f.Read(buf)
	return string(buf[:read])
}

// OrganizeFiles moves every regular file in the directory into its category
// subfolder, suffixing "_1", "_2", ... on name conflicts. This is a
// mutation: the result carries before/after paths and a verification over
// the moved set.
func (f *FileOps) OrganizeFiles(directory string) *datatypes.ToolResult {
	dir, err := f.guard.EnsureAllowed(directory)
	if err != nil {
		return verificationFailure(err.Error(), datatypes.ActionOrganize, directory)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return verificationFailure(fmt.Sprintf("Directory not found: %s", dir), datatypes.ActionOrganize, dir)
	}
	if !info.IsDir() {
		return verificationFailure(fmt.Sprintf("Not a directory: %s", dir), datatypes.ActionOrganize, dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsPermission(err) {
			return verificationFailure(permissionDeniedMessage(directory, err), datatypes.ActionOrganize, dir)
		}
		return verificationFailure(fmt.Sprintf("Unexpected error organizing %s: %v", directory, err), datatypes.ActionOrganize, dir)
	}

	var files []string
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			files = append(files, entry.Name())
		}
	}
	if len(files) == 0 {
		return verificationFailure("No files to organize", datatypes.ActionOrganize, dir)
	}
	sort.Strings(files)

	moved := map[string]int{}
	var before, after, failures []string
	total := 0
	for _, name := range files {
		src := filepath.Join(dir, name)
		category := CategorizeFile(src)
		catDir := filepath.Join(dir, category)
		if err := os.MkdirAll(catDir, 0o755); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		dst := resolveConflict(filepath.Join(catDir, name))
		if err := os.Rename(src, dst); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		if v := VerifyMove(src, dst, -1); !v.Passed {
			failures = append(failures, fmt.Sprintf("%s: %s", name, v.Details))
			continue
		}
		before = append(before, src)
		after = append(after, dst)
		moved[category]++
		total++
	}

	verification := datatypes.Verification{Passed: len(failures) == 0, Details: "All files moved and verified"}
	if len(failures) > 0 {
		verification.Details = fmt.Sprintf("Failed to organize: %s", strings.Join(failures, ", "))
	}

	r := &datatypes.ToolResult{
		Action:       datatypes.ActionOrganize,
		Output:       datatypes.OrganizeOutput{Directory: dir, Moved: moved, Total: total},
		BeforePaths:  before,
		AfterPaths:   after,
		Verification: &verification,
	}
	r.FinalizeChanged()
	if verification.Passed {
		r.Status = datatypes.StatusSuccess
		r.MessageUser = fmt.Sprintf("Organized %d file(s) in %s into %d folder(s)", total, dir, len(moved))
	} else {
		r.Status = datatypes.StatusError
		r.Error = verification.Details
		r.MessageUser = verification.Details
	}
	return r
}

// resolveConflict appends _1, _2, ... before the extension until the path
// is free.
func resolveConflict(path string) string {
	if _, err := os.Lstat(path); err != nil {
		return path
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, i, ext)
		if _, err := os.Lstat(candidate); err != nil {
			return candidate
		}
	}
}
