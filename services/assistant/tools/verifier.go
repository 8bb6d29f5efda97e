// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Post-condition checks for filesystem mutations. Pure reads of disk state;
// these functions never modify anything.
package tools

import (
	"bytes"
	"fmt"
	"os"

	"github.com/AleutianAI/AleutianAssistant/services/assistant/datatypes"
)

// VerifyWrite re-reads the target and compares its bytes to what was meant
// to be written.
func VerifyWrite(path string, expected []byte) datatypes.Verification {
	actual, err := os.ReadFile(path)
	if err != nil {
		return datatypes.Verification{
			Passed:  false,
			Details: fmt.Sprintf("Write verification failed: cannot re-read %s: %v", path, err),
		}
	}
	if !bytes.Equal(actual, expected) {
		return datatypes.Verification{
			Passed: false,
			Details: fmt.Sprintf("Write verification failed: %s holds %d bytes, expected %d",
				path, len(actual), len(expected)),
		}
	}
	return datatypes.Verification{Passed: true, Details: "Content verified on disk"}
}

// VerifyMove checks the source is gone, the destination is present, and for
// regular files that the destination size matches. expectedSize < 0 skips
// the size check (directories).
func VerifyMove(source, destination string, expectedSize int64) datatypes.Verification {
	if _, err := os.Lstat(source); err == nil {
		return datatypes.Verification{
			Passed:  false,
			Details: fmt.Sprintf("Move verification failed: source %s still exists", source),
		}
	}
	info, err := os.Stat(destination)
	if err != nil {
		return datatypes.Verification{
			Passed:  false,
			Details: fmt.Sprintf("Move verification failed: destination %s missing: %v", destination, err),
		}
	}
	if expectedSize >= 0 && info.Mode().IsRegular() && info.Size() != expectedSize {
		return datatypes.Verification{
			Passed: false,
			Details: fmt.Sprintf("Move verification failed: %s is %d bytes, expected %d",
				destination, info.Size(), expectedSize),
		}
	}
	return datatypes.Verification{Passed: true, Details: "Source removed and destination verified"}
}

// VerifyCopy checks both source and destination are present, with a size
// match for regular files. expectedSize < 0 skips the size check.
func VerifyCopy(source, destination string, expectedSize int64) datatypes.Verification {
	if _, err := os.Stat(source); err != nil {
		return datatypes.Verification{
			Passed:  false,
			Details: fmt.Sprintf("Copy verification failed: source %s missing: %v", source, err),
		}
	}
	info, err := os.Stat(destination)
	if err != nil {
		return datatypes.Verification{
			Passed:  false,
			Details: fmt.Sprintf("Copy verification failed: destination %s missing: %v", destination, err),
		}
	}
	if expectedSize >= 0 && info.Mode().IsRegular() && info.Size() != expectedSize {
		return datatypes.Verification{
			Passed: false,
			Details: fmt.Sprintf("Copy verification failed: %s is %d bytes, expected %d",
				destination, info.Size(), expectedSize),
		}
	}
	return datatypes.Verification{Passed: true, Details: "Destination verified"}
}

// VerifyDelete checks the path no longer exists.
func VerifyDelete(path string) datatypes.Verification {
	if _, err := os.Lstat(path); err == nil {
		return datatypes.Verification{
			Passed:  false,
			Details: fmt.Sprintf("Delete verification failed: %s still exists", path),
		}
	}
	return datatypes.Verification{Passed: true, Details: "Path removed"}
}

// VerifyCreateDir checks the path exists and is a directory.
func VerifyCreateDir(path string) datatypes.Verification {
	info, err := os.Stat(path)
	if err != nil {
		return datatypes.Verification{
			Passed:  false,
			Details: fmt.Sprintf("Create verification failed: %s missing: %v", path, err),
		}
	}
	if !info.IsDir() {
		return datatypes.Verification{
			Passed:  false,
			Details: fmt.Sprintf("Create verification failed: %s is not a directory", path),
		}
	}
	return datatypes.Verification{Passed: true, Details: "Directory verified"}
}
