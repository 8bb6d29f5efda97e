// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package models

import (
	"strings"

	"github.com/AleutianAI/AleutianAssistant/services/assistant/datatypes"
)

// capabilityKeywords maps name fragments to the capability they signal.
// Matching is case-insensitive over the model name and backend reference.
var capabilityKeywords = map[datatypes.Capability][]string{
	datatypes.CapCoding:    {"code", "coder", "coding", "starcoder", "codellama", "deepseek-coder"},
	datatypes.CapMath:      {"math", "mathstral", "numina"},
	datatypes.CapReasoning: {"reason", "r1", "think", "qwq", "o1"},
	datatypes.CapCreative:  {"creative", "story", "writer", "roleplay"},
	datatypes.CapAnalysis:  {"instruct", "analy"},
}

// specialistScore is assigned to a capability inferred from the model name.
// A detected specialist still keeps a usable general score so the router can
// fall back to it when nothing better is registered.
const (
	specialistScore      = 0.9
	specialistGeneral    = 0.5
	generalistScore      = 0.7
	analysisFromInstruct = 0.6
)

// DetectCapabilities infers capability scores from a model's name and
// backend reference when the caller registered it without explicit scores.
// A name with no recognized fragment is treated as a generalist.
func DetectCapabilities(name, modelRef string) map[datatypes.Capability]float64 {
	haystack := strings.ToLower(name + " " + modelRef)
	scores := make(map[datatypes.Capability]float64)

	for capability, fragments := range capabilityKeywords {
		for _, fragment := range fragments {
			if !strings.Contains(haystack, fragment) {
				continue
			}
			score := specialistScore
			if capability == datatypes.CapAnalysis {
				// "instruct" is a weak signal; most instruct tunes are
				// general-purpose chat models.
				score = analysisFromInstruct
			}
			if score > scores[capability] {
				scores[capability] = score
			}
			break
		}
	}

	if len(scores) == 0 {
		scores[datatypes.CapGeneral] = generalistScore
		return scores
	}
	if _, ok := scores[datatypes.CapGeneral]; !ok {
		scores[datatypes.CapGeneral] = specialistGeneral
	}
	return scores
}
