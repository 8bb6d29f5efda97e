// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

// Capability is the closed set of model capability classes the router
// chooses between.
type Capability string

const (
	CapGeneral   Capability = "general"
	CapCoding    Capability = "coding"
	CapReasoning Capability = "reasoning"
	CapCreative  Capability = "creative"
	CapMath      Capability = "math"
	CapAnalysis  Capability = "analysis"
)

// AllCapabilities lists the capabilities in the order they are presented to
// the router model.
var AllCapabilities = []Capability{
	CapGeneral, CapCoding, CapReasoning, CapCreative, CapMath, CapAnalysis,
}

// RoutingDecision is the router's choice of worker model for one message.
type RoutingDecision struct {
	ModelID    string     `json:"model_id"`
	ModelName  string     `json:"model_name"`
	Capability Capability `json:"capability"`
	Reason     string     `json:"reason"`
	Confidence float64    `json:"confidence"`
}
