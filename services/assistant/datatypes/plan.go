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

// PlanStatus is the intent planner's verdict for one utterance.
type PlanStatus string

const (
	// PlanReady means the tool and all parameters are bound.
	PlanReady PlanStatus = "ready"
	// PlanNeedsDisambiguation means a tool was identified but the target is
	// ambiguous; Alternatives holds the candidates to offer.
	PlanNeedsDisambiguation PlanStatus = "needs_disambiguation"
	// PlanNeedsClarification means a tool was identified but a required
	// field is missing (e.g. a destination for a rename).
	PlanNeedsClarification PlanStatus = "needs_clarification"
	// PlanNoAction means the utterance is conversational; route to a model.
	PlanNoAction PlanStatus = "no_action"
)

// Plan is the output of the rule-based intent planner.
//
// For PlanReady, ToolName and Params are fully bound. Destructive carries
// whether the action requires the confirmation protocol, and Reference is
// the resolver result (nil when the target came from an explicit path in
// the utterance). MissingField names the clarification subject for
// PlanNeedsClarification.
type Plan struct {
	Status       PlanStatus         `json:"status"`
	ToolName     string             `json:"tool_name,omitempty"`
	Params       map[string]string  `json:"params,omitempty"`
	Destructive  bool               `json:"destructive"`
	Reference    *ResolvedReference `json:"reference,omitempty"`
	Alternatives []*Entity          `json:"alternatives,omitempty"`
	MissingField string             `json:"missing_field,omitempty"`
	RuleName     string             `json:"rule_name,omitempty"`
	// RebindParam names the tool parameter an ordinal disambiguation reply
	// should rebind when this plan parks as a PendingAction.
	RebindParam string `json:"rebind_param,omitempty"`
}
