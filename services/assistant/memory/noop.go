// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package memory

import "context"

// NoopRetriever is the retriever used when no vector store is configured.
// It never contributes context, so the chat pipeline needs no special case
// for the "memory off" deployment.
type NoopRetriever struct{}

func NewNoopRetriever() *NoopRetriever {
	return &NoopRetriever{}
}

func (n *NoopRetriever) RetrieveContext(_ context.Context, _ string) (string, error) {
	return "", nil
}

func (n *NoopRetriever) Status() Status {
	return Status{Backend: "none"}
}

func (n *NoopRetriever) SetEnabled(bool) {}
