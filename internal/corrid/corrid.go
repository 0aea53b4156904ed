// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package corrid carries persona request correlation IDs across context
// boundaries, from dispatch through the HTTP transport layer to logging.
package corrid

import (
	"context"

	"github.com/google/uuid"
)

type contextKey struct{}

// CorrelationID identifies a single persona request attempt. A retry of the
// same logical request gets a fresh CorrelationID.
type CorrelationID string

// New generates a new random correlation ID.
func New() CorrelationID {
	return CorrelationID(uuid.NewString())
}

// IsValid reports whether the correlation ID is non-empty.
func (c CorrelationID) IsValid() bool {
	return c != ""
}

// String returns the correlation ID as a string.
func (c CorrelationID) String() string {
	return string(c)
}

// ToContext returns a new context carrying the correlation ID.
func ToContext(ctx context.Context, id CorrelationID) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContextOrEmpty extracts the correlation ID from ctx, returning the
// empty CorrelationID if none is present.
func FromContextOrEmpty(ctx context.Context) CorrelationID {
	id, ok := ctx.Value(contextKey{}).(CorrelationID)
	if !ok {
		return ""
	}
	return id
}
