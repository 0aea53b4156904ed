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

package persona

import "time"

// UnlimitedRetries marks a PersonaConfig.MaxRetries as having no ceiling.
const UnlimitedRetries = -1

// PersonaConfig holds per-persona dispatch overrides.
type PersonaConfig struct {
	// DefaultTimeoutMS is the wait timeout used when a Request does not
	// set its own TimeoutMS.
	DefaultTimeoutMS int

	// MaxRetries bounds retry attempts on timeout/error, or
	// UnlimitedRetries for no ceiling.
	MaxRetries int

	// RetryBackoffIncrementMS is added to the timeout baseline on every
	// retry; successful retries do not reset the baseline.
	RetryBackoffIncrementMS int

	// AllowedLanguages gates the language-policy guard for reviewer
	// personas (code_review and similar). Empty means the guard does not
	// apply to this persona.
	AllowedLanguages []string
}

// Config is the dispatcher's full configuration: per-persona overrides
// plus the shared information-request and stream-naming bounds.
type Config struct {
	Personas map[string]PersonaConfig

	// RequestStreamPrefix/EventStreamPrefix name the transport streams;
	// the request stream is further namespaced per persona
	// ("<prefix>:<persona>" consumer group).
	RequestStreamPrefix string
	EventStreamPrefix   string

	// MaxInformationIterations bounds the info-request sub-loop (default 5).
	MaxInformationIterations int

	// MaxUniqueSources bounds distinct information sources a persona may
	// request before the one-iteration grace period applies (default 12).
	MaxUniqueSources int

	// SeenTTL bounds how long a (task_id, corr_id, persona) tuple is
	// remembered for duplicate suppression.
	SeenTTL time.Duration

	// HTTPByteCap bounds how many bytes an http_get information request
	// may stream back.
	HTTPByteCap int64

	// FileByteCap bounds how many bytes a repo_file information request
	// may read.
	FileByteCap int64
}

// DefaultConfig returns the documented default bounds, with no persona
// overrides and no stream prefixes set (callers must set those).
func DefaultConfig() Config {
	return Config{
		Personas:                 map[string]PersonaConfig{},
		MaxInformationIterations: 5,
		MaxUniqueSources:         12,
		SeenTTL:                  defaultSeenTTL,
		HTTPByteCap:              1 << 20, // 1 MiB
		FileByteCap:              1 << 20,
	}
}

// personaConfig returns the configured PersonaConfig for name, or a
// PersonaConfig with DefaultTimeoutMS=30000 and MaxRetries=3 if unset.
func (c Config) personaConfig(name string) PersonaConfig {
	if pc, ok := c.Personas[name]; ok {
		return pc
	}
	return PersonaConfig{DefaultTimeoutMS: 30_000, MaxRetries: 3, RetryBackoffIncrementMS: 15_000}
}
