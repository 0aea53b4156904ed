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

package log

import (
	"log/slog"
	"time"
)

// PersonaRequest describes an outbound persona dispatch for logging purposes.
type PersonaRequest struct {
	// TaskID is the task the request was issued on behalf of.
	TaskID string

	// Persona is the target persona name.
	Persona string

	// CorrID is the correlation ID used to match the eventual response.
	CorrID string

	// Attempt is the retry attempt number, starting at 1.
	Attempt int

	// Metadata contains additional request metadata.
	Metadata map[string]interface{}
}

// PersonaResponse describes the outcome of waiting for a persona response.
type PersonaResponse struct {
	// Success indicates a response was received before the attempt timeout.
	Success bool

	// Error is the error message if the attempt failed or timed out.
	Error string

	// DurationMs is how long the dispatcher waited for this attempt.
	DurationMs int64

	// Metadata contains additional response metadata.
	Metadata map[string]interface{}
}

// LogPersonaRequest logs a persona dispatch attempt.
func LogPersonaRequest(logger *slog.Logger, req *PersonaRequest) {
	attrs := []any{
		EventKey, "persona_request",
		TaskIDKey, req.TaskID,
		PersonaKey, req.Persona,
		CorrIDKey, req.CorrID,
		"attempt", req.Attempt,
	}

	for k, v := range req.Metadata {
		attrs = append(attrs, k, v)
	}

	logger.Info("persona request dispatched", attrs...)
}

// LogPersonaResponse logs the outcome of a persona dispatch attempt.
func LogPersonaResponse(logger *slog.Logger, req *PersonaRequest, resp *PersonaResponse) {
	attrs := []any{
		EventKey, "persona_response",
		TaskIDKey, req.TaskID,
		PersonaKey, req.Persona,
		CorrIDKey, req.CorrID,
		"attempt", req.Attempt,
		"success", resp.Success,
		DurationKey, resp.DurationMs,
	}

	if resp.Error != "" {
		attrs = append(attrs, "error", resp.Error)
	}

	for k, v := range resp.Metadata {
		attrs = append(attrs, k, v)
	}

	level := slog.LevelInfo
	message := "persona response received"

	if !resp.Success {
		level = slog.LevelWarn
		message = "persona attempt failed"
	}

	logger.Log(nil, level, message, attrs...)
}

// PersonaDispatchMiddleware wraps a persona dispatch attempt with logging.
// It logs the request when it is sent and the response (or timeout) when the
// wait completes.
type PersonaDispatchMiddleware struct {
	logger *slog.Logger
}

// NewPersonaDispatchMiddleware creates a new persona dispatch logging middleware.
func NewPersonaDispatchMiddleware(logger *slog.Logger) *PersonaDispatchMiddleware {
	return &PersonaDispatchMiddleware{logger: logger}
}

// Wrap runs handler, logging the request before and the response after.
// handler should perform one send-and-wait attempt and return any error
// (including context deadline exceeded on a wait timeout).
func (m *PersonaDispatchMiddleware) Wrap(req *PersonaRequest, handler func() error) error {
	start := time.Now()

	LogPersonaRequest(m.logger, req)

	err := handler()

	resp := &PersonaResponse{
		Success:    err == nil,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		resp.Error = err.Error()
	}

	LogPersonaResponse(m.logger, req, resp)

	return err
}
