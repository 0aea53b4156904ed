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

// Package persona implements the dispatcher that sends requests to named
// external persona workers over the transport streams and waits for their
// responses: correlation-id bookkeeping, retry with growing timeouts,
// duplicate suppression, the information-request sub-loop, and the
// language-policy guard for reviewer personas.
package persona

import "time"

// Request stream field names, per the wire contract.
const (
	FieldWorkflowID = "workflow_id"
	FieldStep       = "step"
	FieldFrom       = "from"
	FieldToPersona  = "to_persona"
	FieldIntent     = "intent"
	FieldCorrID     = "corr_id"
	FieldPayload    = "payload"
	FieldDeadlineS  = "deadline_s"
	FieldProjectID  = "project_id"
	FieldRepo       = "repo"
	FieldBranch     = "branch"
	FieldTaskID     = "task_id"
)

// Event stream field names, per the wire contract.
const (
	FieldFromPersona = "from_persona"
	FieldStatus      = "status"
	FieldResult      = "result"
	FieldTS          = "ts"
	FieldError       = "error"
)

// EventStatus is the event stream's "status" field.
type EventStatus string

const (
	EventStatusDone              EventStatus = "done"
	EventStatusError             EventStatus = "error"
	EventStatusDuplicateResponse EventStatus = "duplicate_response"
)

// Event is one parsed entry from the event stream.
type Event struct {
	WorkflowID  string
	Step        string
	CorrID      string
	FromPersona string
	Status      EventStatus
	Result      string
	TS          string
	Error       string
}

// eventFromFields parses a transport.Entry's Fields into an Event.
func eventFromFields(fields map[string]string) Event {
	return Event{
		WorkflowID:  fields[FieldWorkflowID],
		Step:        fields[FieldStep],
		CorrID:      fields[FieldCorrID],
		FromPersona: fields[FieldFromPersona],
		Status:      EventStatus(fields[FieldStatus]),
		Result:      fields[FieldResult],
		TS:          fields[FieldTS],
		Error:       fields[FieldError],
	}
}

// Request describes one persona dispatch before it is sent. Payload is
// rendered to a JSON string at send time.
type Request struct {
	WorkflowID string
	Step       string
	From       string
	ToPersona  string
	Intent     string
	Payload    map[string]interface{}
	DeadlineS  int
	ProjectID  string
	Repo       string
	Branch     string
	TaskID     string

	// TimeoutMS overrides the persona's configured default timeout for
	// this request, if non-zero.
	TimeoutMS int
}

// Result is the dispatcher's resolved outcome of a Request: the final
// event received (after any retries and information-request rounds), the
// number of send attempts, and the count of distinct information sources
// resolved. Classifying the event's text is left to pkg/review.
type Result struct {
	Event                     Event
	Attempts                  int
	InformationRequestSources int
}

// seenKey identifies one (task_id, corr_id, persona) tuple for duplicate
// suppression.
type seenKey struct {
	TaskID  string
	CorrID  string
	Persona string
}

// defaultSeenTTL bounds how long a (task_id, corr_id, persona) tuple is
// remembered for duplicate suppression.
const defaultSeenTTL = 10 * time.Minute
