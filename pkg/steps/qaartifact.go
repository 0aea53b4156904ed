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

package steps

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	maerrors "github.com/maflow/orchestrator/pkg/maerrors"
	"github.com/maflow/orchestrator/pkg/security"
	"github.com/maflow/orchestrator/pkg/workflow"
)

// RegisterQAArtifactLoad adds the "qa_artifact_load" step type: reads back
// a previously persisted review artifact at
// .ma/tasks/<task_id>/reviews/<review_type>.json, returning its decoded
// payload. Used by the review-failure sub-workflow to recover a QA
// review's structured output when the triggering persona event only
// carried a reference, not the full payload.
//
// Config:
//
//	task_id (string, required)
//	review_type (string, required)
func RegisterQAArtifactLoad(reg *workflow.Registry, deps Deps) {
	reg.Register("qa_artifact_load", func(ctx context.Context, wctx *workflow.Context, cfg map[string]interface{}) (workflow.StepOutput, error) {
		taskID := configString(cfg, "task_id", "")
		if taskID == "" {
			return workflow.StepOutput{}, &maerrors.ValidationError{Field: "task_id", Message: "qa_artifact_load requires task_id"}
		}
		reviewType := configString(cfg, "review_type", "")
		if reviewType == "" {
			return workflow.StepOutput{}, &maerrors.ValidationError{Field: "review_type", Message: "qa_artifact_load requires review_type"}
		}

		relPath := filepath.Join(".ma", "tasks", taskID, "reviews", reviewType+".json")
		absPath := filepath.Join(wctx.RepoRoot, relPath)
		if err := security.ValidateArtifactPath(wctx.RepoRoot, absPath); err != nil {
			return workflow.StepOutput{}, &maerrors.PolicyViolation{Rule: "path_escape", Detail: err.Error()}
		}

		data, err := os.ReadFile(absPath)
		if err != nil {
			if os.IsNotExist(err) {
				return workflow.StepOutput{}, &maerrors.NotFoundError{Resource: "qa_artifact", ID: relPath}
			}
			return workflow.StepOutput{}, err
		}

		var payload map[string]interface{}
		if err := json.Unmarshal(data, &payload); err != nil {
			return workflow.StepOutput{}, &maerrors.ValidationError{Field: "payload", Message: "qa_artifact_load found a non-JSON artifact at " + relPath}
		}

		return workflow.StepOutput{Data: map[string]interface{}{
			"payload": payload,
			"path":    relPath,
		}}, nil
	})
}
